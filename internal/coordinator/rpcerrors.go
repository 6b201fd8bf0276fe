package coordinator

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/landohd/landohd/internal/transfer"
)

// mapTransferError translates the small closed set of sentinel errors
// internal/transfer returns into gRPC status codes. An unknown share or a
// path that doesn't resolve under any share is *invalid-argument* (the
// caller asked for something that was never valid); a GetFile request
// whose resolved path doesn't exist on disk is also *invalid-argument*,
// per spec §4.4 step 2 ("the file must exist; otherwise fail
// invalid-argument") and the original source's own
// Status::invalid_argument for exactly this check — it is not the §7
// "file vanished between enumeration and fetch" *not-found* case, which
// this implementation doesn't distinguish as a separate sentinel. This is
// the one place the transport concern (codes.*) meets the transfer
// package's plain Go errors — transfer itself never imports grpc/codes,
// matching the teacher's convention of keeping transport-specific error
// types at the transport package boundary.
func mapTransferError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transfer.ErrUnknownShare), errors.Is(err, transfer.ErrNotShared), errors.Is(err, transfer.ErrFileMissing):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// unaryErrorInterceptor wraps a unary RPC handler's returned error through
// mapTransferError before it reaches the client.
func unaryErrorInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	return resp, mapTransferError(err)
}

// streamErrorInterceptor does the same for the streaming GetFile RPC.
func streamErrorInterceptor(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	return mapTransferError(handler(srv, ss))
}
