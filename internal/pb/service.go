package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const transferServiceName = "landoh.TransferService"

// TransferServiceClient is the client API for TransferService.
type TransferServiceClient interface {
	Healthz(ctx context.Context, in *HealthzRequest, opts ...grpc.CallOption) (*HealthzResponse, error)
	ListDirectories(ctx context.Context, in *ListDirectoriesRequest, opts ...grpc.CallOption) (*ListDirectoriesResponse, error)
	GetDirectory(ctx context.Context, in *GetDirectoryRequest, opts ...grpc.CallOption) (*GetDirectoryResponse, error)
	GetFile(ctx context.Context, in *GetFileRequest, opts ...grpc.CallOption) (TransferService_GetFileClient, error)
}

// TransferService_GetFileClient is the stream handle returned by GetFile.
type TransferService_GetFileClient = grpc.ServerStreamingClient[GetFileResponse]

type transferServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTransferServiceClient wraps a ClientConn as a TransferServiceClient.
func NewTransferServiceClient(cc grpc.ClientConnInterface) TransferServiceClient {
	return &transferServiceClient{cc}
}

func (c *transferServiceClient) Healthz(ctx context.Context, in *HealthzRequest, opts ...grpc.CallOption) (*HealthzResponse, error) {
	out := new(HealthzResponse)
	if err := c.cc.Invoke(ctx, "/"+transferServiceName+"/Healthz", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *transferServiceClient) ListDirectories(ctx context.Context, in *ListDirectoriesRequest, opts ...grpc.CallOption) (*ListDirectoriesResponse, error) {
	out := new(ListDirectoriesResponse)
	if err := c.cc.Invoke(ctx, "/"+transferServiceName+"/ListDirectories", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *transferServiceClient) GetDirectory(ctx context.Context, in *GetDirectoryRequest, opts ...grpc.CallOption) (*GetDirectoryResponse, error) {
	out := new(GetDirectoryResponse)
	if err := c.cc.Invoke(ctx, "/"+transferServiceName+"/GetDirectory", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *transferServiceClient) GetFile(ctx context.Context, in *GetFileRequest, opts ...grpc.CallOption) (TransferService_GetFileClient, error) {
	stream, err := c.cc.NewStream(ctx, &TransferServiceServiceDesc.Streams[0], "/"+transferServiceName+"/GetFile", opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[GetFileRequest, GetFileResponse]{ClientStream: stream}
	if err := x.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// TransferServiceServer is the server API for TransferService.
type TransferServiceServer interface {
	Healthz(context.Context, *HealthzRequest) (*HealthzResponse, error)
	ListDirectories(context.Context, *ListDirectoriesRequest) (*ListDirectoriesResponse, error)
	GetDirectory(context.Context, *GetDirectoryRequest) (*GetDirectoryResponse, error)
	GetFile(*GetFileRequest, TransferService_GetFileServer) error
	mustEmbedUnimplementedTransferServiceServer()
}

// TransferService_GetFileServer is the stream handle passed to the GetFile
// implementation.
type TransferService_GetFileServer = grpc.ServerStreamingServer[GetFileResponse]

// UnimplementedTransferServiceServer must be embedded by every real
// implementation, for forward compatibility with methods added later.
type UnimplementedTransferServiceServer struct{}

func (UnimplementedTransferServiceServer) Healthz(context.Context, *HealthzRequest) (*HealthzResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Healthz not implemented")
}
func (UnimplementedTransferServiceServer) ListDirectories(context.Context, *ListDirectoriesRequest) (*ListDirectoriesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListDirectories not implemented")
}
func (UnimplementedTransferServiceServer) GetDirectory(context.Context, *GetDirectoryRequest) (*GetDirectoryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetDirectory not implemented")
}
func (UnimplementedTransferServiceServer) GetFile(*GetFileRequest, TransferService_GetFileServer) error {
	return status.Error(codes.Unimplemented, "method GetFile not implemented")
}
func (UnimplementedTransferServiceServer) mustEmbedUnimplementedTransferServiceServer() {}

// RegisterTransferServiceServer registers srv on s.
func RegisterTransferServiceServer(s grpc.ServiceRegistrar, srv TransferServiceServer) {
	s.RegisterService(&TransferServiceServiceDesc, srv)
}

func _TransferService_Healthz_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HealthzRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransferServiceServer).Healthz(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + transferServiceName + "/Healthz"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TransferServiceServer).Healthz(ctx, req.(*HealthzRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _TransferService_ListDirectories_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListDirectoriesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransferServiceServer).ListDirectories(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + transferServiceName + "/ListDirectories"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TransferServiceServer).ListDirectories(ctx, req.(*ListDirectoriesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _TransferService_GetDirectory_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetDirectoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransferServiceServer).GetDirectory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + transferServiceName + "/GetDirectory"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TransferServiceServer).GetDirectory(ctx, req.(*GetDirectoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _TransferService_GetFile_Handler(srv any, stream grpc.ServerStream) error {
	m := new(GetFileRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(TransferServiceServer).GetFile(m, &grpc.GenericServerStream[GetFileRequest, GetFileResponse]{ServerStream: stream})
}

// TransferServiceServiceDesc is the grpc.ServiceDesc for TransferService.
var TransferServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: transferServiceName,
	HandlerType: (*TransferServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Healthz", Handler: _TransferService_Healthz_Handler},
		{MethodName: "ListDirectories", Handler: _TransferService_ListDirectories_Handler},
		{MethodName: "GetDirectory", Handler: _TransferService_GetDirectory_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "GetFile", Handler: _TransferService_GetFile_Handler, ServerStreams: true},
	},
	Metadata: "landoh/transfer.proto",
}
