package transfer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/landohd/landohd/internal/identity"
	"github.com/landohd/landohd/internal/pb"
)

const bufSize = 1024 * 1024

func newBufconnClient(t *testing.T, svc *Service) (pb.TransferServiceClient, func()) {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	grpcServer := grpc.NewServer()
	pb.RegisterTransferServiceServer(grpcServer, svc)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	conn, err := grpc.DialContext(
		context.Background(),
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}

	cleanup := func() {
		_ = conn.Close()
		grpcServer.Stop()
		_ = lis.Close()
	}

	return pb.NewTransferServiceClient(conn), cleanup
}

func newTestIdentity(t *testing.T, shareName string, root string) *identity.Identity {
	t.Helper()
	id := identity.New("tester", t.TempDir(), "127.0.0.1:0")
	if _, err := id.AddShare(shareName, []string{root}); err != nil {
		t.Fatalf("AddShare: %v", err)
	}
	return id
}

func TestGetDirectoryEnumeratesRegularFiles(t *testing.T) {
	// The backing directory's own basename must be the share name for
	// the wire-level path-shortening scheme (§4.4) to locate it: here
	// that's "t", exactly the layout scenario 3 in the spec describes.
	root := filepath.Join(t.TempDir(), "t")
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a"), make([]byte, 10), 0o644); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b"), nil, 0o644); err != nil {
		t.Fatalf("write b: %v", err)
	}

	id := newTestIdentity(t, "t", root)
	svc := NewService(id, 2, 2)
	defer svc.Stop()

	client, cleanup := newBufconnClient(t, svc)
	defer cleanup()

	resp, err := client.GetDirectory(context.Background(), &pb.GetDirectoryRequest{Name: "t"})
	if err != nil {
		t.Fatalf("GetDirectory: %v", err)
	}

	got := map[string]*pb.FileMetaData{}
	for _, f := range resp.Files {
		got[f.Path] = f
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 files, got %d: %+v", len(got), resp.Files)
	}
	if f, ok := got["t/a"]; !ok || f.FileSize != 10 || f.Hash != "none" {
		t.Fatalf("unexpected entry for t/a: %+v (ok=%v)", f, ok)
	}
	if f, ok := got[filepath.ToSlash(filepath.Join("t", "sub", "b"))]; !ok || f.FileSize != 0 || f.Hash != "none" {
		t.Fatalf("unexpected entry for t/sub/b: %+v (ok=%v)", f, ok)
	}
}

func TestGetDirectoryUnknownShareFails(t *testing.T) {
	id := newTestIdentity(t, "t", t.TempDir())
	svc := NewService(id, 1, 1)
	defer svc.Stop()

	client, cleanup := newBufconnClient(t, svc)
	defer cleanup()

	if _, err := client.GetDirectory(context.Background(), &pb.GetDirectoryRequest{Name: "nope"}); err == nil {
		t.Fatal("expected error for unknown share")
	}
}

func TestGetFileStreamsChunksAndTerminalHash(t *testing.T) {
	root := filepath.Join(t.TempDir(), "t")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write a: %v", err)
	}

	id := newTestIdentity(t, "t", root)
	svc := NewService(id, 1, 1)
	defer svc.Stop()

	client, cleanup := newBufconnClient(t, svc)
	defer cleanup()

	stream, err := client.GetFile(context.Background(), &pb.GetFileRequest{Path: "t/a"})
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}

	var data []byte
	var trailer *pb.FileMetaData
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if resp.Meta != nil {
			trailer = resp.Meta
			continue
		}
		data = append(data, resp.Chunk...)
	}

	if string(data) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", data)
	}
	if trailer == nil {
		t.Fatal("expected a terminal Meta envelope")
	}

	want := sha256SumUpper([]byte("hello"))
	if trailer.Hash != want {
		t.Fatalf("hash mismatch: got %s want %s", trailer.Hash, want)
	}
	if trailer.FileSize != 5 {
		t.Fatalf("expected file_size 5, got %d", trailer.FileSize)
	}
	if trailer.Path != "t/a" {
		t.Fatalf("expected echoed path t/a, got %s", trailer.Path)
	}
}

func TestGetFileZeroByteFileStillEmitsTerminalMeta(t *testing.T) {
	root := filepath.Join(t.TempDir(), "t")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "empty"), nil, 0o644); err != nil {
		t.Fatalf("write empty: %v", err)
	}

	id := newTestIdentity(t, "t", root)
	svc := NewService(id, 1, 1)
	defer svc.Stop()

	client, cleanup := newBufconnClient(t, svc)
	defer cleanup()

	stream, err := client.GetFile(context.Background(), &pb.GetFileRequest{Path: "t/empty"})
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}

	var chunks int
	var trailer *pb.FileMetaData
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if resp.Meta != nil {
			trailer = resp.Meta
			continue
		}
		chunks++
	}

	if chunks != 0 {
		t.Fatalf("expected no Chunk envelopes for an empty file, got %d", chunks)
	}
	if trailer == nil || trailer.FileSize != 0 {
		t.Fatalf("expected a terminal Meta with file_size 0, got %+v", trailer)
	}
	if trailer.Hash != sha256SumUpper(nil) {
		t.Fatalf("expected hash of empty input, got %s", trailer.Hash)
	}
}

func TestGetFileUnknownShareFailsWithoutOpeningFile(t *testing.T) {
	id := newTestIdentity(t, "t", t.TempDir())
	svc := NewService(id, 1, 1)
	defer svc.Stop()

	client, cleanup := newBufconnClient(t, svc)
	defer cleanup()

	stream, err := client.GetFile(context.Background(), &pb.GetFileRequest{Path: "whatever/x"})
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if _, err := stream.Recv(); err == nil {
		t.Fatal("expected an error for an unshared path")
	}
}

func sha256SumUpper(b []byte) string {
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%X", sum)
}
