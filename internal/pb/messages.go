// Package pb defines the wire messages and service contract for the
// TransferService RPC described in the daemon's design: Healthz,
// ListDirectories, GetDirectory and a server-streamed GetFile.
//
// These types stand in for protoc-generated code. There is no protobuf
// compiler available to this build, and hand-faking a protoreflect.Message
// implementation (which needs a real compiled file descriptor) would not
// reflect what protoc-gen-go actually emits. Instead the messages are plain
// JSON-tagged structs carried over google.golang.org/grpc through the
// custom codec in codec.go, so the transport (HTTP/2 framing, streaming,
// deadlines, status codes) is the real thing; only the wire encoding of the
// message bodies differs from a protoc build.
package pb

// HealthzRequest carries no fields.
type HealthzRequest struct{}

// HealthzResponse reports coordinator-observed subsystem state.
type HealthzResponse struct {
	Broadcaster   bool   `json:"broadcaster"`
	EventListener bool   `json:"event_listener"`
	Address       string `json:"address"`
	ID            string `json:"id"`
	Nickname      string `json:"nickname"`
}

// ListDirectoriesRequest carries no fields.
type ListDirectoriesRequest struct{}

// Directory is a local share as seen on the wire: a name and its
// (shortened) backing paths.
type Directory struct {
	Name  string   `json:"name"`
	Paths []string `json:"paths"`
}

// ListDirectoriesResponse is the current local share set.
type ListDirectoriesResponse struct {
	Dirs []*Directory `json:"dirs"`
}

// GetDirectoryRequest names the share to enumerate.
type GetDirectoryRequest struct {
	Name string `json:"name"`
}

// FileMetaData describes one file, either as enumerated (Hash == "none")
// or as the terminal trailer of a GetFile stream (Hash populated).
type FileMetaData struct {
	Path     string `json:"path"`
	FileSize uint64 `json:"file_size"`
	Hash     string `json:"hash"`
}

// GetDirectoryResponse enumerates every regular file under a share.
type GetDirectoryResponse struct {
	Files []*FileMetaData `json:"files"`
}

// GetFileRequest names the logical "<share>/<relative path>" to fetch.
type GetFileRequest struct {
	Path string `json:"path"`
}

// GetFileResponse is one envelope of a GetFile stream. Exactly one of
// Chunk or Meta is populated: Chunk for in-order byte ranges, Meta for the
// single terminal trailer that closes the stream.
type GetFileResponse struct {
	Chunk []byte        `json:"chunk,omitempty"`
	Meta  *FileMetaData `json:"meta,omitempty"`
}
