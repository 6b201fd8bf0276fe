package transfer

import "errors"

// Sentinel errors returned by Service methods. The transfer package never
// imports grpc/codes itself; internal/coordinator (or any other RPC-facing
// wrapper) maps these to status codes at the boundary, keeping the
// transport concern out of the transfer logic.
var (
	// ErrUnknownShare is returned when a requested share name has no
	// matching entry in the current share set.
	ErrUnknownShare = errors.New("transfer: unknown share")

	// ErrNotShared is returned when a GetFile path does not resolve under
	// any currently shared directory.
	ErrNotShared = errors.New("transfer: path not shared")

	// ErrFileMissing is returned when a path resolves under a shared
	// directory but no longer exists on disk.
	ErrFileMissing = errors.New("transfer: file missing")

	// ErrAlreadyExists is returned by the Downloader when the destination
	// file already exists locally.
	ErrAlreadyExists = errors.New("transfer: destination file already exists")

	// ErrHashMismatch is returned by the Downloader when a downloaded
	// file's computed SHA-256 does not match the sender's terminal Meta.
	ErrHashMismatch = errors.New("transfer: downloaded file failed hash verification")
)
