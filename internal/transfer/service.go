// Package transfer implements the TransferService RPC: enumerating shared
// directories and streaming files to peers, plus a Downloader client for
// pulling files from a remote peer's TransferService.
package transfer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"

	"github.com/landohd/landohd/internal/identity"
	"github.com/landohd/landohd/internal/metrics"
	"github.com/landohd/landohd/internal/pb"
)

// chunkSize is the size of each streamed GetFileResponse.Chunk.
const chunkSize = 1 << 20 // 1 MiB

// Service implements pb.TransferServiceServer against a live Identity. It
// bounds directory-walk fan-out with one workerpool and concurrently open
// serving file descriptors with a second, independently sized one, rather
// than letting either grow unbounded under load.
type Service struct {
	pb.UnimplementedTransferServiceServer

	id     *identity.Identity
	pool   *workerpool.WorkerPool
	ioPool *workerpool.WorkerPool

	broadcasting atomic.Bool
	listening    atomic.Bool
}

// NewService constructs a Service backed by id. concurrency sizes the
// directory-walk fan-out pool used by GetDirectory; ioConcurrency sizes
// the separate pool bounding concurrently open files served by GetFile,
// so a burst of listings and a burst of transfers don't compete for the
// same worker slots.
func NewService(id *identity.Identity, concurrency int, ioConcurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	if ioConcurrency <= 0 {
		ioConcurrency = 1
	}
	return &Service{
		id:     id,
		pool:   workerpool.New(concurrency),
		ioPool: workerpool.New(ioConcurrency),
	}
}

// Stop drains both worker pools. Call during shutdown.
func (s *Service) Stop() {
	s.pool.StopWait()
	s.ioPool.StopWait()
}

// SetBroadcasting records whether the Announcer subsystem is currently
// running, for Healthz to report.
func (s *Service) SetBroadcasting(v bool) { s.broadcasting.Store(v) }

// SetListening records whether the discovery Listener subsystem is
// currently running, for Healthz to report.
func (s *Service) SetListening(v bool) { s.listening.Store(v) }

func (s *Service) Healthz(ctx context.Context, _ *pb.HealthzRequest) (*pb.HealthzResponse, error) {
	st := s.id.Snapshot()
	return &pb.HealthzResponse{
		Broadcaster:   s.broadcasting.Load(),
		EventListener: s.listening.Load(),
		Address:       st.Address,
		ID:            st.ID,
		Nickname:      st.Nickname,
	}, nil
}

func (s *Service) ListDirectories(ctx context.Context, _ *pb.ListDirectoriesRequest) (*pb.ListDirectoriesResponse, error) {
	st := s.id.Snapshot()

	dirs := make([]*pb.Directory, 0, len(st.Shares))
	for _, share := range st.Shares {
		paths := make([]string, 0, len(share.Paths))
		for _, p := range share.Paths {
			short := shortenPath(share.Name, p)
			if short == "" {
				logrus.WithFields(logrus.Fields{"share": share.Name, "path": p}).Warn("transfer: could not shorten share path, skipping")
				continue
			}
			paths = append(paths, short)
		}
		dirs = append(dirs, &pb.Directory{Name: share.Name, Paths: paths})
	}

	return &pb.ListDirectoriesResponse{Dirs: dirs}, nil
}

func (s *Service) findShare(name string) (identity.Share, bool) {
	for _, share := range s.id.Snapshot().Shares {
		if share.Name == name {
			return share, true
		}
	}
	return identity.Share{}, false
}

func (s *Service) GetDirectory(ctx context.Context, req *pb.GetDirectoryRequest) (*pb.GetDirectoryResponse, error) {
	share, ok := s.findShare(req.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownShare, req.Name)
	}

	type result struct {
		files []*pb.FileMetaData
	}
	results := make(chan result, len(share.Paths))

	for _, root := range share.Paths {
		root := root
		s.pool.Submit(func() {
			files := walkShare(share.Name, root)
			results <- result{files: files}
		})
	}

	var files []*pb.FileMetaData
	for range share.Paths {
		files = append(files, (<-results).files...)
	}

	return &pb.GetDirectoryResponse{Files: files}, nil
}

// walkShare enumerates every regular file under root, shortening its path
// relative to shareName. Symlinks are never followed: WalkDir reports them
// without descending, and they're skipped outright here since a shared
// directory has no business handing out files it doesn't actually contain.
func walkShare(shareName, root string) []*pb.FileMetaData {
	var files []*pb.FileMetaData

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return files
	}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logrus.WithError(err).WithField("path", path).Warn("transfer: walk error, skipping")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			logrus.WithError(err).WithField("path", path).Warn("transfer: stat error, skipping")
			return nil
		}

		short := shortenPath(shareName, path)
		if short == "" {
			logrus.WithFields(logrus.Fields{"share": shareName, "path": path}).Warn("transfer: could not shorten file path, skipping")
			return nil
		}

		files = append(files, &pb.FileMetaData{
			Path:     short,
			FileSize: uint64(fi.Size()),
			Hash:     "none",
		})
		return nil
	})

	return files
}

func (s *Service) GetFile(req *pb.GetFileRequest, stream pb.TransferService_GetFileServer) error {
	resolved, err := s.resolveFilePath(req.Path)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	s.ioPool.Submit(func() {
		done <- sendFile(resolved, req.Path, stream)
	})
	return <-done
}

// resolveFilePath maps a logical "<share>/<relative path>" request onto a
// backing filesystem path, the way the server matches the first path
// segment against a known share name and rejoins the remainder under that
// share's first backing directory's parent. A path whose ".." segments
// would lead outside "<parent>/<share>" is rejected with ErrNotShared.
func (s *Service) resolveFilePath(logical string) (string, error) {
	parts := strings.SplitN(filepath.ToSlash(logical), "/", 2)
	shareName := parts[0]

	share, ok := s.findShare(shareName)
	if !ok || len(share.Paths) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotShared, logical)
	}

	shareRoot := filepath.Join(filepath.Dir(share.Paths[0]), shareName)
	resolved := filepath.Join(filepath.Dir(share.Paths[0]), filepath.FromSlash(logical))
	if rel, err := filepath.Rel(shareRoot, resolved); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrNotShared, logical)
	}

	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileMissing, resolved)
	}
	return resolved, nil
}

// sendFile streams path in chunkSize-sized pieces, then emits a terminal
// Meta trailer carrying the running SHA-256 hash. A zero-byte file sends
// no Chunk envelopes at all, only the terminal Meta — the hash of an empty
// input.
func sendFile(path, logicalPath string, stream pb.TransferService_GetFileServer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("transfer: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	h := sha256.New()
	buf := make([]byte, chunkSize)

	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := stream.Send(&pb.GetFileResponse{Chunk: chunk}); sendErr != nil {
				return fmt.Errorf("transfer: send chunk for %s: %w", path, sendErr)
			}
			metrics.BytesStreamed.Add(float64(n))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("transfer: read %s: %w", path, err)
		}
	}

	if err := stream.Send(&pb.GetFileResponse{
		Meta: &pb.FileMetaData{
			Path:     logicalPath,
			FileSize: uint64(info.Size()),
			Hash:     strings.ToUpper(fmt.Sprintf("%x", h.Sum(nil))),
		},
	}); err != nil {
		return fmt.Errorf("transfer: send trailer for %s: %w", path, err)
	}

	metrics.FilesServed.Inc()
	return nil
}
