package transfer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/landohd/landohd/internal/metrics"
	"github.com/landohd/landohd/internal/pb"
)

// Downloader pulls files from a remote peer's TransferService into a local
// destination directory.
type Downloader struct {
	destination string
}

// NewDownloader returns a Downloader that writes into destination.
func NewDownloader(destination string) *Downloader {
	return &Downloader{destination: destination}
}

func dial(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	return grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
}

// ListDirectories fetches the remote peer's current share set.
func (d *Downloader) ListDirectories(ctx context.Context, addr string) (*pb.ListDirectoriesResponse, error) {
	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("transfer: dial %s: %w", addr, err)
	}
	defer conn.Close()

	return pb.NewTransferServiceClient(conn).ListDirectories(ctx, &pb.ListDirectoriesRequest{})
}

// GetDirectory enumerates the files under a named share on the remote peer.
func (d *Downloader) GetDirectory(ctx context.Context, addr, name string) ([]*pb.FileMetaData, error) {
	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("transfer: dial %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := pb.NewTransferServiceClient(conn).GetDirectory(ctx, &pb.GetDirectoryRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// GetAllFiles downloads every file in files from addr sequentially,
// returning the logical paths that succeeded and the ones that failed. A
// single failure does not abort the batch, mirroring a bulk "download this
// whole directory" request that should make as much progress as it can.
func (d *Downloader) GetAllFiles(ctx context.Context, addr string, files []*pb.FileMetaData) (success, failed []string, err error) {
	for _, file := range files {
		if getErr := d.GetFile(ctx, addr, file); getErr != nil {
			logrus.WithError(getErr).WithField("path", file.Path).Error("transfer: download failed")
			failed = append(failed, file.Path)
			continue
		}
		success = append(success, file.Path)
	}
	return success, failed, nil
}

// GetFile downloads a single file, verifies its SHA-256 against the
// sender's terminal Meta, and quarantines the result by renaming it with a
// ".corrupt" suffix if verification fails rather than keeping or silently
// deleting a possibly-corrupt file.
func (d *Downloader) GetFile(ctx context.Context, addr string, file *pb.FileMetaData) (err error) {
	defer func() {
		if err != nil {
			metrics.DownloadFailures.Inc()
		}
	}()

	destPath := filepath.Join(d.destination, filepath.FromSlash(file.Path))
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, destPath)
	}

	conn, err := dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("transfer: dial %s: %w", addr, err)
	}
	defer conn.Close()

	stream, err := pb.NewTransferServiceClient(conn).GetFile(ctx, &pb.GetFileRequest{Path: file.Path})
	if err != nil {
		return fmt.Errorf("transfer: open GetFile stream for %s: %w", file.Path, err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("transfer: create destination dir: %w", err)
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("transfer: create %s: %w", destPath, err)
	}
	defer out.Close()

	h := sha256.New()
	var written uint64
	var trailer *pb.FileMetaData

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("transfer: receive stream for %s: %w", file.Path, err)
		}

		if resp.Meta != nil {
			trailer = resp.Meta
			continue
		}
		if len(resp.Chunk) == 0 {
			continue
		}
		written += uint64(len(resp.Chunk))
		h.Write(resp.Chunk)
		if _, err := out.Write(resp.Chunk); err != nil {
			return fmt.Errorf("transfer: write %s: %w", destPath, err)
		}
	}

	computed := strings.ToUpper(fmt.Sprintf("%x", h.Sum(nil)))

	logrus.WithFields(logrus.Fields{
		"path":     destPath,
		"received": written,
	}).Info("transfer: download complete")

	if trailer == nil || trailer.Hash != computed {
		if closeErr := out.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("transfer: close before quarantine rename")
		}
		corrupt := destPath + ".corrupt"
		if _, err := os.Stat(corrupt); err == nil {
			logrus.WithField("path", corrupt).Warn("transfer: quarantine path already exists, leaving mismatched download in place")
		} else if err := os.Rename(destPath, corrupt); err != nil {
			logrus.WithError(err).Error("transfer: failed to quarantine corrupt download")
		}
		return fmt.Errorf("%w: %s", ErrHashMismatch, file.Path)
	}

	return nil
}
