// Package delta implements C5, the delta-patch engine: given a path whose
// remote hash differs from local, compute and send the minimal set of
// byte-range PATCHes that make the remote copy bitwise-identical.
package delta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/toxaman/rusync/internal/chunker"
	"github.com/toxaman/rusync/internal/transport"
	"github.com/toxaman/rusync/internal/xxh"
)

// RemoteClient is the subset of transport.Client the delta engine needs.
type RemoteClient interface {
	Meta(ctx context.Context, path string) (isFile bool, chunks []chunker.FileChunk, err error)
	Patch(ctx context.Context, path string, offset int64, end bool, body []byte) error
	UploadFile(ctx context.Context, path string, content []byte) error
}

// Engine runs delta sync for individual paths under Root.
type Engine struct {
	Root   string
	Remote RemoteClient
	Log    logrus.FieldLogger
}

// New builds an Engine.
func New(root string, remote RemoteClient, log logrus.FieldLogger) *Engine {
	return &Engine{Root: root, Remote: remote, Log: log}
}

// Sync performs §4.5 for one local file against its remote chunk manifest.
func (e *Engine) Sync(ctx context.Context, localPath, remotePath string) error {
	isFile, remoteChunks, err := e.Remote.Meta(ctx, remotePath)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			// Resource absent at meta time: fall back to a full upload,
			// expressed as a single terminal patch at offset 0 (§4.5 edge case).
			return e.fullUploadAsPatch(ctx, localPath, remotePath)
		}
		return fmt.Errorf("delta: fetching remote meta for %s: %w", remotePath, err)
	}
	if !isFile {
		// Remote thinks this path is a directory; nothing to delta-sync.
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		// Local filesystem error: silently skipped per §7.
		return nil
	}
	defer f.Close()

	pos := int64(0)
	buf := make([]byte, 0)
	for _, remoteChunk := range remoteChunks {
		if cap(buf) < int(remoteChunk.Size) {
			buf = make([]byte, remoteChunk.Size)
		}
		chunkBuf := buf[:remoteChunk.Size]
		n, readErr := io.ReadFull(f, chunkBuf)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("delta: reading %s: %w", localPath, readErr)
		}

		if uint32(n) < remoteChunk.Size {
			// Local EOF reached mid-chunk: this is the whole remaining
			// tail, so one terminal patch closes out the file.
			if err := e.Remote.Patch(ctx, remotePath, pos, true, chunkBuf[:n]); err != nil {
				return fmt.Errorf("delta: patching %s at %d: %w", remotePath, pos, err)
			}
			return nil
		}

		if xxh.Sum64(chunkBuf) != remoteChunk.Hash {
			if err := e.Remote.Patch(ctx, remotePath, pos, false, chunkBuf); err != nil {
				return fmt.Errorf("delta: patching %s at %d: %w", remotePath, pos, err)
			}
		}
		pos += int64(n)
	}

	// Remote manifest exhausted but local file has more bytes: append the
	// tail as one terminal patch.
	tail, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("delta: reading tail of %s: %w", localPath, err)
	}
	if len(tail) > 0 {
		if err := e.Remote.Patch(ctx, remotePath, pos, true, tail); err != nil {
			return fmt.Errorf("delta: patching tail of %s at %d: %w", remotePath, pos, err)
		}
	}
	return nil
}

func (e *Engine) fullUploadAsPatch(ctx context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil
	}
	return e.Remote.Patch(ctx, remotePath, 0, true, data)
}
