// Package reconcile implements C4, the client-side reconciliation engine:
// comparing local and remote entry sets and classifying each differing
// path as upload, download, or delta-sync candidate.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/toxaman/rusync/internal/direntry"
)

// RemoteClient is the subset of transport.Client the reconciler needs,
// narrowed so it can be faked in tests without spinning up HTTP.
type RemoteClient interface {
	FilesDescription(ctx context.Context) ([]direntry.Entry, error)
	UploadDir(ctx context.Context, path string) error
	UploadFile(ctx context.Context, path string, content []byte) error
	DownloadFile(ctx context.Context, path string) ([]byte, error)
}

// Engine runs one reconciliation cycle (§4.4) against Root using Remote.
type Engine struct {
	Root   string
	Remote RemoteClient
	Log    logrus.FieldLogger
}

// New builds an Engine.
func New(root string, remote RemoteClient, log logrus.FieldLogger) *Engine {
	return &Engine{Root: root, Remote: remote, Log: log}
}

// Result reports what a reconciliation pass found so the caller (worker)
// can hand delta candidates off to the delta-patch engine.
type Result struct {
	Local, Remote []direntry.Entry
	DeltaCandidates []direntry.Entry
}

// Run performs one full reconciliation cycle: walk local, fetch remote,
// propagate local-only entries to the server, pull remote-only entries
// down, and return the set of paths whose hash differs for delta sync.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	local, err := direntry.Walk(e.Log, e.Root)
	if err != nil {
		e.Log.WithError(err).Warn("local walk finished with errors")
	}

	remote, err := e.Remote.FilesDescription(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: fetching remote entry set: %w", err)
	}

	if err := e.propagateToServer(ctx, direntry.Diff(local, remote)); err != nil {
		e.Log.WithError(err).Warn("error propagating local-only entries to server")
	}
	if err := e.pullFromServer(ctx, direntry.Diff(remote, local)); err != nil {
		e.Log.WithError(err).Warn("error pulling remote-only entries")
	}

	return &Result{
		Local:           local,
		Remote:          remote,
		DeltaCandidates: direntry.ChangedHash(local, remote),
	}, nil
}

// propagateToServer implements §4.4 step 3: L \ R.
func (e *Engine) propagateToServer(ctx context.Context, onlyLocal []direntry.Entry) error {
	for _, entry := range onlyLocal {
		switch entry.Type {
		case direntry.Dir:
			if isEmptyDir(filepath.Join(e.Root, entry.Path)) {
				if err := e.Remote.UploadDir(ctx, entry.Path); err != nil {
					e.Log.WithError(err).WithField("path", entry.Path).Warn("error uploading directory")
				}
			}
		case direntry.File:
			if err := e.uploadFile(ctx, entry.Path); err != nil {
				e.Log.WithError(err).WithField("path", entry.Path).Warn("error uploading file")
			}
		}
	}
	return nil
}

// pullFromServer implements §4.4 step 4: R \ L.
func (e *Engine) pullFromServer(ctx context.Context, onlyRemote []direntry.Entry) error {
	for _, entry := range onlyRemote {
		local := filepath.Join(e.Root, entry.Path)
		if entry.Type == direntry.Dir {
			if err := os.MkdirAll(local, 0o755); err != nil {
				e.Log.WithError(err).WithField("path", entry.Path).Warn("error creating local directory")
			}
			continue
		}
		data, err := e.Remote.DownloadFile(ctx, entry.Path)
		if err != nil {
			e.Log.WithError(err).WithField("path", entry.Path).Warn("error downloading file")
			continue
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			e.Log.WithError(err).WithField("path", entry.Path).Warn("error creating local parent directory")
			continue
		}
		if err := os.WriteFile(local, data, 0o644); err != nil {
			e.Log.WithError(err).WithField("path", entry.Path).Warn("error writing downloaded file")
		}
	}
	return nil
}

func (e *Engine) uploadFile(ctx context.Context, relPath string) error {
	data, err := os.ReadFile(filepath.Join(e.Root, relPath))
	if err != nil {
		// Local filesystem error during read for upload: silently skipped (§7).
		return nil
	}
	return e.Remote.UploadFile(ctx, relPath, data)
}

// HandleAdded implements the ADDED(path) operation of §4.7. For a file
// this is a plain upload. For a directory, the original's
// Worker::file_added recursively walks the newly added directory and
// uploads every nested file and subdirectory it finds rather than just
// creating the top-level directory and waiting for the next
// reconciliation cycle to discover its contents; this mirrors that.
func (e *Engine) HandleAdded(ctx context.Context, relPath string) error {
	local := filepath.Join(e.Root, relPath)
	info, err := os.Stat(local)
	if err != nil {
		// Local filesystem error: silently skipped (§7).
		return nil
	}
	if !info.IsDir() {
		return e.uploadFile(ctx, relPath)
	}

	if err := e.Remote.UploadDir(ctx, relPath); err != nil {
		e.Log.WithError(err).WithField("path", relPath).Warn("error uploading directory")
	}

	nested, err := direntry.Walk(e.Log, local)
	if err != nil {
		e.Log.WithError(err).WithField("path", relPath).Warn("error walking added directory")
	}
	for _, entry := range nested {
		childPath := path.Join(relPath, entry.Path)
		switch entry.Type {
		case direntry.Dir:
			if err := e.Remote.UploadDir(ctx, childPath); err != nil {
				e.Log.WithError(err).WithField("path", childPath).Warn("error uploading nested directory")
			}
		case direntry.File:
			if err := e.uploadFile(ctx, childPath); err != nil {
				e.Log.WithError(err).WithField("path", childPath).Warn("error uploading nested file")
			}
		}
	}
	return nil
}

func isEmptyDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) == 0
}
