// Package direntry implements C2: walking a directory tree into a set of
// DirEntry values with content fingerprints, and the set-algebra the
// reconciliation engine (internal/reconcile) runs over two such sets.
package direntry

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/toxaman/rusync/internal/xxh"
)

// Type is the kind of filesystem object a DirEntry describes.
type Type int

const (
	// File is a regular file.
	File Type = iota
	// Dir is a directory.
	Dir
)

// String renders the type the way it appears on the wire ("file"/"dir").
func (t Type) String() string {
	if t == Dir {
		return "dir"
	}
	return "file"
}

// Entry is one filesystem object under a client's namespace: its
// namespace-relative path, its type, and its content hash (0 for Dir).
type Entry struct {
	Path string
	Type Type
	Hash uint64
}

// ByPath sorts entries by Path, the only ordering the protocol cares about.
type ByPath []Entry

func (s ByPath) Len() int           { return len(s) }
func (s ByPath) Less(i, j int) bool { return s[i].Path < s[j].Path }
func (s ByPath) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Walk recursively discovers every regular file and directory under root
// and returns them as an Entry slice sorted by path. Symlinks, sockets,
// devices, and anything else that is neither a regular file nor a
// directory are excluded. A per-entry I/O error is logged and that entry
// is skipped; it never aborts the walk.
func Walk(log logrus.FieldLogger, root string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if path == root {
			return nil
		}
		if walkErr != nil {
			log.WithError(walkErr).WithField("path", path).Warn("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("skipping entry with unresolvable relative path")
			return nil
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			entries = append(entries, Entry{Path: rel, Type: Dir})
		case d.Type().IsRegular():
			hash, err := hashFile(path)
			if err != nil {
				log.WithError(err).WithField("path", rel).Warn("skipping file, could not hash it")
				return nil
			}
			entries = append(entries, Entry{Path: rel, Type: File, Hash: hash})
		default:
			// symlink, socket, device, etc: excluded per the entry set definition.
		}
		return nil
	})
	sort.Sort(ByPath(entries))
	return entries, err
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxh.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Diff returns the entries present in a but not in b, by full triple
// equality (path, type, and hash must all match for an entry to be
// considered "present").
func Diff(a, b []Entry) []Entry {
	inB := make(map[Entry]struct{}, len(b))
	for _, e := range b {
		inB[e] = struct{}{}
	}
	var out []Entry
	for _, e := range a {
		if _, ok := inB[e]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// ChangedHash returns the local entries whose path and type also exist in
// remote but whose hash differs — the delta-sync candidates of §4.4 step 5.
func ChangedHash(local, remote []Entry) []Entry {
	byPath := make(map[string]Entry, len(remote))
	for _, e := range remote {
		byPath[e.Path] = e
	}
	var out []Entry
	for _, e := range local {
		if re, ok := byPath[e.Path]; ok && re.Type == e.Type && re.Hash != e.Hash {
			out = append(out, e)
		}
	}
	return out
}
