// Package server implements C6, the server request dispatcher: the
// files/files_description/meta endpoints and their on-disk apply
// semantics under a client's namespace.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/toxaman/rusync/internal/chunker"
	"github.com/toxaman/rusync/internal/codec"
	"github.com/toxaman/rusync/internal/direntry"
)

// errPathEscape is returned by resolvePath when a client-supplied path
// would escape its namespace root (§4.6, §9 "Path traversal").
var errPathEscape = errors.New("server: path escapes client namespace")

// Server serves the files/files_description/meta endpoints for every
// client namespace rooted under Root.
type Server struct {
	Root   string
	log    logrus.FieldLogger
	router chi.Router
}

// New builds a Server rooted at root. It does not create root;
// cmd/rusync-server creates it before calling New.
func New(root string, log logrus.FieldLogger) *Server {
	s := &Server{Root: root, log: log}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware(log))
	r.Get("/files_description", s.handleFilesDescription)
	r.Get("/meta", s.handleMeta)
	r.Get("/files", s.handleFilesGet)
	r.Post("/files", s.handleFilesPost)
	r.Patch("/files", s.handleFilesPatch)
	r.Delete("/files", s.handleFilesDelete)
	s.router = r
	return s
}

// Handler returns the http.Handler serving all endpoints.
func (s *Server) Handler() http.Handler { return s.router }

func requestIDMiddleware(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			log.WithFields(logrus.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
			}).Debug("handling request")
			next.ServeHTTP(w, r)
		})
	}
}

// resolvePath joins the client-supplied relative path onto
// <root>/<key>/ and rejects any result that escapes that namespace.
func (s *Server) resolvePath(key, rel string) (string, error) {
	base := filepath.Join(s.Root, key)
	full := filepath.Join(base, rel)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", errPathEscape
	}
	return full, nil
}

type wireEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Hash uint64 `json:"hash"`
}

func (s *Server) handleFilesDescription(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	nsRoot := filepath.Join(s.Root, key)

	entries := []direntry.Entry{}
	if _, err := os.Stat(nsRoot); err == nil {
		walked, err := direntry.Walk(s.log, nsRoot)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("error walking client namespace")
		}
		entries = walked
	}

	wire := make([]wireEntry, 0, len(entries))
	for _, e := range entries {
		wire = append(wire, wireEntry{Path: e.Path, Type: e.Type.String(), Hash: e.Hash})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(wire); err != nil {
		s.log.WithError(err).Warn("error encoding files_description response")
	}
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	path := r.URL.Query().Get("path")
	full, err := s.resolvePath(key, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if info.IsDir() {
		payload, _ := codec.EncodeMeta(false, nil)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	chunks, err := chunker.Chunk(f, info.Size())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.WithFields(logrus.Fields{"path": path, "chunks": len(chunks)}).Debug("computed chunks for meta request")
	payload, err := codec.EncodeMeta(true, chunks)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleFilesGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	path := r.URL.Query().Get("path")
	full, err := s.resolvePath(key, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := os.Stat(full)
	if os.IsNotExist(err) || (err == nil && info.IsDir()) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	f, err := os.Open(full)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.log.WithError(err).WithField("path", path).Warn("error streaming file download")
	}
}

func (s *Server) handleFilesPost(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	path := r.URL.Query().Get("path")
	full, err := s.resolvePath(key, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("type") == "dir" {
		if err := os.MkdirAll(full, 0o755); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.log.WithField("path", path).Debug("created directory")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Out-of-order arrival: a child upload may land before its parent
	// directory's own metadata does, so parents are created here too.
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	f, err := os.Create(full)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	n, err := io.Copy(f, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.WithFields(logrus.Fields{"path": path, "bytes": n}).Debug("created file")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFilesPatch(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	path := r.URL.Query().Get("path")
	full, err := s.resolvePath(key, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if info, err := os.Stat(full); err == nil && info.IsDir() {
		w.WriteHeader(http.StatusOK)
		return
	}

	offset, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}
	end := r.URL.Query().Get("end") == "1"

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := f.WriteAt(body, offset); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.WithFields(logrus.Fields{"path": path, "offset": offset, "bytes": len(body), "end": end}).Debug("patched file")

	if end {
		newSize := offset + int64(len(body))
		info, err := f.Stat()
		if err == nil && info.Size() != newSize {
			if err := f.Truncate(newSize); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			s.log.WithFields(logrus.Fields{"path": path, "size": newSize}).Debug("truncated file")
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFilesDelete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	path := r.URL.Query().Get("path")
	full, err := s.resolvePath(key, path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(full); os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := os.RemoveAll(full); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.WithField("path", path).Debug("removed entry")
	w.WriteHeader(http.StatusOK)
}
