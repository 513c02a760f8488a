// Package transport is the client-side HTTP/2 transport: building and
// issuing the files/files_description/meta requests the reconciliation
// and delta-patch engines need against a single remote server (§6).
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/toxaman/rusync/internal/chunker"
	"github.com/toxaman/rusync/internal/codec"
	"github.com/toxaman/rusync/internal/direntry"
	"golang.org/x/net/http2"
)

// ErrNotFound mirrors a remote 404 on GET meta/files — the delta-sync
// caller treats it as "resource absent" and falls back at once to sending
// the whole file as a single terminal patch at offset 0.
var ErrNotFound = errors.New("transport: remote resource not found")

// ErrRemote wraps an unexpected remote status. Per §7, remote 4xx/5xx
// responses are logged and dropped; callers never retry them directly.
type ErrRemote struct {
	Method, Path string
	StatusCode   int
}

func (e *ErrRemote) Error() string {
	return fmt.Sprintf("transport: %s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

// IsTransportError reports whether err should be treated as a
// connection-level failure (dial refused, reset, timeout) as opposed to a
// well-formed remote response carrying a 4xx/5xx status. Per §7 the latter
// is logged and dropped without touching connection state; only the former
// should trigger connmgr.MarkDisconnected. Every non-nil error other than
// *ErrRemote and ErrNotFound counts as a transport error, including
// decode and local I/O errors.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var errRemote *ErrRemote
	if errors.As(err, &errRemote) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}

// Client talks HTTP/2 cleartext (h2c) to one rusync server on behalf of
// one client key.
type Client struct {
	base *url.URL
	key  string
	http *http.Client
	log  logrus.FieldLogger
}

// New dials nothing eagerly; the underlying http2.Transport connects lazily
// on first request and is reused across requests (matching the teacher's
// one-session-per-worker model in internal/worker).
func New(host, port, key string, log logrus.FieldLogger) *Client {
	return &Client{
		base: &url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)},
		key:  key,
		http: &http.Client{
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		},
		log: log,
	}
}

// Ping verifies the server is reachable by requesting the description
// endpoint; it is used by internal/connmgr to detect connect/reconnect.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.FilesDescription(ctx)
	return err
}

func (c *Client) buildURL(path string, query url.Values) string {
	query.Set("key", c.key)
	u := *c.base
	u.Path = path
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	if query == nil {
		query = url.Values{}
	}
	reqURL := c.buildURL(path, query)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"method": method, "url": reqURL}).Debug("performing request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type wireEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Hash uint64 `json:"hash"`
}

// FilesDescription fetches the remote entry set for this client's
// namespace (GET files_description).
func (c *Client) FilesDescription(ctx context.Context) ([]direntry.Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/files_description", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ErrRemote{Method: "GET", Path: "/files_description", StatusCode: resp.StatusCode}
	}
	var wire []wireEntry
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("transport: decoding files_description: %w", err)
	}
	entries := make([]direntry.Entry, 0, len(wire))
	for _, e := range wire {
		t := direntry.File
		if e.Type == "dir" {
			t = direntry.Dir
		}
		entries = append(entries, direntry.Entry{Path: e.Path, Type: t, Hash: e.Hash})
	}
	return entries, nil
}

// Meta fetches the remote chunk manifest for path (GET meta).
func (c *Client) Meta(ctx context.Context, path string) (isFile bool, chunks []chunker.FileChunk, err error) {
	q := url.Values{"path": {path}}
	resp, err := c.do(ctx, http.MethodGet, "/meta", q, nil)
	if err != nil {
		return false, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return false, nil, &ErrRemote{Method: "GET", Path: "/meta", StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, nil, err
	}
	return codec.DecodeMeta(data)
}

// DownloadFile fetches the full content of path (GET files).
func (c *Client) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	q := url.Values{"path": {path}}
	resp, err := c.do(ctx, http.MethodGet, "/files", q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ErrRemote{Method: "GET", Path: "/files", StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// UploadFile uploads the full content of path, overwriting any existing
// remote file (POST files?type=file).
func (c *Client) UploadFile(ctx context.Context, path string, content []byte) error {
	q := url.Values{"path": {path}, "type": {"file"}}
	resp, err := c.do(ctx, http.MethodPost, "/files", q, bytes.NewReader(content))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ErrRemote{Method: "POST", Path: "/files", StatusCode: resp.StatusCode}
	}
	return nil
}

// UploadDir creates an empty remote directory (POST files?type=dir).
func (c *Client) UploadDir(ctx context.Context, path string) error {
	q := url.Values{"path": {path}, "type": {"dir"}}
	resp, err := c.do(ctx, http.MethodPost, "/files", q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ErrRemote{Method: "POST", Path: "/files", StatusCode: resp.StatusCode}
	}
	return nil
}

// Patch writes body at offset into the remote file at path. If end is
// true the server truncates the file to offset+len(body) afterwards
// (PATCH files?offset=O[&end=1]).
func (c *Client) Patch(ctx context.Context, path string, offset int64, end bool, body []byte) error {
	q := url.Values{"path": {path}, "offset": {fmt.Sprintf("%d", offset)}}
	if end {
		q.Set("end", "1")
	}
	resp, err := c.do(ctx, http.MethodPatch, "/files", q, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ErrRemote{Method: "PATCH", Path: "/files", StatusCode: resp.StatusCode}
	}
	return nil
}

// DeleteFile recursively removes path on the remote (DELETE files).
func (c *Client) DeleteFile(ctx context.Context, path string) error {
	q := url.Values{"path": {path}}
	resp, err := c.do(ctx, http.MethodDelete, "/files", q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return &ErrRemote{Method: "DELETE", Path: "/files", StatusCode: resp.StatusCode}
	}
	return nil
}
