package client

import (
	"context"
	"io"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toxaman/rusync/internal/config"
	"github.com/toxaman/rusync/internal/fsevent"
	"github.com/toxaman/rusync/internal/server"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(t *testing.T, root string) *httptest.Server {
	t.Helper()
	srv := server.New(root, discardLogger())
	h2s := &http2.Server{}
	ts := httptest.NewServer(h2c.NewHandler(srv.Handler(), h2s))
	t.Cleanup(ts.Close)
	return ts
}

func TestAppInitialSyncUploadsLocalFile(t *testing.T) {
	serverRoot := t.TempDir()
	ts := newTestServer(t, serverRoot)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	host, port, err := splitHostPort(u)
	require.NoError(t, err)

	clientRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(clientRoot, "a.txt"), []byte("hello world"), 0o644))

	cfg := config.Client{Path: clientRoot, ServerHost: host, ServerPort: port, Key: "k1"}
	app := New(cfg, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go app.Run(ctx)

	// The startup InitialSync reaches its worker before the first connect
	// completes, so it is deferred by connmgr.RetryTimeout before it runs.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(serverRoot, "k1", "a.txt"))
		return err == nil && string(data) == "hello world"
	}, 4*time.Second, 20*time.Millisecond)
}

func TestAppAddedEventRecursivelyUploadsDirectory(t *testing.T) {
	serverRoot := t.TempDir()
	ts := newTestServer(t, serverRoot)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	host, port, err := splitHostPort(u)
	require.NoError(t, err)

	clientRoot := t.TempDir()

	cfg := config.Client{Path: clientRoot, ServerHost: host, ServerPort: port, Key: "k2"}
	app := New(cfg, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	go app.Run(ctx)

	require.NoError(t, os.MkdirAll(filepath.Join(clientRoot, "newdir", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(clientRoot, "newdir", "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(clientRoot, "newdir", "sub", "nested.txt"), []byte("nested"), 0o644))
	app.Events() <- fsevent.Event{Kind: fsevent.Added, Path: "newdir"}

	require.Eventually(t, func() bool {
		top, err := os.ReadFile(filepath.Join(serverRoot, "k2", "newdir", "top.txt"))
		if err != nil || string(top) != "top" {
			return false
		}
		nested, err := os.ReadFile(filepath.Join(serverRoot, "k2", "newdir", "sub", "nested.txt"))
		return err == nil && string(nested) == "nested"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDispatchEventDebouncesModifiedAndRemovedCancels(t *testing.T) {
	cfg := config.Client{Path: t.TempDir(), ServerHost: "127.0.0.1", ServerPort: "1", Key: "k"}
	app := New(cfg, discardLogger())

	app.dispatchEvent(fsevent.Event{Kind: fsevent.Modified, Path: "x.txt"})
	assert.True(t, app.modDebounce.Pending("x.txt"))

	app.dispatchEvent(fsevent.Event{Kind: fsevent.Modified, Path: "x.txt"})
	assert.True(t, app.modDebounce.Pending("x.txt"))

	app.dispatchEvent(fsevent.Event{Kind: fsevent.Removed, Path: "x.txt"})
	assert.False(t, app.modDebounce.Pending("x.txt"))
}

func splitHostPort(u *url.URL) (host, port string, err error) {
	host = u.Hostname()
	port = u.Port()
	if port == "" {
		port = strconv.Itoa(80)
	}
	return host, port, nil
}
