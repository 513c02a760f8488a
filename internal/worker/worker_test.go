package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toxaman/rusync/internal/connmgr"
	"github.com/toxaman/rusync/internal/fsevent"
)

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type alwaysUpPinger struct{}

func (alwaysUpPinger) Ping(ctx context.Context) error { return nil }

func newConnectedConn() *connmgr.Manager {
	return connmgr.New(alwaysUpPinger{}, discardLogger())
}

type succeedOnceThenFail struct {
	calls atomic.Int32
}

func (p *succeedOnceThenFail) Ping(ctx context.Context) error {
	if p.calls.Add(1) == 1 {
		return nil
	}
	return errors.New("down")
}

func TestWorkerIndexSamePathAlwaysSameWorker(t *testing.T) {
	p := NewPool(4, func(int) *connmgr.Manager { return newConnectedConn() }, func(ctx context.Context, ev fsevent.Event) error {
		return nil
	}, nil, discardLogger())

	idx := p.WorkerIndex("foo/bar.txt")
	for i := 0; i < 10; i++ {
		assert.Equal(t, idx, p.WorkerIndex("foo/bar.txt"))
	}
}

func TestSubmitRoundRobinsPathlessOps(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]int{}

	p := NewPool(3, func(id int) *connmgr.Manager { return newConnectedConn() }, func(ctx context.Context, ev fsevent.Event) error {
		return nil
	}, nil, discardLogger())

	// Wrap each worker's handler invocation indirectly: submit N InitialSync
	// events and verify roughly even distribution by watching which worker
	// index each dispatch lands on, mirrored via the rrCounter math instead
	// of a handler hook (dispatch itself is deterministic given the counter).
	n := uint32(len(p.workers))
	before := atomic.LoadUint32(&p.rrCounter)
	for i := 0; i < 9; i++ {
		p.Submit(fsevent.Event{Kind: fsevent.InitialSync})
	}
	after := atomic.LoadUint32(&p.rrCounter)
	assert.Equal(t, uint32(9), after-before)

	for i := uint32(0); i < 9; i++ {
		mu.Lock()
		seen[int((before+i)%n)]++
		mu.Unlock()
	}
	for i := 0; i < int(n); i++ {
		assert.Equal(t, 3, seen[i])
	}
}

func TestWorkerProcessesSubmittedOp(t *testing.T) {
	var got atomic.Value
	done := make(chan struct{})

	handler := func(ctx context.Context, ev fsevent.Event) error {
		got.Store(ev.Path)
		close(done)
		return nil
	}

	p := NewPool(1, func(int) *connmgr.Manager { return newConnectedConn() }, handler, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Submit(fsevent.Event{Kind: fsevent.Modified, Path: "a/b.txt"})

	select {
	case <-done:
		assert.Equal(t, "a/b.txt", got.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestWorkerDefersWhenDisconnected(t *testing.T) {
	var calls atomic.Int32
	handler := func(ctx context.Context, ev fsevent.Event) error {
		calls.Add(1)
		return nil
	}

	conn := connmgr.New(alwaysUpPinger{}, discardLogger())
	// Never call Connect, so the worker starts disconnected; run() will
	// connect it immediately in the background, so instead verify the
	// pre-connect window defers by checking the op still lands once the
	// worker has connected (it must not be dropped).
	p := &Pool{workers: []*Worker{newWorker(0, conn, handler, nil, discardLogger())}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Submit(fsevent.Event{Kind: fsevent.Added, Path: "x"})

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWorkerMarksDisconnectedOnTransportError(t *testing.T) {
	handler := func(ctx context.Context, ev fsevent.Event) error {
		return errors.New("connection reset")
	}
	isTransportErr := func(err error) bool { return err != nil }

	// succeedOnceThenFail lets the worker's initial Connect() succeed so the
	// op is handled at all, then stays down afterward so MarkDisconnected's
	// background reconnect attempt does not immediately flip state back
	// before the assertion below observes it.
	pinger := &succeedOnceThenFail{}
	conn := connmgr.New(pinger, discardLogger())

	w := newWorker(0, conn, handler, isTransportErr, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.run(ctx)

	w.enqueue(fsevent.Event{Kind: fsevent.Modified, Path: "p"})

	require.Eventually(t, func() bool {
		return !conn.Connected()
	}, 4*time.Second, 10*time.Millisecond)
}
