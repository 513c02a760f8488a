// Package worker implements C7, the worker pool and dispatch rule: an
// operation whose first argument is a path is routed to the same worker
// every time (hash-partitioned); an operation with no path argument is
// routed round-robin.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/toxaman/rusync/internal/connmgr"
	"github.com/toxaman/rusync/internal/fsevent"
	"github.com/toxaman/rusync/internal/xxh"
	"golang.org/x/sync/errgroup"
)

// opQueueSize bounds the backlog each worker will hold before Submit
// blocks. Generous because operations are cheap structs, not payloads.
const opQueueSize = 4096

// Handler executes one operation against the remote. A transport-layer
// failure (as opposed to a remote 4xx/5xx, which is simply logged per §7)
// should be reported via the returned error so the worker can mark its
// connection down and fall back to the reschedule queue.
type Handler func(ctx context.Context, ev fsevent.Event) error

// IsTransportError lets a Handler's error be told apart from a "logged and
// dropped" application-level error. Handlers that want MarkDisconnected
// behavior should wrap transport failures so this matches.
type IsTransportError func(error) bool

// Worker owns one serial execution context: its own connection manager and
// a single goroutine processing its operation queue in arrival order,
// except for operations that were deferred through the reschedule queue,
// which may overtake freshly arrived ones (§4.8).
type Worker struct {
	id             int
	ops            chan fsevent.Event
	conn           *connmgr.Manager
	handler        Handler
	isTransportErr IsTransportError
	log            logrus.FieldLogger
}

func newWorker(id int, conn *connmgr.Manager, handler Handler, isTransportErr IsTransportError, log logrus.FieldLogger) *Worker {
	return &Worker{
		id:             id,
		ops:            make(chan fsevent.Event, opQueueSize),
		conn:           conn,
		handler:        handler,
		isTransportErr: isTransportErr,
		log:            log.WithField("worker", id),
	}
}

// enqueue places op on this worker's queue, blocking if it is full. Used
// both for freshly dispatched operations and for reschedule-queue
// re-deliveries.
func (w *Worker) enqueue(op fsevent.Event) {
	w.ops <- op
}

func (w *Worker) run(ctx context.Context) error {
	go w.conn.Connect(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("worker stopped")
			return nil
		case op := <-w.ops:
			w.handle(ctx, op)
		}
	}
}

func (w *Worker) handle(ctx context.Context, op fsevent.Event) {
	if !w.conn.Connected() {
		w.log.WithField("op", op.Kind).Debug("not connected, deferring operation")
		w.defer_(op)
		return
	}
	if err := w.handler(ctx, op); err != nil {
		w.log.WithError(err).WithField("op", op.Kind).Warn("operation failed")
		if w.isTransportErr != nil && w.isTransportErr(err) {
			w.conn.MarkDisconnected(ctx)
		}
	}
}

// defer_ captures op in a one-shot 2s timer; on expiry it is re-posted to
// this same worker, which may defer it again. FIFO is not guaranteed
// against freshly arriving operations (§4.8, §9) — reconciliation repairs
// any resulting inconsistency within the next cycle.
func (w *Worker) defer_(op fsevent.Event) {
	time.AfterFunc(connmgr.RetryTimeout, func() {
		w.enqueue(op)
	})
}

// Pool is a fixed-size set of Workers sharing one dispatch rule.
type Pool struct {
	workers   []*Worker
	rrCounter uint32
}

// NewPool builds a pool of n workers (n = max(1, requested)), each
// constructed via newConn/handler/isTransportErr for its own connection
// manager and operation handler.
func NewPool(n int, newConn func(id int) *connmgr.Manager, handler Handler, isTransportErr IsTransportError, log logrus.FieldLogger) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{workers: make([]*Worker, n)}
	for i := 0; i < n; i++ {
		p.workers[i] = newWorker(i, newConn(i), handler, isTransportErr, log)
	}
	return p
}

// Run starts every worker's execution loop and blocks until ctx is
// cancelled, then waits for all of them to exit.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			return w.run(gctx)
		})
	}
	return g.Wait()
}

// Submit dispatches op per §4.7: operations with a non-empty Path are
// hash-partitioned so the same path always lands on the same worker;
// operations with no path (InitialSync) are spread round-robin via an
// atomic counter.
func (p *Pool) Submit(op fsevent.Event) {
	n := uint32(len(p.workers))
	if op.Path == "" {
		idx := atomic.AddUint32(&p.rrCounter, 1) - 1
		p.workers[idx%n].enqueue(op)
		return
	}
	idx := uint32(xxh.Sum64([]byte(op.Path)) % uint64(n))
	p.workers[idx].enqueue(op)
}

// WorkerIndex returns the worker index a path would be routed to, for
// tests verifying the partitioning invariant (§8 property 5).
func (p *Pool) WorkerIndex(path string) int {
	n := uint64(len(p.workers))
	return int(xxh.Sum64([]byte(path)) % n)
}
