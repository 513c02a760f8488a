// Package client wires the filesystem-event source, the worker pool,
// connection management, and the reconciliation/delta engines into one
// running application, matching §4.4/§4.7/§4.8/§5.
package client

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/toxaman/rusync/internal/config"
	"github.com/toxaman/rusync/internal/connmgr"
	"github.com/toxaman/rusync/internal/debounce"
	"github.com/toxaman/rusync/internal/delta"
	"github.com/toxaman/rusync/internal/fsevent"
	"github.com/toxaman/rusync/internal/reconcile"
	"github.com/toxaman/rusync/internal/transport"
	"github.com/toxaman/rusync/internal/worker"
)

// ResyncInterval is the periodic full reconciliation period (§4.4).
const ResyncInterval = 10 * time.Second

// workerCount is fixed rather than configurable: the spec names no
// tuning knob for pool size, only the hash-partition dispatch rule.
const workerCount = 4

// App is one running client instance: one local root synced against one
// remote key.
type App struct {
	cfg         config.Client
	log         logrus.FieldLogger
	pool        *worker.Pool
	events      chan fsevent.Event
	modDebounce *debounce.Debouncer

	stopped atomic.Bool
}

// New builds an App. Each worker gets its own transport.Client (and hence
// its own HTTP/2 connection) so that per-worker connection state in §4.8
// is meaningful.
func New(cfg config.Client, log logrus.FieldLogger) *App {
	a := &App{
		cfg:    cfg,
		log:    log,
		events: make(chan fsevent.Event, 4096),
	}

	clients := make([]*transport.Client, workerCount)
	for i := range clients {
		clients[i] = transport.New(cfg.ServerHost, cfg.ServerPort, cfg.Key, log)
	}

	a.pool = worker.NewPool(workerCount, func(id int) *connmgr.Manager {
		return connmgr.New(clients[id], log)
	}, func(ctx context.Context, ev fsevent.Event) error {
		return a.handle(ctx, clients, ev)
	}, transport.IsTransportError, log)

	// A MODIFIED burst for one path collapses to a single sync op, fired
	// once the path has been quiet for debounce.Window (§4.9).
	a.modDebounce = debounce.New(debounce.Window, func(path string) {
		a.pool.Submit(fsevent.Event{Kind: fsevent.Modified, Path: path})
	})

	return a
}

// handle dispatches one operation to the reconciliation or delta engine.
// For an operation with a path it chooses the transport.Client belonging
// to the worker executing it, so requests stay on that worker's own HTTP/2
// connection; the worker id is recovered from the dispatch rule rather
// than threaded explicitly, since Submit guarantees same-path-same-worker.
// Path-less operations (InitialSync) always use worker 0's client,
// whichever worker the round-robin dispatch ran them on.
func (a *App) handle(ctx context.Context, clients []*transport.Client, ev fsevent.Event) error {
	idx := 0
	if ev.Path != "" {
		idx = a.pool.WorkerIndex(ev.Path)
	}
	remote := clients[idx]

	switch ev.Kind {
	case fsevent.InitialSync:
		return a.resync(ctx, remote)
	case fsevent.Added:
		return reconcile.New(a.cfg.Path, remote, a.log).HandleAdded(ctx, ev.Path)
	case fsevent.Modified:
		return a.syncPath(ctx, remote, ev.Path)
	case fsevent.Removed:
		return remote.DeleteFile(ctx, ev.Path)
	default:
		return fmt.Errorf("client: unknown event kind %v", ev.Kind)
	}
}

// resync runs one full reconciliation pass (§4.4), then delta-syncs every
// path it flagged as hash-mismatched.
func (a *App) resync(ctx context.Context, remote *transport.Client) error {
	eng := reconcile.New(a.cfg.Path, remote, a.log)
	result, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	deltaEng := delta.New(a.cfg.Path, remote, a.log)
	for _, entry := range result.DeltaCandidates {
		if err := deltaEng.Sync(ctx, filepath.Join(a.cfg.Path, entry.Path), entry.Path); err != nil {
			a.log.WithError(err).WithField("path", entry.Path).Warn("error delta-syncing path")
		}
	}
	return nil
}

// syncPath delta-syncs a single path, used for MODIFIED events outside
// the periodic full resync (ADDED events go to reconcile's HandleAdded).
func (a *App) syncPath(ctx context.Context, remote *transport.Client, path string) error {
	deltaEng := delta.New(a.cfg.Path, remote, a.log)
	return deltaEng.Sync(ctx, filepath.Join(a.cfg.Path, path), path)
}

// Run starts the worker pool and the filesystem-event/resync-timer
// pumps, blocking until ctx is cancelled or Stop is called.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	poolErr := make(chan error, 1)
	go func() { poolErr <- a.pool.Run(ctx) }()

	a.pool.Submit(fsevent.Event{Kind: fsevent.InitialSync})

	ticker := time.NewTicker(ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-poolErr
		case ev := <-a.events:
			if a.stopped.Load() {
				continue
			}
			a.dispatchEvent(ev)
		case <-ticker.C:
			if a.stopped.Load() {
				cancel()
				continue
			}
			a.pool.Submit(fsevent.Event{Kind: fsevent.InitialSync})
		}
	}
}

// dispatchEvent routes one filesystem event to the worker pool. MODIFIED
// events go through the debouncer instead of straight to the pool, so a
// burst of rapid writes to the same path collapses into one sync op
// (§4.9); REMOVED cancels any debounce window still pending for that path,
// since there is no longer anything to sync.
func (a *App) dispatchEvent(ev fsevent.Event) {
	switch ev.Kind {
	case fsevent.Modified:
		a.modDebounce.Notify(ev.Path)
	case fsevent.Removed:
		a.modDebounce.Cancel(ev.Path)
		a.pool.Submit(ev)
	default:
		a.pool.Submit(ev)
	}
}

// Events returns the channel the filesystem-event source should send on.
func (a *App) Events() chan<- fsevent.Event { return a.events }

// Stop sets the process-wide stopped flag (§5): the next resync tick
// observes it and halts the worker pool's event loop.
func (a *App) Stop() { a.stopped.Store(true) }
