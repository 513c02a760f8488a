// Package connmgr implements C8: per-worker connection state and the
// fixed-backoff retry loop that re-establishes it after a transport
// error, without ever failing a worker permanently.
package connmgr

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryTimeout is the fixed backoff between connection attempts (§5, §8).
const RetryTimeout = 2 * time.Second

// Pinger is anything that can be used to probe remote reachability.
// transport.Client satisfies this.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Manager tracks one worker's connection state machine: attempt, succeed
// or fail, and on failure retry indefinitely every RetryTimeout.
type Manager struct {
	pinger    Pinger
	log       logrus.FieldLogger
	connected atomic.Bool
}

// New builds a Manager around pinger, initially disconnected.
func New(pinger Pinger, log logrus.FieldLogger) *Manager {
	return &Manager{pinger: pinger, log: log}
}

// Connected reports the last known connection state.
func (m *Manager) Connected() bool { return m.connected.Load() }

// Connect blocks, retrying every RetryTimeout, until the pinger succeeds
// or ctx is cancelled. It is safe to call again after MarkDisconnected.
func (m *Manager) Connect(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.pinger.Ping(ctx); err != nil {
			m.connected.Store(false)
			m.log.WithError(err).Warnf("connection attempt failed, retrying in %s", RetryTimeout)
			select {
			case <-ctx.Done():
				return
			case <-time.After(RetryTimeout):
				continue
			}
		}
		m.connected.Store(true)
		m.log.Info("connected")
		return
	}
}

// MarkDisconnected flags the connection as lost and kicks off a background
// reconnect loop, unless one is already in flight (CompareAndSwap makes
// this idempotent under concurrent callers reporting the same failure).
func (m *Manager) MarkDisconnected(ctx context.Context) {
	if m.connected.CompareAndSwap(true, false) {
		m.log.Warn("connection lost, scheduling reconnect")
		go m.Connect(ctx)
	}
}
