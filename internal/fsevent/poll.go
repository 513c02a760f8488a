package fsevent

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/toxaman/rusync/internal/direntry"
)

// PollingWatcher derives ADDED/REMOVED/MODIFIED events by diffing
// successive directory snapshots. It exists for environments without a
// native filesystem-notification backend wired in (the real source is an
// external collaborator per §1 Scope); it is not the primary event source
// assumed elsewhere in this design, which expects a push-based watcher.
type PollingWatcher struct {
	Root     string
	Interval time.Duration
	Log      logrus.FieldLogger

	prev map[string]direntry.Entry
}

// NewPollingWatcher builds a watcher that snapshots Root every interval.
func NewPollingWatcher(root string, interval time.Duration, log logrus.FieldLogger) *PollingWatcher {
	return &PollingWatcher{Root: root, Interval: interval, Log: log}
}

// Run polls until ctx is cancelled, sending derived events on out. It
// never closes out.
func (w *PollingWatcher) Run(ctx context.Context, out chan<- Event) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(out)
		}
	}
}

func (w *PollingWatcher) poll(out chan<- Event) {
	entries, err := direntry.Walk(w.Log, w.Root)
	if err != nil {
		w.Log.WithError(err).Warn("polling watcher: walk finished with errors")
	}
	current := make(map[string]direntry.Entry, len(entries))
	for _, e := range entries {
		current[e.Path] = e
	}

	for path := range current {
		prevEntry, existed := w.prev[path]
		if !existed {
			out <- Event{Kind: Added, Path: path}
			continue
		}
		if prevEntry.Hash != current[path].Hash {
			out <- Event{Kind: Modified, Path: path}
		}
	}
	for path := range w.prev {
		if _, stillThere := current[path]; !stillThere {
			out <- Event{Kind: Removed, Path: path}
		}
	}
	w.prev = current
}
