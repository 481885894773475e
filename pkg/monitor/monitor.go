// Package monitor maintains a live, ordered, size-bounded view of recent
// executions. It loads a window from the store once, then keeps the view
// current from the change feed without re-querying. All view mutation happens
// on a single reducer goroutine fed by the subscription channel, so there is
// no concurrent access to the ordered collection.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowrelay/flowrelay/pkg/feed"
	"github.com/flowrelay/flowrelay/pkg/models"
	"github.com/flowrelay/flowrelay/pkg/store"
)

// DefaultMaxItems bounds the view when OpenOptions does not.
const DefaultMaxItems = 50

// Lister is the slice of the execution store the monitor needs for its
// initial load.
type Lister interface {
	ListRecent(ctx context.Context, filter store.Filter, limit int) ([]*models.Execution, error)
}

// OpenOptions configures a monitor.
type OpenOptions struct {
	Store    Lister
	Feed     feed.Feed
	Filter   store.Filter
	Logger   *slog.Logger
	MaxItems int
}

// Monitor is one subscriber-side live view.
type Monitor struct {
	maxItems int
	sub      *feed.Subscription
	logger   *slog.Logger

	mu        sync.RWMutex
	view      []*models.Execution
	connected bool

	done chan struct{}
}

// Open performs the initial bulk read, attaches to the change feed with the
// same filter, and starts the reducer loop.
func Open(ctx context.Context, opts OpenOptions) (*Monitor, error) {
	if opts.Store == nil || opts.Feed == nil {
		return nil, errors.New("monitor requires a store and a feed")
	}

	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	initial, err := opts.Store.ListRecent(ctx, opts.Filter, opts.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial execution window: %w", err)
	}

	sub, err := opts.Feed.Subscribe(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to change feed: %w", err)
	}

	view := make([]*models.Execution, len(initial))
	copy(view, initial)

	m := &Monitor{
		maxItems:  opts.MaxItems,
		sub:       sub,
		logger:    logger.With("module", "monitor"),
		view:      view,
		connected: true,
		done:      make(chan struct{}),
	}

	go m.run()

	return m, nil
}

// run is the reducer loop: the only goroutine that mutates the view.
func (m *Monitor) run() {
	defer close(m.done)

	for event := range m.sub.C() {
		m.apply(event)
	}

	// Subscription channel closed: the view is retained as a stale snapshot.
	// Missed events are not backfilled on a later resubscribe; callers that
	// need reconciliation close the monitor and open a new one, which re-runs
	// the bulk read.
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *Monitor) apply(event feed.Event) {
	if event.Execution == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.Type {
	case feed.ExecutionInserted:
		// An insert for an id already in view (replayed write) must not
		// produce a second row.
		if i := m.indexOf(event.Execution.ID); i >= 0 {
			m.view[i] = event.Execution

			return
		}

		m.view = append([]*models.Execution{event.Execution}, m.view...)
		if len(m.view) > m.maxItems {
			m.view = m.view[:m.maxItems]
		}
	case feed.ExecutionUpdated:
		// Position is preserved: a just-finished execution stays where it
		// was inserted rather than re-sorting.
		if i := m.indexOf(event.Execution.ID); i >= 0 {
			m.view[i] = event.Execution
		}
	case feed.ExecutionDeleted:
		if i := m.indexOf(event.Execution.ID); i >= 0 {
			m.view = append(m.view[:i], m.view[i+1:]...)
		}
	}
}

// indexOf must be called with the mutex held.
func (m *Monitor) indexOf(id string) int {
	for i, execution := range m.view {
		if execution.ID == id {
			return i
		}
	}

	return -1
}

// Snapshot returns a copy of the current view, newest first.
func (m *Monitor) Snapshot() []*models.Execution {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]*models.Execution, len(m.view))
	copy(snapshot, m.view)

	return snapshot
}

// Len returns the number of executions currently in view.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.view)
}

// Connected reports whether the feed subscription is currently live. After a
// disconnect the last view remains readable.
func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.connected
}

// Dropped reports how many feed events were discarded because this monitor
// fell behind.
func (m *Monitor) Dropped() int {
	return m.sub.Dropped()
}

// Close detaches from the feed and waits for the reducer loop to stop.
func (m *Monitor) Close() {
	m.sub.Close()
	<-m.done
}
