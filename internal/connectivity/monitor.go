// Package connectivity tracks whether the remote store is reachable.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/angelmondragon/fieldsync/pkg/logger"
)

// Observer receives the connectivity state. It runs on the goroutine that
// changed the state and must not call Monitor.Set.
type Observer func(online bool)

type stateMetrics interface {
	SetOnline(online bool)
}

// Monitor owns the online flag. Reads are lock-free; Set is the only way
// the flag changes and observers hear about every transition in order.
type Monitor struct {
	online atomic.Bool
	logg   *logger.Logger
	stats  stateMetrics

	mu        sync.Mutex
	observers map[uint64]Observer
	nextID    uint64

	// notifyMu orders transitions and subscriptions so no observer misses
	// or reorders a change.
	notifyMu sync.Mutex
}

type MonitorOption func(*Monitor)

func WithMetrics(stats stateMetrics) MonitorOption {
	return func(m *Monitor) {
		m.stats = stats
	}
}

func NewMonitor(initial bool, logg *logger.Logger, opts ...MonitorOption) *Monitor {
	if logg == nil {
		logg = logger.Nop()
	}
	m := &Monitor{
		logg:      logg,
		observers: make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.online.Store(initial)
	if m.stats != nil {
		m.stats.SetOnline(initial)
	}
	return m
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Subscribe registers fn, calls it once with the current state, and then on
// every transition. The returned func removes the observer.
func (m *Monitor) Subscribe(fn Observer) (unsubscribe func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	m.mu.Unlock()

	fn(m.online.Load())

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.observers, id)
			m.mu.Unlock()
		})
	}
}

// Set records the platform's connectivity signal. Repeating the current
// value is a no-op. It reports whether the state changed.
func (m *Monitor) Set(online bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	if m.online.Swap(online) == online {
		return false
	}

	if m.stats != nil {
		m.stats.SetOnline(online)
	}
	m.logg.Info(m.logg.WithField(context.Background(), "online", online), "connectivity changed")

	for _, fn := range m.snapshot() {
		fn(online)
	}
	return true
}

func (m *Monitor) snapshot() []Observer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Observer, 0, len(m.observers))
	for _, fn := range m.observers {
		out = append(out, fn)
	}
	return out
}
