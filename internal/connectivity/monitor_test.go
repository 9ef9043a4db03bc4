package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeFiresImmediatelyThenOnTransitions(t *testing.T) {
	m := NewMonitor(false, nil)

	var (
		mu   sync.Mutex
		seen []bool
	)
	unsubscribe := m.Subscribe(func(online bool) {
		mu.Lock()
		seen = append(seen, online)
		mu.Unlock()
	})

	require.True(t, m.Set(true))
	require.False(t, m.Set(true), "repeated value is not a transition")
	require.True(t, m.Set(false))

	unsubscribe()
	unsubscribe()
	m.Set(true)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{false, true, false}, seen)
	require.True(t, m.Online())
}

func TestMultipleObserversAllNotified(t *testing.T) {
	m := NewMonitor(true, nil)
	var a, b int32
	m.Subscribe(func(bool) { atomic.AddInt32(&a, 1) })
	m.Subscribe(func(bool) { atomic.AddInt32(&b, 1) })

	m.Set(false)
	require.EqualValues(t, 2, atomic.LoadInt32(&a))
	require.EqualValues(t, 2, atomic.LoadInt32(&b))
}

type recordingStats struct {
	mu     sync.Mutex
	values []bool
}

func (r *recordingStats) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, online)
}

func TestMonitorPublishesMetrics(t *testing.T) {
	stats := &recordingStats{}
	m := NewMonitor(false, nil, WithMetrics(stats))
	m.Set(true)
	m.Set(true)
	require.Equal(t, []bool{false, true}, stats.values)
}

func TestConcurrentSetKeepsObserversConsistent(t *testing.T) {
	m := NewMonitor(false, nil)
	var last atomic.Bool
	m.Subscribe(func(online bool) { last.Store(online) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(i%2 == 0)
		}(i)
	}
	wg.Wait()

	require.Equal(t, m.Online(), last.Load(), "observer saw the final state last")
}

func TestProberTreatsAnyResponseAsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewProber(srv.URL)
	require.NoError(t, err)
	require.True(t, p.Probe(context.Background()))

	srv.Close()
	require.False(t, p.Probe(context.Background()))
}

func TestNewProberRequiresURL(t *testing.T) {
	_, err := NewProber("  ")
	require.Error(t, err)
}

type scriptedProbe struct {
	results chan bool
}

func (s *scriptedProbe) Probe(ctx context.Context) bool {
	select {
	case v := <-s.results:
		return v
	case <-ctx.Done():
		return false
	}
}

func TestPollerStartAndRun(t *testing.T) {
	m := NewMonitor(false, nil)
	probe := &scriptedProbe{results: make(chan bool, 4)}
	probe.results <- true

	poller := NewPoller(m, probe, 5*time.Millisecond, nil)
	require.True(t, poller.Start(context.Background()))
	require.True(t, m.Online())

	changed := make(chan bool, 4)
	m.Subscribe(func(online bool) { changed <- online })
	<-changed // immediate callback

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	probe.results <- false
	select {
	case online := <-changed:
		require.False(t, online)
	case <-time.After(2 * time.Second):
		t.Fatal("poller never reported the transition")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	require.False(t, m.Online(), "cancellation must not flip the state")
}
