package eventtap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/hotkey"
)

// fakeSource records lifecycle calls and lets tests inject events.
type fakeSource struct {
	mu      sync.Mutex
	emit    func(Event) bool
	started int
	stopped int
	failing bool
}

func (f *fakeSource) Start(emit func(Event) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return assert.AnError
	}
	f.emit = emit
	f.started++
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emit = nil
	f.stopped++
	return nil
}

func (f *fakeSource) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emit != nil
}

func (f *fakeSource) inject(ev Event) bool {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	if emit == nil {
		return false
	}
	return emit(ev)
}

func (f *fakeSource) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped
}

func keyDown(k hotkey.Key) Event {
	return Event{Kind: KindKeyDown, Key: k, When: time.Now()}
}

func TestMonitorLifecycleFollowsSubscribers(t *testing.T) {
	src := &fakeSource{}
	m := NewMonitor(src, nil)
	require.NoError(t, m.Activate())

	started, _ := src.counts()
	assert.Equal(t, 0, started, "no subscribers yet, hook must stay down")

	tok1 := m.Register(func(Event) bool { return false })
	started, _ = src.counts()
	assert.Equal(t, 1, started)

	tok2 := m.Register(func(Event) bool { return false })
	started, _ = src.counts()
	assert.Equal(t, 1, started, "second subscriber must not reinstall the hook")

	tok1.Cancel()
	_, stopped := src.counts()
	assert.Equal(t, 0, stopped)

	tok2.Cancel()
	_, stopped = src.counts()
	assert.Equal(t, 1, stopped, "last cancel removes the hook")

	// Double-cancel is a no-op.
	tok2.Cancel()
	_, stopped = src.counts()
	assert.Equal(t, 1, stopped)
}

func TestMonitorActivateDeactivateIdempotent(t *testing.T) {
	src := &fakeSource{}
	m := NewMonitor(src, nil)
	tok := m.Register(func(Event) bool { return false })
	defer tok.Cancel()

	require.NoError(t, m.Activate())
	require.NoError(t, m.Activate())
	started, _ := src.counts()
	assert.Equal(t, 1, started)

	require.NoError(t, m.Deactivate())
	require.NoError(t, m.Deactivate())
	_, stopped := src.counts()
	assert.Equal(t, 1, stopped)
}

func TestDispatchOrderAndConsumption(t *testing.T) {
	src := &fakeSource{}
	m := NewMonitor(src, nil)
	require.NoError(t, m.Activate())

	var order []string
	t1 := m.Register(func(Event) bool {
		order = append(order, "first")
		return false
	})
	defer t1.Cancel()
	t2 := m.Register(func(Event) bool {
		order = append(order, "second")
		return true
	})
	defer t2.Cancel()
	t3 := m.Register(func(Event) bool {
		order = append(order, "third")
		return false
	})
	defer t3.Cancel()

	consumed := src.inject(keyDown("a"))
	assert.True(t, consumed)
	assert.Equal(t, []string{"first", "second"}, order, "dispatch stops at the consumer")
}

func TestCancelDuringDispatchIsSafe(t *testing.T) {
	src := &fakeSource{}
	m := NewMonitor(src, nil)
	require.NoError(t, m.Activate())

	var tok Token
	var hits int
	tok = m.Register(func(Event) bool {
		hits++
		tok.Cancel() // remove ourselves mid-dispatch
		return false
	})

	src.inject(keyDown("a"))
	src.inject(keyDown("b"))
	assert.Equal(t, 1, hits)
}

func TestTapDisabledRequestsRestart(t *testing.T) {
	src := &fakeSource{}
	m := NewMonitor(src, nil)
	require.NoError(t, m.Activate())
	tok := m.Register(func(Event) bool { return false })
	defer tok.Cancel()

	src.inject(Event{Kind: KindTapDisabled, When: time.Now()})

	select {
	case <-m.RestartRequests():
	case <-time.After(time.Second):
		t.Fatal("no restart request after tap-disabled event")
	}

	require.NoError(t, m.Restart())
	started, stopped := src.counts()
	assert.Equal(t, 2, started)
	assert.Equal(t, 1, stopped)
	assert.True(t, m.Alive())
}

func TestStartFailureSurfacesError(t *testing.T) {
	src := &fakeSource{failing: true}
	m := NewMonitor(src, nil)
	require.NoError(t, m.Activate())

	m.Register(func(Event) bool { return false })
	assert.False(t, m.Alive())
}
