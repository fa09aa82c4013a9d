package permission

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChecker returns a scripted status and counts prompts.
type fakeChecker struct {
	mu      sync.Mutex
	status  Status
	prompts int
}

func (f *fakeChecker) Check() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeChecker) Prompt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts++
}

func (f *fakeChecker) set(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeChecker) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts
}

// fakeTap records activation state.
type fakeTap struct {
	mu          sync.Mutex
	active      bool
	alive       bool
	activates   int
	deactivates int
	restarts    int
}

func (f *fakeTap) Activate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	f.alive = true
	f.activates++
	return nil
}

func (f *fakeTap) Deactivate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	f.alive = false
	f.deactivates++
	return nil
}

func (f *fakeTap) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeTap) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = true
	f.restarts++
	return nil
}

func (f *fakeTap) kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
}

func newTestWatchdog(status Status) (*Watchdog, *fakeChecker, *fakeTap, *[]Change) {
	checker := &fakeChecker{status: status}
	tap := &fakeTap{}
	w := NewWatchdog(checker, tap, 0, nil)
	changes := &[]Change{}
	var mu sync.Mutex
	w.OnChange(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		*changes = append(*changes, c)
	})
	return w, checker, tap, changes
}

func TestInitialGrantedActivatesTap(t *testing.T) {
	w, _, tap, changes := newTestWatchdog(StatusGranted)
	w.evaluate(true)

	require.Len(t, *changes, 1)
	assert.Equal(t, StatusGranted, (*changes)[0].Status)
	assert.Equal(t, ReasonInitial, (*changes)[0].Reason)
	assert.Equal(t, 1, tap.activates)
}

func TestInitialDeniedPromptsExactlyOnce(t *testing.T) {
	w, checker, tap, changes := newTestWatchdog(StatusDenied)
	w.evaluate(true)

	assert.Equal(t, 1, checker.promptCount())
	assert.Equal(t, 1, tap.deactivates)
	require.Len(t, *changes, 1)
	assert.Equal(t, ReasonInitial, (*changes)[0].Reason)

	// Further denied polls never prompt again.
	w.Poll()
	w.Poll()
	assert.Equal(t, 1, checker.promptCount())
}

func TestOneChangePerFlipAndNoneWithoutChange(t *testing.T) {
	w, checker, _, changes := newTestWatchdog(StatusDenied)
	w.evaluate(true)
	require.Len(t, *changes, 1)

	// Unchanged polls emit nothing.
	w.Poll()
	w.Poll()
	w.Poll()
	assert.Len(t, *changes, 1)

	checker.set(StatusGranted)
	w.Poll()
	require.Len(t, *changes, 2)
	assert.Equal(t, ReasonGranted, (*changes)[1].Reason)

	w.Poll()
	assert.Len(t, *changes, 2)

	checker.set(StatusDenied)
	w.Poll()
	require.Len(t, *changes, 3)
	assert.Equal(t, ReasonRevoked, (*changes)[2].Reason)
	assert.Equal(t, StatusGranted, (*changes)[2].Previous)
}

func TestKeepaliveRestartsDeadTap(t *testing.T) {
	w, _, tap, _ := newTestWatchdog(StatusGranted)
	w.evaluate(true)
	require.True(t, tap.Alive())

	// OS silently disables the tap; an unchanged granted poll notices.
	tap.kill()
	w.Poll()
	assert.Equal(t, 1, tap.restarts)
	assert.True(t, tap.Alive())

	// Healthy polls do not restart.
	w.Poll()
	assert.Equal(t, 1, tap.restarts)
}

func TestRevokedDeactivates(t *testing.T) {
	w, checker, tap, _ := newTestWatchdog(StatusGranted)
	w.evaluate(true)

	checker.set(StatusDenied)
	w.Poll()
	assert.Equal(t, 1, tap.deactivates)
	assert.Equal(t, StatusDenied, w.Status())
}
