package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/delivery"
	"voxd/internal/eventtap"
	"voxd/internal/hotkey"
)

type fakeRecorder struct {
	mu      sync.Mutex
	starts  int
	stops   int
	aborts  int
	stopErr error
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) (Audio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if r.stopErr != nil {
		return Audio{}, r.stopErr
	}
	return Audio{Samples: []byte("pcm")}, nil
}

func (r *fakeRecorder) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborts++
	return nil
}

func (r *fakeRecorder) counts() (starts, stops, aborts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops, r.aborts
}

type fakeTranscriber struct {
	text string
	err  error
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	return t.text, t.err
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	opts      []delivery.Options
	err       error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, text string, opts delivery.Options) (delivery.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, text)
	d.opts = append(d.opts, opts)
	if d.err != nil {
		return delivery.Outcome{}, d.err
	}
	return delivery.Outcome{Delivered: true, Strategy: "clipboard"}, nil
}

func (d *fakeDeliverer) texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered...)
}

type fakeRestore struct {
	mu      sync.Mutex
	cancels int
}

func (f *fakeRestore) CancelPendingRestore() {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (l *eventLog) has(kind EventKind) bool {
	for _, k := range l.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

type fixture struct {
	ctrl   *Controller
	rec    *fakeRecorder
	deliv  *fakeDeliverer
	rest   *fakeRestore
	events *eventLog
}

func newFixture(t *testing.T, hk hotkey.Hotkey, text string) *fixture {
	t.Helper()
	f := &fixture{
		rec:    &fakeRecorder{},
		deliv:  &fakeDeliverer{},
		rest:   &fakeRestore{},
		events: &eventLog{},
	}
	f.ctrl = NewController(Config{
		Hotkey:      hk,
		Recorder:    f.rec,
		Transcriber: &fakeTranscriber{text: text},
		Deliverer:   f.deliv,
		Restore:     f.rest,
	}, nil)
	f.ctrl.OnEvent(f.events.record)
	t.Cleanup(f.ctrl.Close)
	return f
}

func optionOnlyHotkey() hotkey.Hotkey {
	return hotkey.Hotkey{Modifiers: hotkey.NewModifiers(hotkey.ModOption)}
}

func cmdDHotkey() hotkey.Hotkey {
	return hotkey.Hotkey{Key: "d", Modifiers: hotkey.NewModifiers(hotkey.ModCommand)}
}

func flagsEvent(mods hotkey.Modifiers) eventtap.Event {
	return eventtap.Event{Kind: eventtap.KindFlagsChanged, Modifiers: mods, When: time.Now()}
}

func keyDown(k hotkey.Key, mods hotkey.Modifiers) eventtap.Event {
	return eventtap.Event{Kind: eventtap.KindKeyDown, Key: k, Modifiers: mods, When: time.Now()}
}

func keyUp(k hotkey.Key, mods hotkey.Modifiers) eventtap.Event {
	return eventtap.Event{Kind: eventtap.KindKeyUp, Key: k, Modifiers: mods, When: time.Now()}
}

func TestPressAndHoldDeliversTranscript(t *testing.T) {
	f := newFixture(t, cmdDHotkey(), "hello world")
	cmd := hotkey.NewModifiers(hotkey.ModCommand)

	f.ctrl.HandleTap(flagsEvent(cmd))
	consumed := f.ctrl.HandleTap(keyDown("d", cmd))
	assert.True(t, consumed, "triggering keystroke should be swallowed")
	assert.Equal(t, "press_and_hold", f.ctrl.Status().State)

	consumed = f.ctrl.HandleTap(keyUp("d", cmd))
	assert.True(t, consumed)
	assert.Equal(t, "idle", f.ctrl.Status().State)

	require.Eventually(t, func() bool {
		return len(f.deliv.texts()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello world"}, f.deliv.texts())

	require.Eventually(t, func() bool {
		return f.events.has(EventDelivered)
	}, time.Second, 5*time.Millisecond)
	assert.True(t, f.events.has(EventStarted))
	assert.True(t, f.events.has(EventStopped))
}

func TestShortModifierOnlyPressDiscarded(t *testing.T) {
	f := newFixture(t, optionOnlyHotkey(), "should never deliver")
	option := hotkey.NewModifiers(hotkey.ModOption)

	f.ctrl.HandleTap(flagsEvent(option))
	assert.Equal(t, "press_and_hold", f.ctrl.Status().State)

	// Released well under the modifier-only floor.
	f.ctrl.HandleTap(flagsEvent(hotkey.Modifiers{}))
	assert.Equal(t, "idle", f.ctrl.Status().State)

	require.Eventually(t, func() bool {
		return f.events.has(EventDiscarded)
	}, time.Second, 5*time.Millisecond)
	_, _, aborts := f.rec.counts()
	assert.GreaterOrEqual(t, aborts, 1)
	assert.Empty(t, f.deliv.texts())
	assert.False(t, f.events.has(EventDelivered))
}

func TestEscapeCancelsAndCancelsPendingRestore(t *testing.T) {
	f := newFixture(t, optionOnlyHotkey(), "unused")
	option := hotkey.NewModifiers(hotkey.ModOption)

	f.ctrl.HandleTap(flagsEvent(option))
	consumed := f.ctrl.HandleTap(keyDown(hotkey.KeyEscape, option))
	assert.True(t, consumed, "Escape that cancels must be swallowed")
	assert.Equal(t, "idle", f.ctrl.Status().State)

	assert.True(t, f.events.has(EventCancelled))
	f.rest.mu.Lock()
	cancels := f.rest.cancels
	f.rest.mu.Unlock()
	assert.Equal(t, 1, cancels)
	assert.Empty(t, f.deliv.texts())
}

func TestDoubleTapLocksSession(t *testing.T) {
	f := newFixture(t, optionOnlyHotkey(), "locked dictation")
	option := hotkey.NewModifiers(hotkey.ModOption)
	none := hotkey.Modifiers{}

	// Tap, tap again, then release inside the window: the session locks on
	// with the modifier no longer held.
	f.ctrl.HandleTap(flagsEvent(option))
	f.ctrl.HandleTap(flagsEvent(none))
	f.ctrl.HandleTap(flagsEvent(option))
	f.ctrl.HandleTap(flagsEvent(none))
	assert.Equal(t, "double_tap_lock", f.ctrl.Status().State)
	assert.True(t, f.events.has(EventLocked))

	// Unrelated typing does not stop a locked session.
	f.ctrl.HandleTap(keyDown("x", none))
	f.ctrl.HandleTap(keyUp("x", none))
	assert.Equal(t, "double_tap_lock", f.ctrl.Status().State)

	// Pressing the hotkey again does.
	f.ctrl.HandleTap(flagsEvent(option))
	assert.Equal(t, "idle", f.ctrl.Status().State)
}

func TestPauseSuspendsDetection(t *testing.T) {
	f := newFixture(t, cmdDHotkey(), "unused")
	cmd := hotkey.NewModifiers(hotkey.ModCommand)

	f.ctrl.Pause()
	consumed := f.ctrl.HandleTap(keyDown("d", cmd))
	assert.False(t, consumed)
	assert.Equal(t, "idle", f.ctrl.Status().State)
	assert.True(t, f.ctrl.Status().Paused)

	f.ctrl.Resume()
	f.ctrl.HandleTap(keyDown("d", cmd))
	assert.Equal(t, "press_and_hold", f.ctrl.Status().State)
}

func TestPauseAbortsActiveSession(t *testing.T) {
	f := newFixture(t, cmdDHotkey(), "unused")
	cmd := hotkey.NewModifiers(hotkey.ModCommand)

	f.ctrl.HandleTap(keyDown("d", cmd))
	require.Equal(t, "press_and_hold", f.ctrl.Status().State)

	f.ctrl.Pause()
	assert.Equal(t, "idle", f.ctrl.Status().State)
	assert.True(t, f.events.has(EventCancelled))
	_, _, aborts := f.rec.counts()
	assert.GreaterOrEqual(t, aborts, 1)
}

func TestRearmSwapsHotkey(t *testing.T) {
	f := newFixture(t, cmdDHotkey(), "unused")
	option := hotkey.NewModifiers(hotkey.ModOption)

	f.ctrl.Rearm(optionOnlyHotkey(), false, 0)
	f.ctrl.HandleTap(flagsEvent(option))
	assert.Equal(t, "press_and_hold", f.ctrl.Status().State)
	assert.Equal(t, "⌥", f.ctrl.Status().Hotkey)
}

func TestRecorderStopFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, cmdDHotkey(), "unused")
	f.rec.stopErr = errors.New("audio device vanished")
	cmd := hotkey.NewModifiers(hotkey.ModCommand)

	f.ctrl.HandleTap(keyDown("d", cmd))
	f.ctrl.HandleTap(keyUp("d", cmd))
	assert.Equal(t, "idle", f.ctrl.Status().State)

	require.Eventually(t, func() bool {
		return f.events.has(EventDeliveryFailed)
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.deliv.texts())
}

func TestDeliveryFailureEmitsEvent(t *testing.T) {
	f := newFixture(t, cmdDHotkey(), "some text")
	f.deliv.err = delivery.ErrAllStrategiesFailed
	cmd := hotkey.NewModifiers(hotkey.ModCommand)

	f.ctrl.HandleTap(keyDown("d", cmd))
	f.ctrl.HandleTap(keyUp("d", cmd))

	require.Eventually(t, func() bool {
		return f.events.has(EventDeliveryFailed)
	}, time.Second, 5*time.Millisecond)
}

func TestMouseClickDiscardsEarlyModifierOnlySession(t *testing.T) {
	f := newFixture(t, optionOnlyHotkey(), "unused")
	option := hotkey.NewModifiers(hotkey.ModOption)

	f.ctrl.HandleTap(flagsEvent(option))
	require.Equal(t, "press_and_hold", f.ctrl.Status().State)

	f.ctrl.HandleTap(eventtap.Event{Kind: eventtap.KindMouseDown, When: time.Now()})
	assert.Equal(t, "idle", f.ctrl.Status().State)
	require.Eventually(t, func() bool {
		return f.events.has(EventDiscarded)
	}, time.Second, 5*time.Millisecond)
}
