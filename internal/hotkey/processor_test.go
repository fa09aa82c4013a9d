package hotkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock provides a controllable time source for the processor.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time              { return c.t }
func (c *fakeClock) advance(d time.Duration)     { c.t = c.t.Add(d) }
func (c *fakeClock) event(k Key, ms Modifiers) KeyEvent {
	return KeyEvent{Key: k, Modifiers: ms, Time: c.t}
}

func optionOnly() Hotkey {
	return Hotkey{Modifiers: NewModifiers(ModOption)}
}

func cmdShiftD() Hotkey {
	return Hotkey{Key: Key("d"), Modifiers: NewModifiers(ModCommand, ModShift)}
}

func newTestProcessor(hk Hotkey, doubleTapOnly bool, minKeyTime time.Duration) (*Processor, *fakeClock) {
	p := NewProcessor(hk, doubleTapOnly, minKeyTime)
	clk := newFakeClock()
	p.now = clk.now
	return p, clk
}

func TestPressAndHoldModifierOnly(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)

	// Press option.
	action := p.Process(clk.event(KeyNone, NewModifiers(ModOption)))
	require.Equal(t, ActionStart, action)
	require.Equal(t, StatePressAndHold, p.State())
	require.False(t, p.StartedAt().IsZero())

	// Release after 400ms: normal stop.
	clk.advance(400 * time.Millisecond)
	action = p.Process(clk.event(KeyNone, Modifiers{}))
	assert.Equal(t, ActionStop, action)
	assert.Equal(t, StateIdle, p.State())
}

func TestDoubleTapLockModifierOnly(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))

	// Quick release records a tap and stops.
	clk.advance(100 * time.Millisecond)
	require.Equal(t, ActionStop, p.Process(clk.event(KeyNone, Modifiers{})))

	// Second press within the window starts again...
	clk.advance(100 * time.Millisecond)
	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))

	// ...and releasing quickly locks instead of stopping.
	clk.advance(100 * time.Millisecond)
	assert.Equal(t, ActionNone, p.Process(clk.event(KeyNone, Modifiers{})))
	assert.Equal(t, StateDoubleTapLock, p.State())

	// Unrelated keys are ignored while locked.
	assert.Equal(t, ActionNone, p.Process(clk.event(Key("x"), Modifiers{})))
	assert.Equal(t, StateDoubleTapLock, p.State())
	// The dirty flag set by the unrelated key clears on full release.
	assert.Equal(t, ActionNone, p.Process(clk.event(KeyNone, Modifiers{})))

	// Pressing the hotkey again stops the locked session.
	clk.advance(2 * time.Second)
	assert.Equal(t, ActionStop, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))
	assert.Equal(t, StateIdle, p.State())
}

func TestDoubleTapOnlyKeyModifier(t *testing.T) {
	p, clk := newTestProcessor(cmdShiftD(), true, 200*time.Millisecond)

	// First press must not start a session in double-tap-only mode.
	require.Equal(t, ActionNone, p.Process(clk.event(Key("d"), NewModifiers(ModCommand, ModShift))))
	require.Equal(t, StateIdle, p.State())

	// Release, then the full-release of the second tap locks on.
	clk.advance(50 * time.Millisecond)
	require.Equal(t, ActionNone, p.Process(clk.event(KeyNone, NewModifiers(ModCommand, ModShift))))
	clk.advance(50 * time.Millisecond)
	action := p.Process(clk.event(KeyNone, Modifiers{}))
	require.Equal(t, ActionStart, action)
	require.Equal(t, StateDoubleTapLock, p.State())

	// Full release of all tracked keys later ends the locked session.
	clk.advance(time.Second)
	assert.Equal(t, ActionStop, p.Process(clk.event(KeyNone, Modifiers{})))
	assert.Equal(t, StateIdle, p.State())
}

func TestDoubleTapOnlySecondTapTooLate(t *testing.T) {
	p, clk := newTestProcessor(cmdShiftD(), true, 200*time.Millisecond)

	require.Equal(t, ActionNone, p.Process(clk.event(Key("d"), NewModifiers(ModCommand, ModShift))))
	clk.advance(DoubleTapWindow + 50*time.Millisecond)
	assert.Equal(t, ActionNone, p.Process(clk.event(KeyNone, Modifiers{})))
	assert.Equal(t, StateIdle, p.State())
}

func TestEscapeCancelsFromPressAndHold(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))
	clk.advance(50 * time.Millisecond)

	action := p.Process(clk.event(KeyEscape, NewModifiers(ModOption)))
	require.Equal(t, ActionCancel, action)
	require.Equal(t, StateIdle, p.State())

	// The rest of the physical hold is inert.
	assert.Equal(t, ActionNone, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))
	// Full release clears the dirty flag; the next press works again.
	assert.Equal(t, ActionNone, p.Process(clk.event(KeyNone, Modifiers{})))
	assert.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))
}

func TestEscapeCancelsFromDoubleTapLock(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))
	clk.advance(100 * time.Millisecond)
	require.Equal(t, ActionStop, p.Process(clk.event(KeyNone, Modifiers{})))
	clk.advance(100 * time.Millisecond)
	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))
	clk.advance(100 * time.Millisecond)
	require.Equal(t, ActionNone, p.Process(clk.event(KeyNone, Modifiers{})))
	require.Equal(t, StateDoubleTapLock, p.State())

	assert.Equal(t, ActionCancel, p.Process(clk.event(KeyEscape, Modifiers{})))
	assert.Equal(t, StateIdle, p.State())
}

func TestEscapeInIdleIsNoop(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)
	assert.Equal(t, ActionNone, p.Process(clk.event(KeyEscape, Modifiers{})))
	assert.Equal(t, StateIdle, p.State())
}

func TestForeignKeyDiscardsShortModifierOnlySession(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))

	// Option+D 100ms in: this was an OS shortcut, not dictation.
	clk.advance(100 * time.Millisecond)
	action := p.Process(clk.event(Key("d"), NewModifiers(ModOption)))
	assert.Equal(t, ActionDiscard, action)
	assert.Equal(t, StateIdle, p.State())
}

func TestForeignKeyIgnoredAfterThresholdModifierOnly(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))

	// Past the 300ms floor the session is deliberate; keep recording.
	clk.advance(500 * time.Millisecond)
	assert.Equal(t, ActionNone, p.Process(clk.event(Key("d"), NewModifiers(ModOption))))
	assert.Equal(t, StatePressAndHold, p.State())
}

func TestForeignKeyCancelWindowKeyModifier(t *testing.T) {
	hk := cmdShiftD()

	t.Run("very quick discards silently", func(t *testing.T) {
		p, clk := newTestProcessor(hk, false, 200*time.Millisecond)
		require.Equal(t, ActionStart, p.Process(clk.event(Key("d"), NewModifiers(ModCommand, ModShift))))
		clk.advance(100 * time.Millisecond)
		assert.Equal(t, ActionDiscard, p.Process(clk.event(Key("x"), NewModifiers(ModCommand, ModShift))))
	})

	t.Run("within cancel window stops", func(t *testing.T) {
		p, clk := newTestProcessor(hk, false, 200*time.Millisecond)
		require.Equal(t, ActionStart, p.Process(clk.event(Key("d"), NewModifiers(ModCommand, ModShift))))
		clk.advance(500 * time.Millisecond)
		assert.Equal(t, ActionStop, p.Process(clk.event(Key("x"), NewModifiers(ModCommand, ModShift))))
	})

	t.Run("after cancel window keeps recording", func(t *testing.T) {
		p, clk := newTestProcessor(hk, false, 200*time.Millisecond)
		require.Equal(t, ActionStart, p.Process(clk.event(Key("d"), NewModifiers(ModCommand, ModShift))))
		clk.advance(2 * time.Second)
		assert.Equal(t, ActionNone, p.Process(clk.event(Key("x"), NewModifiers(ModCommand, ModShift))))
		assert.Equal(t, StatePressAndHold, p.State())
	})
}

func TestKeyModifierPartialModifierReleaseStillStops(t *testing.T) {
	p, clk := newTestProcessor(cmdShiftD(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(Key("d"), NewModifiers(ModCommand, ModShift))))

	// Key lifted while shift is still held counts as release.
	clk.advance(600 * time.Millisecond)
	assert.Equal(t, ActionStop, p.Process(clk.event(KeyNone, NewModifiers(ModShift))))
	assert.Equal(t, StateIdle, p.State())
}

func TestMouseClickDiscardsShortModifierOnlySession(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))
	clk.advance(100 * time.Millisecond)
	assert.Equal(t, ActionDiscard, p.ProcessClick())
	assert.Equal(t, StateIdle, p.State())
}

func TestMouseClickIgnoredAfterThreshold(t *testing.T) {
	p, clk := newTestProcessor(optionOnly(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(KeyNone, NewModifiers(ModOption))))
	clk.advance(500 * time.Millisecond)
	assert.Equal(t, ActionNone, p.ProcessClick())
	assert.Equal(t, StatePressAndHold, p.State())
}

func TestMouseClickIgnoredForKeyModifierHotkey(t *testing.T) {
	p, clk := newTestProcessor(cmdShiftD(), false, 200*time.Millisecond)

	require.Equal(t, ActionStart, p.Process(clk.event(Key("d"), NewModifiers(ModCommand, ModShift))))
	clk.advance(50 * time.Millisecond)
	assert.Equal(t, ActionNone, p.ProcessClick())
	assert.Equal(t, StatePressAndHold, p.State())
}

func TestSideAwareMatching(t *testing.T) {
	leftOption := Hotkey{Modifiers: Modifiers{{Kind: ModOption, Side: SideLeft}}}
	p, clk := newTestProcessor(leftOption, false, 200*time.Millisecond)

	// Right option does not match a left-pinned hotkey.
	assert.Equal(t, ActionNone, p.Process(clk.event(KeyNone, Modifiers{{Kind: ModOption, Side: SideRight}})))
	// Release fully to clear dirty state from the mismatched press.
	assert.Equal(t, ActionNone, p.Process(clk.event(KeyNone, Modifiers{})))

	assert.Equal(t, ActionStart, p.Process(clk.event(KeyNone, Modifiers{{Kind: ModOption, Side: SideLeft}})))
}
