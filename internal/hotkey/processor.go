package hotkey

import (
	"time"
)

// State is the current phase of hotkey detection.
type State int

const (
	// StateIdle means no session is active.
	StateIdle State = iota
	// StatePressAndHold means a session is active and will stop when the
	// hotkey is released.
	StatePressAndHold
	// StateDoubleTapLock means a session is locked on after a fast
	// press-release-press and requires a deliberate action to stop.
	StateDoubleTapLock
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePressAndHold:
		return "press_and_hold"
	case StateDoubleTapLock:
		return "double_tap_lock"
	default:
		return "idle"
	}
}

// Action is what the processor tells its owner to do in response to an
// input event. ActionNone means nothing.
type Action int

const (
	ActionNone Action = iota
	// ActionStart begins a recording session.
	ActionStart
	// ActionStop ends the session normally; the owner consults the
	// decision engine with the elapsed duration.
	ActionStop
	// ActionCancel aborts the session discarding any captured audio,
	// in response to Escape.
	ActionCancel
	// ActionDiscard aborts the session silently; the press was judged
	// accidental before it ever reached the minimum duration.
	ActionDiscard
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionCancel:
		return "cancel"
	case ActionDiscard:
		return "discard"
	default:
		return "none"
	}
}

// Processor is the session state machine. It consumes chord events in
// tap-delivery order and emits actions. It is not safe for concurrent use;
// the session controller is its single owner and serialization point.
//
// Two complementary recording modes are implemented:
//
//  1. Press-and-hold: session runs while the hotkey is held.
//  2. Double-tap lock: a fast press-release-press locks the session on
//     until the hotkey is pressed again (or fully released, in
//     double-tap-only mode for key+modifier hotkeys).
//
// Modifier-only hotkeys support both modes regardless of UseDoubleTapOnly;
// key+modifier hotkeys honor the flag strictly. The asymmetry is
// intentional: a bare modifier press carries no other meaning, so both
// gestures are safe to accept, while a key chord in double-tap-only mode
// must never trigger on a single press.
type Processor struct {
	Hotkey           Hotkey
	UseDoubleTapOnly bool
	MinimumKeyTime   time.Duration

	state     State
	dirty     bool
	lastTapAt time.Time
	startedAt time.Time

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewProcessor creates a processor for the given trigger configuration.
// A zero minimumKeyTime falls back to DefaultMinimumKeyTime.
func NewProcessor(hk Hotkey, useDoubleTapOnly bool, minimumKeyTime time.Duration) *Processor {
	if minimumKeyTime <= 0 {
		minimumKeyTime = DefaultMinimumKeyTime
	}
	return &Processor{
		Hotkey:           hk,
		UseDoubleTapOnly: useDoubleTapOnly,
		MinimumKeyTime:   minimumKeyTime,
		now:              time.Now,
	}
}

// State returns the current state.
func (p *Processor) State() State { return p.state }

// Active reports whether a session is currently running.
func (p *Processor) Active() bool {
	return p.state == StatePressAndHold || p.state == StateDoubleTapLock
}

// StartedAt returns when the current session began, or the zero time if
// no session is active.
func (p *Processor) StartedAt() time.Time {
	if !p.Active() {
		return time.Time{}
	}
	return p.startedAt
}

// Process consumes one chord event and returns the action to take.
//
// Processing order: Escape first, then the dirty gate, then chord matching.
// Escape is handled before everything else so cancellation cannot be
// shadowed by dirty-state suppression.
func (p *Processor) Process(ev KeyEvent) Action {
	// Escape cancels any active session immediately. The dirty flag makes
	// the remainder of the physical hold inert, so releasing and
	// re-pressing is required to start again.
	if ev.Key == KeyEscape && p.state != StateIdle {
		p.dirty = true
		p.resetToIdle()
		return ActionCancel
	}

	if p.dirty {
		if ev.IsFullRelease() {
			p.dirty = false
		} else {
			return ActionNone
		}
	}

	if p.chordMatches(ev) {
		return p.handleMatch(ev)
	}
	if p.chordIsDirty(ev) {
		p.dirty = true
	}
	return p.handleMismatch(ev)
}

// ProcessClick consumes a mouse-button-down event. Clicks while holding a
// modifier-only hotkey usually mean the modifier was meant for the click
// (option-click, command-click and friends), so a session that has not yet
// reached its effective minimum is discarded. After the threshold, and for
// key+modifier hotkeys or locked sessions, clicks are ignored.
func (p *Processor) ProcessClick() Action {
	if !p.Hotkey.IsModifierOnly() {
		return ActionNone
	}
	if p.state != StatePressAndHold {
		return ActionNone
	}
	if p.startedAt.IsZero() {
		return ActionNone
	}
	elapsed := p.now().Sub(p.startedAt)
	if elapsed < p.effectiveMinimum() {
		p.dirty = true
		p.resetToIdle()
		return ActionDiscard
	}
	return ActionNone
}

func (p *Processor) handleMatch(ev KeyEvent) Action {
	switch p.state {
	case StateIdle:
		if p.UseDoubleTapOnly && !p.Hotkey.IsModifierOnly() {
			// Double-tap-only: remember the press, wait for the second tap.
			p.lastTapAt = p.now()
			return ActionNone
		}
		p.state = StatePressAndHold
		p.startedAt = p.now()
		return ActionStart

	case StatePressAndHold:
		// Already matched; repeats while holding are noise.
		return ActionNone

	case StateDoubleTapLock:
		// Deliberate second press toggles the locked session off.
		p.resetToIdle()
		return ActionStop
	}
	return ActionNone
}

func (p *Processor) handleMismatch(ev KeyEvent) Action {
	switch p.state {
	case StateIdle:
		if p.UseDoubleTapOnly && !p.Hotkey.IsModifierOnly() &&
			ev.IsFullRelease() && !p.lastTapAt.IsZero() {
			if p.now().Sub(p.lastTapAt) < DoubleTapWindow {
				// Second tap completed within the window; lock on.
				p.state = StateDoubleTapLock
				p.startedAt = p.now()
				return ActionStart
			}
			p.lastTapAt = time.Time{}
		}
		return ActionNone

	case StatePressAndHold:
		if p.isHotkeyRelease(ev) {
			if !p.lastTapAt.IsZero() && p.now().Sub(p.lastTapAt) < DoubleTapWindow {
				// Fast release-press-release pattern: keep recording, locked.
				p.state = StateDoubleTapLock
				return ActionNone
			}
			p.state = StateIdle
			p.lastTapAt = p.now()
			p.startedAt = time.Time{}
			return ActionStop
		}
		return p.handleForeignKey()

	case StateDoubleTapLock:
		if p.UseDoubleTapOnly && !p.Hotkey.IsModifierOnly() && ev.IsFullRelease() {
			p.resetToIdle()
			return ActionStop
		}
		// Locked sessions ignore everything else; only the hotkey itself
		// or Escape ends them.
		return ActionNone
	}
	return ActionNone
}

// handleForeignKey deals with an unrelated key or extra modifier pressed
// while a press-and-hold session is running.
func (p *Processor) handleForeignKey() Action {
	if p.startedAt.IsZero() {
		return ActionNone
	}
	elapsed := p.now().Sub(p.startedAt)

	if p.Hotkey.IsModifierOnly() {
		// Inside the effective minimum the chord was almost certainly the
		// first half of an OS shortcut; discard silently. Past it, the
		// session is deliberate and only Escape cancels.
		if elapsed < p.effectiveMinimum() {
			p.dirty = true
			p.resetToIdle()
			return ActionDiscard
		}
		return ActionNone
	}

	if elapsed < PressAndHoldCancelWindow {
		p.dirty = true
		p.resetToIdle()
		if elapsed < p.MinimumKeyTime {
			return ActionDiscard
		}
		return ActionStop
	}
	// Long-running session with simultaneous unrelated input: user intent,
	// keep going.
	return ActionNone
}

func (p *Processor) effectiveMinimum() time.Duration {
	if p.MinimumKeyTime > ModifierOnlyMinimumDuration {
		return p.MinimumKeyTime
	}
	return ModifierOnlyMinimumDuration
}

// chordMatches reports whether the event is exactly the configured hotkey.
func (p *Processor) chordMatches(ev KeyEvent) bool {
	if !p.Hotkey.IsModifierOnly() {
		return ev.Key == p.Hotkey.Key && ev.Modifiers.MatchesExactly(p.Hotkey.Modifiers)
	}
	return ev.Key.IsNone() && ev.Modifiers.MatchesExactly(p.Hotkey.Modifiers)
}

// chordIsDirty reports whether the event contains input unrelated to the
// hotkey, which should suppress matching until a full release.
func (p *Processor) chordIsDirty(ev KeyEvent) bool {
	if p.Hotkey.IsModifierOnly() {
		return !ev.Key.IsNone() || !ev.Modifiers.IsSubsetOf(p.Hotkey.Modifiers)
	}
	wrongKey := !ev.Key.IsNone() && ev.Key != p.Hotkey.Key
	return wrongKey || !ev.Modifiers.IsSubsetOf(p.Hotkey.Modifiers)
}

// isHotkeyRelease reports whether the event represents the user letting go
// of the active hotkey. For key+modifier hotkeys the key lifting is the
// release even if some modifiers are still down; for modifier-only hotkeys
// the required modifiers no longer being held is the release.
func (p *Processor) isHotkeyRelease(ev KeyEvent) bool {
	if !p.Hotkey.IsModifierOnly() {
		return ev.Key.IsNone() && ev.Modifiers.IsSubsetOf(p.Hotkey.Modifiers)
	}
	return ev.Key.IsNone() && !p.Hotkey.Modifiers.IsSubsetOf(ev.Modifiers)
}

// resetToIdle clears session state. The dirty flag is left alone so a
// caller that set it before resetting keeps its input suppression.
func (p *Processor) resetToIdle() {
	p.state = StateIdle
	p.lastTapAt = time.Time{}
	p.startedAt = time.Time{}
}
