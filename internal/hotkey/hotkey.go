// Package hotkey implements the dictation trigger: the hotkey data model,
// the press/release/double-tap session state machine, and the recording
// decision engine that discards accidental short presses.
//
// The state machine consumes chord events (the set of keys currently held)
// rather than raw down/up transitions; the event tap layer performs that
// normalization. All timing thresholds live in constants.go and are
// deliberately not configurable beyond what Config exposes.
package hotkey

import (
	"strings"
	"time"
)

// Hotkey is the trigger definition: an optional non-modifier key plus a
// set of modifiers. A hotkey with no key is "modifier-only" and follows
// stricter duration rules to avoid colliding with OS shortcuts.
type Hotkey struct {
	Key       Key
	Modifiers Modifiers
}

// IsModifierOnly reports whether the hotkey has no non-modifier key.
func (h Hotkey) IsModifierOnly() bool { return h.Key.IsNone() }

// String renders the hotkey for logs and status output.
func (h Hotkey) String() string {
	if h.Key.IsNone() {
		return h.Modifiers.String()
	}
	return h.Modifiers.String() + strings.ToUpper(h.Key.String())
}

// KeyEvent is a chord snapshot delivered to the processor: the non-modifier
// key currently held (if any), the full modifier set currently held, and
// when the snapshot was taken.
type KeyEvent struct {
	Key       Key
	Modifiers Modifiers
	Time      time.Time
}

// IsFullRelease reports whether nothing at all is held.
func (e KeyEvent) IsFullRelease() bool {
	return e.Key.IsNone() && e.Modifiers.IsEmpty()
}
