package hotkey

import "time"

// Timing thresholds. These values are empirically tuned against real user
// behavior and OS shortcut timing; do not retune them without re-testing.
const (
	// DoubleTapWindow is the maximum gap between two hotkey taps for the
	// pair to count as a double-tap.
	DoubleTapWindow = 300 * time.Millisecond

	// ModifierOnlyMinimumDuration is the floor applied to modifier-only
	// hotkeys regardless of the configured minimum key time. Brief modifier
	// presses happen constantly during normal typing and OS shortcuts.
	ModifierOnlyMinimumDuration = 300 * time.Millisecond

	// PressAndHoldCancelWindow bounds how long after a key+modifier press
	// an unrelated keystroke is treated as "this was an accident".
	PressAndHoldCancelWindow = time.Second

	// DefaultMinimumKeyTime is the default minimum hold duration for a
	// press to register as deliberate.
	DefaultMinimumKeyTime = 200 * time.Millisecond
)
