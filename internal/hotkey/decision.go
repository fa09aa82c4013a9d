package hotkey

import "time"

// Decision is the outcome of judging a finished recording.
type Decision int

const (
	// DecisionDiscardShortRecording drops the recording silently; the
	// press was too short to be deliberate.
	DecisionDiscardShortRecording Decision = iota
	// DecisionProceedToTranscription keeps the recording and hands it to
	// the transcription collaborator.
	DecisionProceedToTranscription
)

// String returns the decision name.
func (d Decision) String() string {
	if d == DecisionProceedToTranscription {
		return "proceed_to_transcription"
	}
	return "discard_short_recording"
}

// DecisionContext carries everything needed to judge a recording.
type DecisionContext struct {
	Hotkey         Hotkey
	MinimumKeyTime time.Duration
	// RecordingStart is when the session began; the zero time means the
	// start was never observed and the recording is discarded fail-safe.
	RecordingStart time.Time
	Now            time.Time
}

// Decide determines whether a finished recording is kept or discarded.
//
// Key+modifier hotkeys always proceed: pressing a deliberate chord is
// evidence enough, and duration gating is handled by the state machine's
// cancel window. Modifier-only hotkeys must meet the effective minimum,
// which is the configured minimum key time floored at
// ModifierOnlyMinimumDuration to avoid capturing stray OS-shortcut presses.
func Decide(ctx DecisionContext) Decision {
	includesPrintableKey := !ctx.Hotkey.IsModifierOnly()
	if includesPrintableKey {
		return DecisionProceedToTranscription
	}

	if ctx.RecordingStart.IsZero() {
		return DecisionDiscardShortRecording
	}
	elapsed := ctx.Now.Sub(ctx.RecordingStart)

	effectiveMinimum := ctx.MinimumKeyTime
	if effectiveMinimum < ModifierOnlyMinimumDuration {
		effectiveMinimum = ModifierOnlyMinimumDuration
	}
	if elapsed >= effectiveMinimum {
		return DecisionProceedToTranscription
	}
	return DecisionDiscardShortRecording
}
