package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// TypingStrategy simulates typing the text key by key. Slowest and most
// intrusive, so it runs last. After typing it reads the focused element's
// value back to verify the text actually landed; when the platform cannot
// read the value, success is assumed.
type TypingStrategy struct {
	synth Synthesizer
	ax    Accessibility
	log   *slog.Logger
}

// NewTypingStrategy builds the keystroke synthesis strategy. ax may be nil
// when no accessibility bridge exists; verification is then skipped.
func NewTypingStrategy(synth Synthesizer, ax Accessibility, log *slog.Logger) *TypingStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &TypingStrategy{synth: synth, ax: ax, log: log.With("strategy", "typing")}
}

// Name implements Strategy.
func (s *TypingStrategy) Name() string { return "typing" }

// Attempt implements Strategy.
func (s *TypingStrategy) Attempt(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.synth.TypeText(text); err != nil {
		return fmt.Errorf("type text: %w", err)
	}

	if s.ax == nil {
		return nil
	}
	el, err := s.ax.FocusedElement()
	if err != nil {
		// Verification unavailable; the keystrokes were posted, assume
		// they landed.
		s.log.Debug("typed without verification", "chars", len(text))
		return nil
	}
	if !strings.Contains(el.Value, text) {
		return fmt.Errorf("typed text not found in focused element")
	}
	return nil
}
