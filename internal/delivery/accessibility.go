package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Element is a snapshot of the focused UI element's text state.
type Element struct {
	Role           string
	Value          string
	SelectionStart int
	SelectionEnd   int
	// Editable reports whether the element accepts programmatic writes.
	Editable bool
}

// Accessibility exposes the OS accessibility tree for the focused element.
type Accessibility interface {
	// FocusedElement reads the focused element. Returns
	// ErrElementUnsupported when there is no focused text element or the
	// platform has no accessibility bridge.
	FocusedElement() (Element, error)
	// SetFocusedValue replaces the focused element's entire value and
	// positions the caret.
	SetFocusedValue(value string, caret int) error
}

// AccessibilityStrategy inserts text directly through the accessibility
// tree: the selected range is replaced, or the text is appended at the
// caret. No clipboard involvement, no synthetic input, so it is tried
// first.
type AccessibilityStrategy struct {
	ax  Accessibility
	log *slog.Logger
}

// NewAccessibilityStrategy builds the accessibility insertion strategy.
func NewAccessibilityStrategy(ax Accessibility, log *slog.Logger) *AccessibilityStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &AccessibilityStrategy{ax: ax, log: log.With("strategy", "accessibility")}
}

// Name implements Strategy.
func (s *AccessibilityStrategy) Name() string { return "accessibility" }

// Attempt implements Strategy.
func (s *AccessibilityStrategy) Attempt(ctx context.Context, text string) error {
	el, err := s.ax.FocusedElement()
	if err != nil {
		return err
	}
	if !el.Editable {
		return fmt.Errorf("%w: role %q is not editable", ErrElementUnsupported, el.Role)
	}

	value, caret := spliceAtSelection(el, text)
	if err := s.ax.SetFocusedValue(value, caret); err != nil {
		return fmt.Errorf("set focused value: %w", err)
	}
	s.log.Debug("inserted via accessibility", "role", el.Role, "chars", len(text))
	return nil
}

// spliceAtSelection computes the new element value: text replaces the
// selected range, or lands at the caret when nothing is selected. Offsets
// beyond the value clamp to an append.
func spliceAtSelection(el Element, text string) (string, int) {
	value := el.Value
	start, end := el.SelectionStart, el.SelectionEnd
	if start < 0 || start > len(value) {
		start = len(value)
	}
	if end < start || end > len(value) {
		end = start
	}
	var b strings.Builder
	b.WriteString(value[:start])
	b.WriteString(text)
	b.WriteString(value[end:])
	return b.String(), start + len(text)
}
