// Package delivery inserts finished dictation text into the focused
// application.
//
// Three strategies are tried in order: direct accessibility-tree insertion,
// clipboard-mediated paste, and character-by-character keystroke synthesis.
// The first success wins. The system clipboard is the one shared external
// resource the pipeline touches; it is snapshotted before mutation and
// restored afterwards unless the caller wants the text retained. If every
// strategy fails the text is left on the clipboard as a last resort so the
// user can paste by hand.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Timing constants; empirically tuned, do not retune silently.
const (
	// ClipboardWaitTimeout bounds the poll for the pasteboard change
	// counter to reach its expected value after a write.
	ClipboardWaitTimeout = 150 * time.Millisecond
	// ClipboardWaitInterval is the poll step within that bound.
	ClipboardWaitInterval = 5 * time.Millisecond
	// RestoreGraceDelay gives slow applications a window to read the
	// pasted text before the previous clipboard contents come back.
	RestoreGraceDelay = 500 * time.Millisecond
)

// Sentinel errors for the strategy layer.
var (
	// ErrElementUnsupported means the focused element cannot accept
	// programmatic insertion. Expected; the pipeline falls through.
	ErrElementUnsupported = errors.New("delivery: focused element unsupported")
	// ErrClipboardRaceTimeout means the pasteboard change counter never
	// reached the expected value. Logged; the paste proceeds anyway.
	ErrClipboardRaceTimeout = errors.New("delivery: clipboard change counter timeout")
	// ErrAllStrategiesFailed means nothing worked; the text remains on
	// the clipboard for manual pasting.
	ErrAllStrategiesFailed = errors.New("delivery: all strategies failed")
)

// Strategy is one insertion technique.
type Strategy interface {
	// Name identifies the strategy in logs and outcomes.
	Name() string
	// Attempt tries to insert text into the focused application.
	Attempt(ctx context.Context, text string) error
}

// StrategyResult records one attempt.
type StrategyResult struct {
	Strategy string        `json:"strategy"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Outcome summarizes a delivery.
type Outcome struct {
	Delivered bool             `json:"delivered"`
	Strategy  string           `json:"strategy,omitempty"`
	Attempts  []StrategyResult `json:"attempts"`
}

// Options tune a single delivery.
type Options struct {
	// RetainClipboard leaves the delivered text on the clipboard instead
	// of restoring the snapshot.
	RetainClipboard bool
}

// Pipeline runs the ordered strategies.
type Pipeline struct {
	strategies []Strategy
	board      Pasteboard
	log        *slog.Logger
}

// NewPipeline builds a pipeline over explicit strategies. The pasteboard is
// used for the all-failed fallback write; it may be shared with a clipboard
// strategy.
func NewPipeline(board Pasteboard, log *slog.Logger, strategies ...Strategy) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		strategies: strategies,
		board:      board,
		log:        log.With("component", "delivery"),
	}
}

// Deliver inserts text into the focused application. Returns the outcome
// and ErrAllStrategiesFailed when nothing worked; strategy-internal errors
// are recorded in the outcome, logged, and never fatal.
func (p *Pipeline) Deliver(ctx context.Context, text string, opts Options) (Outcome, error) {
	var outcome Outcome
	if text == "" {
		outcome.Delivered = true
		return outcome, nil
	}

	ctx = withOptions(ctx, opts)

	for _, s := range p.strategies {
		start := time.Now()
		err := s.Attempt(ctx, text)
		result := StrategyResult{Strategy: s.Name(), Duration: time.Since(start)}
		if err != nil {
			result.Err = err.Error()
			outcome.Attempts = append(outcome.Attempts, result)
			if errors.Is(err, ErrElementUnsupported) {
				p.log.Debug("strategy not applicable", "strategy", s.Name())
			} else {
				p.log.Warn("strategy failed", "strategy", s.Name(), "error", err)
			}
			continue
		}
		outcome.Attempts = append(outcome.Attempts, result)
		outcome.Delivered = true
		outcome.Strategy = s.Name()
		p.log.Info("text delivered", "strategy", s.Name(), "chars", len(text))
		return outcome, nil
	}

	// Last resort: leave the text on the clipboard so the user can paste
	// manually. Ignore errors here; there is nothing further to try.
	if p.board != nil {
		if err := p.board.WriteText(text); err != nil {
			p.log.Error("fallback clipboard write failed", "error", err)
		} else {
			p.log.Warn("delivery failed, text left on clipboard", "chars", len(text))
		}
	}
	return outcome, ErrAllStrategiesFailed
}

// optionsKey carries per-delivery options to strategies through the context.
type optionsKey struct{}

func withOptions(ctx context.Context, opts Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, opts)
}

func optionsFrom(ctx context.Context) Options {
	if opts, ok := ctx.Value(optionsKey{}).(Options); ok {
		return opts
	}
	return Options{}
}
