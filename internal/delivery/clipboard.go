package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Synthesizer posts synthetic input to the focused application.
type Synthesizer interface {
	// PasteShortcut posts the platform paste chord (Cmd+V / Ctrl+V).
	PasteShortcut() error
	// MenuPaste invokes the frontmost application's Edit→Paste menu item.
	// Platforms without a programmatic menu return an error.
	MenuPaste() error
	// TypeText posts the text as individual keystrokes.
	TypeText(text string) error
}

// ClipboardStrategy pastes through the system clipboard: snapshot the
// current contents, write the new text, wait for the write to land, post
// the paste chord, and restore the snapshot after a grace delay.
type ClipboardStrategy struct {
	board Pasteboard
	synth Synthesizer
	log   *slog.Logger

	mu      sync.Mutex
	restore *time.Timer

	// injectable for tests
	waitTimeout  time.Duration
	waitInterval time.Duration
	graceDelay   time.Duration
}

// NewClipboardStrategy builds the clipboard paste strategy.
func NewClipboardStrategy(board Pasteboard, synth Synthesizer, log *slog.Logger) *ClipboardStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &ClipboardStrategy{
		board:        board,
		synth:        synth,
		log:          log.With("strategy", "clipboard"),
		waitTimeout:  ClipboardWaitTimeout,
		waitInterval: ClipboardWaitInterval,
		graceDelay:   RestoreGraceDelay,
	}
}

// Name implements Strategy.
func (s *ClipboardStrategy) Name() string { return "clipboard" }

// Attempt implements Strategy.
func (s *ClipboardStrategy) Attempt(ctx context.Context, text string) error {
	opts := optionsFrom(ctx)

	// A restore scheduled by a previous delivery would clobber the text
	// we are about to write; cancel it first.
	s.CancelPendingRestore()

	snapshot, err := s.board.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot clipboard: %w", err)
	}
	expected := snapshot.ChangeCount + 1

	if err := s.board.WriteText(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}

	// The pasteboard write is asynchronous on some platforms; pasting
	// before the change counter ticks pastes the old contents. Timeout is
	// logged and the paste proceeds anyway.
	if err := s.waitForChangeCount(ctx, expected); err != nil {
		s.log.Warn("clipboard settle wait failed", "error", err)
	}

	if err := s.synth.PasteShortcut(); err != nil {
		s.log.Debug("paste shortcut failed, trying menu item", "error", err)
		if menuErr := s.synth.MenuPaste(); menuErr != nil {
			// The text is on the clipboard but nothing pasted it. Leave
			// the clipboard alone so the user can paste manually.
			return fmt.Errorf("paste shortcut: %w; menu paste: %v", err, menuErr)
		}
	}

	if !opts.RetainClipboard {
		s.scheduleRestore(snapshot)
	}
	return nil
}

func (s *ClipboardStrategy) waitForChangeCount(ctx context.Context, expected int64) error {
	deadline := time.Now().Add(s.waitTimeout)
	for {
		if s.board.ChangeCount() >= expected {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrClipboardRaceTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.waitInterval):
		}
	}
}

// scheduleRestore arms the grace-delay timer that puts the previous
// clipboard contents back.
func (s *ClipboardStrategy) scheduleRestore(snapshot *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restore != nil {
		s.restore.Stop()
	}
	s.restore = time.AfterFunc(s.graceDelay, func() {
		if err := s.board.Restore(snapshot); err != nil {
			s.log.Warn("clipboard restore failed", "error", err)
			return
		}
		s.log.Debug("clipboard restored")
	})
}

// CancelPendingRestore stops any scheduled restore. Idempotent; called on
// session cancellation and before a new delivery.
func (s *ClipboardStrategy) CancelPendingRestore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restore != nil {
		s.restore.Stop()
		s.restore = nil
	}
}
