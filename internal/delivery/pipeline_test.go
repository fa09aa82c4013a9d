package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePasteboard is an in-memory clipboard with a real change counter.
type fakePasteboard struct {
	mu          sync.Mutex
	text        string
	changeCount int64
	writeErr    error
	restored    []*Snapshot
}

func (f *fakePasteboard) Snapshot() (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := &Snapshot{ChangeCount: f.changeCount}
	if f.text != "" {
		snap.Representations = []Representation{{Type: TypeText, Data: []byte(f.text)}}
	}
	return snap, nil
}

func (f *fakePasteboard) Restore(snap *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, snap)
	if text, ok := snap.Text(); ok {
		f.text = text
	} else {
		f.text = ""
	}
	f.changeCount++
	return nil
}

func (f *fakePasteboard) WriteText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.text = text
	f.changeCount++
	return nil
}

func (f *fakePasteboard) ReadText() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, nil
}

func (f *fakePasteboard) ChangeCount() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changeCount
}

func (f *fakePasteboard) currentText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *fakePasteboard) restoreCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.restored)
}

// fakeSynthesizer records which input paths were exercised.
type fakeSynthesizer struct {
	pasteErr error
	menuErr  error
	typeErr  error

	pastes int
	menus  int
	typed  []string
}

func (f *fakeSynthesizer) PasteShortcut() error {
	f.pastes++
	return f.pasteErr
}

func (f *fakeSynthesizer) MenuPaste() error {
	f.menus++
	return f.menuErr
}

func (f *fakeSynthesizer) TypeText(text string) error {
	if f.typeErr != nil {
		return f.typeErr
	}
	f.typed = append(f.typed, text)
	return nil
}

// fakeAccessibility serves a single configurable element.
type fakeAccessibility struct {
	el       Element
	focusErr error
	setErr   error

	setValue string
	setCaret int
}

func (f *fakeAccessibility) FocusedElement() (Element, error) {
	if f.focusErr != nil {
		return Element{}, f.focusErr
	}
	return f.el, nil
}

func (f *fakeAccessibility) SetFocusedValue(value string, caret int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setValue = value
	f.setCaret = caret
	return nil
}

// stubStrategy fails or succeeds unconditionally.
type stubStrategy struct {
	name  string
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, text string) error {
	s.calls++
	return s.err
}

func newTestClipboardStrategy(board Pasteboard, synth Synthesizer) *ClipboardStrategy {
	s := NewClipboardStrategy(board, synth, nil)
	s.waitTimeout = 20 * time.Millisecond
	s.waitInterval = time.Millisecond
	s.graceDelay = 10 * time.Millisecond
	return s
}

func TestDeliverEmptyTextShortCircuits(t *testing.T) {
	first := &stubStrategy{name: "first"}
	p := NewPipeline(&fakePasteboard{}, nil, first)

	outcome, err := p.Deliver(context.Background(), "", Options{})
	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Zero(t, first.calls)
}

func TestDeliverFirstStrategyWins(t *testing.T) {
	first := &stubStrategy{name: "first"}
	second := &stubStrategy{name: "second"}
	p := NewPipeline(&fakePasteboard{}, nil, first, second)

	outcome, err := p.Deliver(context.Background(), "hello", Options{})
	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Equal(t, "first", outcome.Strategy)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls)
	require.Len(t, outcome.Attempts, 1)
}

func TestDeliverFallsThroughToNextStrategy(t *testing.T) {
	first := &stubStrategy{name: "first", err: ErrElementUnsupported}
	second := &stubStrategy{name: "second"}
	p := NewPipeline(&fakePasteboard{}, nil, first, second)

	outcome, err := p.Deliver(context.Background(), "hello", Options{})
	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Equal(t, "second", outcome.Strategy)
	require.Len(t, outcome.Attempts, 2)
	assert.NotEmpty(t, outcome.Attempts[0].Err)
	assert.Empty(t, outcome.Attempts[1].Err)
}

func TestDeliverAllFailedLeavesTextOnClipboard(t *testing.T) {
	board := &fakePasteboard{text: "previous"}
	first := &stubStrategy{name: "first", err: errors.New("boom")}
	second := &stubStrategy{name: "second", err: errors.New("also boom")}
	p := NewPipeline(board, nil, first, second)

	outcome, err := p.Deliver(context.Background(), "dictated words", Options{})
	require.ErrorIs(t, err, ErrAllStrategiesFailed)
	assert.False(t, outcome.Delivered)
	assert.Equal(t, "dictated words", board.currentText())
}

func TestClipboardStrategyPastesAndRestores(t *testing.T) {
	board := &fakePasteboard{text: "foo"}
	synth := &fakeSynthesizer{}
	ax := &fakeAccessibility{focusErr: ErrElementUnsupported}
	clip := newTestClipboardStrategy(board, synth)
	p := NewPipeline(board, nil, NewAccessibilityStrategy(ax, nil), clip)

	outcome, err := p.Deliver(context.Background(), "hello world", Options{})
	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Equal(t, "clipboard", outcome.Strategy)
	assert.Equal(t, 1, synth.pastes)
	assert.Zero(t, synth.menus)
	assert.Equal(t, "hello world", board.currentText())

	// Original contents come back after the grace delay.
	require.Eventually(t, func() bool {
		return board.currentText() == "foo"
	}, time.Second, 2*time.Millisecond)
}

func TestClipboardStrategyRetainSkipsRestore(t *testing.T) {
	board := &fakePasteboard{text: "foo"}
	synth := &fakeSynthesizer{}
	clip := newTestClipboardStrategy(board, synth)

	ctx := withOptions(context.Background(), Options{RetainClipboard: true})
	require.NoError(t, clip.Attempt(ctx, "hello"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "hello", board.currentText())
	assert.Zero(t, board.restoreCount())
}

func TestClipboardStrategyMenuFallback(t *testing.T) {
	board := &fakePasteboard{}
	synth := &fakeSynthesizer{pasteErr: errors.New("event post failed")}
	clip := newTestClipboardStrategy(board, synth)

	require.NoError(t, clip.Attempt(context.Background(), "hello"))
	assert.Equal(t, 1, synth.pastes)
	assert.Equal(t, 1, synth.menus)
}

func TestClipboardStrategyBothPastePathsFail(t *testing.T) {
	board := &fakePasteboard{text: "original"}
	synth := &fakeSynthesizer{
		pasteErr: errors.New("event post failed"),
		menuErr:  errors.New("no menu"),
	}
	clip := newTestClipboardStrategy(board, synth)

	err := clip.Attempt(context.Background(), "hello")
	require.Error(t, err)

	// The clipboard keeps the new text for manual pasting; no restore is
	// scheduled.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "hello", board.currentText())
	assert.Zero(t, board.restoreCount())
}

func TestCancelPendingRestore(t *testing.T) {
	board := &fakePasteboard{text: "foo"}
	synth := &fakeSynthesizer{}
	clip := newTestClipboardStrategy(board, synth)
	clip.graceDelay = 30 * time.Millisecond

	require.NoError(t, clip.Attempt(context.Background(), "hello"))
	clip.CancelPendingRestore()
	clip.CancelPendingRestore() // idempotent

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, "hello", board.currentText())
	assert.Zero(t, board.restoreCount())
}

func TestAccessibilityStrategyReplacesSelection(t *testing.T) {
	ax := &fakeAccessibility{el: Element{
		Role:           "textarea",
		Value:          "hello cruel world",
		SelectionStart: 6,
		SelectionEnd:   11,
		Editable:       true,
	}}
	s := NewAccessibilityStrategy(ax, nil)

	require.NoError(t, s.Attempt(context.Background(), "kind"))
	assert.Equal(t, "hello kind world", ax.setValue)
	assert.Equal(t, 10, ax.setCaret)
}

func TestAccessibilityStrategyInsertsAtCaret(t *testing.T) {
	ax := &fakeAccessibility{el: Element{
		Role:           "textfield",
		Value:          "ab",
		SelectionStart: 1,
		SelectionEnd:   1,
		Editable:       true,
	}}
	s := NewAccessibilityStrategy(ax, nil)

	require.NoError(t, s.Attempt(context.Background(), "XY"))
	assert.Equal(t, "aXYb", ax.setValue)
	assert.Equal(t, 3, ax.setCaret)
}

func TestAccessibilityStrategyRejectsNonEditable(t *testing.T) {
	ax := &fakeAccessibility{el: Element{Role: "button", Editable: false}}
	s := NewAccessibilityStrategy(ax, nil)

	err := s.Attempt(context.Background(), "hello")
	require.ErrorIs(t, err, ErrElementUnsupported)
}

func TestSpliceClampsOutOfRangeSelection(t *testing.T) {
	value, caret := spliceAtSelection(Element{Value: "abc", SelectionStart: 99, SelectionEnd: 120}, "X")
	assert.Equal(t, "abcX", value)
	assert.Equal(t, 4, caret)

	value, caret = spliceAtSelection(Element{Value: "abc", SelectionStart: -1, SelectionEnd: 1}, "X")
	assert.Equal(t, "abcX", value)
	assert.Equal(t, 4, caret)
}

func TestTypingStrategyVerifiesReadback(t *testing.T) {
	synth := &fakeSynthesizer{}
	ax := &fakeAccessibility{el: Element{Value: "before hello after"}}
	s := NewTypingStrategy(synth, ax, nil)

	require.NoError(t, s.Attempt(context.Background(), "hello"))
	assert.Equal(t, []string{"hello"}, synth.typed)
}

func TestTypingStrategyFailsWhenTextMissing(t *testing.T) {
	synth := &fakeSynthesizer{}
	ax := &fakeAccessibility{el: Element{Value: "something else"}}
	s := NewTypingStrategy(synth, ax, nil)

	err := s.Attempt(context.Background(), "hello")
	require.Error(t, err)
}

func TestTypingStrategyAssumesSuccessWithoutVerification(t *testing.T) {
	synth := &fakeSynthesizer{}
	s := NewTypingStrategy(synth, nil, nil)
	require.NoError(t, s.Attempt(context.Background(), "hello"))

	ax := &fakeAccessibility{focusErr: errors.New("no bridge")}
	s = NewTypingStrategy(synth, ax, nil)
	require.NoError(t, s.Attempt(context.Background(), "hello"))
}
