// Package session wires the hotkey state machine to the recorder,
// transcriber and delivery pipeline.
//
// The controller is the processor's single owner: tap events feed it on the
// tap-delivery path, it runs the state machine synchronously, and fans the
// resulting actions out. Escape cancellation completes inside the same
// callback invocation; everything slow (audio stop, transcription, text
// delivery) runs on a worker goroutine so the tap callback stays fast.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voxd/internal/delivery"
	"voxd/internal/eventtap"
	"voxd/internal/hotkey"
)

// EventKind classifies a session lifecycle event.
type EventKind int

const (
	// EventStarted fires when recording begins (press-and-hold or locked).
	EventStarted EventKind = iota
	// EventLocked fires when a press-and-hold session upgrades to a
	// double-tap lock.
	EventLocked
	// EventStopped fires when recording ends and the transcript is on its
	// way to delivery.
	EventStopped
	// EventDiscarded fires when a session ends below the minimum duration
	// and its audio is dropped.
	EventDiscarded
	// EventCancelled fires on Escape.
	EventCancelled
	// EventDelivered fires after successful text insertion.
	EventDelivered
	// EventDeliveryFailed fires when transcription or every delivery
	// strategy failed.
	EventDeliveryFailed
)

// String returns the event kind name used in IPC payloads and logs.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventLocked:
		return "locked"
	case EventStopped:
		return "stopped"
	case EventDiscarded:
		return "discarded"
	case EventCancelled:
		return "cancelled"
	case EventDelivered:
		return "delivered"
	case EventDeliveryFailed:
		return "delivery_failed"
	default:
		return "unknown"
	}
}

// Event is one session lifecycle notification.
type Event struct {
	Kind     EventKind     `json:"kind"`
	State    hotkey.State  `json:"-"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration,omitempty"`
	Strategy string        `json:"strategy,omitempty"`
	Chars    int           `json:"chars,omitempty"`
	Err      string        `json:"error,omitempty"`
}

// Deliverer is the slice of the delivery pipeline the controller needs.
type Deliverer interface {
	Deliver(ctx context.Context, text string, opts delivery.Options) (delivery.Outcome, error)
}

// RestoreCanceller cancels a pending clipboard restore. Satisfied by
// delivery.ClipboardStrategy; nil when no clipboard strategy is wired.
type RestoreCanceller interface {
	CancelPendingRestore()
}

// Transcript is a finished session handed to the historian.
type Transcript struct {
	Text      string
	Strategy  string
	StartedAt time.Time
	Duration  time.Duration
}

// Historian persists finished transcripts. Optional.
type Historian interface {
	SaveTranscript(ctx context.Context, t Transcript) error
}

// Config assembles a controller.
type Config struct {
	Hotkey           hotkey.Hotkey
	UseDoubleTapOnly bool
	MinimumKeyTime   time.Duration
	RetainClipboard  bool

	Recorder    Recorder
	Transcriber Transcriber
	Deliverer   Deliverer
	Restore     RestoreCanceller
	Historian   Historian
}

// Status is a point-in-time view for IPC status queries.
type Status struct {
	State     string    `json:"state"`
	Hotkey    string    `json:"hotkey"`
	Paused    bool      `json:"paused"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Controller owns the hotkey processor and drives sessions end to end.
type Controller struct {
	log *slog.Logger

	rec     Recorder
	tr      Transcriber
	pipe    Deliverer
	restore RestoreCanceller
	hist    Historian
	retain  bool

	mu           sync.Mutex
	proc         *hotkey.Processor
	heldKeys     []hotkey.Key
	paused       bool
	sessionStart time.Time
	listeners    []func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// NewController builds a controller. Recorder, Transcriber and Deliverer
// are required; Restore and Historian may be nil.
func NewController(cfg Config, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		log:     log.With("component", "session"),
		rec:     cfg.Recorder,
		tr:      cfg.Transcriber,
		pipe:    cfg.Deliverer,
		restore: cfg.Restore,
		hist:    cfg.Historian,
		retain:  cfg.RetainClipboard,
		proc:    hotkey.NewProcessor(cfg.Hotkey, cfg.UseDoubleTapOnly, cfg.MinimumKeyTime),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// OnEvent registers a lifecycle listener. Listeners run on the goroutine
// that produced the event and must not block.
func (c *Controller) OnEvent(fn func(Event)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Attach subscribes the controller to the tap monitor.
func (c *Controller) Attach(m *eventtap.Monitor) eventtap.Token {
	return m.Register(c.HandleTap)
}

// Close aborts any active session and waits for in-flight workers.
func (c *Controller) Close() {
	c.abortActive("shutdown")
	c.cancel()
	c.wg.Wait()
}

// Pause suspends hotkey detection; an active session is aborted. Idempotent.
func (c *Controller) Pause() {
	c.mu.Lock()
	already := c.paused
	c.paused = true
	c.mu.Unlock()
	if !already {
		c.abortActive("paused")
		c.log.Info("session detection paused")
	}
}

// Resume re-enables hotkey detection. Idempotent.
func (c *Controller) Resume() {
	c.mu.Lock()
	was := c.paused
	c.paused = false
	c.mu.Unlock()
	if was {
		c.log.Info("session detection resumed")
	}
}

// Status reports the current controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.proc.State().String(),
		Hotkey:    c.proc.Hotkey.String(),
		Paused:    c.paused,
		StartedAt: c.proc.StartedAt(),
	}
}

// Rearm swaps the trigger configuration. An active session is aborted
// first so the new processor starts from Idle. Used by config hot reload.
func (c *Controller) Rearm(hk hotkey.Hotkey, useDoubleTapOnly bool, minimumKeyTime time.Duration) {
	c.abortActive("config reload")
	c.mu.Lock()
	c.proc = hotkey.NewProcessor(hk, useDoubleTapOnly, minimumKeyTime)
	c.heldKeys = nil
	c.mu.Unlock()
	c.log.Info("hotkey rearmed", "hotkey", hk.String())
}

// HandleTap consumes one tap event. Runs on the tap-delivery context;
// registered with the event tap monitor via Attach.
func (c *Controller) HandleTap(ev eventtap.Event) bool {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return false
	}

	prevState := c.proc.State()
	var action hotkey.Action
	isKeyEvent := false
	switch ev.Kind {
	case eventtap.KindMouseDown:
		action = c.proc.ProcessClick()
	case eventtap.KindKeyDown, eventtap.KindKeyUp, eventtap.KindFlagsChanged:
		isKeyEvent = ev.Kind != eventtap.KindFlagsChanged
		chord := c.trackChordLocked(ev)
		action = c.proc.Process(chord)
	default:
		c.mu.Unlock()
		return false
	}

	state := c.proc.State()
	startedAt := c.proc.StartedAt()
	c.mu.Unlock()

	switch action {
	case hotkey.ActionStart:
		c.startSession(state, startedAt)
	case hotkey.ActionStop:
		c.stopSession(ev.When)
	case hotkey.ActionCancel:
		c.cancelSession()
	case hotkey.ActionDiscard:
		c.discardSession()
	case hotkey.ActionNone:
		// A release-press inside the double-tap window upgrades a running
		// press-and-hold session in place; surface the lock to listeners.
		if prevState == hotkey.StatePressAndHold && state == hotkey.StateDoubleTapLock {
			c.log.Info("session locked on")
			c.emit(Event{Kind: EventLocked, State: state, At: ev.When})
			return isKeyEvent
		}
		return false
	}

	// Swallow the triggering keystroke so the focused application never
	// sees it. Flags-changed events carry no keystroke to swallow.
	return isKeyEvent
}

// trackChordLocked folds a raw down/up event into the chord snapshot the
// processor expects: the most recent non-modifier key still held plus the
// full modifier state. Caller holds c.mu.
func (c *Controller) trackChordLocked(ev eventtap.Event) hotkey.KeyEvent {
	switch ev.Kind {
	case eventtap.KindKeyDown:
		found := false
		for _, k := range c.heldKeys {
			if k == ev.Key {
				found = true
				break
			}
		}
		if !found {
			c.heldKeys = append(c.heldKeys, ev.Key)
		}
	case eventtap.KindKeyUp:
		for i, k := range c.heldKeys {
			if k == ev.Key {
				c.heldKeys = append(c.heldKeys[:i], c.heldKeys[i+1:]...)
				break
			}
		}
	}

	key := hotkey.KeyNone
	if n := len(c.heldKeys); n > 0 {
		key = c.heldKeys[n-1]
	}
	return hotkey.KeyEvent{Key: key, Modifiers: ev.Modifiers, Time: ev.When}
}

func (c *Controller) startSession(state hotkey.State, startedAt time.Time) {
	c.mu.Lock()
	c.sessionStart = startedAt
	c.mu.Unlock()

	kind := EventStarted
	if state == hotkey.StateDoubleTapLock {
		kind = EventLocked
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.rec.Start(c.ctx); err != nil {
			c.log.Error("recorder start failed", "error", err)
		}
	}()
	c.log.Info("recording started", "state", state.String())
	c.emit(Event{Kind: kind, State: state, At: startedAt})
}

func (c *Controller) stopSession(when time.Time) {
	c.mu.Lock()
	start := c.sessionStart
	c.sessionStart = time.Time{}
	proc := c.proc
	c.mu.Unlock()

	if when.IsZero() {
		when = c.now()
	}
	decision := hotkey.Decide(hotkey.DecisionContext{
		Hotkey:         proc.Hotkey,
		MinimumKeyTime: proc.MinimumKeyTime,
		RecordingStart: start,
		Now:            when,
	})
	if decision == hotkey.DecisionDiscardShortRecording {
		c.discardSession()
		return
	}

	elapsed := when.Sub(start)
	c.log.Info("recording stopped", "duration", elapsed)
	c.emit(Event{Kind: EventStopped, At: when, Duration: elapsed})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.finishSession(start, elapsed)
	}()
}

// finishSession runs the slow half of a stop: audio stop, transcription,
// delivery, history. Any failure logs and returns to Idle.
func (c *Controller) finishSession(start time.Time, elapsed time.Duration) {
	audio, err := c.rec.Stop(c.ctx)
	if err != nil {
		// The session still ended; losing the audio is not fatal.
		c.log.Error("recorder stop failed", "error", err)
		c.emit(Event{Kind: EventDeliveryFailed, At: c.now(), Err: err.Error()})
		return
	}

	text, err := c.tr.Transcribe(c.ctx, audio)
	if err != nil {
		c.log.Error("transcription failed", "error", err)
		c.emit(Event{Kind: EventDeliveryFailed, At: c.now(), Err: err.Error()})
		return
	}
	if text == "" {
		c.log.Debug("empty transcript, nothing to deliver")
		return
	}

	outcome, err := c.pipe.Deliver(c.ctx, text, delivery.Options{RetainClipboard: c.retain})
	if err != nil {
		c.log.Error("delivery failed", "error", err, "attempts", len(outcome.Attempts))
		c.emit(Event{Kind: EventDeliveryFailed, At: c.now(), Chars: len(text), Err: err.Error()})
		return
	}
	c.emit(Event{
		Kind:     EventDelivered,
		At:       c.now(),
		Strategy: outcome.Strategy,
		Chars:    len(text),
		Duration: elapsed,
	})

	if c.hist != nil {
		t := Transcript{Text: text, Strategy: outcome.Strategy, StartedAt: start, Duration: elapsed}
		if err := c.hist.SaveTranscript(c.ctx, t); err != nil {
			c.log.Warn("history save failed", "error", err)
		}
	}
}

func (c *Controller) cancelSession() {
	if c.restore != nil {
		c.restore.CancelPendingRestore()
	}
	if err := c.rec.Abort(); err != nil {
		c.log.Warn("recorder abort failed", "error", err)
	}
	c.mu.Lock()
	c.sessionStart = time.Time{}
	c.mu.Unlock()
	c.log.Info("recording cancelled")
	c.emit(Event{Kind: EventCancelled, At: c.now()})
}

func (c *Controller) discardSession() {
	if err := c.rec.Abort(); err != nil {
		c.log.Warn("recorder abort failed", "error", err)
	}
	c.mu.Lock()
	c.sessionStart = time.Time{}
	c.mu.Unlock()
	c.log.Debug("recording discarded as accidental")
	c.emit(Event{Kind: EventDiscarded, At: c.now()})
}

// abortActive discards a running session outside the tap path (pause,
// reload, shutdown).
func (c *Controller) abortActive(reason string) {
	c.mu.Lock()
	active := c.proc.Active()
	if active {
		c.proc = hotkey.NewProcessor(c.proc.Hotkey, c.proc.UseDoubleTapOnly, c.proc.MinimumKeyTime)
		c.heldKeys = nil
		c.sessionStart = time.Time{}
	}
	c.mu.Unlock()
	if active {
		if err := c.rec.Abort(); err != nil {
			c.log.Warn("recorder abort failed", "error", err)
		}
		c.log.Info("active session aborted", "reason", reason)
		c.emit(Event{Kind: EventCancelled, At: c.now()})
	}
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	listeners := make([]func(Event), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
