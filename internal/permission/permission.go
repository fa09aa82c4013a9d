// Package permission tracks the OS permission required for the event tap
// to receive input, and keeps the tap alive.
//
// No OS offers a push notification for permission changes, so a watchdog
// polls at a fixed interval. Beyond reacting to grants and revocations, the
// watchdog doubles as a keepalive: macOS can silently disable an event tap,
// and the only reliable recovery is noticing and reinstalling it.
package permission

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Status is the current authorization state.
type Status int

const (
	// StatusUnknown means the permission has not been evaluated yet.
	StatusUnknown Status = iota
	// StatusGranted means input monitoring is allowed.
	StatusGranted
	// StatusDenied means input monitoring is denied or restricted.
	StatusDenied
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusGranted:
		return "granted"
	case StatusDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Reason explains why a change notification fired.
type Reason string

const (
	// ReasonInitial is the first evaluation after the watchdog starts.
	ReasonInitial Reason = "initial"
	// ReasonGranted means the user granted the permission.
	ReasonGranted Reason = "granted"
	// ReasonRevoked means the user revoked the permission.
	ReasonRevoked Reason = "revoked"
	// ReasonUpdated covers any other transition (e.g. unknown to denied).
	ReasonUpdated Reason = "updated"
)

// Change is one permission transition.
type Change struct {
	Status   Status
	Previous Status
	Reason   Reason
	At       time.Time
}

// Checker evaluates and requests the input-monitoring permission.
// Implementations are per-platform.
type Checker interface {
	// Check returns the current status without prompting the user.
	Check() Status
	// Prompt asks the OS to show its permission dialog. Best effort; some
	// platforms have nothing to show.
	Prompt()
}

// Tap is the subset of the event tap monitor the watchdog drives.
type Tap interface {
	Activate() error
	Deactivate() error
	Alive() bool
	Restart() error
}

// ErrPermissionDenied indicates input monitoring is not currently granted.
// The watchdog keeps polling; the condition is recoverable.
var ErrPermissionDenied = errors.New("permission: input monitoring denied")

// DefaultPollInterval is how often the watchdog re-checks. 100ms keeps the
// grant-to-active latency imperceptible without measurable load.
const DefaultPollInterval = 100 * time.Millisecond

// Watchdog polls a Checker and drives a Tap.
type Watchdog struct {
	checker  Checker
	tap      Tap
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	status   Status
	prompted bool
	onChange []func(Change)
}

// NewWatchdog creates a watchdog. A zero interval uses DefaultPollInterval.
func NewWatchdog(checker Checker, tap Tap, interval time.Duration, log *slog.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watchdog{
		checker:  checker,
		tap:      tap,
		interval: interval,
		log:      log.With("component", "permission"),
	}
}

// OnChange registers a callback invoked for every actual permission flip
// (exactly once per flip, never for an unchanged poll). Must be called
// before Run.
func (w *Watchdog) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Status returns the last observed status.
func (w *Watchdog) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run evaluates immediately, prompting once if denied, then polls until the
// context is cancelled. Blocks; run it on its own goroutine.
func (w *Watchdog) Run(ctx context.Context) error {
	w.evaluate(true)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.evaluate(false)
		}
	}
}

// Poll performs a single evaluation. Exposed for tests and for the
// restart-request path in the daemon loop.
func (w *Watchdog) Poll() {
	w.evaluate(false)
}

func (w *Watchdog) evaluate(initial bool) {
	current := w.checker.Check()

	w.mu.Lock()
	previous := w.status
	w.status = current
	shouldPrompt := initial && current == StatusDenied && !w.prompted
	if shouldPrompt {
		w.prompted = true
	}
	callbacks := make([]func(Change), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	if shouldPrompt {
		w.log.Info("input monitoring denied, prompting user once")
		w.checker.Prompt()
	}

	if current == previous && !initial {
		// No transition. If still granted, verify the tap is actually
		// receiving events; the OS can disable it without telling us.
		if current == StatusGranted && !w.tap.Alive() {
			w.log.Warn("tap dead while permission granted, restarting")
			if err := w.tap.Restart(); err != nil {
				w.log.Error("tap restart failed", "error", err)
			}
		}
		return
	}

	reason := transitionReason(previous, current, initial)
	w.log.Info("input monitoring permission changed",
		"from", previous.String(), "to", current.String(), "reason", string(reason))

	switch current {
	case StatusGranted:
		if err := w.tap.Activate(); err != nil {
			w.log.Error("tap activation failed", "error", err)
		}
	default:
		if err := w.tap.Deactivate(); err != nil {
			w.log.Error("tap deactivation failed", "error", err)
		}
	}

	change := Change{Status: current, Previous: previous, Reason: reason, At: time.Now()}
	for _, fn := range callbacks {
		fn(change)
	}
}

func transitionReason(previous, current Status, initial bool) Reason {
	switch {
	case initial:
		return ReasonInitial
	case current == StatusGranted:
		return ReasonGranted
	case previous == StatusGranted:
		return ReasonRevoked
	default:
		return ReasonUpdated
	}
}
