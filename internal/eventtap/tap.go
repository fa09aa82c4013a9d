// Package eventtap installs a system-wide input hook and fans events out to
// subscribers.
//
// One OS-level hook is installed per process. Subscribers register handlers
// and receive events in registration order; a handler returning true consumes
// the event, which swallows it before the focused application sees it. The
// hook itself only runs while at least one subscriber is registered AND the
// permission watchdog has activated the tap, so an idle process leaves no
// hook installed.
//
// Platform support:
//   - macOS: CGEventTap (requires Input Monitoring permission)
//   - Linux: /dev/input/event* (requires 'input' group or root; listen-only)
//   - Windows: WH_KEYBOARD_LL / WH_MOUSE_LL low-level hooks
package eventtap

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"voxd/internal/hotkey"
)

// Kind classifies a tap event.
type Kind int

const (
	KindKeyDown Kind = iota
	KindKeyUp
	KindFlagsChanged
	KindMouseDown
	// KindTapDisabled is synthesized when the OS silently disables the
	// hook (flood protection or a callback timeout). The monitor reacts
	// by requesting a restart rather than going deaf.
	KindTapDisabled
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindKeyDown:
		return "key_down"
	case KindKeyUp:
		return "key_up"
	case KindFlagsChanged:
		return "flags_changed"
	case KindMouseDown:
		return "mouse_down"
	case KindTapDisabled:
		return "tap_disabled"
	default:
		return "unknown"
	}
}

// Event is a normalized input event. Key is the symbolic key involved in a
// key-down/key-up (KeyNone for flags-changed and mouse events); Modifiers is
// the full modifier state at delivery time, with sides where the platform
// reports them.
type Event struct {
	Kind      Kind
	Key       hotkey.Key
	Modifiers hotkey.Modifiers
	When      time.Time
}

// Handler receives events on the tap-delivery context. Returning true
// consumes the event. Handlers must be fast; a slow handler can cause the
// OS to disable the tap.
type Handler func(Event) bool

// Token cancels a registration.
type Token struct {
	cancel func()
}

// Cancel unregisters the handler. Safe to call more than once.
func (t Token) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Source is the platform-specific hook. Start installs the hook and delivers
// events through emit until Stop; emit's return value is the consumed flag.
// Implementations serialize their own callbacks (the OS already does for
// every supported platform).
type Source interface {
	Start(emit func(Event) bool) error
	Stop() error
	Alive() bool
}

// ErrTapCreateFailed is returned when the OS refuses to install the hook,
// typically because the required permission is missing.
var ErrTapCreateFailed = errors.New("eventtap: hook creation failed")

// Monitor owns the hook lifecycle and the subscriber registry.
//
// The registry is the only structure mutated from arbitrary goroutines while
// read from the tap callback; dispatch iterates a copied snapshot under a
// read lock so Register/Cancel during dispatch are safe.
type Monitor struct {
	mu       sync.RWMutex
	handlers []registration
	nextID   uint64

	src       Source
	activated bool // permission side wants the hook up
	running   bool // hook actually installed

	restartCh chan struct{}
	log       *slog.Logger
}

type registration struct {
	id      uint64
	handler Handler
}

// NewMonitor wraps a source. Pass NewPlatformSource() for the real hook.
func NewMonitor(src Source, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		src:       src,
		restartCh: make(chan struct{}, 1),
		log:       log.With("component", "eventtap"),
	}
}

// Register adds a handler and returns its cancellation token. The hook is
// installed when the first handler registers (if the tap is activated).
func (m *Monitor) Register(h Handler) Token {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.handlers = append(m.handlers, registration{id: id, handler: h})
	m.mu.Unlock()

	if err := m.reconcile(); err != nil {
		m.log.Warn("hook start deferred", "error", err)
	}

	var once sync.Once
	return Token{cancel: func() {
		once.Do(func() { m.unregister(id) })
	}}
}

func (m *Monitor) unregister(id uint64) {
	m.mu.Lock()
	for i, reg := range m.handlers {
		if reg.id == id {
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if err := m.reconcile(); err != nil {
		m.log.Warn("hook stop failed", "error", err)
	}
}

// Activate marks the tap as permitted and installs the hook if anyone is
// subscribed. Idempotent.
func (m *Monitor) Activate() error {
	m.mu.Lock()
	m.activated = true
	m.mu.Unlock()
	return m.reconcile()
}

// Deactivate tears the hook down regardless of subscribers. Idempotent.
func (m *Monitor) Deactivate() error {
	m.mu.Lock()
	m.activated = false
	m.mu.Unlock()
	return m.reconcile()
}

// Alive reports whether the hook is installed and the OS still considers it
// enabled.
func (m *Monitor) Alive() bool {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	return running && m.src.Alive()
}

// Restart tears the hook down and brings it back up. Used by the watchdog
// keepalive when the OS disabled the tap out from under us.
func (m *Monitor) Restart() error {
	m.mu.Lock()
	if m.running {
		if err := m.src.Stop(); err != nil {
			m.log.Warn("hook stop during restart failed", "error", err)
		}
		m.running = false
	}
	m.mu.Unlock()
	return m.reconcile()
}

// RestartRequests delivers a signal whenever the source reports the OS
// disabled the tap. At most one request is pending at a time.
func (m *Monitor) RestartRequests() <-chan struct{} {
	return m.restartCh
}

// reconcile brings the hook state in line with (activated && subscribers>0).
func (m *Monitor) reconcile() error {
	m.mu.Lock()
	want := m.activated && len(m.handlers) > 0
	have := m.running
	if want == have {
		m.mu.Unlock()
		return nil
	}
	if !want {
		m.running = false
		m.mu.Unlock()
		if err := m.src.Stop(); err != nil {
			return err
		}
		m.log.Debug("hook removed")
		return nil
	}
	m.running = true
	m.mu.Unlock()

	if err := m.src.Start(m.dispatch); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return errors.Join(ErrTapCreateFailed, err)
	}
	m.log.Debug("hook installed")
	return nil
}

// dispatch fans one event out to subscribers in registration order and
// reports whether any of them consumed it.
func (m *Monitor) dispatch(ev Event) bool {
	if ev.Kind == KindTapDisabled {
		m.log.Warn("tap disabled by OS, requesting restart")
		select {
		case m.restartCh <- struct{}{}:
		default:
		}
		return false
	}

	m.mu.RLock()
	snapshot := make([]registration, len(m.handlers))
	copy(snapshot, m.handlers)
	m.mu.RUnlock()

	for _, reg := range snapshot {
		if reg.handler(ev) {
			return true
		}
	}
	return false
}
