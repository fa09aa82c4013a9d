package ui

import (
	"encoding/json"
	"fmt"
	"image"
	"sync"

	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"voxd/cmd/voxd-indicator/internal/theme"
	"voxd/internal/ipc"
)

// Mode is the indicator's top-level state.
type Mode int

const (
	ModeDisconnected Mode = iota
	ModeIdle
	ModeRecording
	ModeLocked
	ModePaused
)

// Indicator renders the dictation state. Apply and Layout run on
// different goroutines; state access is locked.
type Indicator struct {
	theme *theme.Theme

	mu     sync.Mutex
	mode   Mode
	detail string
}

// NewIndicator creates an indicator in the disconnected state.
func NewIndicator(t *theme.Theme) *Indicator {
	return &Indicator{
		theme:  t,
		mode:   ModeDisconnected,
		detail: "connecting",
	}
}

// SetDisconnected marks the daemon as unreachable.
func (in *Indicator) SetDisconnected(reason string) {
	in.mu.Lock()
	in.mode = ModeDisconnected
	in.detail = reason
	in.mu.Unlock()
}

// SetStatus seeds the indicator from a status snapshot on connect.
func (in *Indicator) SetStatus(status *ipc.StatusResponse) {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch {
	case status.Paused:
		in.mode = ModePaused
		in.detail = "hotkey " + status.Hotkey
	case status.SessionState == "press_and_hold":
		in.mode = ModeRecording
		in.detail = "release to insert"
	case status.SessionState == "double_tap_lock":
		in.mode = ModeLocked
		in.detail = "tap again to stop"
	default:
		in.mode = ModeIdle
		in.detail = "hold " + status.Hotkey + " to dictate"
	}
}

// Apply folds one daemon event into the indicator state.
func (in *Indicator) Apply(event *ipc.Event) {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch event.Type {
	case ipc.EventSessionStarted:
		in.mode = ModeRecording
		in.detail = "release to insert"
	case ipc.EventSessionLocked:
		in.mode = ModeLocked
		in.detail = "tap again to stop"
	case ipc.EventSessionStopped:
		in.mode = ModeIdle
		in.detail = "transcribing"
	case ipc.EventSessionDiscarded:
		in.mode = ModeIdle
		in.detail = "too short, discarded"
	case ipc.EventSessionCancelled:
		in.mode = ModeIdle
		in.detail = "cancelled"
	case ipc.EventDelivered:
		se := sessionEvent(event)
		in.mode = ModeIdle
		in.detail = fmt.Sprintf("inserted %d chars via %s", se.Chars, se.Strategy)
	case ipc.EventDeliveryFailed:
		se := sessionEvent(event)
		in.mode = ModeIdle
		in.detail = "failed: " + se.Error
	case ipc.EventPermissionChange:
		var pe ipc.PermissionEvent
		decodeData(event, &pe)
		if pe.Granted {
			in.mode = ModeIdle
			in.detail = "permission granted"
		} else {
			in.mode = ModeDisconnected
			in.detail = "permission revoked"
		}
	case ipc.EventDaemonShutdown:
		in.mode = ModeDisconnected
		in.detail = "daemon stopped"
	}
}

func sessionEvent(event *ipc.Event) ipc.SessionEvent {
	var se ipc.SessionEvent
	decodeData(event, &se)
	return se
}

func decodeData(event *ipc.Event, v any) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	json.Unmarshal(raw, v)
}

func (in *Indicator) snapshot() (Mode, string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mode, in.detail
}

func (in *Indicator) stateLabel(mode Mode) string {
	switch mode {
	case ModeRecording:
		return "Recording"
	case ModeLocked:
		return "Recording (locked)"
	case ModePaused:
		return "Paused"
	case ModeIdle:
		return "Ready"
	default:
		return "Offline"
	}
}

// Layout renders the indicator.
func (in *Indicator) Layout(gtx layout.Context) layout.Dimensions {
	mode, detail := in.snapshot()

	paint.Fill(gtx.Ops, in.theme.Palette.Background)

	return layout.UniformInset(in.theme.Config.Padding).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return in.layoutDot(gtx, mode)
			}),
			layout.Rigid(layout.Spacer{Width: unit.Dp(12)}.Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				return in.layoutLabels(gtx, mode, detail)
			}),
		)
	})
}

func (in *Indicator) layoutDot(gtx layout.Context, mode Mode) layout.Dimensions {
	size := gtx.Dp(in.theme.Config.DotSize)

	c := in.theme.Palette.Idle
	switch mode {
	case ModeRecording:
		c = in.theme.Palette.Recording
	case ModeLocked:
		c = in.theme.Palette.Locked
	case ModeIdle:
		c = in.theme.Palette.Success
	case ModePaused, ModeDisconnected:
		c = in.theme.Palette.Idle
	}

	rect := clip.Ellipse{Max: image.Pt(size, size)}.Op(gtx.Ops)
	paint.FillShape(gtx.Ops, c, rect)
	return layout.Dimensions{Size: image.Pt(size, size)}
}

func (in *Indicator) layoutLabels(gtx layout.Context, mode Mode, detail string) layout.Dimensions {
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			state := material.Body1(in.theme.Theme, in.stateLabel(mode))
			state.Color = in.theme.Palette.Text
			state.TextSize = in.theme.Config.FontState
			return state.Layout(gtx)
		}),
		layout.Rigid(layout.Spacer{Height: unit.Dp(2)}.Layout),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			d := material.Body2(in.theme.Theme, detail)
			d.Color = in.theme.Palette.TextMuted
			d.TextSize = in.theme.Config.FontDetail
			return d.Layout(gtx)
		}),
	)
}
