// Package ipc provides the daemon handler implementation.
//
// The handler processes IPC messages and integrates with the voxd
// daemon's session controller, delivery pipeline, and transcript history.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"voxd/internal/config"
	"voxd/internal/delivery"
	"voxd/internal/history"
	"voxd/internal/permission"
	"voxd/internal/session"
)

// DaemonHandler implements the Handler interface for the voxd daemon
type DaemonHandler struct {
	mu        sync.RWMutex
	version   string
	startedAt time.Time

	controller *session.Controller
	pipeline   *delivery.Pipeline
	hist       *history.Store
	loader     *config.Loader
	watchdog   *permission.Watchdog

	// Called when a client requests daemon shutdown
	onShutdown func()

	// Event broadcaster (for sending events to clients)
	broadcaster func(*Event)
}

// DaemonHandlerConfig configures the daemon handler. History, Loader and
// Watchdog may be nil; the matching requests then return ErrUnavailable.
type DaemonHandlerConfig struct {
	Version    string
	Controller *session.Controller
	Pipeline   *delivery.Pipeline
	History    *history.Store
	Loader     *config.Loader
	Watchdog   *permission.Watchdog
	OnShutdown func()
}

// NewDaemonHandler creates a new daemon handler
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	return &DaemonHandler{
		version:    cfg.Version,
		startedAt:  time.Now(),
		controller: cfg.Controller,
		pipeline:   cfg.Pipeline,
		hist:       cfg.History,
		loader:     cfg.Loader,
		watchdog:   cfg.Watchdog,
		onShutdown: cfg.OnShutdown,
	}
}

// SetBroadcaster sets the function used to broadcast events
func (h *DaemonHandler) SetBroadcaster(broadcaster func(*Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcaster = broadcaster
}

// HandleMessage processes an IPC message
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *ClientConn, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(ctx, msg)

	case MsgHealthCheck:
		return h.handleHealthCheck(ctx, msg)

	case MsgPause:
		return h.handlePause(ctx, msg)

	case MsgResume:
		return h.handleResume(ctx, msg)

	case MsgDeliver:
		return h.handleDeliver(ctx, msg)

	case MsgHistoryList:
		return h.handleHistoryList(ctx, msg)

	case MsgHistorySearch:
		return h.handleHistorySearch(ctx, msg)

	case MsgHistoryStats:
		return h.handleHistoryStats(ctx, msg)

	case MsgHistoryPrune:
		return h.handleHistoryPrune(ctx, msg)

	case MsgGetConfig:
		return h.handleGetConfig(ctx, msg)

	case MsgReloadConfig:
		return h.handleReloadConfig(ctx, msg)

	case MsgShutdown:
		return h.handleShutdown(ctx, msg)

	default:
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			fmt.Sprintf("unknown message type: %d", msg.Header.Type)), nil
	}
}

// handleStatus handles status requests
func (h *DaemonHandler) handleStatus(ctx context.Context, msg *Message) (*Message, error) {
	var req StatusRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	resp := &StatusResponse{
		Version:   h.version,
		Uptime:    time.Since(h.startedAt),
		StartedAt: h.startedAt,
	}

	if h.controller != nil {
		st := h.controller.Status()
		resp.SessionState = st.State
		resp.Hotkey = st.Hotkey
		resp.Paused = st.Paused
	}

	if h.watchdog != nil {
		resp.Permission = h.watchdog.Status().String()
	}

	if h.hist != nil {
		resp.HistoryStatus.Enabled = true
		if stats, err := h.hist.Stats(ctx); err == nil {
			resp.HistoryStatus.Transcripts = stats.Count
			resp.HistoryStatus.TotalChars = stats.TotalChars
			resp.HistoryStatus.Newest = stats.Newest
		}
	}

	if req.IncludeConfig && h.loader != nil {
		if m, err := configMap(h.loader.Config(), nil); err == nil {
			resp.Config = m
		}
	}

	return NewResponse(MsgStatusResponse, msg.Header.RequestID, resp)
}

// handleHealthCheck handles health check requests
func (h *DaemonHandler) handleHealthCheck(ctx context.Context, msg *Message) (*Message, error) {
	resp := map[string]any{
		"healthy": true,
		"uptime":  time.Since(h.startedAt).String(),
	}
	return NewResponse(MsgHealthResponse, msg.Header.RequestID, resp)
}

// handlePause suspends hotkey detection
func (h *DaemonHandler) handlePause(ctx context.Context, msg *Message) (*Message, error) {
	if h.controller == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "no session controller"), nil
	}

	h.controller.Pause()

	resp := &PauseResponse{Success: true, Paused: true}
	return NewResponse(MsgPauseResp, msg.Header.RequestID, resp)
}

// handleResume resumes hotkey detection
func (h *DaemonHandler) handleResume(ctx context.Context, msg *Message) (*Message, error) {
	if h.controller == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "no session controller"), nil
	}

	h.controller.Resume()

	resp := &ResumeResponse{Success: true, Paused: false}
	return NewResponse(MsgResumeResp, msg.Header.RequestID, resp)
}

// handleDeliver inserts text into the focused element on behalf of a
// client, using the same strategy chain as a dictation session.
func (h *DaemonHandler) handleDeliver(ctx context.Context, msg *Message) (*Message, error) {
	var req DeliverRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
	}

	if h.pipeline == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "no delivery pipeline"), nil
	}

	if strings.TrimSpace(req.Text) == "" {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "empty text"), nil
	}

	outcome, err := h.pipeline.Deliver(ctx, req.Text, delivery.Options{
		RetainClipboard: req.RetainClipboard,
	})

	resp := &DeliverResponse{
		Success:  outcome.Delivered,
		Strategy: outcome.Strategy,
		Chars:    len([]rune(req.Text)),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	h.broadcast(deliveryEvent(outcome, resp.Chars, err))

	return NewResponse(MsgDeliverResp, msg.Header.RequestID, resp)
}

// handleHistoryList handles history list requests
func (h *DaemonHandler) handleHistoryList(ctx context.Context, msg *Message) (*Message, error) {
	var req HistoryListRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	if h.hist == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "history disabled"), nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	entries, err := h.hist.List(ctx, limit, req.Offset)
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	resp := &HistoryListResponse{
		Total:   len(entries),
		Entries: transcriptInfos(entries),
	}
	return NewResponse(MsgHistoryListResp, msg.Header.RequestID, resp)
}

// handleHistorySearch handles history search requests
func (h *DaemonHandler) handleHistorySearch(ctx context.Context, msg *Message) (*Message, error) {
	var req HistorySearchRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
	}

	if h.hist == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "history disabled"), nil
	}

	if strings.TrimSpace(req.Query) == "" {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "empty query"), nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	entries, err := h.hist.Search(ctx, req.Query, limit)
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	resp := &HistorySearchResponse{
		Entries: transcriptInfos(entries),
	}
	return NewResponse(MsgHistorySearchResp, msg.Header.RequestID, resp)
}

// handleHistoryStats handles history stats requests
func (h *DaemonHandler) handleHistoryStats(ctx context.Context, msg *Message) (*Message, error) {
	if h.hist == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "history disabled"), nil
	}

	stats, err := h.hist.Stats(ctx)
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	resp := &HistoryStatsResponse{
		Transcripts: stats.Count,
		TotalChars:  stats.TotalChars,
		Oldest:      stats.Oldest,
		Newest:      stats.Newest,
	}
	return NewResponse(MsgHistoryStatsResp, msg.Header.RequestID, resp)
}

// handleHistoryPrune handles history prune requests
func (h *DaemonHandler) handleHistoryPrune(ctx context.Context, msg *Message) (*Message, error) {
	var req HistoryPruneRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
	}

	if h.hist == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "history disabled"), nil
	}

	if req.MaxAge <= 0 && req.MaxKeep <= 0 {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "max_age or max_keep required"), nil
	}

	var removed int64
	if req.MaxAge > 0 {
		n, err := h.hist.PruneOlderThan(ctx, req.MaxAge)
		if err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
		}
		removed += n
	}
	if req.MaxKeep > 0 {
		n, err := h.hist.PruneToCount(ctx, req.MaxKeep)
		if err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
		}
		removed += n
	}

	resp := &HistoryPruneResponse{Success: true, Removed: removed}
	return NewResponse(MsgHistoryPruneResp, msg.Header.RequestID, resp)
}

// handleGetConfig handles config requests
func (h *DaemonHandler) handleGetConfig(ctx context.Context, msg *Message) (*Message, error) {
	var req ConfigRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	if h.loader == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "config loader unavailable"), nil
	}

	m, err := configMap(h.loader.Config(), req.Keys)
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error()), nil
	}

	resp := &ConfigResponse{Config: m}
	return NewResponse(MsgGetConfigResp, msg.Header.RequestID, resp)
}

// handleReloadConfig handles config reload requests
func (h *DaemonHandler) handleReloadConfig(ctx context.Context, msg *Message) (*Message, error) {
	if h.loader == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "config loader unavailable"), nil
	}

	h.loader.Reload()

	resp := &ReloadConfigResponse{Success: true}
	return NewResponse(MsgReloadResp, msg.Header.RequestID, resp)
}

// handleShutdown handles daemon shutdown requests. The ack goes out
// before the shutdown callback runs so the client sees a response.
func (h *DaemonHandler) handleShutdown(ctx context.Context, msg *Message) (*Message, error) {
	h.mu.RLock()
	onShutdown := h.onShutdown
	h.mu.RUnlock()

	if onShutdown == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "shutdown not supported"), nil
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		onShutdown()
	}()

	return NewResponse(MsgShutdown, msg.Header.RequestID, map[string]any{"success": true})
}

// BroadcastSessionEvent translates a session controller event onto the
// IPC event stream.
func (h *DaemonHandler) BroadcastSessionEvent(ev session.Event) {
	var t EventType
	switch ev.Kind {
	case session.EventStarted:
		t = EventSessionStarted
	case session.EventLocked:
		t = EventSessionLocked
	case session.EventStopped:
		t = EventSessionStopped
	case session.EventDiscarded:
		t = EventSessionDiscarded
	case session.EventCancelled:
		t = EventSessionCancelled
	case session.EventDelivered:
		t = EventDelivered
	case session.EventDeliveryFailed:
		t = EventDeliveryFailed
	default:
		return
	}

	data := SessionEvent{
		State:    ev.State.String(),
		Duration: ev.Duration,
		Strategy: ev.Strategy,
		Chars:    ev.Chars,
	}
	if ev.Err != "" {
		data.Error = ev.Err
	}

	h.broadcast(&Event{
		Type:      t,
		Timestamp: ev.At,
		Data:      data,
	})
}

// BroadcastPermissionChange translates a watchdog change onto the IPC
// event stream.
func (h *DaemonHandler) BroadcastPermissionChange(ch permission.Change) {
	h.broadcast(&Event{
		Type:      EventPermissionChange,
		Timestamp: time.Now(),
		Data: PermissionEvent{
			Granted: ch.Status == permission.StatusGranted,
			Reason:  string(ch.Reason),
		},
	})
}

// BroadcastConfigChanged announces a configuration reload to clients.
func (h *DaemonHandler) BroadcastConfigChanged() {
	h.broadcast(&Event{
		Type:      EventConfigChanged,
		Timestamp: time.Now(),
	})
}

// broadcast sends an event to all subscribers
func (h *DaemonHandler) broadcast(event *Event) {
	if event == nil {
		return
	}

	h.mu.RLock()
	broadcaster := h.broadcaster
	h.mu.RUnlock()

	if broadcaster != nil {
		broadcaster(event)
	}
}

func deliveryEvent(outcome delivery.Outcome, chars int, err error) *Event {
	ev := &Event{
		Timestamp: time.Now(),
	}
	data := SessionEvent{
		Strategy: outcome.Strategy,
		Chars:    chars,
	}
	if outcome.Delivered {
		ev.Type = EventDelivered
	} else {
		ev.Type = EventDeliveryFailed
		if err != nil {
			data.Error = err.Error()
		}
	}
	ev.Data = data
	return ev
}

func transcriptInfos(entries []history.Entry) []TranscriptInfo {
	infos := make([]TranscriptInfo, len(entries))
	for i, e := range entries {
		infos[i] = TranscriptInfo{
			ID:        e.ID,
			CreatedAt: e.CreatedAt,
			Duration:  e.Duration,
			Chars:     e.Chars,
			Strategy:  e.Strategy,
			Text:      e.Text,
		}
	}
	return infos
}

// configMap flattens a config into a JSON-shaped map, optionally
// filtered to the requested top-level keys.
func configMap(cfg *config.Config, keys []string) (map[string]any, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no configuration loaded")
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return m, nil
	}

	filtered := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			filtered[k] = v
		}
	}
	return filtered, nil
}
