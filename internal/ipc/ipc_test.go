package ipc

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/history"
	"voxd/internal/session"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:     ProtocolMagic,
		Version:   ProtocolVersion,
		Flags:     FlagJSON,
		Type:      MsgStatusRequest,
		RequestID: 42,
		Length:    17,
	}

	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))
	assert.Equal(t, HeaderSize, buf.Len())

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, *got)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	h := Header{
		Magic:   0xDEADBEEF,
		Version: ProtocolVersion,
	}

	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))

	_, err := ReadHeader(&buf)
	assert.ErrorContains(t, err, "invalid magic")
}

func TestReadHeaderRejectsNewerVersion(t *testing.T) {
	h := Header{
		Magic:   ProtocolMagic,
		Version: ProtocolVersion + 1,
	}

	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))

	_, err := ReadHeader(&buf)
	assert.ErrorContains(t, err, "unsupported protocol version")
}

func TestMessageRoundTrip(t *testing.T) {
	payload, err := Encode(&StatusRequest{IncludeConfig: true})
	require.NoError(t, err)

	msg := NewMessage(MsgStatusRequest, 7, payload)

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgStatusRequest, got.Header.Type)
	assert.Equal(t, uint32(7), got.Header.RequestID)

	var req StatusRequest
	require.NoError(t, Decode(got.Payload, &req))
	assert.True(t, req.IncludeConfig)
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	h := Header{
		Magic:   ProtocolMagic,
		Version: ProtocolVersion,
		Length:  MaxPayloadSize + 1,
	}

	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))

	_, err := ReadMessage(&buf)
	assert.ErrorContains(t, err, "payload too large")
}

func startTestServer(t *testing.T, handler Handler) (*Server, string) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "voxd.sock")
	srv, err := NewServer(ServerConfig{
		SocketPath: socketPath,
		Version:    "test",
	}, handler)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	return srv, socketPath
}

func connectTestClient(t *testing.T, socketPath string) *IPCClient {
	t.Helper()

	cfg := DefaultClientConfig(socketPath)
	cfg.AutoReconnect = false
	cfg.RequestTimeout = 5 * time.Second
	client := NewClient(cfg)
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Close() })

	return client
}

func TestServerClientPing(t *testing.T) {
	_, socketPath := startTestServer(t, nil)
	client := connectTestClient(t, socketPath)

	require.NoError(t, client.Ping())
	assert.True(t, client.IsConnected())
	assert.NotEmpty(t, client.ConnectionID())
}

func TestServerClientStatusRequest(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, client *ClientConn, msg *Message) (*Message, error) {
		require.Equal(t, MsgStatusRequest, msg.Header.Type)
		return NewResponse(MsgStatusResponse, msg.Header.RequestID, &StatusResponse{
			Version:      "1.2.3",
			SessionState: "idle",
			Hotkey:       "⌥",
		})
	})

	_, socketPath := startTestServer(t, handler)
	client := connectTestClient(t, socketPath)

	status, err := client.Status(false)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "idle", status.SessionState)
	assert.Equal(t, "⌥", status.Hotkey)
}

func TestServerClientErrorResponse(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, client *ClientConn, msg *Message) (*Message, error) {
		return NewErrorMessage(msg.Header.RequestID, ErrUnavailable, "history disabled"), nil
	})

	_, socketPath := startTestServer(t, handler)
	client := connectTestClient(t, socketPath)

	_, err := client.HistoryList(10, 0)
	assert.ErrorContains(t, err, "history disabled")
}

func TestServerBroadcastReachesSubscriber(t *testing.T) {
	srv, socketPath := startTestServer(t, nil)
	client := connectTestClient(t, socketPath)

	require.NoError(t, client.Subscribe(nil))

	srv.Broadcast(&Event{
		Type:      EventSessionStarted,
		Timestamp: time.Now(),
		Data:      SessionEvent{State: "press_and_hold"},
	})

	select {
	case ev := <-client.Events():
		assert.Equal(t, EventSessionStarted, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestServerBroadcastFiltersEventTypes(t *testing.T) {
	srv, socketPath := startTestServer(t, nil)
	client := connectTestClient(t, socketPath)

	require.NoError(t, client.Subscribe([]EventType{EventDelivered}))

	srv.Broadcast(&Event{Type: EventSessionStarted, Timestamp: time.Now()})
	srv.Broadcast(&Event{Type: EventDelivered, Timestamp: time.Now()})

	select {
	case ev := <-client.Events():
		assert.Equal(t, EventDelivered, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for filtered event")
	}
}

func newTestHistory(t *testing.T) *history.Store {
	t.Helper()

	dir := t.TempDir()
	store, err := history.Open(filepath.Join(dir, "history.db"), filepath.Join(dir, "history.secret"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestDaemonHandlerHistoryList(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	_, err := store.Save(ctx, history.Entry{
		CreatedAt: time.Now(),
		Duration:  2 * time.Second,
		Chars:     11,
		Strategy:  "clipboard",
		Text:      "hello world",
	})
	require.NoError(t, err)

	h := NewDaemonHandler(DaemonHandlerConfig{Version: "test", History: store})

	payload, _ := Encode(&HistoryListRequest{Limit: 10})
	resp, err := h.HandleMessage(ctx, nil, NewMessage(MsgHistoryList, 1, payload))
	require.NoError(t, err)
	require.Equal(t, MsgHistoryListResp, resp.Header.Type)

	var list HistoryListResponse
	require.NoError(t, Decode(resp.Payload, &list))
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "hello world", list.Entries[0].Text)
	assert.Equal(t, "clipboard", list.Entries[0].Strategy)
}

func TestDaemonHandlerHistoryDisabled(t *testing.T) {
	h := NewDaemonHandler(DaemonHandlerConfig{Version: "test"})

	payload, _ := Encode(&HistoryListRequest{})
	resp, err := h.HandleMessage(context.Background(), nil, NewMessage(MsgHistoryList, 1, payload))
	require.NoError(t, err)
	require.Equal(t, MsgError, resp.Header.Type)

	var errResp ErrorResponse
	require.NoError(t, Decode(resp.Payload, &errResp))
	assert.Equal(t, ErrUnavailable, errResp.Code)
}

func TestDaemonHandlerHistoryPrune(t *testing.T) {
	store := newTestHistory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Save(ctx, history.Entry{
			CreatedAt: time.Now(),
			Chars:     3,
			Strategy:  "typing",
			Text:      "abc",
		})
		require.NoError(t, err)
	}

	h := NewDaemonHandler(DaemonHandlerConfig{Version: "test", History: store})

	payload, _ := Encode(&HistoryPruneRequest{MaxKeep: 2})
	resp, err := h.HandleMessage(ctx, nil, NewMessage(MsgHistoryPrune, 1, payload))
	require.NoError(t, err)
	require.Equal(t, MsgHistoryPruneResp, resp.Header.Type)

	var prune HistoryPruneResponse
	require.NoError(t, Decode(resp.Payload, &prune))
	assert.True(t, prune.Success)
	assert.Equal(t, int64(3), prune.Removed)
}

func TestDaemonHandlerUnknownType(t *testing.T) {
	h := NewDaemonHandler(DaemonHandlerConfig{Version: "test"})

	resp, err := h.HandleMessage(context.Background(), nil, NewMessage(MessageType(0xFFFF), 1, nil))
	require.NoError(t, err)
	assert.Equal(t, MsgError, resp.Header.Type)
}

func TestDaemonHandlerStatusWithoutComponents(t *testing.T) {
	h := NewDaemonHandler(DaemonHandlerConfig{Version: "9.9.9"})

	resp, err := h.HandleMessage(context.Background(), nil, NewMessage(MsgStatusRequest, 1, nil))
	require.NoError(t, err)
	require.Equal(t, MsgStatusResponse, resp.Header.Type)

	var status StatusResponse
	require.NoError(t, Decode(resp.Payload, &status))
	assert.Equal(t, "9.9.9", status.Version)
	assert.False(t, status.HistoryStatus.Enabled)
}

func TestBroadcastSessionEventMapping(t *testing.T) {
	h := NewDaemonHandler(DaemonHandlerConfig{Version: "test"})

	var got []*Event
	h.SetBroadcaster(func(ev *Event) { got = append(got, ev) })

	h.BroadcastSessionEvent(session.Event{
		Kind:     session.EventDelivered,
		At:       time.Now(),
		Strategy: "accessibility",
		Chars:    12,
	})
	h.BroadcastSessionEvent(session.Event{
		Kind: session.EventCancelled,
		At:   time.Now(),
	})

	require.Len(t, got, 2)
	assert.Equal(t, EventDelivered, got[0].Type)
	data, ok := got[0].Data.(SessionEvent)
	require.True(t, ok)
	assert.Equal(t, "accessibility", data.Strategy)
	assert.Equal(t, 12, data.Chars)
	assert.Equal(t, EventSessionCancelled, got[1].Type)
}
