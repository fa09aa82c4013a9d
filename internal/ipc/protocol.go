// Package ipc provides inter-process communication between the voxd daemon
// and client applications (CLI, indicator, third-party tools).
//
// The protocol is designed for:
// - Request/response pattern for commands
// - Event streaming for real-time session updates
// - Framed binary transport with JSON payloads
// - Protocol versioning for compatibility
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x56495043 // "VIPC" - Voxd IPC
)

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgShutdown     MessageType = 0x0006

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101
	MsgHealthCheck    MessageType = 0x0102
	MsgHealthResponse MessageType = 0x0103

	// Detection control (0x02xx)
	MsgPause      MessageType = 0x0200
	MsgPauseResp  MessageType = 0x0201
	MsgResume     MessageType = 0x0202
	MsgResumeResp MessageType = 0x0203

	// Delivery (0x03xx)
	MsgDeliver     MessageType = 0x0300
	MsgDeliverResp MessageType = 0x0301

	// History operations (0x04xx)
	MsgHistoryList       MessageType = 0x0400
	MsgHistoryListResp   MessageType = 0x0401
	MsgHistorySearch     MessageType = 0x0402
	MsgHistorySearchResp MessageType = 0x0403
	MsgHistoryStats      MessageType = 0x0404
	MsgHistoryStatsResp  MessageType = 0x0405
	MsgHistoryPrune      MessageType = 0x0406
	MsgHistoryPruneResp  MessageType = 0x0407

	// Configuration (0x05xx)
	MsgGetConfig     MessageType = 0x0500
	MsgGetConfigResp MessageType = 0x0501
	MsgReloadConfig  MessageType = 0x0502
	MsgReloadResp    MessageType = 0x0503

	// Event streaming (0x06xx)
	MsgSubscribe       MessageType = 0x0600
	MsgSubscribeResp   MessageType = 0x0601
	MsgUnsubscribe     MessageType = 0x0602
	MsgUnsubscribeResp MessageType = 0x0603
	MsgEvent           MessageType = 0x0604
)

// EventType identifies the type of streamed event
type EventType uint16

const (
	EventSessionStarted   EventType = 0x0001
	EventSessionLocked    EventType = 0x0002
	EventSessionStopped   EventType = 0x0003
	EventSessionDiscarded EventType = 0x0004
	EventSessionCancelled EventType = 0x0005
	EventDelivered        EventType = 0x0006
	EventDeliveryFailed   EventType = 0x0007
	EventPermissionChange EventType = 0x0008
	EventConfigChanged    EventType = 0x0009
	EventDaemonShutdown   EventType = 0x000A
)

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagJSON        uint8 = 0x04
	FlagStreamStart uint8 = 0x08
	FlagStreamEnd   uint8 = 0x10
)

// MaxPayloadSize caps a single frame. Transcripts are short; anything
// bigger than this is a corrupt stream.
const MaxPayloadSize = 4 * 1024 * 1024

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayloadSize {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ConnectionID    string `json:"connection_id"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrNotFound       = 3
	ErrInternalError  = 5
	ErrUnavailable    = 7
)

// StatusRequest requests daemon status
type StatusRequest struct {
	IncludeConfig bool `json:"include_config,omitempty"`
}

// StatusResponse contains daemon status
type StatusResponse struct {
	Version       string         `json:"version"`
	Uptime        time.Duration  `json:"uptime"`
	StartedAt     time.Time      `json:"started_at"`
	SessionState  string         `json:"session_state"`
	Hotkey        string         `json:"hotkey"`
	Paused        bool           `json:"paused"`
	Permission    string         `json:"permission"`
	HistoryStatus HistoryStatus  `json:"history_status"`
	Config        map[string]any `json:"config,omitempty"`
}

// HistoryStatus contains transcript store health info
type HistoryStatus struct {
	Enabled     bool      `json:"enabled"`
	Transcripts int64     `json:"transcripts"`
	TotalChars  int64     `json:"total_chars"`
	Newest      time.Time `json:"newest,omitempty"`
}

// PauseRequest suspends hotkey detection
type PauseRequest struct{}

// PauseResponse acknowledges pause
type PauseResponse struct {
	Success bool `json:"success"`
	Paused  bool `json:"paused"`
}

// ResumeRequest resumes hotkey detection
type ResumeRequest struct{}

// ResumeResponse acknowledges resume
type ResumeResponse struct {
	Success bool `json:"success"`
	Paused  bool `json:"paused"`
}

// DeliverRequest asks the daemon to deliver text to the focused element,
// bypassing recording and transcription.
type DeliverRequest struct {
	Text            string `json:"text"`
	RetainClipboard bool   `json:"retain_clipboard,omitempty"`
}

// DeliverResponse acknowledges a delivery
type DeliverResponse struct {
	Success  bool   `json:"success"`
	Strategy string `json:"strategy,omitempty"`
	Chars    int    `json:"chars"`
	Error    string `json:"error,omitempty"`
}

// HistoryListRequest requests recent transcripts
type HistoryListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// TranscriptInfo contains one decrypted history entry
type TranscriptInfo struct {
	ID        int64         `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
	Chars     int           `json:"chars"`
	Strategy  string        `json:"strategy"`
	Text      string        `json:"text"`
}

// HistoryListResponse contains recent transcripts
type HistoryListResponse struct {
	Total   int              `json:"total"`
	Entries []TranscriptInfo `json:"entries"`
}

// HistorySearchRequest requests a substring search over transcripts
type HistorySearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// HistorySearchResponse contains matching transcripts
type HistorySearchResponse struct {
	Entries []TranscriptInfo `json:"entries"`
}

// HistoryStatsRequest requests aggregate history statistics
type HistoryStatsRequest struct{}

// HistoryStatsResponse contains aggregate history statistics
type HistoryStatsResponse struct {
	Transcripts int64          `json:"transcripts"`
	TotalChars  int64          `json:"total_chars"`
	ByStrategy  map[string]int `json:"by_strategy,omitempty"`
	Oldest      time.Time      `json:"oldest,omitempty"`
	Newest      time.Time      `json:"newest,omitempty"`
}

// HistoryPruneRequest removes old transcripts
type HistoryPruneRequest struct {
	MaxAge  time.Duration `json:"max_age,omitempty"`
	MaxKeep int           `json:"max_keep,omitempty"`
}

// HistoryPruneResponse reports pruned transcript count
type HistoryPruneResponse struct {
	Success bool  `json:"success"`
	Removed int64 `json:"removed"`
}

// ConfigRequest requests configuration
type ConfigRequest struct {
	Keys []string `json:"keys,omitempty"` // If empty, returns all config
}

// ConfigResponse contains configuration
type ConfigResponse struct {
	Config map[string]any `json:"config"`
}

// ReloadConfigResponse acknowledges a config reload
type ReloadConfigResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeRequest requests event unsubscription
type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// SessionEvent carries session lifecycle details on the event stream.
// Transcript text is never streamed; clients read it from history.
type SessionEvent struct {
	State    string        `json:"state"`
	Duration time.Duration `json:"duration,omitempty"`
	Strategy string        `json:"strategy,omitempty"`
	Chars    int           `json:"chars,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// PermissionEvent carries a permission flip on the event stream
type PermissionEvent struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
