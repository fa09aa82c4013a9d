package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// AuditEventType classifies an audit trail entry.
type AuditEventType string

// Audit event types.
const (
	AuditEventSession    AuditEventType = "session"
	AuditEventDelivery   AuditEventType = "delivery"
	AuditEventPermission AuditEventType = "permission"
	AuditEventConfig     AuditEventType = "config_change"
	AuditEventStartup    AuditEventType = "startup"
	AuditEventShutdown   AuditEventType = "shutdown"
	AuditEventError      AuditEventType = "error"
)

// AuditEvent is one line of the append-only session audit trail. Dictated
// text never appears here; only lengths, strategies and outcomes.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Action    string         `json:"action"`
	Result    string         `json:"result"` // "success", "failure", "denied"
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   defaultAuditLogPath(),
		MaxSize:    20,
		MaxAge:     90,
		MaxBackups: 5,
		Compress:   true,
	}
}

func defaultAuditLogPath() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "Library", "Logs", "voxd", "audit.log")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "voxd", "logs", "audit.log")
	default:
		stateHome := os.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			homeDir, _ := os.UserHomeDir()
			stateHome = filepath.Join(homeDir, ".local", "state")
		}
		return filepath.Join(stateHome, "voxd", "audit.log")
	}
}

// AuditLogger writes the JSONL audit trail with rotation.
type AuditLogger struct {
	config  *AuditLoggerConfig
	rotator *FileRotator
	mu      sync.Mutex
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	rotator, err := NewFileRotator(&Config{
		FilePath:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}
	return &AuditLogger{config: cfg, rotator: rotator}, nil
}

// Log appends one audit event.
func (a *AuditLogger) Log(event AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := a.rotator.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogSession records a session lifecycle step: started, locked, stopped,
// discarded, cancelled.
func (a *AuditLogger) LogSession(action string, details map[string]any) error {
	return a.Log(AuditEvent{
		EventType: AuditEventSession,
		Action:    action,
		Result:    "success",
		Details:   details,
	})
}

// LogDelivery records a delivery outcome. chars is the transcript length;
// the text itself is never written.
func (a *AuditLogger) LogDelivery(strategy string, chars int, err error) error {
	event := AuditEvent{
		EventType: AuditEventDelivery,
		Action:    "text_delivered",
		Result:    "success",
		Details: map[string]any{
			"strategy": strategy,
			"chars":    chars,
		},
	}
	if err != nil {
		event.Action = "delivery_failed"
		event.Result = "failure"
		event.Error = err.Error()
	}
	return a.Log(event)
}

// LogPermission records a permission status flip.
func (a *AuditLogger) LogPermission(status, reason string) error {
	result := "success"
	if status == "denied" {
		result = "denied"
	}
	return a.Log(AuditEvent{
		EventType: AuditEventPermission,
		Action:    "permission_" + status,
		Result:    result,
		Details:   map[string]any{"reason": reason},
	})
}

// LogConfigChange records a configuration change.
func (a *AuditLogger) LogConfigChange(setting, oldValue, newValue string) error {
	return a.Log(AuditEvent{
		EventType: AuditEventConfig,
		Action:    "config_changed",
		Result:    "success",
		Details: map[string]any{
			"setting":   setting,
			"old_value": oldValue,
			"new_value": newValue,
		},
	})
}

// LogStartup records daemon startup.
func (a *AuditLogger) LogStartup(version string) error {
	return a.Log(AuditEvent{
		EventType: AuditEventStartup,
		Action:    "daemon_started",
		Result:    "success",
		Details:   map[string]any{"version": version},
	})
}

// LogShutdown records daemon shutdown.
func (a *AuditLogger) LogShutdown(reason string) error {
	return a.Log(AuditEvent{
		EventType: AuditEventShutdown,
		Action:    "daemon_stopped",
		Result:    "success",
		Details:   map[string]any{"reason": reason},
	})
}

// LogError records an operational failure.
func (a *AuditLogger) LogError(operation string, err error) error {
	return a.Log(AuditEvent{
		EventType: AuditEventError,
		Action:    operation,
		Result:    "failure",
		Error:     err.Error(),
	})
}

// Close closes the audit logger.
func (a *AuditLogger) Close() error {
	if a.rotator != nil {
		return a.rotator.Close()
	}
	return nil
}

// Sync flushes buffered audit events.
func (a *AuditLogger) Sync() error {
	if a.rotator != nil {
		return a.rotator.Sync()
	}
	return nil
}
