package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig checks every section and returns all problems at once.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors
	errs = append(errs, validateHotkey(&c.Hotkey)...)
	errs = append(errs, validateDelivery(&c.Delivery)...)
	errs = append(errs, validatePermissions(&c.Permissions)...)
	errs = append(errs, validateHistory(&c.History)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateListenAddr("metrics.listen_addr", c.Metrics.Enabled, c.Metrics.ListenAddr)...)
	errs = append(errs, validateListenAddr("health.listen_addr", c.Health.Enabled, c.Health.ListenAddr)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHotkey(h *HotkeyConfig) ValidationErrors {
	var errs ValidationErrors
	if h.Key == "" && len(h.Modifiers) == 0 {
		errs = append(errs, ValidationError{
			Field:   "hotkey",
			Message: "must define a key, modifiers, or both",
		})
	}
	cfg := Config{Hotkey: *h}
	if h.Key != "" || len(h.Modifiers) > 0 {
		if _, err := cfg.ParsedHotkey(); err != nil {
			errs = append(errs, ValidationError{Field: "hotkey", Message: err.Error()})
		}
	}
	if h.MinimumKeyTimeMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "hotkey.minimum_key_time_ms",
			Message: "must not be negative",
		})
	}
	if h.MinimumKeyTimeMs > 5000 {
		errs = append(errs, ValidationError{
			Field:   "hotkey.minimum_key_time_ms",
			Message: "above 5000 the trigger becomes unusable",
		})
	}
	return errs
}

func validateDelivery(d *DeliveryConfig) ValidationErrors {
	var errs ValidationErrors
	if len(d.Strategies) == 0 {
		errs = append(errs, ValidationError{
			Field:   "delivery.strategies",
			Message: "at least one strategy is required",
		})
	}
	seen := map[string]bool{}
	for _, s := range d.Strategies {
		switch s {
		case "accessibility", "clipboard", "typing":
		default:
			errs = append(errs, ValidationError{
				Field:   "delivery.strategies",
				Message: fmt.Sprintf("unknown strategy %q", s),
			})
		}
		if seen[s] {
			errs = append(errs, ValidationError{
				Field:   "delivery.strategies",
				Message: fmt.Sprintf("strategy %q listed twice", s),
			})
		}
		seen[s] = true
	}
	return errs
}

func validatePermissions(p *PermissionsConfig) ValidationErrors {
	var errs ValidationErrors
	if p.PollIntervalMs < 10 {
		errs = append(errs, ValidationError{
			Field:   "permissions.poll_interval_ms",
			Message: "must be at least 10",
		})
	}
	if p.PollIntervalMs > 10000 {
		errs = append(errs, ValidationError{
			Field:   "permissions.poll_interval_ms",
			Message: "above 10000 revocation goes unnoticed too long",
		})
	}
	return errs
}

func validateHistory(h *HistoryConfig) ValidationErrors {
	var errs ValidationErrors
	if !h.Enabled {
		return errs
	}
	if h.Path == "" {
		errs = append(errs, ValidationError{Field: "history.path", Message: "required when history is enabled"})
	}
	if h.SecretPath == "" {
		errs = append(errs, ValidationError{Field: "history.secret_path", Message: "required when history is enabled"})
	}
	if h.MaxEntries < 0 {
		errs = append(errs, ValidationError{Field: "history.max_entries", Message: "must not be negative"})
	}
	if h.RetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "history.retention_days", Message: "must not be negative"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", l.Level),
		})
	}
	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", l.Format),
		})
	}
	switch l.Output {
	case "file", "stderr", "both":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("unknown output %q", l.Output),
		})
	}
	if (l.Output == "file" || l.Output == "both") && l.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "required when output includes a file",
		})
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging",
			Message: "rotation settings must not be negative",
		})
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors
	if !i.Enabled {
		return errs
	}
	if i.SocketPath == "" {
		errs = append(errs, ValidationError{Field: "ipc.socket_path", Message: "required when IPC is enabled"})
	}
	if i.MaxConnections < 1 {
		errs = append(errs, ValidationError{Field: "ipc.max_connections", Message: "must be at least 1"})
	}
	if i.TimeoutSec < 1 {
		errs = append(errs, ValidationError{Field: "ipc.timeout_sec", Message: "must be at least 1"})
	}
	return errs
}

func validateListenAddr(field string, enabled bool, addr string) ValidationErrors {
	if !enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("invalid listen address: %v", err)}}
	}
	return nil
}
