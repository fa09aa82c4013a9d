// Package config handles configuration loading, validation, and management
// for voxd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"voxd/internal/hotkey"
)

// Version is the current configuration schema version.
const Version = 2

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Hotkey configures the dictation trigger.
	Hotkey HotkeyConfig `toml:"hotkey" json:"hotkey" yaml:"hotkey"`

	// Delivery configures text insertion.
	Delivery DeliveryConfig `toml:"delivery" json:"delivery" yaml:"delivery"`

	// Permissions configures the input-monitoring watchdog.
	Permissions PermissionsConfig `toml:"permissions" json:"permissions" yaml:"permissions"`

	// Transcriber configures the external speech-to-text command.
	Transcriber TranscriberConfig `toml:"transcriber" json:"transcriber" yaml:"transcriber"`

	// History configures the transcript store.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Health configuration.
	Health HealthConfig `toml:"health" json:"health" yaml:"health"`
}

// HotkeyConfig defines the trigger chord and its timing.
type HotkeyConfig struct {
	// Key is the optional non-modifier key, e.g. "d" or "f5". Empty means
	// a modifier-only hotkey.
	Key string `toml:"key" json:"key" yaml:"key"`

	// Modifiers is the modifier set, e.g. ["option"] or ["cmd", "shift"].
	// Side-specific forms are accepted: "left option", "right cmd".
	Modifiers []string `toml:"modifiers" json:"modifiers" yaml:"modifiers"`

	// UseDoubleTapOnly requires a double tap to start recording for
	// key+modifier hotkeys.
	UseDoubleTapOnly bool `toml:"use_double_tap_only" json:"use_double_tap_only" yaml:"use_double_tap_only"`

	// MinimumKeyTimeMs is how long the hotkey must be held before the
	// recording counts, in milliseconds. 0 uses the built-in default.
	MinimumKeyTimeMs int `toml:"minimum_key_time_ms" json:"minimum_key_time_ms" yaml:"minimum_key_time_ms"`
}

// DeliveryConfig tunes the text insertion pipeline.
type DeliveryConfig struct {
	// Strategies is the attempt order. Valid entries: "accessibility",
	// "clipboard", "typing".
	Strategies []string `toml:"strategies" json:"strategies" yaml:"strategies"`

	// RetainClipboard leaves delivered text on the clipboard instead of
	// restoring the previous contents.
	RetainClipboard bool `toml:"retain_clipboard" json:"retain_clipboard" yaml:"retain_clipboard"`
}

// PermissionsConfig tunes the permission watchdog.
type PermissionsConfig struct {
	// PollIntervalMs is the watchdog poll interval in milliseconds.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// TranscriberConfig points at the external speech-to-text command.
type TranscriberConfig struct {
	// Command is the argv run per session; audio goes to stdin, the
	// transcript is read from stdout. Empty disables transcription.
	Command []string `toml:"command" json:"command" yaml:"command"`
}

// HistoryConfig controls the encrypted transcript store.
type HistoryConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database location.
	Path string `toml:"path" json:"path" yaml:"path"`

	// SecretPath holds the encryption secret (0600).
	SecretPath string `toml:"secret_path" json:"secret_path" yaml:"secret_path"`

	// MaxEntries caps the store; 0 means unlimited.
	MaxEntries int `toml:"max_entries" json:"max_entries" yaml:"max_entries"`

	// RetentionDays prunes older transcripts; 0 means keep forever.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "file", "stderr", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file location when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the Unix socket path (or named pipe on Windows).
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`
	TimeoutSec     int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ListenAddr is the HTTP listen address, e.g. "127.0.0.1:9127".
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// HealthConfig holds health endpoint configuration.
type HealthConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ListenAddr is the HTTP listen address, e.g. "127.0.0.1:9128".
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// DefaultConfig returns the built-in defaults for this platform.
func DefaultConfig() *Config {
	dataDir := VoxdDir()
	return &Config{
		Version: Version,
		Hotkey: HotkeyConfig{
			Key:              "",
			Modifiers:        []string{"option"},
			UseDoubleTapOnly: false,
			MinimumKeyTimeMs: int(hotkey.DefaultMinimumKeyTime / time.Millisecond),
		},
		Delivery: DeliveryConfig{
			Strategies:      []string{"accessibility", "clipboard", "typing"},
			RetainClipboard: false,
		},
		Permissions: PermissionsConfig{
			PollIntervalMs: 100,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          filepath.Join(dataDir, "history.db"),
			SecretPath:    filepath.Join(dataDir, "history.secret"),
			MaxEntries:    1000,
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(PlatformLogDir(), "voxd.log"),
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     DefaultSocketPath(),
			MaxConnections: 10,
			TimeoutSec:     30,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9127",
		},
		Health: HealthConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9128",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path. A missing file returns
// the defaults. TOML, JSON, and YAML are supported by extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.History.Path),
		filepath.Dir(c.History.SecretPath),
		filepath.Dir(c.Logging.FilePath),
	}
	if c.IPC.SocketPath != "" && !strings.HasPrefix(c.IPC.SocketPath, `\\.\pipe\`) {
		dirs = append(dirs, filepath.Dir(c.IPC.SocketPath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies VOXD_-prefixed environment overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("VOXD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VOXD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("VOXD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("VOXD_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
}

// ParsedHotkey converts the hotkey section into the domain model.
func (c *Config) ParsedHotkey() (hotkey.Hotkey, error) {
	var hk hotkey.Hotkey
	if c.Hotkey.Key != "" {
		key, err := hotkey.ParseKey(c.Hotkey.Key)
		if err != nil {
			return hk, fmt.Errorf("hotkey.key: %w", err)
		}
		hk.Key = key
	}
	for _, raw := range c.Hotkey.Modifiers {
		mod, err := parseModifierSpec(raw)
		if err != nil {
			return hk, fmt.Errorf("hotkey.modifiers: %w", err)
		}
		hk.Modifiers = append(hk.Modifiers, mod)
	}
	if hk.Key.IsNone() && hk.Modifiers.IsEmpty() {
		return hk, fmt.Errorf("hotkey has neither key nor modifiers")
	}
	return hk, nil
}

// MinimumKeyTime returns the hold threshold as a duration.
func (c *Config) MinimumKeyTime() time.Duration {
	return time.Duration(c.Hotkey.MinimumKeyTimeMs) * time.Millisecond
}

// PermissionPollInterval returns the watchdog interval as a duration.
func (c *Config) PermissionPollInterval() time.Duration {
	return time.Duration(c.Permissions.PollIntervalMs) * time.Millisecond
}

// parseModifierSpec accepts "option", "option:left", and the spoken form
// "left option".
func parseModifierSpec(raw string) (hotkey.Modifier, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	switch len(fields) {
	case 1:
		return hotkey.ParseModifier(fields[0])
	case 2:
		return hotkey.ParseModifier(fields[1] + ":" + fields[0])
	}
	return hotkey.Modifier{}, fmt.Errorf("unparseable modifier %q", raw)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Hotkey.Modifiers = append([]string{}, c.Hotkey.Modifiers...)
	clone.Delivery.Strategies = append([]string{}, c.Delivery.Strategies...)
	clone.Transcriber.Command = append([]string{}, c.Transcriber.Command...)
	return &clone
}

// VoxdDir returns the base data directory, honoring VOXD_DATA_DIR.
func VoxdDir() string {
	if envDir := os.Getenv("VOXD_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}
