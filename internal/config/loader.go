package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader loads a config file and watches it for changes.
//
// Editors replace files rather than rewriting them in place, so the watcher
// re-arms on Remove/Rename and debounces the write burst a save produces.
type Loader struct {
	path string
	log  *slog.Logger

	mu  sync.RWMutex
	cfg *Config

	watcher   *fsnotify.Watcher
	callbacks []func(old, new *Config)
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoader creates a loader for the given path. Empty uses the default
// location.
func NewLoader(path string, log *slog.Logger) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		path: path,
		log:  log.With("component", "config"),
		errs: make(chan error, 8),
		done: make(chan struct{}),
	}
}

// Load reads, migrates and validates the config file.
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	if _, err := MigrateConfig(cfg, l.path); err != nil {
		return nil, fmt.Errorf("migrate config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the most recently loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnChange registers a callback invoked after a successful hot reload.
func (l *Loader) OnChange(cb func(old, new *Config)) {
	l.mu.Lock()
	l.callbacks = append(l.callbacks, cb)
	l.mu.Unlock()
}

// Errors delivers reload failures; the previous config stays active.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Watch starts watching the config file for changes.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: the file itself disappears during atomic saves.
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config directory: %w", err)
	}
	l.watcher = watcher
	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, l.reload)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Warn("config watcher error", "error", err)
		}
	}
}

func (l *Loader) reload() {
	old := l.Config()
	cfg, err := Load(l.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		l.log.Error("config reload failed, keeping previous", "error", err)
		select {
		case l.errs <- err:
		default:
		}
		return
	}

	l.mu.Lock()
	l.cfg = cfg
	callbacks := make([]func(old, new *Config), len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.mu.Unlock()

	l.log.Info("config reloaded", "path", l.path)
	for _, cb := range callbacks {
		cb(old, cfg)
	}
}

// Reload forces a reload outside the watcher, e.g. on SIGHUP.
func (l *Loader) Reload() {
	l.reload()
}

// Close stops watching.
func (l *Loader) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}

// Save writes the config as TOML via a temp-file rename.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := toml.NewEncoder(tmp)
	enc.Indent = ""
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Export renders the config in the requested format: "toml", "json" or
// "yaml".
func Export(cfg *Config, format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(cfg, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(cfg)
	case "toml", "":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
