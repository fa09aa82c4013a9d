package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/voxd/
//   - Linux:   $XDG_DATA_HOME/voxd/ or ~/.local/share/voxd/
//   - Windows: %APPDATA%\voxd\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "voxd")
	case "linux":
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "voxd")
		}
		return filepath.Join(os.Getenv("HOME"), ".local", "share", "voxd")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "voxd")
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "voxd")
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/voxd/ (same as data)
//   - Linux:   $XDG_CONFIG_HOME/voxd/ or ~/.config/voxd/
//   - Windows: %APPDATA%\voxd\ (same as data)
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "voxd")
		}
		return filepath.Join(os.Getenv("HOME"), ".config", "voxd")
	default:
		return PlatformDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/voxd/
//   - Linux:   ~/.local/share/voxd/logs/
//   - Windows: %LOCALAPPDATA%\voxd\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Logs", "voxd")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "voxd", "logs")
		}
		return filepath.Join(PlatformDataDir(), "logs")
	default:
		return filepath.Join(PlatformDataDir(), "logs")
	}
}

// DefaultSocketPath returns the default IPC socket path (or named pipe on
// Windows).
func DefaultSocketPath() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(PlatformDataDir(), "voxd.sock")
	case "linux":
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "voxd.sock")
		}
		return fmt.Sprintf("/tmp/voxd-%d.sock", os.Getuid())
	case "windows":
		return `\\.\pipe\voxd`
	default:
		return fmt.Sprintf("/tmp/voxd-%d.sock", os.Getuid())
	}
}

func fallbackDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "voxd")
	}
	return filepath.Join(home, ".voxd")
}

// FindConfigFile searches the standard locations for an existing config
// file. Returns the empty string when none exists.
func FindConfigFile() string {
	candidates := []string{
		ConfigPath(),
		filepath.Join(PlatformConfigDir(), "config.yaml"),
		filepath.Join(PlatformConfigDir(), "config.json"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
