package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxd/internal/hotkey"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	hk, err := cfg.ParsedHotkey()
	require.NoError(t, err)
	assert.True(t, hk.IsModifierOnly())
	assert.True(t, hk.Modifiers.ContainsKind(hotkey.ModOption))
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, []string{"option"}, cfg.Hotkey.Modifiers)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
version = 2

[hotkey]
key = "d"
modifiers = ["cmd", "shift"]
minimum_key_time_ms = 150

[delivery]
strategies = ["clipboard", "typing"]
retain_clipboard = true
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "d", cfg.Hotkey.Key)
	assert.True(t, cfg.Delivery.RetainClipboard)
	assert.Equal(t, []string{"clipboard", "typing"}, cfg.Delivery.Strategies)
	assert.Equal(t, 150*time.Millisecond, cfg.MinimumKeyTime())

	hk, err := cfg.ParsedHotkey()
	require.NoError(t, err)
	assert.Equal(t, hotkey.Key("d"), hk.Key)
	assert.True(t, hk.Modifiers.ContainsKind(hotkey.ModCommand))
	assert.True(t, hk.Modifiers.ContainsKind(hotkey.ModShift))
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 2
hotkey:
  modifiers: ["right option"]
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	hk, err := cfg.ParsedHotkey()
	require.NoError(t, err)
	require.Len(t, hk.Modifiers, 1)
	assert.Equal(t, hotkey.SideRight, hk.Modifiers[0].Side)
}

func TestParseModifierSpecForms(t *testing.T) {
	cases := []struct {
		in   string
		kind hotkey.ModifierKind
		side hotkey.ModifierSide
	}{
		{"option", hotkey.ModOption, hotkey.SideEither},
		{"alt", hotkey.ModOption, hotkey.SideEither},
		{"left option", hotkey.ModOption, hotkey.SideLeft},
		{"right cmd", hotkey.ModCommand, hotkey.SideRight},
		{"cmd:left", hotkey.ModCommand, hotkey.SideLeft},
	}
	for _, tc := range cases {
		mod, err := parseModifierSpec(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.kind, mod.Kind, tc.in)
		assert.Equal(t, tc.side, mod.Side, tc.in)
	}

	_, err := parseModifierSpec("sideways hyper key")
	assert.Error(t, err)
}

func TestValidationCatchesBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hotkey.Modifiers = nil
	cfg.Hotkey.Key = ""
	cfg.Delivery.Strategies = []string{"clipboard", "clipboard", "osmosis"}
	cfg.Permissions.PollIntervalMs = 1
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(verrs), 4)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXD_LOG_LEVEL", "debug")
	t.Setenv("VOXD_SOCKET_PATH", "/tmp/override.sock")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/override.sock", cfg.IPC.SocketPath)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Hotkey.Key = "f5"
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "f5", loaded.Hotkey.Key)
}

func TestExportFormats(t *testing.T) {
	cfg := DefaultConfig()
	for _, format := range []string{"toml", "json", "yaml"} {
		data, err := Export(cfg, format)
		require.NoError(t, err, format)
		assert.NotEmpty(t, data, format)
	}
	_, err := Export(cfg, "ini")
	assert.Error(t, err)
}

func TestMigrateV1ToV2(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = 1
	cfg.Delivery.Strategies = nil
	cfg.Permissions.PollIntervalMs = 0

	result, err := MigrateConfig(cfg, "")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.FromVersion)
	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, []string{"accessibility", "clipboard", "typing"}, cfg.Delivery.Strategies)
	assert.Equal(t, 100, cfg.Permissions.PollIntervalMs)
}

func TestMigrateNewerVersionRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Version = Version + 1
	_, err := MigrateConfig(cfg, "")
	require.Error(t, err)
}

func TestLoaderHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, Save(DefaultConfig(), path))

	loader := NewLoader(path, nil)
	_, err := loader.Load()
	require.NoError(t, err)
	require.NoError(t, loader.Watch())
	defer loader.Close()

	var mu sync.Mutex
	var gotKey string
	loader.OnChange(func(old, new *Config) {
		mu.Lock()
		gotKey = new.Hotkey.Key
		mu.Unlock()
	})

	updated := DefaultConfig()
	updated.Hotkey.Key = "f6"
	require.NoError(t, Save(updated, path))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotKey == "f6"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "f6", loader.Config().Hotkey.Key)
}

func TestLoaderKeepsPreviousOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, Save(DefaultConfig(), path))

	loader := NewLoader(path, nil)
	_, err := loader.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version = }{ not toml"), 0600))
	loader.Reload()
	assert.Equal(t, Version, loader.Config().Version)
}
