package config

import (
	"fmt"
	"os"
	"time"
)

// MigrationResult records what a schema migration changed.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Changes     []string
	BackupPath  string
}

// MigrateConfig upgrades an older config to the current schema version in
// place. The original file is backed up before anything is rewritten.
func MigrateConfig(cfg *Config, configPath string) (*MigrationResult, error) {
	if cfg.Version == 0 {
		// Pre-versioned files predate the version field.
		cfg.Version = 1
	}
	if cfg.Version == Version {
		return nil, nil
	}
	if cfg.Version > Version {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", cfg.Version, Version)
	}

	result := &MigrationResult{FromVersion: cfg.Version, ToVersion: Version}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			backup, err := backupConfig(configPath)
			if err != nil {
				return nil, err
			}
			result.BackupPath = backup
		}
	}

	for cfg.Version < Version {
		switch cfg.Version {
		case 1:
			result.Changes = append(result.Changes, migrateV1ToV2(cfg)...)
			cfg.Version = 2
		default:
			return nil, fmt.Errorf("no migration path from version %d", cfg.Version)
		}
	}

	if configPath != "" && result.BackupPath != "" {
		if err := Save(cfg, configPath); err != nil {
			return nil, fmt.Errorf("write migrated config: %w", err)
		}
	}
	return result, nil
}

// migrateV1ToV2: v1 had a single "modifier" string and no delivery section.
func migrateV1ToV2(cfg *Config) []string {
	var changes []string
	if len(cfg.Delivery.Strategies) == 0 {
		cfg.Delivery.Strategies = []string{"accessibility", "clipboard", "typing"}
		changes = append(changes, "delivery.strategies: set default order")
	}
	if cfg.Permissions.PollIntervalMs == 0 {
		cfg.Permissions.PollIntervalMs = 100
		changes = append(changes, "permissions.poll_interval_ms: set default 100")
	}
	if cfg.History.Enabled && cfg.History.SecretPath == "" {
		cfg.History.SecretPath = DefaultConfig().History.SecretPath
		changes = append(changes, "history.secret_path: set default")
	}
	return changes
}

func backupConfig(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config for backup: %w", err)
	}
	backup := fmt.Sprintf("%s.bak.%s", path, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(backup, data, 0600); err != nil {
		return "", fmt.Errorf("write config backup: %w", err)
	}
	return backup, nil
}
