package config

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/codyseavey/ygo-ripper/internal/storage"
)

// SettingsKey is the storage key for persisted user settings
const SettingsKey = "settings"

// SaveSettings persists the configuration under SettingsKey
func SaveSettings(ctx context.Context, store storage.Store, cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	if err := store.Set(ctx, SettingsKey, string(data), 0); err != nil {
		return fmt.Errorf("config: save settings: %w", err)
	}
	return nil
}

// LoadSettings overlays persisted settings on base. Keys missing from the
// saved document keep their base values and unknown keys are ignored.
// With nothing saved, base is returned unchanged.
func LoadSettings(ctx context.Context, store storage.Store, base Config) (Config, error) {
	raw, ok, err := store.Get(ctx, SettingsKey)
	if err != nil {
		return base, fmt.Errorf("config: read settings: %w", err)
	}
	if !ok {
		return base, nil
	}

	cfg := base
	cfg.Image.ProxyHosts = slices.Clone(base.Image.ProxyHosts)
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return base, fmt.Errorf("config: decode settings: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}
