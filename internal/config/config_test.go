package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codyseavey/ygo-ripper/internal/storage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"API_URL", cfg.APIURL, DefaultAPIURL},
		{"ttlMillis", cfg.TTLMillis, int64(3600000)},
		{"hardRefreshAfterMillis", cfg.HardRefreshAfterMillis, int64(86400000)},
		{"maxEntries", cfg.MaxEntries, 1000},
		{"requestTimeoutMillis", cfg.RequestTimeoutMillis, int64(120000)},
		{"retryAttempts", cfg.RetryAttempts, 3},
		{"retryBackoffMillis", cfg.RetryBackoffMillis, int64(1000)},
		{"persistEveryNWrites", cfg.PersistEveryNWrites, 10},
		{"enableCache", cfg.EnableCache, true},
		{"defaultCondition", cfg.DefaultCondition, "near-mint"},
		{"voice.language", cfg.Voice.Language, "en-US"},
		{"voice.autoConfirmThreshold", cfg.Voice.AutoConfirmThreshold, 85},
		{"voice.maxAlternatives", cfg.Voice.MaxAlternatives, 3},
		{"image.persistentTtl", cfg.Image.PersistentTTL(), 7 * 24 * time.Hour},
		{"image.proxyTimeout", cfg.Image.ProxyTimeout(), 10 * time.Second},
		{"image.directTimeout", cfg.Image.DirectTimeout(), 15 * time.Second},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("default %s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
API_URL: "http://pricing.local:9000/"
ttlMillis: 5000
enableCache: false
someUnknownKey: ignored
voice:
  language: en-GB
  autoConfirmThreshold: 90
image:
  proxyHosts: ["cdn.example.com"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(yaml) error = %v", err)
	}
	if cfg.APIURL != "http://pricing.local:9000" {
		t.Errorf("APIURL = %q, want trailing slash trimmed", cfg.APIURL)
	}
	if cfg.TTLMillis != 5000 {
		t.Errorf("TTLMillis = %d, want 5000", cfg.TTLMillis)
	}
	if cfg.EnableCache {
		t.Error("EnableCache = true, want false from file")
	}
	if cfg.MaxEntries != 1000 {
		t.Errorf("MaxEntries = %d, want default 1000 for missing key", cfg.MaxEntries)
	}
	if cfg.Voice.Language != "en-GB" || cfg.Voice.AutoConfirmThreshold != 90 {
		t.Errorf("Voice = %+v, want en-GB/90", cfg.Voice)
	}
	if !cfg.Voice.Continuous {
		t.Error("Voice.Continuous should keep its default when missing from the file")
	}
	if len(cfg.Image.ProxyHosts) != 1 || cfg.Image.ProxyHosts[0] != "cdn.example.com" {
		t.Errorf("Image.ProxyHosts = %v", cfg.Image.ProxyHosts)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
API_URL = "http://toml.local:8081"
retryAttempts = 5
persistEveryNWrites = 0

[voice]
confidenceThreshold = 0.8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(toml) error = %v", err)
	}
	if cfg.APIURL != "http://toml.local:8081" || cfg.RetryAttempts != 5 {
		t.Errorf("Load(toml) = %s/%d, want toml values", cfg.APIURL, cfg.RetryAttempts)
	}
	if cfg.PersistEveryNWrites != 1 {
		t.Errorf("PersistEveryNWrites = %d, want clamped to 1", cfg.PersistEveryNWrites)
	}
	if cfg.Voice.ConfidenceThreshold != 0.8 {
		t.Errorf("Voice.ConfidenceThreshold = %v, want 0.8", cfg.Voice.ConfidenceThreshold)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "config.ini", "API_URL=x")
	if _, err := Load(path); err == nil {
		t.Error("Load(.ini) should fail")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "API_URL: http://file.local\nmaxEntries: 50\n")
	t.Setenv("YGO_API_URL", "http://env.local:1234")
	t.Setenv("YGO_VOICE_LANGUAGE", "de-DE")
	t.Setenv("YGO_IMAGE_PROXY_HOSTS", "a.example.com,b.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIURL != "http://env.local:1234" {
		t.Errorf("APIURL = %q, want environment override", cfg.APIURL)
	}
	if cfg.MaxEntries != 50 {
		t.Errorf("MaxEntries = %d, want file value 50", cfg.MaxEntries)
	}
	if cfg.Voice.Language != "de-DE" {
		t.Errorf("Voice.Language = %q, want de-DE", cfg.Voice.Language)
	}
	if len(cfg.Image.ProxyHosts) != 2 {
		t.Errorf("Image.ProxyHosts = %v, want two hosts", cfg.Image.ProxyHosts)
	}
}

func TestNormalizeClamps(t *testing.T) {
	cfg := Defaults()
	cfg.Voice.MaxAlternatives = 50
	cfg.Voice.ConfidenceThreshold = 1.5
	cfg.Voice.AutoConfirmThreshold = -3
	cfg.RetryAttempts = -1
	cfg.TTLMillis = 0
	cfg.Normalize()

	if cfg.Voice.MaxAlternatives != 10 {
		t.Errorf("MaxAlternatives = %d, want 10", cfg.Voice.MaxAlternatives)
	}
	if cfg.Voice.ConfidenceThreshold != 1 {
		t.Errorf("ConfidenceThreshold = %v, want 1", cfg.Voice.ConfidenceThreshold)
	}
	if cfg.Voice.AutoConfirmThreshold != 0 {
		t.Errorf("AutoConfirmThreshold = %d, want 0", cfg.Voice.AutoConfirmThreshold)
	}
	if cfg.RetryAttempts != 0 {
		t.Errorf("RetryAttempts = %d, want 0", cfg.RetryAttempts)
	}
	if cfg.TTLMillis != 3600000 {
		t.Errorf("TTLMillis = %d, want default", cfg.TTLMillis)
	}
}

func TestVoiceSettings(t *testing.T) {
	cfg := Defaults()
	cfg.Voice.TimeoutMillis = 2500
	cfg.Voice.InterimResults = false

	vc := cfg.VoiceSettings()
	if vc.Timeout != 2500*time.Millisecond {
		t.Errorf("VoiceSettings().Timeout = %v, want 2.5s", vc.Timeout)
	}
	if vc.InterimResults {
		t.Error("VoiceSettings().InterimResults = true, want false")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(0)

	base := Defaults()
	got, err := LoadSettings(ctx, store, base)
	if err != nil {
		t.Fatalf("LoadSettings(empty) error = %v", err)
	}
	if got.APIURL != base.APIURL {
		t.Errorf("LoadSettings(empty) APIURL = %q, want base", got.APIURL)
	}

	saved := Defaults()
	saved.APIURL = "http://saved.local"
	saved.Voice.AutoConfirmThreshold = 70
	if err := SaveSettings(ctx, store, saved); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	got, err = LoadSettings(ctx, store, base)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if got.APIURL != "http://saved.local" || got.Voice.AutoConfirmThreshold != 70 {
		t.Errorf("LoadSettings() = %s/%d, want saved values", got.APIURL, got.Voice.AutoConfirmThreshold)
	}
}

func TestLoadSettingsPartialDocument(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(0)
	_ = store.Set(ctx, SettingsKey, `{"ttlMillis": 1000, "unknown": true}`, 0)

	got, err := LoadSettings(ctx, store, Defaults())
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if got.TTLMillis != 1000 {
		t.Errorf("TTLMillis = %d, want 1000", got.TTLMillis)
	}
	if got.MaxEntries != 1000 || !got.EnableCache {
		t.Errorf("missing keys should keep defaults, got maxEntries=%d enableCache=%v", got.MaxEntries, got.EnableCache)
	}
}
