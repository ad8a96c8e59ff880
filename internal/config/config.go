// Package config holds the construction-time configuration of the core.
// Values come from Defaults, then an optional YAML or TOML file, then
// YGO_* environment variables, and are finally clamped by Normalize.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/codyseavey/ygo-ripper/internal/voice"
)

// EnvPrefix is the prefix of every environment override (YGO_API_URL, ...)
const EnvPrefix = "YGO"

const (
	DefaultAPIURL             = "http://127.0.0.1:8081"
	DefaultCondition          = "near-mint"
	DefaultImageProxyHost     = "images.ygoprodeck.com"
	DefaultDatabasePath       = "ygo-ripper.db"
	defaultTTLMillis          = 60 * 60 * 1000
	defaultHardRefreshMillis  = 24 * 60 * 60 * 1000
	defaultMaxEntries         = 1000
	defaultRequestTimeout     = 120 * 1000
	defaultRetryAttempts      = 3
	defaultRetryBackoff       = 1000
	defaultPersistEveryN      = 10
	defaultImagePersistTTL    = 7 * 24 * 60 * 60 * 1000
	defaultImageProxyTimeout  = 10 * 1000
	defaultImageDirectTimeout = 15 * 1000
	defaultPreloadWorkers     = 4
)

// Config is the full configuration. The top-level keys keep the names the
// browser build used so existing settings files load unchanged.
type Config struct {
	APIURL                 string `yaml:"API_URL" toml:"API_URL" json:"API_URL" envconfig:"API_URL"`
	TTLMillis              int64  `yaml:"ttlMillis" toml:"ttlMillis" json:"ttlMillis" envconfig:"TTL_MILLIS"`
	HardRefreshAfterMillis int64  `yaml:"hardRefreshAfterMillis" toml:"hardRefreshAfterMillis" json:"hardRefreshAfterMillis" envconfig:"HARD_REFRESH_AFTER_MILLIS"`
	MaxEntries             int    `yaml:"maxEntries" toml:"maxEntries" json:"maxEntries" envconfig:"MAX_ENTRIES"`
	RequestTimeoutMillis   int64  `yaml:"requestTimeoutMillis" toml:"requestTimeoutMillis" json:"requestTimeoutMillis" envconfig:"REQUEST_TIMEOUT_MILLIS"`
	RetryAttempts          int    `yaml:"retryAttempts" toml:"retryAttempts" json:"retryAttempts" envconfig:"RETRY_ATTEMPTS"`
	RetryBackoffMillis     int64  `yaml:"retryBackoffMillis" toml:"retryBackoffMillis" json:"retryBackoffMillis" envconfig:"RETRY_BACKOFF_MILLIS"`
	PersistEveryNWrites    int    `yaml:"persistEveryNWrites" toml:"persistEveryNWrites" json:"persistEveryNWrites" envconfig:"PERSIST_EVERY_N_WRITES"`
	EnableCache            bool   `yaml:"enableCache" toml:"enableCache" json:"enableCache" envconfig:"ENABLE_CACHE"`
	DefaultCondition       string `yaml:"defaultCondition" toml:"defaultCondition" json:"defaultCondition" envconfig:"DEFAULT_CONDITION"`

	Voice VoiceConfig `yaml:"voice" toml:"voice" json:"voice" envconfig:"VOICE"`
	Image ImageConfig `yaml:"image" toml:"image" json:"image" envconfig:"IMAGE"`

	DatabasePath string `yaml:"databasePath" toml:"databasePath" json:"databasePath" envconfig:"DATABASE_PATH"`
}

// VoiceConfig mirrors voice.Config with millisecond durations
type VoiceConfig struct {
	Language             string  `yaml:"language" toml:"language" json:"language" envconfig:"LANGUAGE"`
	Continuous           bool    `yaml:"continuous" toml:"continuous" json:"continuous" envconfig:"CONTINUOUS"`
	InterimResults       bool    `yaml:"interimResults" toml:"interimResults" json:"interimResults" envconfig:"INTERIM_RESULTS"`
	MaxAlternatives      int     `yaml:"maxAlternatives" toml:"maxAlternatives" json:"maxAlternatives" envconfig:"MAX_ALTERNATIVES"`
	ConfidenceThreshold  float64 `yaml:"confidenceThreshold" toml:"confidenceThreshold" json:"confidenceThreshold" envconfig:"CONFIDENCE_THRESHOLD"`
	AutoConfirmThreshold int     `yaml:"autoConfirmThreshold" toml:"autoConfirmThreshold" json:"autoConfirmThreshold" envconfig:"AUTO_CONFIRM_THRESHOLD"`
	CardNameOptimization bool    `yaml:"cardNameOptimization" toml:"cardNameOptimization" json:"cardNameOptimization" envconfig:"CARD_NAME_OPTIMIZATION"`
	RetryAttempts        int     `yaml:"retryAttempts" toml:"retryAttempts" json:"retryAttempts" envconfig:"RETRY_ATTEMPTS"`
	TimeoutMillis        int64   `yaml:"timeout" toml:"timeout" json:"timeout" envconfig:"TIMEOUT"`
}

// ImageConfig configures the card image cache
type ImageConfig struct {
	MaxEntries          int      `yaml:"maxEntries" toml:"maxEntries" json:"maxEntries" envconfig:"MAX_ENTRIES"`
	PersistentTTLMillis int64    `yaml:"persistentTtlMillis" toml:"persistentTtlMillis" json:"persistentTtlMillis" envconfig:"PERSISTENT_TTL_MILLIS"`
	ProxyHosts          []string `yaml:"proxyHosts" toml:"proxyHosts" json:"proxyHosts" envconfig:"PROXY_HOSTS"`
	ProxyTimeoutMillis  int64    `yaml:"proxyTimeoutMillis" toml:"proxyTimeoutMillis" json:"proxyTimeoutMillis" envconfig:"PROXY_TIMEOUT_MILLIS"`
	DirectTimeoutMillis int64    `yaml:"directTimeoutMillis" toml:"directTimeoutMillis" json:"directTimeoutMillis" envconfig:"DIRECT_TIMEOUT_MILLIS"`
	PreloadConcurrency  int      `yaml:"preloadConcurrency" toml:"preloadConcurrency" json:"preloadConcurrency" envconfig:"PRELOAD_CONCURRENCY"`
}

// Defaults returns the documented default configuration
func Defaults() Config {
	vd := voice.DefaultConfig()
	return Config{
		APIURL:                 DefaultAPIURL,
		TTLMillis:              defaultTTLMillis,
		HardRefreshAfterMillis: defaultHardRefreshMillis,
		MaxEntries:             defaultMaxEntries,
		RequestTimeoutMillis:   defaultRequestTimeout,
		RetryAttempts:          defaultRetryAttempts,
		RetryBackoffMillis:     defaultRetryBackoff,
		PersistEveryNWrites:    defaultPersistEveryN,
		EnableCache:            true,
		DefaultCondition:       DefaultCondition,
		Voice: VoiceConfig{
			Language:             vd.Language,
			Continuous:           vd.Continuous,
			InterimResults:       vd.InterimResults,
			MaxAlternatives:      vd.MaxAlternatives,
			ConfidenceThreshold:  vd.ConfidenceThreshold,
			AutoConfirmThreshold: vd.AutoConfirmThreshold,
			CardNameOptimization: vd.CardNameOptimization,
			RetryAttempts:        vd.RetryAttempts,
			TimeoutMillis:        vd.Timeout.Milliseconds(),
		},
		Image: ImageConfig{
			MaxEntries:          defaultMaxEntries,
			PersistentTTLMillis: defaultImagePersistTTL,
			ProxyHosts:          []string{DefaultImageProxyHost},
			ProxyTimeoutMillis:  defaultImageProxyTimeout,
			DirectTimeoutMillis: defaultImageDirectTimeout,
			PreloadConcurrency:  defaultPreloadWorkers,
		},
		DatabasePath: DefaultDatabasePath,
	}
}

// Load builds the configuration from defaults, the optional file at path
// (".yaml", ".yml" or ".toml") and the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

// Normalize replaces missing or out-of-range values with defaults or the
// nearest valid value.
func (c *Config) Normalize() {
	d := Defaults()

	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		c.APIURL = d.APIURL
	}
	if c.TTLMillis <= 0 {
		c.TTLMillis = d.TTLMillis
	}
	if c.HardRefreshAfterMillis <= 0 {
		c.HardRefreshAfterMillis = d.HardRefreshAfterMillis
	}
	if c.MaxEntries < 1 {
		c.MaxEntries = d.MaxEntries
	}
	if c.RequestTimeoutMillis <= 0 {
		c.RequestTimeoutMillis = d.RequestTimeoutMillis
	}
	c.RetryAttempts = max(c.RetryAttempts, 0)
	c.RetryBackoffMillis = max(c.RetryBackoffMillis, 0)
	if c.PersistEveryNWrites < 1 {
		c.PersistEveryNWrites = 1
	}
	c.DefaultCondition = strings.TrimSpace(c.DefaultCondition)
	if c.DefaultCondition == "" {
		c.DefaultCondition = d.DefaultCondition
	}

	v := &c.Voice
	if strings.TrimSpace(v.Language) == "" {
		v.Language = d.Voice.Language
	}
	v.MaxAlternatives = clampInt(v.MaxAlternatives, 1, 10)
	v.ConfidenceThreshold = min(max(v.ConfidenceThreshold, 0), 1)
	v.AutoConfirmThreshold = clampInt(v.AutoConfirmThreshold, 0, 100)
	v.RetryAttempts = max(v.RetryAttempts, 0)
	if v.TimeoutMillis <= 0 {
		v.TimeoutMillis = d.Voice.TimeoutMillis
	}

	img := &c.Image
	if img.MaxEntries < 1 {
		img.MaxEntries = d.Image.MaxEntries
	}
	if img.PersistentTTLMillis <= 0 {
		img.PersistentTTLMillis = d.Image.PersistentTTLMillis
	}
	if img.ProxyHosts == nil {
		img.ProxyHosts = d.Image.ProxyHosts
	}
	if img.ProxyTimeoutMillis <= 0 {
		img.ProxyTimeoutMillis = d.Image.ProxyTimeoutMillis
	}
	if img.DirectTimeoutMillis <= 0 {
		img.DirectTimeoutMillis = d.Image.DirectTimeoutMillis
	}
	if img.PreloadConcurrency < 1 {
		img.PreloadConcurrency = d.Image.PreloadConcurrency
	}

	if strings.TrimSpace(c.DatabasePath) == "" {
		c.DatabasePath = d.DatabasePath
	}
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c *Config) TTL() time.Duration              { return millis(c.TTLMillis) }
func (c *Config) HardRefreshAfter() time.Duration { return millis(c.HardRefreshAfterMillis) }
func (c *Config) RequestTimeout() time.Duration   { return millis(c.RequestTimeoutMillis) }
func (c *Config) RetryBackoff() time.Duration     { return millis(c.RetryBackoffMillis) }

func (c *ImageConfig) PersistentTTL() time.Duration { return millis(c.PersistentTTLMillis) }
func (c *ImageConfig) ProxyTimeout() time.Duration  { return millis(c.ProxyTimeoutMillis) }
func (c *ImageConfig) DirectTimeout() time.Duration { return millis(c.DirectTimeoutMillis) }

// VoiceSettings converts the voice section into a recognizer configuration
func (c *Config) VoiceSettings() voice.Config {
	vc := voice.DefaultConfig()
	vc.Language = c.Voice.Language
	vc.Continuous = c.Voice.Continuous
	vc.InterimResults = c.Voice.InterimResults
	vc.MaxAlternatives = c.Voice.MaxAlternatives
	vc.ConfidenceThreshold = c.Voice.ConfidenceThreshold
	vc.AutoConfirmThreshold = c.Voice.AutoConfirmThreshold
	vc.CardNameOptimization = c.Voice.CardNameOptimization
	vc.RetryAttempts = c.Voice.RetryAttempts
	vc.Timeout = millis(c.Voice.TimeoutMillis)
	return vc
}
