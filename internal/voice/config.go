package voice

import (
	"log"
	"time"
)

// Config controls a Recognizer
type Config struct {
	Language             string
	Continuous           bool
	InterimResults       bool
	MaxAlternatives      int
	ConfidenceThreshold  float64 // results below are not delivered
	AutoConfirmThreshold int     // consumed by the card resolver, carried here with the other voice settings
	CardNameOptimization bool
	RetryAttempts        int           // recovery attempts per Start
	Timeout              time.Duration // idle bound before a recovery cycle
	RetryDelay           time.Duration
	RetryMaxDelay        time.Duration
	TestTimeout          time.Duration
	EventBuffer          int

	// Logf receives diagnostic lines; nil means log.Printf
	Logf func(format string, args ...any)
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Language:             "en-US",
		Continuous:           true,
		InterimResults:       true,
		MaxAlternatives:      3,
		ConfidenceThreshold:  0,
		AutoConfirmThreshold: 85,
		CardNameOptimization: true,
		RetryAttempts:        3,
		Timeout:              10 * time.Second,
		RetryDelay:           time.Second,
		RetryMaxDelay:        5 * time.Second,
		TestTimeout:          10 * time.Second,
		EventBuffer:          64,
	}
}

// withDefaults fills zero and out-of-range values
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Language == "" {
		c.Language = d.Language
	}
	c.MaxAlternatives = min(max(c.MaxAlternatives, 1), 10)
	c.ConfidenceThreshold = min(max(c.ConfidenceThreshold, 0), 1)
	c.AutoConfirmThreshold = min(max(c.AutoConfirmThreshold, 0), 100)
	c.RetryAttempts = max(c.RetryAttempts, 0)
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.TestTimeout <= 0 {
		c.TestTimeout = d.TestTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	return c
}
