// Package voice turns a platform speech engine into an ordered stream of
// normalized transcripts. The Recognizer owns the lifecycle (ready,
// listening, recovering) and retries transient engine failures; engines only
// have to produce raw results.
package voice

import "context"

// Alternative is one candidate transcript for an utterance
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// EngineResult is a raw recognition result as produced by an engine
type EngineResult struct {
	Transcript   string
	Confidence   float64
	IsFinal      bool
	Alternatives []Alternative
}

// EngineEvent carries either a result or an error from an engine stream
type EngineEvent struct {
	Result *EngineResult
	Err    *Error
}

// EngineConfig is what the recognizer asks of an engine for one stream
type EngineConfig struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// Engine is the platform speech recognizer
type Engine interface {
	Name() string
	// Available reports whether the platform can recognize speech at all
	Available() bool
	// RequestPermission asks for microphone access. A refusal is reported
	// as an *Error of kind ErrorPermissionDenied.
	RequestPermission(ctx context.Context) error
	// Start opens a recognition stream. The stream ends when its Events
	// channel is closed; in non-continuous mode that happens after the
	// first final result.
	Start(ctx context.Context, cfg EngineConfig) (Stream, error)
}

// Stream is one open recognition session
type Stream interface {
	Events() <-chan EngineEvent
	// Stop ends the stream. Calling it more than once is safe.
	Stop()
}
