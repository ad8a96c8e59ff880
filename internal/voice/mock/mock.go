// Package mock provides a scripted voice.Engine for tests.
//
// Each call to Start plays the next Script; once the scripts run out the
// last one is replayed. A Script sends its events in order and then closes
// the stream, unless KeepOpen is set, in which case the stream stays open
// until Stop.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/codyseavey/ygo-ripper/internal/voice"
)

// Script is what one stream delivers
type Script struct {
	Events   []voice.EngineEvent
	Delay    time.Duration // before each event
	KeepOpen bool
}

// Engine is a mock implementation of voice.Engine
type Engine struct {
	mu sync.Mutex

	EngineName    string
	Unavailable   bool
	PermissionErr error
	Scripts       []Script

	// StartErrs[i], if non-nil, is returned by the i-th Start call
	StartErrs []error

	StartCalls      []voice.EngineConfig
	PermissionCalls int
	Streams         []*Stream
}

var _ voice.Engine = (*Engine)(nil)

func (e *Engine) Name() string {
	if e.EngineName == "" {
		return "mock"
	}
	return e.EngineName
}

func (e *Engine) Available() bool { return !e.Unavailable }

func (e *Engine) RequestPermission(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PermissionCalls++
	return e.PermissionErr
}

func (e *Engine) Start(ctx context.Context, cfg voice.EngineConfig) (voice.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := len(e.StartCalls)
	e.StartCalls = append(e.StartCalls, cfg)
	if i < len(e.StartErrs) && e.StartErrs[i] != nil {
		return nil, e.StartErrs[i]
	}

	script := Script{KeepOpen: true}
	if len(e.Scripts) > 0 {
		script = e.Scripts[min(i, len(e.Scripts)-1)]
	}

	s := &Stream{events: make(chan voice.EngineEvent), stop: make(chan struct{})}
	e.Streams = append(e.Streams, s)
	go s.play(ctx, script)
	return s, nil
}

// StartCount returns how many times Start was called
func (e *Engine) StartCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.StartCalls)
}

// Stream returns the stream opened by the i-th successful Start call
func (e *Engine) Stream(i int) *Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Streams[i]
}

// LastConfig returns the EngineConfig of the latest Start call
func (e *Engine) LastConfig() voice.EngineConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.StartCalls) == 0 {
		return voice.EngineConfig{}
	}
	return e.StartCalls[len(e.StartCalls)-1]
}

// Stream is a mock implementation of voice.Stream
type Stream struct {
	events chan voice.EngineEvent

	mu        sync.Mutex
	stop      chan struct{}
	stopCount int
}

func (s *Stream) Events() <-chan voice.EngineEvent { return s.events }

func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCount == 0 {
		close(s.stop)
	}
	s.stopCount++
}

// StopCount returns how many times Stop was called
func (s *Stream) StopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCount
}

func (s *Stream) play(ctx context.Context, script Script) {
	defer close(s.events)
	for _, ev := range script.Events {
		if script.Delay > 0 {
			select {
			case <-time.After(script.Delay):
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case s.events <- ev:
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
	if script.KeepOpen {
		select {
		case <-s.stop:
		case <-ctx.Done():
		}
	}
}

// Result builds a result event
func Result(transcript string, confidence float64, final bool, alternatives ...voice.Alternative) voice.EngineEvent {
	return voice.EngineEvent{Result: &voice.EngineResult{
		Transcript:   transcript,
		Confidence:   confidence,
		IsFinal:      final,
		Alternatives: alternatives,
	}}
}

// Fail builds an error event
func Fail(kind voice.ErrorKind) voice.EngineEvent {
	return voice.EngineEvent{Err: voice.NewError(kind, "")}
}
