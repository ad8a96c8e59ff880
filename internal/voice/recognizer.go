package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codyseavey/ygo-ripper/internal/metrics"
	"github.com/codyseavey/ygo-ripper/internal/retry"
)

// State is the lifecycle state of a Recognizer
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateListening     State = "listening"
	StateRecovering    State = "recovering"
	StateError         State = "error"
	StateUnavailable   State = "unavailable"
)

// EventType distinguishes the events of a Recognizer
type EventType int

const (
	EventResult EventType = iota
	EventStatus
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventResult:
		return "result"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Result is a delivered transcript
type Result struct {
	Transcript         string        `json:"transcript"`
	OriginalTranscript string        `json:"original_transcript"`
	Confidence         float64       `json:"confidence"`
	IsFinal            bool          `json:"is_final"`
	Alternatives       []Alternative `json:"alternatives,omitempty"`
	Engine             string        `json:"engine"`
}

// Event is one item of the recognizer's event stream. Exactly one of
// Result, State (for EventStatus) or Err is meaningful, according to Type.
type Event struct {
	Type   EventType
	Result *Result
	State  State
	Err    *Error
}

// Recognizer wraps an Engine with lifecycle, filtering, normalization and
// recovery. Events are delivered in order on a single channel.
type Recognizer struct {
	engine     Engine
	cfg        Config
	normalizer *Normalizer
	queue      *eventQueue

	initOnce sync.Once
	initErr  error

	mu      sync.Mutex
	state   State
	runID   uint64
	cancel  context.CancelFunc
	lastErr *Error
	closed  bool
	wg      sync.WaitGroup
}

// New creates a recognizer in the uninitialized state. Call Initialize
// before Start, and Close when done.
func New(engine Engine, cfg Config) *Recognizer {
	cfg = cfg.withDefaults()
	r := &Recognizer{
		engine:     engine,
		cfg:        cfg,
		normalizer: NewNormalizer(nil),
		queue:      newEventQueue(cfg.EventBuffer),
		state:      StateUninitialized,
	}
	go r.queue.pump()
	return r
}

// Events returns the event stream. It is closed by Close.
func (r *Recognizer) Events() <-chan Event {
	return r.queue.out
}

// State returns the current lifecycle state
func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastError returns the error that moved the recognizer to error or
// unavailable, if any
func (r *Recognizer) LastError() *Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Config returns the effective configuration
func (r *Recognizer) Config() Config {
	return r.cfg
}

// Initialize checks engine capability and microphone permission. It runs
// once; later and concurrent calls return the same outcome.
func (r *Recognizer) Initialize(ctx context.Context) error {
	r.initOnce.Do(func() {
		if !r.engine.Available() {
			verr := NewError(ErrorNotSupported, fmt.Sprintf("speech engine %q is not available", r.engine.Name()))
			r.initErr = verr
			r.fail(0, verr, StateUnavailable)
			return
		}
		if err := r.engine.RequestPermission(ctx); err != nil {
			verr := AsError(err)
			if verr.Kind == ErrorUnknown {
				verr = &Error{Kind: ErrorPermissionDenied, Message: "microphone access refused", Err: err}
			}
			r.initErr = verr
			to := StateError
			if verr.Kind == ErrorNotSupported {
				to = StateUnavailable
			}
			r.fail(0, verr, to)
			return
		}
		r.transition(0, StateReady)
		r.cfg.Logf("[VOICE] %s engine ready (%s)", r.engine.Name(), r.cfg.Language)
	})
	return r.initErr
}

// Start begins listening. It returns immediately; results and state
// changes arrive on Events. Starting while already listening is a no-op.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	switch r.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateUnavailable:
		return r.initErr
	case StateListening, StateRecovering:
		return nil
	case StateError:
		if r.initErr != nil {
			return r.initErr
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.runID++
	r.cancel = cancel
	r.lastErr = nil
	r.setStateLocked(StateListening)

	r.wg.Add(1)
	go r.run(runCtx, r.runID)
	return nil
}

// Stop ends listening and returns to ready. Work already in flight is
// dropped; nothing is delivered after Stop returns.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Recognizer) stopLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.runID++
	if r.state != StateUninitialized && r.state != StateUnavailable {
		r.setStateLocked(StateReady)
	}
}

// Close stops the recognizer, waits for its goroutines and closes Events
func (r *Recognizer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.stopLocked()
	r.mu.Unlock()

	r.wg.Wait()
	r.queue.close()
}

// Test runs a single-shot recognition and returns the first final
// transcript. It fails on an engine error or after Config.TestTimeout.
func (r *Recognizer) Test(ctx context.Context) (string, error) {
	switch r.State() {
	case StateUninitialized:
		return "", ErrNotInitialized
	case StateUnavailable:
		return "", r.initErr
	case StateListening, StateRecovering:
		return "", ErrBusy
	}
	if r.initErr != nil {
		return "", r.initErr
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.TestTimeout)
	defer cancel()

	stream, err := r.engine.Start(ctx, r.engineConfig(false, false))
	if err != nil {
		return "", AsError(err)
	}
	defer stream.Stop()

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return "", &Error{Kind: ErrorTimeout, Message: fmt.Sprintf("no result within %s", r.cfg.TestTimeout), Err: ctx.Err()}
		case ev, ok := <-events:
			if !ok {
				return "", NewError(ErrorNoSpeech, "recognition ended without a result")
			}
			if ev.Err != nil {
				return "", ev.Err
			}
			if ev.Result != nil && ev.Result.IsFinal {
				return r.buildResult(ev.Result).Transcript, nil
			}
		}
	}
}

func (r *Recognizer) engineConfig(continuous, interim bool) EngineConfig {
	return EngineConfig{
		Language:        r.cfg.Language,
		Continuous:      continuous,
		InterimResults:  interim,
		MaxAlternatives: r.cfg.MaxAlternatives,
	}
}

// run drives one Start lifetime: open a stream, consume it, and re-arm
// after stream ends (continuous mode) or retryable errors.
func (r *Recognizer) run(ctx context.Context, id uint64) {
	defer r.wg.Done()
	defer func() {
		// Caller context cancelled without Stop
		if ctx.Err() != nil {
			r.transition(id, StateReady)
		}
	}()

	backoff := retry.NewLinear(r.cfg.RetryDelay, r.cfg.RetryMaxDelay)
	retries := 0

	for ctx.Err() == nil {
		stream, err := r.engine.Start(ctx, r.engineConfig(r.cfg.Continuous, r.cfg.InterimResults))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !r.recover(ctx, id, AsError(err), &retries, backoff) {
				return
			}
			continue
		}

		if !r.transition(id, StateListening) {
			stream.Stop()
			return
		}
		verr := r.consume(ctx, id, stream)
		stream.Stop()

		if ctx.Err() != nil {
			return
		}
		if verr != nil {
			if !r.recover(ctx, id, verr, &retries, backoff) {
				return
			}
			continue
		}
		if !r.cfg.Continuous {
			r.mu.Lock()
			if id == r.runID {
				r.cancel = nil
				r.setStateLocked(StateReady)
			}
			r.mu.Unlock()
			return
		}
	}
}

// consume reads a stream until it ends, fails or stays idle for Timeout
func (r *Recognizer) consume(ctx context.Context, id uint64, stream Stream) *Error {
	idle := time.NewTimer(r.cfg.Timeout)
	defer idle.Stop()

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
			return NewError(ErrorTimeout, fmt.Sprintf("no speech for %s", r.cfg.Timeout))
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				return ev.Err
			}
			if ev.Result == nil {
				continue
			}
			idle.Reset(r.cfg.Timeout)
			r.deliver(id, ev.Result)
		}
	}
}

// recover decides what follows an engine error. It returns true when the
// caller should re-arm the engine.
func (r *Recognizer) recover(ctx context.Context, id uint64, verr *Error, retries *int, backoff *retry.Linear) bool {
	metrics.VoiceErrors.WithLabelValues(string(verr.Kind)).Inc()

	if !verr.Retryable() {
		to := StateError
		if verr.Kind == ErrorNotSupported {
			to = StateUnavailable
		}
		r.cfg.Logf("[VOICE] %v", verr)
		r.fail(id, verr, to)
		return false
	}
	if *retries >= r.cfg.RetryAttempts {
		r.cfg.Logf("[VOICE] giving up after %d retries: %v", *retries, verr)
		r.fail(id, verr, StateError)
		return false
	}

	*retries++
	delay := backoff.NextBackOff()
	metrics.VoiceRecoveries.Inc()
	r.cfg.Logf("[VOICE] %s, retry %d/%d in %s", verr.Kind, *retries, r.cfg.RetryAttempts, delay)
	if !r.transition(id, StateRecovering) {
		return false
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Recognizer) deliver(id uint64, raw *EngineResult) {
	if raw.Confidence < r.cfg.ConfidenceThreshold || (!r.cfg.InterimResults && !raw.IsFinal) {
		metrics.VoiceSuppressed.Inc()
		return
	}
	res := r.buildResult(raw)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id != r.runID {
		return
	}
	r.pushLocked(Event{Type: EventResult, Result: res})
}

func (r *Recognizer) buildResult(raw *EngineResult) *Result {
	res := &Result{
		Transcript:         raw.Transcript,
		OriginalTranscript: raw.Transcript,
		Confidence:         raw.Confidence,
		IsFinal:            raw.IsFinal,
		Engine:             r.engine.Name(),
	}
	if r.cfg.CardNameOptimization {
		res.Transcript = r.normalizer.Normalize(raw.Transcript)
	}

	alts := raw.Alternatives
	if len(alts) > r.cfg.MaxAlternatives {
		alts = alts[:r.cfg.MaxAlternatives]
	}
	for _, a := range alts {
		if r.cfg.CardNameOptimization {
			a.Transcript = r.normalizer.Normalize(a.Transcript)
		}
		res.Alternatives = append(res.Alternatives, a)
	}
	return res
}

// transition moves to state when run id is current (0 means always).
// It returns false when the run has been superseded by Stop or Start.
func (r *Recognizer) transition(id uint64, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != 0 && id != r.runID {
		return false
	}
	r.setStateLocked(to)
	return true
}

func (r *Recognizer) fail(id uint64, verr *Error, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != 0 && id != r.runID {
		return
	}
	r.lastErr = verr
	if id != 0 {
		r.cancel = nil
	}
	r.pushLocked(Event{Type: EventError, Err: verr})
	r.setStateLocked(to)
}

func (r *Recognizer) setStateLocked(to State) {
	if r.state == to {
		return
	}
	r.state = to
	r.pushLocked(Event{Type: EventStatus, State: to})
}

func (r *Recognizer) pushLocked(ev Event) {
	metrics.VoiceEvents.WithLabelValues(ev.Type.String()).Inc()
	r.queue.push(ev)
}

// eventQueue decouples producers from the consumer: pushes never block and
// the pump delivers in push order.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	notify chan struct{}
	done   chan struct{}
	out    chan Event
}

func newEventQueue(buffer int) *eventQueue {
	return &eventQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Event, buffer),
	}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.notify:
				continue
			case <-q.done:
				return
			}
		}
		ev := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}

// close stops the pump; undelivered events are dropped
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
