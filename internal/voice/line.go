package voice

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// LineEngine treats each non-empty line of a reader as a final utterance.
// It backs the command line ripper, where a speech-to-text tool (or the
// user) writes one card per line to stdin.
type LineEngine struct {
	r io.Reader

	once  sync.Once
	lines chan string
	err   error
}

// NewLineEngine creates an engine reading from r
func NewLineEngine(r io.Reader) *LineEngine {
	return &LineEngine{r: r}
}

func (e *LineEngine) Name() string { return "line" }

func (e *LineEngine) Available() bool { return e.r != nil }

func (e *LineEngine) RequestPermission(ctx context.Context) error {
	return ctx.Err()
}

// Start opens a stream. All streams share one scanner, so a line is
// delivered to exactly one stream.
func (e *LineEngine) Start(ctx context.Context, cfg EngineConfig) (Stream, error) {
	if e.r == nil {
		return nil, NewError(ErrorNotSupported, "no input")
	}
	e.once.Do(func() {
		e.lines = make(chan string)
		go e.scan()
	})

	ctx, cancel := context.WithCancel(ctx)
	s := &lineStream{events: make(chan EngineEvent), cancel: cancel}
	go s.forward(ctx, e, cfg.Continuous)
	return s, nil
}

func (e *LineEngine) scan() {
	defer close(e.lines)
	sc := bufio.NewScanner(e.r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e.lines <- line
	}
	e.err = sc.Err()
}

type lineStream struct {
	events chan EngineEvent
	cancel context.CancelFunc
}

func (s *lineStream) Events() <-chan EngineEvent { return s.events }

func (s *lineStream) Stop() { s.cancel() }

func (s *lineStream) forward(ctx context.Context, e *LineEngine, continuous bool) {
	defer close(s.events)
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case line, ok = <-e.lines:
		}

		if !ok {
			ev := EngineEvent{Err: NewError(ErrorAborted, "input closed")}
			if e.err != nil {
				ev.Err = &Error{Kind: ErrorUnknown, Message: "read input", Err: e.err}
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
			}
			return
		}

		select {
		case s.events <- EngineEvent{Result: &EngineResult{Transcript: line, Confidence: 1, IsFinal: true}}:
		case <-ctx.Done():
			return
		}
		if !continuous {
			return
		}
	}
}
