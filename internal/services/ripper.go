package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/codyseavey/ygo-ripper/internal/metrics"
	"github.com/codyseavey/ygo-ripper/internal/models"
	"github.com/codyseavey/ygo-ripper/internal/voice"
)

// MaxPromptOptions bounds the printings offered when a dictation is ambiguous
const MaxPromptOptions = 8

// DefaultCardImageSize is the size card thumbnails are rendered at
var DefaultCardImageSize = ImageSize{Width: 100, Height: 145}

// RipperEventType identifies what happened to a dictation
type RipperEventType int

const (
	RipperCardAdded RipperEventType = iota
	RipperPrompt
	RipperNotFound
	RipperRejected
	RipperPriced
	RipperStatus
	RipperError
)

func (t RipperEventType) String() string {
	switch t {
	case RipperCardAdded:
		return "card_added"
	case RipperPrompt:
		return "prompt"
	case RipperNotFound:
		return "not_found"
	case RipperRejected:
		return "rejected"
	case RipperPriced:
		return "priced"
	case RipperStatus:
		return "status"
	case RipperError:
		return "error"
	}
	return "unknown"
}

// PromptOption is one printing offered for selection, numbered from 1
type PromptOption struct {
	Number     int    `json:"number"`
	CatalogID  int64  `json:"catalog_id"`
	CardName   string `json:"card_name"`
	CardNumber string `json:"card_number"`
	Rarity     string `json:"card_rarity"`
	Score      int    `json:"score"`
	ImageURL   string `json:"image_url,omitempty"`

	artVariant string
}

// Prompt asks the user to pick one of several printings
type Prompt struct {
	ID         string         `json:"id"`
	Transcript string         `json:"transcript"`
	Options    []PromptOption `json:"options"`
}

// RipperEvent reports the outcome of a dictation or a background step
type RipperEvent struct {
	Type       RipperEventType
	Transcript string
	Card       *models.SessionCard
	Prompt     *Prompt
	Image      *ImageHandle
	State      voice.State
	Err        error
}

// RipperService runs a pack ripping session: dictated card names are
// resolved against the set catalog, confirmed automatically when the match
// is clear or offered as numbered options otherwise, and recorded in the
// ledger. Confirmed cards are priced and their images loaded in the
// background.
type RipperService struct {
	recognizer *voice.Recognizer
	resolver   *CardResolver
	sessions   *PackSessionService
	prices     *PriceLookupService
	images     *ImageStoreService
	imageSize  ImageSize

	mu        sync.Mutex
	sessionID string
	setCode   string
	catalog   []models.CatalogCard
	names     []string
	pending   *Prompt
	preload   context.CancelFunc

	events    chan RipperEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRipperService wires the pipeline. recognizer and images may be nil
// when only typed dictation is used or images are not wanted.
func NewRipperService(recognizer *voice.Recognizer, resolver *CardResolver, sessions *PackSessionService, prices *PriceLookupService, images *ImageStoreService) *RipperService {
	return &RipperService{
		recognizer: recognizer,
		resolver:   resolver,
		sessions:   sessions,
		prices:     prices,
		images:     images,
		imageSize:  DefaultCardImageSize,
		events:     make(chan RipperEvent, 64),
		done:       make(chan struct{}),
	}
}

// Events returns the pipeline's event stream. It is closed by Close.
func (s *RipperService) Events() <-chan RipperEvent {
	return s.events
}

// Begin starts a ledger session for the set and loads its catalog. Card
// images of the catalog are preloaded in the background.
func (s *RipperService) Begin(ctx context.Context, set models.CardSet, catalog []models.CatalogCard) (*models.PackSession, error) {
	if len(catalog) == 0 {
		return nil, invalidInput(fmt.Errorf("set %q has no cards", set.SetName))
	}
	session, err := s.sessions.StartSession(ctx, set.SetName, set.SetCode)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessionID = session.ID
	s.setCode = session.SetCode
	s.catalog = catalog
	s.names = models.CatalogNames(catalog)
	s.pending = nil
	s.mu.Unlock()
	s.stopPreload()

	infoLog("RIPPER", "Ripping %s (%d cards in catalog)", set.SetName, len(catalog))

	if s.images != nil {
		items := make([]PreloadItem, 0, len(catalog))
		for _, c := range catalog {
			if url := c.ImageURL(true); url != "" {
				items = append(items, PreloadItem{CardID: strconv.FormatInt(c.ID, 10), SourceURL: url})
			}
		}
		pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.mu.Lock()
		s.preload = cancel
		s.mu.Unlock()
		s.goBackground(func() {
			defer cancel()
			if _, err := s.images.Preload(pctx, items, s.imageSize); err != nil {
				debugLog("RIPPER", "Image preload stopped: %v", err)
			}
		})
	}
	return session, nil
}

// Pending returns the prompt waiting for a selection, if any
func (s *RipperService) Pending() *Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Run listens until ctx is done or the recognizer stops for good. Final
// transcripts go through HandleTranscript. The end of dictation input is
// not an error.
func (s *RipperService) Run(ctx context.Context) error {
	if s.recognizer == nil {
		return errors.New("ripper: no recognizer configured")
	}
	if err := s.recognizer.Initialize(ctx); err != nil {
		return err
	}
	if err := s.recognizer.Start(ctx); err != nil {
		return err
	}
	defer s.recognizer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.recognizer.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case voice.EventResult:
				if ev.Result == nil || !ev.Result.IsFinal {
					continue
				}
				if _, err := s.HandleTranscript(ctx, ev.Result.Transcript); err != nil {
					s.emit(RipperEvent{Type: RipperError, Transcript: ev.Result.Transcript, Err: err})
				}
			case voice.EventStatus:
				s.emit(RipperEvent{Type: RipperStatus, State: ev.State})
			case voice.EventError:
				if stop, err := s.handleVoiceError(ctx, ev.Err); stop {
					return err
				}
			}
		}
	}
}

// handleVoiceError re-arms the recognizer after it gave up on a transient
// failure. It reports whether Run should return, and with what.
func (s *RipperService) handleVoiceError(ctx context.Context, verr *voice.Error) (bool, error) {
	if verr == nil {
		return false, nil
	}
	s.emit(RipperEvent{Type: RipperError, Err: verr})

	if verr.Kind == voice.ErrorAborted {
		infoLog("RIPPER", "Dictation ended")
		return true, nil
	}
	if !verr.Retryable() {
		return true, verr
	}
	if s.recognizer.State() != voice.StateError {
		// still recovering on its own
		return false, nil
	}
	infoLog("RIPPER", "Restarting recognizer after %v", verr)
	if err := s.recognizer.Start(ctx); err != nil {
		return true, err
	}
	return false, nil
}

// HandleTranscript processes one final dictation. While a prompt is pending
// the text is first read as a selection; anything that is not a selection
// or rejection is treated as a new card.
func (s *RipperService) HandleTranscript(ctx context.Context, transcript string) (RipperEvent, error) {
	text := strings.TrimSpace(transcript)

	s.mu.Lock()
	sessionID := s.sessionID
	pending := s.pending
	s.mu.Unlock()

	if sessionID == "" {
		return RipperEvent{}, ErrNoActiveSession
	}

	if pending != nil {
		sel := ParseSelection(text, len(pending.Options))
		switch sel.Kind {
		case SelectionOption:
			s.clearPending(pending)
			opt := pending.Options[sel.Index]
			return s.confirm(ctx, sessionID, opt, models.SessionCardSelected, pending.Transcript)
		case SelectionReject:
			s.clearPending(pending)
			metrics.RipperDecisions.WithLabelValues("rejected").Inc()
			ev := RipperEvent{Type: RipperRejected, Transcript: text, Prompt: pending}
			s.emit(ev)
			return ev, nil
		case SelectionOutOfRange:
			ev := RipperEvent{
				Type:       RipperError,
				Transcript: text,
				Prompt:     pending,
				Err:        invalidInput(fmt.Errorf("choose an option from 1 to %d", len(pending.Options))),
			}
			s.emit(ev)
			return ev, nil
		}
		s.clearPending(pending)
	}

	u := ParseUtterance(text)
	if u.CardName == "" {
		return s.notFound(text), nil
	}

	s.mu.Lock()
	names := s.names
	catalog := s.catalog
	setCode := s.setCode
	s.mu.Unlock()

	d := s.resolver.Decide(u.CardName, names)
	if len(d.Candidates) > 0 {
		metrics.MatchScoreHistogram.Observe(float64(d.Candidates[0].Score))
	}
	options, topPrintings := buildOptions(d, catalog, setCode, u)
	if len(options) == 0 {
		return s.notFound(text), nil
	}
	debugLog("RIPPER", "%q -> %s (%d options)", text, d.Kind, len(options))

	if d.Kind == DecisionAutoConfirm && topPrintings == 1 {
		return s.confirm(ctx, sessionID, options[0], models.SessionCardAutoConfirmed, text)
	}

	prompt := &Prompt{ID: uuid.New().String(), Transcript: text, Options: options}
	s.mu.Lock()
	s.pending = prompt
	s.mu.Unlock()
	metrics.RipperDecisions.WithLabelValues("prompt").Inc()

	ev := RipperEvent{Type: RipperPrompt, Transcript: text, Prompt: prompt}
	s.emit(ev)
	return ev, nil
}

// buildOptions expands the ranked cards into printings of the session's set.
// A spoken rarity narrows each card to the matching printing when there is
// one. It also returns how many options belong to the top card.
func buildOptions(d Decision, catalog []models.CatalogCard, setCode string, u Utterance) ([]PromptOption, int) {
	var options []PromptOption
	topPrintings := 0
	for i, m := range d.Candidates {
		if m.Index < 0 || m.Index >= len(catalog) {
			continue
		}
		card := &catalog[m.Index]

		printings := card.PrintingsIn(setCode)
		if u.Rarity != "" {
			if p, ok := card.Printing(setCode, u.Rarity); ok {
				printings = []models.CardPrinting{p}
			}
		}
		if len(printings) == 0 {
			printings = []models.CardPrinting{{SetRarity: u.Rarity}}
		}

		for _, p := range printings {
			if len(options) == MaxPromptOptions {
				return options, topPrintings
			}
			options = append(options, PromptOption{
				Number:     len(options) + 1,
				CatalogID:  card.ID,
				CardName:   card.Name,
				CardNumber: p.SetCode,
				Rarity:     p.SetRarity,
				Score:      m.Score,
				ImageURL:   card.ImageURL(true),
				artVariant: u.ArtVariant,
			})
			if i == 0 {
				topPrintings++
			}
		}
	}
	return options, topPrintings
}

func (s *RipperService) clearPending(p *Prompt) {
	s.mu.Lock()
	if s.pending == p {
		s.pending = nil
	}
	s.mu.Unlock()
}

func (s *RipperService) notFound(text string) RipperEvent {
	metrics.RipperDecisions.WithLabelValues("none").Inc()
	ev := RipperEvent{Type: RipperNotFound, Transcript: text}
	s.emit(ev)
	return ev
}

// confirm records the option in the ledger and starts pricing it
func (s *RipperService) confirm(ctx context.Context, sessionID string, opt PromptOption, source models.SessionCardSource, transcript string) (RipperEvent, error) {
	card, err := s.sessions.AddCard(ctx, sessionID, models.SessionCard{
		CardName:   opt.CardName,
		CardNumber: opt.CardNumber,
		Rarity:     opt.Rarity,
		ArtVariant: opt.artVariant,
		Source:     source,
		MatchScore: opt.Score,
		Transcript: transcript,
		ImageURL:   opt.ImageURL,
	})
	if err != nil {
		return RipperEvent{}, err
	}
	metrics.RipperDecisions.WithLabelValues(string(source)).Inc()
	infoLog("RIPPER", "Added %s %s %s (x%d, %s)", card.CardName, card.CardNumber, card.Rarity, card.Quantity, source)

	ev := RipperEvent{Type: RipperCardAdded, Transcript: transcript, Card: card}
	s.emit(ev)

	priced := *card
	imageID := strconv.FormatInt(opt.CatalogID, 10)
	s.goBackground(func() {
		s.enrich(context.WithoutCancel(ctx), &priced, imageID)
	})
	return ev, nil
}

// enrich prices a confirmed card and loads its image
func (s *RipperService) enrich(ctx context.Context, card *models.SessionCard, imageID string) {
	ev := RipperEvent{Type: RipperPriced, Transcript: card.Transcript, Card: card}

	if s.prices != nil {
		res, err := s.prices.Lookup(ctx, card.Query())
		if err != nil {
			infoLog("RIPPER", "No price for %s: %v", card.CardName, err)
			card.PriceError = err.Error()
			ev.Err = err
			if rerr := s.sessions.RecordPriceError(ctx, card.ID, err); rerr != nil {
				debugLog("RIPPER", "Failed to record price error: %v", rerr)
			}
		} else {
			card.ApplyPrice(res.Record, s.sessions.now())
			if aerr := s.sessions.ApplyPrice(ctx, card.ID, res.Record); aerr != nil {
				infoLog("RIPPER", "Failed to store price for %s: %v", card.CardName, aerr)
			}
		}
	}

	if s.images != nil && card.ImageURL != "" {
		ev.Image = s.images.LoadImage(ctx, imageID, card.ImageURL, s.imageSize, nil)
	}
	s.emit(ev)
}

// End stops listening and closes the session
func (s *RipperService) End(ctx context.Context) (*models.PackSession, error) {
	if s.recognizer != nil {
		s.recognizer.Stop()
	}
	s.mu.Lock()
	id := s.sessionID
	s.sessionID = ""
	s.pending = nil
	s.mu.Unlock()
	s.stopPreload()

	if id == "" {
		return nil, ErrNoActiveSession
	}
	s.wg.Wait()
	return s.sessions.EndSession(ctx, id)
}

// Wait blocks until background pricing and image loads finish
func (s *RipperService) Wait() {
	s.wg.Wait()
}

// Close waits for background work and closes the event stream. Events
// emitted while closing are dropped.
func (s *RipperService) Close() {
	s.closeOnce.Do(func() {
		s.stopPreload()
		close(s.done)
		s.wg.Wait()
		close(s.events)
	})
}

func (s *RipperService) stopPreload() {
	s.mu.Lock()
	cancel := s.preload
	s.preload = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *RipperService) goBackground(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *RipperService) emit(ev RipperEvent) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
