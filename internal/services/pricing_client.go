package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/codyseavey/ygo-ripper/internal/metrics"
	"github.com/codyseavey/ygo-ripper/internal/models"
)

// PricingClient talks to the pricing backend: price lookups, the card image
// proxy and the set catalog.
type PricingClient struct {
	client  *resty.Client
	apiBase string
}

// envelope is the backend's response wrapper
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type priceRequest struct {
	CardNumber   string `json:"card_number"`
	CardName     string `json:"card_name"`
	CardRarity   string `json:"card_rarity"`
	ArtVariant   string `json:"art_variant"`
	ForceRefresh bool   `json:"force_refresh"`
}

// NewPricingClient creates a client for the backend at apiBase. timeout
// bounds every request that does not carry a shorter context deadline.
func NewPricingClient(apiBase string, timeout time.Duration) *PricingClient {
	c := resty.New().
		SetBaseURL(apiBase).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &PricingClient{client: metrics.InstrumentClient(c), apiBase: apiBase}
}

// APIBase returns the backend base URL
func (c *PricingClient) APIBase() string {
	return c.apiBase
}

// FetchPrice posts the query to the backend and returns the decoded record.
// Aggregates are not computed here.
func (c *PricingClient) FetchPrice(ctx context.Context, q models.CardQuery) (*models.PriceRecord, error) {
	body := priceRequest{
		CardNumber:   q.CardNumber,
		CardName:     q.CardName,
		CardRarity:   q.Rarity,
		ArtVariant:   q.ArtVariant,
		ForceRefresh: q.ForceRefresh,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&body).
		Post("/cards/price")
	if err != nil {
		return nil, c.transportError(err)
	}

	var env envelope[*models.PriceRecord]
	if err := c.decode(resp, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, &BackendError{APIBase: c.apiBase, StatusCode: resp.StatusCode(), Message: "response has no data"}
	}
	return env.Data, nil
}

// ListSets returns every set the backend has cached
func (c *PricingClient) ListSets(ctx context.Context) ([]models.CardSet, error) {
	var env envelope[[]models.CardSet]
	if err := c.get(ctx, "/card-sets/from-cache", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// SearchSets returns the sets whose name matches term
func (c *PricingClient) SearchSets(ctx context.Context, term string) ([]models.CardSet, error) {
	var env envelope[[]models.CardSet]
	params := map[string]string{"term": term}
	if err := c.get(ctx, "/card-sets/search/{term}", params, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// SetCards returns the catalog of a set
func (c *PricingClient) SetCards(ctx context.Context, setName string) ([]models.CatalogCard, error) {
	var env envelope[[]models.CatalogCard]
	params := map[string]string{"set": setName}
	if err := c.get(ctx, "/card-sets/{set}/cards", params, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// FetchImage downloads image bytes, through the backend proxy when
// viaProxy is set and directly otherwise. No credentials are sent on
// direct requests.
func (c *PricingClient) FetchImage(ctx context.Context, sourceURL string, viaProxy bool) ([]byte, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "image/*")

	var resp *resty.Response
	var err error
	if viaProxy {
		resp, err = req.SetQueryParam("url", sourceURL).Get("/cards/image")
	} else {
		resp, err = req.Get(sourceURL)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", sourceURL, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("download %s: HTTP %d", sourceURL, resp.StatusCode())
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("download %s: empty body", sourceURL)
	}
	return resp.Body(), nil
}

func (c *PricingClient) get(ctx context.Context, path string, params map[string]string, env interface{ ok() (bool, string) }) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(params).
		Get(path)
	if err != nil {
		return c.transportError(err)
	}
	return c.decode(resp, env)
}

// decode unmarshals an envelope and turns non-2xx statuses and
// success=false bodies into a BackendError
func (c *PricingClient) decode(resp *resty.Response, env interface{ ok() (bool, string) }) error {
	status := resp.StatusCode()
	if !resp.IsSuccess() {
		msg := http.StatusText(status)
		if json.Unmarshal(resp.Body(), env) == nil {
			if _, m := env.ok(); m != "" {
				msg = m
			}
		}
		return &BackendError{APIBase: c.apiBase, StatusCode: status, Message: msg}
	}
	if err := json.Unmarshal(resp.Body(), env); err != nil {
		return &BackendError{APIBase: c.apiBase, StatusCode: status, Message: "invalid response body", Err: err}
	}
	if success, msg := env.ok(); !success {
		if msg == "" {
			msg = "request was not successful"
		}
		return &BackendError{APIBase: c.apiBase, StatusCode: status, Message: msg}
	}
	return nil
}

func (e *envelope[T]) ok() (bool, string) {
	return e.Success, e.Message
}

func (c *PricingClient) transportError(err error) error {
	return &BackendError{APIBase: c.apiBase, Err: err, transport: true}
}
