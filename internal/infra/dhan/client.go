package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"indexwatch/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Client fetches the last traded price for a single configured instrument
// from the Dhan market-quote API. It never retries on its own; the
// orchestrator owns retry policy.
type Client struct {
	baseURL         string
	clientID        string
	accessToken     string
	securityID      string
	exchangeSegment string
	httpClient      *http.Client
	limiter         *rate.Limiter
	feed            *Feed
}

// Options configures a Client.
type Options struct {
	BaseURL         string
	ClientID        string
	AccessToken     string
	SecurityID      string
	ExchangeSegment string
	RateLimitPerMin int
	Feed            *Feed // optional live feed, consulted before REST
}

// NewClient creates a quote client for one instrument.
func NewClient(opts Options) (*Client, error) {
	if opts.ClientID == "" || opts.AccessToken == "" {
		return nil, &domain.InitError{
			Field: "dhan credentials",
			Err:   fmt.Errorf("client id and access token are required"),
		}
	}
	if opts.SecurityID == "" || opts.ExchangeSegment == "" {
		return nil, &domain.InitError{
			Field: "dhan instrument",
			Err:   fmt.Errorf("security id and exchange segment are required"),
		}
	}
	perMin := opts.RateLimitPerMin
	if perMin <= 0 {
		perMin = 10
	}
	return &Client{
		baseURL:         opts.BaseURL,
		clientID:        opts.ClientID,
		accessToken:     opts.AccessToken,
		securityID:      opts.SecurityID,
		exchangeSegment: opts.ExchangeSegment,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1),
		feed:    opts.Feed,
	}, nil
}

// Quote returns the current last traded price. A fresh live-feed tick
// short-circuits the REST call. Failures map to the domain taxonomy:
// ErrQuoteUnavailable, ErrMalformedQuote, ErrInstrumentNotFound.
func (c *Client) Quote(ctx context.Context) (decimal.Decimal, error) {
	if c.feed != nil {
		if price, ok := c.feed.Last(); ok {
			return price, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}

	body, err := json.Marshal(ltpRequest{
		c.exchangeSegment: {json.Number(c.securityID)},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/marketfeed/ltp", bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", c.accessToken)
	req.Header.Set("client-id", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, domain.NewTransportError("fetch", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Zero, fmt.Errorf("%w: %s/%s", domain.ErrInstrumentNotFound, c.exchangeSegment, c.securityID)
	case resp.StatusCode != http.StatusOK:
		return decimal.Zero, fmt.Errorf("%w: unexpected status code %d", domain.ErrQuoteUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrQuoteUnavailable, err)
	}

	var parsed ltpResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrMalformedQuote, err)
	}

	segment, ok := parsed.Data[c.exchangeSegment]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: missing segment %q", domain.ErrMalformedQuote, c.exchangeSegment)
	}
	tick, ok := segment[c.securityID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", domain.ErrInstrumentNotFound, c.exchangeSegment, c.securityID)
	}
	if tick.LastPrice == nil {
		return decimal.Zero, fmt.Errorf("%w: missing last_price", domain.ErrMalformedQuote)
	}

	price := decimal.NewFromFloat(*tick.LastPrice)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", domain.ErrMalformedQuote, price)
	}
	return price, nil
}
