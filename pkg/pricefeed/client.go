package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownSymbol = errors.New("no price id configured for symbol")
	ErrMissingQuote  = errors.New("price feed returned no quote")
	ErrInvalidQuote  = errors.New("price feed returned a non-positive rate")
)

// Quote is a token to settlement currency rate.
type Quote struct {
	Symbol    string
	Rate      decimal.Decimal
	FetchedAt time.Time
}

// Client fetches spot rates from a CoinGecko compatible /simple/price endpoint.
type Client struct {
	rest     *resty.Client
	currency string
	priceIDs map[string]string
	now      func() time.Time
}

// New builds a client for the given tokens. Symbols without a price id are rejected at quote time.
func New(cfg config.PriceFeedConfig, tokens map[string]config.Token) *Client {
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	ids := make(map[string]string, len(tokens))
	for symbol, token := range tokens {
		if token.PriceID != "" {
			ids[strings.ToUpper(symbol)] = token.PriceID
		}
	}

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.APIKey != "" {
		rc.SetHeader("x-cg-pro-api-key", cfg.APIKey)
	}

	return &Client{
		rest:     rc,
		currency: currency,
		priceIDs: ids,
		now:      time.Now,
	}
}

// Quote returns the current rate for symbol. It never falls back to a cached value.
func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	id, ok := c.priceIDs[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("ids", id).
		SetQueryParam("vs_currencies", c.currency).
		Get("/simple/price")
	if err != nil {
		return Quote{}, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	if !resp.IsSuccess() {
		return Quote{}, fmt.Errorf("fetch price for %s: unexpected status %d", symbol, resp.StatusCode())
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Quote{}, fmt.Errorf("decode price for %s: %w", symbol, err)
	}
	rate, ok := payload[id][c.currency]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrMissingQuote, symbol)
	}
	if !rate.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s", ErrInvalidQuote, symbol)
	}

	return Quote{Symbol: symbol, Rate: rate, FetchedAt: c.now().UTC()}, nil
}
