package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pricewatch/internal/app/policies"
	"pricewatch/internal/domain/pricing"
)

const (
	searchPath = "/api/search/simple"
	healthPath = "/api/health"
)

// Client asks the scraping service for the lowest total listed for a dated search URL.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	// Timeout bounds each call on top of the caller's context. Zero leaves it to the caller.
	Timeout time.Duration
	Logger  *slog.Logger
}

var _ policies.PriceOracle = (*Client)(nil)

type searchRequest struct {
	URL string `json:"url"`
}

type searchResponse struct {
	Success      bool     `json:"success"`
	LowestPrice  *float64 `json:"lowest_price"`
	Currency     *string  `json:"lowest_price_currency"`
	PricesFound  int      `json:"prices_found"`
	ResultsCount int      `json:"results_count"`
	Error        string   `json:"error"`
}

func (c *Client) LowestPrice(ctx context.Context, listingURL string) (pricing.Price, error) {
	if c == nil || c.BaseURL == "" {
		return pricing.Unknown(), fmt.Errorf("%w: oracle endpoint not configured", policies.ErrFetchFailed)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(searchRequest{URL: listingURL})
	if err != nil {
		return pricing.Unknown(), fmt.Errorf("%w: %v", policies.ErrFetchFailed, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(searchPath), bytes.NewReader(body))
	if err != nil {
		return pricing.Unknown(), fmt.Errorf("%w: %v", policies.ErrFetchFailed, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(request)
	if err != nil {
		c.logError("oracle request failed", listingURL, err)
		return pricing.Unknown(), fmt.Errorf("%w: %w", policies.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: oracle returned status %d: %s", policies.ErrFetchFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
		c.logError("oracle returned error", listingURL, err)
		return pricing.Unknown(), err
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logError("oracle decode failed", listingURL, err)
		return pricing.Unknown(), fmt.Errorf("%w: decode response: %v", policies.ErrFetchFailed, err)
	}
	if !payload.Success && payload.Error != "" {
		return pricing.Unknown(), fmt.Errorf("%w: %s", policies.ErrFetchFailed, payload.Error)
	}
	if payload.LowestPrice == nil {
		return pricing.Unknown(), nil
	}
	price, err := pricing.NewPrice(*payload.LowestPrice)
	if err != nil {
		return pricing.Unknown(), fmt.Errorf("%w: %v", policies.ErrFetchFailed, err)
	}
	if c.Logger != nil {
		c.Logger.Debug("oracle price", "url", listingURL, "price", price.String(), "prices_found", payload.PricesFound)
	}
	return price, nil
}

// Health checks the oracle's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.BaseURL == "" {
		return errors.New("oracle: endpoint not configured")
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(healthPath), nil)
	if err != nil {
		return err
	}
	resp, err := c.client().Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("oracle: health returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logError(msg, listingURL string, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Warn(msg, "url", listingURL, "error", err)
}
