package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/app/policies"
	"pricewatch/internal/domain/pricing"
)

func newOracle(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{HTTP: srv.Client(), BaseURL: srv.URL + "/", Timeout: time.Second}
}

func TestLowestPriceSendsURL(t *testing.T) {
	const listing = "https://www.airbnb.co.uk/s/London/homes?checkin=2024-06-01&checkout=2024-06-02"
	c := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/search/simple", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, listing, body["url"])
		_, _ = w.Write([]byte(`{"success":true,"lowest_price":187.5,"lowest_price_currency":"GBP","prices_found":12,"data":[{"x":1}]}`))
	})

	price, err := c.LowestPrice(context.Background(), listing)
	require.NoError(t, err)
	assert.Equal(t, pricing.Known(187.5), price)
}

func TestLowestPriceNullIsUnknown(t *testing.T) {
	c := newOracle(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"lowest_price":null,"prices_found":0}`))
	})
	price, err := c.LowestPrice(context.Background(), "https://x.test")
	require.NoError(t, err)
	assert.False(t, price.IsKnown())
}

func TestLowestPriceFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":"scrape blocked"}`))
		},
		"malformed json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
		"reported failure": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"error":"hash fetch failed"}`))
		},
		"negative price": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"lowest_price":-3}`))
		},
		"slow": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(3 * time.Second):
			}
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			c := newOracle(t, handler)
			c.Timeout = 100 * time.Millisecond
			price, err := c.LowestPrice(context.Background(), "https://x.test")
			assert.ErrorIs(t, err, policies.ErrFetchFailed)
			assert.False(t, price.IsKnown())
		})
	}
}

func TestLowestPriceUnconfigured(t *testing.T) {
	_, err := (&Client{}).LowestPrice(context.Background(), "https://x.test")
	assert.ErrorIs(t, err, policies.ErrFetchFailed)
}

func TestHealth(t *testing.T) {
	c := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	})
	assert.NoError(t, c.Health(context.Background()))
}
