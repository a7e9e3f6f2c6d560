package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
)

const testMint = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

type staticDecimals map[string]uint8

func (s staticDecimals) MintDecimals(_ context.Context, mint string) (uint8, error) {
	d, ok := s[mint]
	if !ok {
		return 0, errors.New("unknown mint")
	}
	return d, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:  srv.URL + "/ultra/v1",
		PriceURL: srv.URL + "/price/v3",
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
		Retries:  2,
	}, staticDecimals{testMint: 6}, zaptest.NewLogger(t))
	c.backoffBase = time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestQuoteConvertsUnits(t *testing.T) {
	unsigned := []byte{1, 2, 3}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ultra/v1/order", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "1500000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "taker1", r.URL.Query().Get("taker"))
		writeJSON(w, map[string]interface{}{
			"requestId":      "req-1",
			"inAmount":       "1500000000",
			"outAmount":      "750000000",
			"slippageBps":    80,
			"priceImpactPct": "0.45",
			"transaction":    base64.StdEncoding.EncodeToString(unsigned),
		})
	})

	q, err := c.Quote(context.Background(), router.QuoteRequest{
		InputMint:  domain.SOLMint,
		OutputMint: testMint,
		Amount:     decimal.RequireFromString("1.5"),
		Taker:      "taker1",
	})
	require.NoError(t, err)

	assert.Equal(t, "req-1", q.RequestID)
	assert.True(t, q.InAmount.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, q.OutAmount.Equal(decimal.NewFromInt(750)))
	assert.Equal(t, uint8(6), q.OutputDecimals)
	assert.Equal(t, 80, q.SlippageBps)
	assert.Equal(t, 45, q.PriceImpactBps())
	assert.Equal(t, unsigned, q.Transaction)
}

func TestQuoteInsufficientFunds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"requestId":    "req-2",
			"inAmount":     "1000000000",
			"outAmount":    "1",
			"transaction":  nil,
			"errorCode":    1,
			"errorMessage": "Insufficient funds",
		})
	})

	_, err := c.Quote(context.Background(), router.QuoteRequest{
		InputMint:      domain.SOLMint,
		OutputMint:     testMint,
		OutputDecimals: 6,
		Amount:         decimal.NewFromInt(1),
		Taker:          "taker1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, domain.CategoryInsufficientBalance, domain.CategoryOf(err))
}

func TestRetriesRateLimitedRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]interface{}{
			testMint:       map[string]interface{}{"usdPrice": 2.0},
			domain.SOLMint: map[string]interface{}{"usdPrice": 200.0},
		})
	})

	price, err := c.Price(context.Background(), testMint, domain.SOLMint)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.01")), price.String())
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetriesServerErrorsThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.USDPrices(context.Background(), testMint)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad mint"}`))
	})

	_, err := c.Quote(context.Background(), router.QuoteRequest{
		InputMint:      domain.SOLMint,
		OutputMint:     testMint,
		OutputDecimals: 6,
		Amount:         decimal.NewFromInt(1),
	})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
	assert.Equal(t, domain.CategoryRouter, domain.CategoryOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPriceUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			domain.SOLMint: map[string]interface{}{"usdPrice": 200.0},
			testMint:       nil,
		})
	})

	_, err := c.Price(context.Background(), testMint, domain.SOLMint)
	assert.ErrorIs(t, err, router.ErrPriceUnavailable)
}

func TestSubmit(t *testing.T) {
	quote := router.Quote{RequestID: "req-3", InputDecimals: 9, OutputDecimals: 6}

	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/ultra/v1/execute", r.URL.Path)

			var body executeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "req-3", body.RequestID)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{9, 9}), body.SignedTransaction)

			writeJSON(w, map[string]interface{}{
				"status":             "Success",
				"signature":          "sig-ok",
				"code":               0,
				"inputAmountResult":  "500000000",
				"outputAmountResult": "250000000",
			})
		})

		sub, err := c.Submit(context.Background(), quote, []byte{9, 9})
		require.NoError(t, err)
		assert.Equal(t, "sig-ok", sub.Signature)
		assert.True(t, sub.InAmount.Equal(decimal.RequireFromString("0.5")))
		assert.True(t, sub.OutAmount.Equal(decimal.NewFromInt(250)))
	})

	t.Run("failed swap keeps signature", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]interface{}{
				"status":    "Failed",
				"signature": "sig-bad",
				"code":      6001,
				"error":     "SlippageToleranceExceeded",
			})
		})

		sub, err := c.Submit(context.Background(), quote, []byte{1})
		require.Error(t, err)
		assert.Equal(t, "sig-bad", sub.Signature)
		assert.Equal(t, domain.CategorySlippage, domain.CategoryOf(err))
		assert.ErrorIs(t, err, router.ErrRejected)
	})

	t.Run("bad request is a rejection", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid signed transaction", http.StatusBadRequest)
		})

		_, err := c.Submit(context.Background(), quote, []byte{1})
		require.Error(t, err)
		assert.ErrorIs(t, err, router.ErrRejected)
		assert.Equal(t, domain.CategoryRouter, domain.CategoryOf(err))
	})

	t.Run("server error leaves the outcome open", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		})

		_, err := c.Submit(context.Background(), quote, []byte{1})
		require.Error(t, err)
		assert.NotErrorIs(t, err, router.ErrRejected)
		assert.Equal(t, domain.CategoryRouter, domain.CategoryOf(err))
		assert.Greater(t, calls.Load(), int32(1), "5xx is retried")
	})

	t.Run("expired", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]interface{}{"status": "Failed", "code": -1005, "error": "Transaction was not landed"})
		})

		_, err := c.Submit(context.Background(), quote, []byte{1})
		assert.Equal(t, domain.CategoryExpired, domain.CategoryOf(err))
		assert.ErrorIs(t, err, router.ErrRejected)
	})
}
