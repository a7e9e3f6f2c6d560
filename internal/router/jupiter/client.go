// internal/router/jupiter/client.go
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

const (
	DefaultBaseURL  = "https://api.jup.ag/ultra/v1"
	DefaultPriceURL = "https://lite-api.jup.ag/price/v3"

	maxBodySize = 4 << 20
)

// Config configures the Jupiter client.
type Config struct {
	BaseURL  string
	PriceURL string
	APIKey   string
	Timeout  time.Duration
	Retries  int
}

// DecimalsResolver looks up mint decimals when an order does not carry them.
type DecimalsResolver interface {
	MintDecimals(ctx context.Context, mint string) (uint8, error)
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Status, e.Body)
}

// Client talks to the Jupiter Ultra swap API and the price API.
type Client struct {
	http        *http.Client
	baseURL     string
	priceURL    string
	apiKey      string
	retries     uint
	backoffBase time.Duration
	decimals    DecimalsResolver
	logger      *zap.Logger
}

// NewClient creates a client. decimals may be nil when every order carries
// its mint decimals.
func NewClient(cfg Config, decimals DecimalsResolver, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PriceURL == "" {
		cfg.PriceURL = DefaultPriceURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		priceURL:    cfg.PriceURL,
		apiKey:      cfg.APIKey,
		retries:     uint(cfg.Retries),
		backoffBase: 200 * time.Millisecond,
		decimals:    decimals,
		logger:      logger.Named("jupiter"),
	}
}

// doJSON performs one API call with retries. 429 honours Retry-After, 5xx and
// transport errors back off exponentially, other statuses fail at once.
func (c *Client) doJSON(ctx context.Context, method, url string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	op := func() (struct{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(ctx.Err())
			}
			return struct{}{}, fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return struct{}{}, fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return struct{}{}, backoff.RetryAfter(retryAfterSeconds(resp.Header.Get("Retry-After")))
		case resp.StatusCode >= http.StatusInternalServerError:
			return struct{}{}, &StatusError{Status: resp.StatusCode, Body: string(data)}
		case resp.StatusCode != http.StatusOK:
			return struct{}{}, backoff.Permanent(&StatusError{Status: resp.StatusCode, Body: string(data)})
		}

		if err := json.Unmarshal(data, out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffBase
	b.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.retries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Jupiter request failed, retrying",
				zap.String("url", url),
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	)
	return err
}

func retryAfterSeconds(header string) int {
	if n, err := strconv.Atoi(header); err == nil && n >= 0 {
		return n
	}
	return 1
}

// routerError wraps an API failure as a categorized execution error.
func routerError(detail string, err error) error {
	var ee *domain.ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return domain.NewExecutionError(domain.CategoryRouter, detail, err)
}
