// internal/router/jupiter/price.go
package jupiter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/router"
)

var _ router.PriceSource = (*Client)(nil)

type priceEntry struct {
	USDPrice float64 `json:"usdPrice"`
	Decimals int     `json:"decimals"`
}

// USDPrices returns USD prices for mints. Mints without a price are absent.
func (c *Client) USDPrices(ctx context.Context, mints ...string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))

	var resp map[string]*priceEntry
	if err := c.doJSON(ctx, http.MethodGet, c.priceURL+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(resp))
	for mint, entry := range resp {
		if entry == nil || entry.USDPrice <= 0 {
			continue
		}
		out[mint] = decimal.NewFromFloat(entry.USDPrice)
	}
	return out, nil
}

// Price returns the price of token in quote units, derived from both USD prices.
func (c *Client) Price(ctx context.Context, token, quote string) (decimal.Decimal, error) {
	if token == quote {
		return decimal.NewFromInt(1), nil
	}
	prices, err := c.USDPrices(ctx, token, quote)
	if err != nil {
		return decimal.Zero, err
	}
	tp, ok := prices[token]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", router.ErrPriceUnavailable, token)
	}
	qp, ok := prices[quote]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", router.ErrPriceUnavailable, quote)
	}
	return tp.DivRound(qp, 18), nil
}
