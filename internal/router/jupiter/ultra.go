// internal/router/jupiter/ultra.go
package jupiter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
)

var _ router.Router = (*Client)(nil)

// Ultra execute codes that mean the transaction never landed in time.
const (
	codeBlockHeightExceeded = -1004
	codeExpired             = -1005
	codeTimedOut            = -1006
	codeSlippageExceeded    = 6001
)

type orderResponse struct {
	RequestID      string `json:"requestId"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	SlippageBps    int    `json:"slippageBps"`
	PriceImpactPct string `json:"priceImpactPct"`
	Transaction    string `json:"transaction"`
	ErrorCode      int    `json:"errorCode"`
	ErrorMessage   string `json:"errorMessage"`
	Error          string `json:"error"`
}

type executeRequest struct {
	SignedTransaction string `json:"signedTransaction"`
	RequestID         string `json:"requestId"`
}

type executeResponse struct {
	Status             string `json:"status"`
	Signature          string `json:"signature"`
	Code               int    `json:"code"`
	Error              string `json:"error"`
	InputAmountResult  string `json:"inputAmountResult"`
	OutputAmountResult string `json:"outputAmountResult"`
}

// Quote requests an order with an unsigned transaction for req.Taker.
func (c *Client) Quote(ctx context.Context, req router.QuoteRequest) (router.Quote, error) {
	inDec, err := c.resolveDecimals(ctx, req.InputMint, req.InputDecimals)
	if err != nil {
		return router.Quote{}, routerError("input decimals", err)
	}
	outDec, err := c.resolveDecimals(ctx, req.OutputMint, req.OutputDecimals)
	if err != nil {
		return router.Quote{}, routerError("output decimals", err)
	}

	raw := toRaw(req.Amount, inDec)
	if !raw.IsPositive() {
		return router.Quote{}, domain.NewExecutionError(domain.CategoryRouter, "amount rounds to zero", nil)
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", raw.String())
	if req.Taker != "" {
		q.Set("taker", req.Taker)
	}
	if req.SlippageBps > 0 {
		q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	}

	var resp orderResponse
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/order?"+q.Encode(), nil, &resp); err != nil {
		return router.Quote{}, routerError("order request failed", err)
	}

	if resp.Transaction == "" && req.Taker != "" {
		msg := firstNonEmpty(resp.ErrorMessage, resp.Error, "router returned no transaction")
		if resp.ErrorCode == 1 || strings.Contains(strings.ToLower(msg), "insufficient") {
			return router.Quote{}, domain.NewExecutionError(domain.CategoryInsufficientBalance, msg, domain.ErrInsufficientBalance)
		}
		return router.Quote{}, domain.NewExecutionError(domain.CategoryRouter, msg, nil)
	}

	quote := router.Quote{
		RequestID:      resp.RequestID,
		InAmount:       fromRaw(resp.InAmount, inDec),
		OutAmount:      fromRaw(resp.OutAmount, outDec),
		InputDecimals:  inDec,
		OutputDecimals: outDec,
		SlippageBps:    resp.SlippageBps,
	}
	if resp.PriceImpactPct != "" {
		if impact, err := decimal.NewFromString(resp.PriceImpactPct); err == nil {
			quote.PriceImpactPct = impact
		}
	}
	if resp.Transaction != "" {
		tx, err := base64.StdEncoding.DecodeString(resp.Transaction)
		if err != nil {
			return router.Quote{}, domain.NewExecutionError(domain.CategoryRouter, "malformed transaction", err)
		}
		quote.Transaction = tx
	}

	c.logger.Debug("Quote received",
		zap.String("request_id", quote.RequestID),
		zap.String("in", quote.InAmount.String()),
		zap.String("out", quote.OutAmount.String()),
		zap.Int("slippage_bps", quote.SlippageBps),
		zap.String("price_impact_pct", quote.PriceImpactPct.String()))
	return quote, nil
}

// Submit hands the signed transaction to Jupiter for landing. A failed swap
// that reached the chain still returns its signature alongside the error.
func (c *Client) Submit(ctx context.Context, q router.Quote, signedTx []byte) (router.Submission, error) {
	body := executeRequest{
		SignedTransaction: base64.StdEncoding.EncodeToString(signedTx),
		RequestID:         q.RequestID,
	}

	var resp executeResponse
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/execute", body, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status >= http.StatusBadRequest && se.Status < http.StatusInternalServerError &&
			se.Status != http.StatusTooManyRequests {
			return router.Submission{}, domain.NewExecutionError(domain.CategoryRouter, "execute request rejected",
				fmt.Errorf("%w: %w", router.ErrRejected, err))
		}
		// Transport errors, 5xx and lost replies: the transaction may be on its way.
		return router.Submission{}, routerError("execute outcome unknown", err)
	}

	sub := router.Submission{Signature: resp.Signature}
	if resp.Status != "Success" {
		msg := firstNonEmpty(resp.Error, resp.Status, "execute failed")
		c.logger.Warn("Swap execution failed",
			zap.String("request_id", q.RequestID),
			zap.String("signature", resp.Signature),
			zap.Int("code", resp.Code),
			zap.String("error", msg))
		return sub, domain.NewExecutionError(categorizeExecute(resp.Code, msg), fmt.Sprintf("code %d: %s", resp.Code, msg), router.ErrRejected)
	}

	sub.InAmount = fromRaw(resp.InputAmountResult, q.InputDecimals)
	sub.OutAmount = fromRaw(resp.OutputAmountResult, q.OutputDecimals)
	if resp.InputAmountResult == "" {
		sub.InAmount = q.InAmount
	}
	if resp.OutputAmountResult == "" {
		sub.OutAmount = q.OutAmount
	}
	return sub, nil
}

func categorizeExecute(code int, msg string) domain.ErrorCategory {
	switch {
	case code == codeSlippageExceeded:
		return domain.CategorySlippage
	case code == codeExpired || code == codeTimedOut || code == codeBlockHeightExceeded:
		return domain.CategoryExpired
	}
	if cat := domain.CategorizeChainError(msg); cat != domain.CategoryUnknown {
		return cat
	}
	if code > 0 {
		return domain.CategoryProgramError
	}
	return domain.CategoryRouter
}

func (c *Client) resolveDecimals(ctx context.Context, mint string, known uint8) (uint8, error) {
	if mint == domain.SOLMint {
		return domain.SOLDecimals, nil
	}
	if known > 0 || c.decimals == nil {
		return known, nil
	}
	return c.decimals.MintDecimals(ctx, mint)
}

func toRaw(amount decimal.Decimal, decimals uint8) decimal.Decimal {
	return amount.Shift(int32(decimals)).Truncate(0)
}

func fromRaw(raw string, decimals uint8) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(-int32(decimals))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
