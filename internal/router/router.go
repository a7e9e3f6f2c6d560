// internal/router/router.go
package router

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPriceUnavailable is returned when the price source has no price for a mint.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrRejected marks a Submit error after which the transaction cannot land.
	// Any other Submit error leaves its fate open.
	ErrRejected = errors.New("submission rejected")
)

// QuoteRequest asks the router for a swap of Amount input tokens.
// Amounts are in ui units; decimals are used to convert to raw units.
type QuoteRequest struct {
	InputMint      string
	OutputMint     string
	Amount         decimal.Decimal
	InputDecimals  uint8
	OutputDecimals uint8
	SlippageBps    int
	Taker          string
}

// Quote is an executable route returned by the router.
type Quote struct {
	RequestID      string
	InAmount       decimal.Decimal
	OutAmount      decimal.Decimal
	InputDecimals  uint8
	OutputDecimals uint8
	SlippageBps    int
	PriceImpactPct decimal.Decimal
	// Transaction is the unsigned serialized transaction, if the router built one.
	Transaction []byte
}

// PriceImpactBps converts the quoted price impact, a percentage, to basis points.
func (q Quote) PriceImpactBps() int {
	return int(q.PriceImpactPct.Abs().Mul(decimal.NewFromInt(100)).Ceil().IntPart())
}

// Submission is the router's answer to a signed transaction.
type Submission struct {
	Signature string
	InAmount  decimal.Decimal
	OutAmount decimal.Decimal
}

// Router quotes swaps and submits signed transactions. A Submit error that
// does not wrap ErrRejected must be treated as possibly landed.
type Router interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	Submit(ctx context.Context, q Quote, signedTx []byte) (Submission, error)
}

// Signer signs a serialized transaction built by the router.
type Signer interface {
	Address() string
	SignTransaction(unsigned []byte) ([]byte, error)
}

// PriceSource returns the price of token in quote units.
type PriceSource interface {
	Price(ctx context.Context, token, quote string) (decimal.Decimal, error)
}
