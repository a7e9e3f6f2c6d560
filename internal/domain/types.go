// internal/domain/types.go
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a swap relative to the base mints.
type Direction string

const (
	DirectionBuy     Direction = "buy"
	DirectionSell    Direction = "sell"
	DirectionUnknown Direction = "unknown"
)

// DirectionFilter limits which detected trades are copied.
type DirectionFilter string

const (
	FilterBoth     DirectionFilter = "both"
	FilterBuyOnly  DirectionFilter = "buy"
	FilterSellOnly DirectionFilter = "sell"
)

// Allows reports whether a trade in direction d passes the filter.
// Token-to-token trades only pass when both directions are allowed.
func (f DirectionFilter) Allows(d Direction) bool {
	switch f {
	case FilterBuyOnly:
		return d == DirectionBuy
	case FilterSellOnly:
		return d == DirectionSell
	default:
		return true
	}
}

// SizingMode selects how the copy size is derived from the source trade.
type SizingMode string

const (
	SizingFixed        SizingMode = "fixed"
	SizingPercentage   SizingMode = "percentage"
	SizingProportional SizingMode = "proportional"
)

// Valid reports whether m is a known sizing mode.
func (m SizingMode) Valid() bool {
	switch m {
	case SizingFixed, SizingPercentage, SizingProportional:
		return true
	}
	return false
}

// WalletOverrides are per-wallet replacements for global copy settings.
// Nil fields fall back to the global value.
type WalletOverrides struct {
	SizeParam   *decimal.Decimal `json:"size_param,omitempty"`
	MinTradeSOL *decimal.Decimal `json:"min_trade_sol,omitempty"`
	MaxTradeSOL *decimal.Decimal `json:"max_trade_sol,omitempty"`
	Direction   DirectionFilter  `json:"direction,omitempty"`
	AlertOnBuy  bool             `json:"alert_on_buy"`
	AlertOnSell bool             `json:"alert_on_sell"`
}

// Cursor is the last transaction delivered for a wallet.
type Cursor struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
}

// IsZero reports whether no transaction has been delivered yet.
func (c Cursor) IsZero() bool { return c.Signature == "" }

// TrackedWallet is a wallet whose swaps are mirrored.
type TrackedWallet struct {
	Address   string          `json:"address"`
	Name      string          `json:"name"`
	Enabled   bool            `json:"enabled"`
	Overrides WalletOverrides `json:"overrides"`
	Cursor    Cursor          `json:"cursor"`
	AddedAt   time.Time       `json:"added_at"`
}

// DisplayName returns the name, or a shortened address when unnamed.
func (w TrackedWallet) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return ShortAddress(w.Address)
}

// DetectedTrade is a swap observed on a tracked wallet, collapsed to a net pair.
type DetectedTrade struct {
	Wallet         string          `json:"wallet"`
	InputMint      string          `json:"input_mint"`
	OutputMint     string          `json:"output_mint"`
	InputAmount    decimal.Decimal `json:"input_amount"`
	OutputAmount   decimal.Decimal `json:"output_amount"`
	InputDecimals  uint8           `json:"input_decimals"`
	OutputDecimals uint8           `json:"output_decimals"`
	Direction      Direction       `json:"direction"`
	DEX            string          `json:"dex"`
	Slot           uint64          `json:"slot"`
	Timestamp      time.Time       `json:"timestamp"`
	Signature      string          `json:"signature"`
}

// TradedToken is the non-base side of the trade.
func (t DetectedTrade) TradedToken() string {
	if t.Direction == DirectionSell {
		return t.InputMint
	}
	return t.OutputMint
}

// NotionalSOL estimates the trade value in SOL: the SOL leg when there is one,
// otherwise the input amount.
func (t DetectedTrade) NotionalSOL() decimal.Decimal {
	switch {
	case t.InputMint == SOLMint:
		return t.InputAmount
	case t.OutputMint == SOLMint:
		return t.OutputAmount
	default:
		return t.InputAmount
	}
}

// CopySettings is the process-wide copy policy.
type CopySettings struct {
	Enabled        bool            `json:"enabled"`
	SizingMode     SizingMode      `json:"sizing_mode"`
	SizeParam      decimal.Decimal `json:"size_param"` // fraction of the source input amount
	FixedSize      decimal.Decimal `json:"fixed_size"`
	BalanceCapPct  decimal.Decimal `json:"balance_cap_pct"` // fraction of available balance
	Whitelist      []string        `json:"whitelist"`
	Blacklist      []string        `json:"blacklist"`
	MinTradeSOL    decimal.Decimal `json:"min_trade_sol"`
	MaxTradeSOL    decimal.Decimal `json:"max_trade_sol"`
	Direction      DirectionFilter `json:"direction"`
	MaxSlippageBps int             `json:"max_slippage_bps"`
}

// Clone returns a deep copy safe to hand to readers.
func (s CopySettings) Clone() CopySettings {
	out := s
	out.Whitelist = append([]string(nil), s.Whitelist...)
	out.Blacklist = append([]string(nil), s.Blacklist...)
	return out
}

// OrderKind separates position entries from exits.
type OrderKind string

const (
	KindEntry OrderKind = "entry"
	KindExit  OrderKind = "exit"
)

// SourceManual is the execution source of user-issued orders.
const SourceManual = "manual"

// Order is a swap request handed to the executor. Copy orders and manual
// orders share this shape.
type Order struct {
	ID             string          `json:"id"`
	Source         string          `json:"source"` // SourceManual or a tracked wallet address
	Kind           OrderKind       `json:"kind"`
	Direction      Direction       `json:"direction"`
	InputMint      string          `json:"input_mint"`
	OutputMint     string          `json:"output_mint"`
	Amount         decimal.Decimal `json:"amount"` // in input token units
	InputDecimals  uint8           `json:"input_decimals"`
	OutputDecimals uint8           `json:"output_decimals"`
	MaxSlippageBps int             `json:"max_slippage_bps"`
	PositionID     string          `json:"position_id,omitempty"`
	TriggeredBy    string          `json:"triggered_by,omitempty"` // source signature, "take_profit", "user" ...
	CreatedAt      time.Time       `json:"created_at"`
}

// Token is the non-base mint the order trades.
func (o Order) Token() string {
	if IsBaseMint(o.InputMint) && !IsBaseMint(o.OutputMint) {
		return o.OutputMint
	}
	if IsBaseMint(o.OutputMint) && !IsBaseMint(o.InputMint) {
		return o.InputMint
	}
	return o.OutputMint
}

// Key is the serialization key for execution.
func (o Order) Key() ExecKey {
	return ExecKey{Source: o.Source, Token: o.Token()}
}

// ExecKey identifies orders that must not run concurrently.
type ExecKey struct {
	Source string
	Token  string
}

func (k ExecKey) String() string { return k.Source + "/" + k.Token }

// TradeStatus of an executed order.
type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeConfirmed TradeStatus = "confirmed"
	TradeFailed    TradeStatus = "failed"
)

// TradeResult is the append-only execution record of an order.
type TradeResult struct {
	ID            string          `json:"id"`
	Order         Order           `json:"order"`
	Signature     string          `json:"signature,omitempty"`
	InAmount      decimal.Decimal `json:"in_amount"`
	OutAmount     decimal.Decimal `json:"out_amount"`
	Status        TradeStatus     `json:"status"`
	ErrorCategory ErrorCategory   `json:"error_category,omitempty"`
	Error         string          `json:"error,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

// Price is quote units per token implied by the fill.
func (r TradeResult) Price() decimal.Decimal {
	if r.Order.Direction == DirectionSell {
		if r.InAmount.IsZero() {
			return decimal.Zero
		}
		return r.OutAmount.Div(r.InAmount)
	}
	if r.OutAmount.IsZero() {
		return decimal.Zero
	}
	return r.InAmount.Div(r.OutAmount)
}

// PositionStatus is the state of a position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"
	PositionClosing PositionStatus = "closing"
	PositionClosed  PositionStatus = "closed"
)

// Position is a holding created by a confirmed buy.
type Position struct {
	ID            string          `json:"id"`
	Token         string          `json:"token"`
	QuoteMint     string          `json:"quote_mint"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	EntrySize     decimal.Decimal `json:"entry_size"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	EntryCost     decimal.Decimal `json:"entry_cost"`
	TakeProfitPct decimal.Decimal `json:"take_profit_pct"`
	StopLossPct   decimal.Decimal `json:"stop_loss_pct"`
	Source        string          `json:"source"` // SourceManual or wallet address
	EntryResultID string          `json:"entry_result_id"`
	Status        PositionStatus  `json:"status"`
	// Close in flight while Status is closing.
	PendingOrderID string          `json:"pending_order_id,omitempty"`
	PendingSize    decimal.Decimal `json:"pending_size"`
	OpenedAt       time.Time       `json:"opened_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// IsCopy reports whether the position was opened by a copy trade.
func (p Position) IsCopy() bool { return p.Source != SourceManual }

// TakeProfitPrice is entry × (1 + TP%).
func (p Position) TakeProfitPrice() decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(1).Add(p.TakeProfitPct.Div(decimal.NewFromInt(100))))
}

// StopLossPrice is entry × (1 − SL%).
func (p Position) StopLossPrice() decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(1).Sub(p.StopLossPct.Div(decimal.NewFromInt(100))))
}

// PnLSummary is a realized/unrealized breakdown for a scope. Amounts are in
// QuoteMint units; positions quoted in other mints are summarized in Others.
type PnLSummary struct {
	Scope           string          `json:"scope"`
	Key             string          `json:"key,omitempty"`
	QuoteMint       string          `json:"quote_mint"`
	Realized        decimal.Decimal `json:"realized"`
	Unrealized      decimal.Decimal `json:"unrealized"`
	Basis           decimal.Decimal `json:"basis"`
	Total           decimal.Decimal `json:"total"`
	Positions       int             `json:"positions"`
	OpenPositions   int             `json:"open_positions"`
	Wins            int             `json:"wins"`
	Losses          int             `json:"losses"`
	WinRate         float64         `json:"win_rate"`
	MarkUnavailable bool            `json:"mark_unavailable"`
	Others          []PnLSummary    `json:"others,omitempty"`
}

// ShortAddress abbreviates a base58 address for display.
func ShortAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

// LimitOrderType selects the trigger side and trade direction of a limit order.
type LimitOrderType string

const (
	LimitBuy   LimitOrderType = "limit_buy"
	LimitSell  LimitOrderType = "limit_sell"
	StopLoss   LimitOrderType = "stop_loss"
	TakeProfit LimitOrderType = "take_profit"
)

// Valid reports whether t is a known limit order type.
func (t LimitOrderType) Valid() bool {
	switch t {
	case LimitBuy, LimitSell, StopLoss, TakeProfit:
		return true
	}
	return false
}

// Direction is buy for limit buys and sell for the rest.
func (t LimitOrderType) Direction() Direction {
	if t == LimitBuy {
		return DirectionBuy
	}
	return DirectionSell
}

// LimitStatus is the lifecycle state of a limit order.
type LimitStatus string

const (
	LimitPending   LimitStatus = "pending"
	LimitTriggered LimitStatus = "triggered"
	LimitFilled    LimitStatus = "filled"
	LimitCancelled LimitStatus = "cancelled"
	LimitFailed    LimitStatus = "failed"
	LimitExpired   LimitStatus = "expired"
)

// Terminal reports whether the order can no longer change.
func (s LimitStatus) Terminal() bool {
	switch s {
	case LimitFilled, LimitCancelled, LimitFailed, LimitExpired:
		return true
	}
	return false
}

// LimitOrder is a swap held back until the token price crosses TargetPrice.
// TargetPrice is in QuoteMint units per token. Amount is quote units for
// buys and token units for sells.
type LimitOrder struct {
	ID          string          `json:"id"`
	Type        LimitOrderType  `json:"type"`
	Token       string          `json:"token"`
	QuoteMint   string          `json:"quote_mint"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Amount      decimal.Decimal `json:"amount"`
	PositionID  string          `json:"position_id,omitempty"`
	SlippageBps int             `json:"slippage_bps"`
	Status      LimitStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`
	FilledAt    *time.Time      `json:"filled_at,omitempty"`
	FillPrice   decimal.Decimal `json:"fill_price"`
	OrderID     string          `json:"order_id,omitempty"`
	ResultID    string          `json:"result_id,omitempty"`
	Signature   string          `json:"signature,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ShouldTrigger reports whether price crosses the target: buys and stop
// losses fire at or below it, limit sells and take profits at or above.
func (o LimitOrder) ShouldTrigger(price decimal.Decimal) bool {
	if !price.IsPositive() {
		return false
	}
	switch o.Type {
	case LimitBuy, StopLoss:
		return price.LessThanOrEqual(o.TargetPrice)
	case LimitSell, TakeProfit:
		return price.GreaterThanOrEqual(o.TargetPrice)
	}
	return false
}

// Expired reports whether the order outlived ExpiresAt at now.
func (o LimitOrder) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}
