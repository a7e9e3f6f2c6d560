// internal/copytrade/evaluate.go
package copytrade

import (
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// Evaluate decides whether trade is copied under settings. It has no side
// effects: identical inputs always yield an identical order or skip.
//
// balance is the available balance of the order's input token and is only
// consulted in proportional mode.
func Evaluate(trade domain.DetectedTrade, wallet domain.TrackedWallet, settings domain.CopySettings, balance decimal.Decimal) (domain.Order, *domain.Skipped) {
	if !settings.Enabled {
		return domain.Order{}, skip(domain.SkipCopyDisabled, "")
	}
	if !wallet.Enabled {
		return domain.Order{}, skip(domain.SkipWalletDisabled, wallet.Address)
	}

	filter := settings.Direction
	if wallet.Overrides.Direction != "" {
		filter = wallet.Overrides.Direction
	}
	if !filter.Allows(trade.Direction) {
		return domain.Order{}, skip(domain.SkipDirection, string(trade.Direction))
	}

	token := trade.TradedToken()
	if contains(settings.Blacklist, trade.OutputMint) || contains(settings.Blacklist, token) {
		return domain.Order{}, skip(domain.SkipBlacklisted, token)
	}
	if len(settings.Whitelist) > 0 && !contains(settings.Whitelist, token) {
		return domain.Order{}, skip(domain.SkipNotWhitelisted, token)
	}

	minSOL, maxSOL := settings.MinTradeSOL, settings.MaxTradeSOL
	if wallet.Overrides.MinTradeSOL != nil {
		minSOL = *wallet.Overrides.MinTradeSOL
	}
	if wallet.Overrides.MaxTradeSOL != nil {
		maxSOL = *wallet.Overrides.MaxTradeSOL
	}
	notional := trade.NotionalSOL()
	if notional.LessThan(minSOL) {
		return domain.Order{}, skip(domain.SkipBelowMinSize, notional.String())
	}
	if maxSOL.IsPositive() && notional.GreaterThan(maxSOL) {
		return domain.Order{}, skip(domain.SkipAboveMaxSize, notional.String())
	}

	size := Size(trade, wallet, settings, balance)
	if !size.IsPositive() {
		return domain.Order{}, skip(domain.SkipZeroSize, size.String())
	}

	kind := domain.KindEntry
	if trade.Direction == domain.DirectionSell {
		kind = domain.KindExit
	}

	return domain.Order{
		ID:             "copy-" + trade.Signature,
		Source:         trade.Wallet,
		Kind:           kind,
		Direction:      trade.Direction,
		InputMint:      trade.InputMint,
		OutputMint:     trade.OutputMint,
		Amount:         size,
		InputDecimals:  trade.InputDecimals,
		OutputDecimals: trade.OutputDecimals,
		MaxSlippageBps: settings.MaxSlippageBps,
		TriggeredBy:    trade.Signature,
		CreatedAt:      trade.Timestamp,
	}, nil
}

// Size computes the copy amount in input token units.
//
//	fixed:        FixedSize
//	percentage:   InputAmount × SizeParam
//	proportional: min(InputAmount × SizeParam, balance × BalanceCapPct)
func Size(trade domain.DetectedTrade, wallet domain.TrackedWallet, settings domain.CopySettings, balance decimal.Decimal) decimal.Decimal {
	pct := settings.SizeParam
	if wallet.Overrides.SizeParam != nil {
		pct = *wallet.Overrides.SizeParam
	}

	var size decimal.Decimal
	switch settings.SizingMode {
	case domain.SizingFixed:
		size = settings.FixedSize
	case domain.SizingPercentage:
		size = trade.InputAmount.Mul(pct)
	case domain.SizingProportional:
		size = decimal.Min(trade.InputAmount.Mul(pct), balance.Mul(settings.BalanceCapPct))
	}

	if trade.InputDecimals > 0 {
		size = size.Truncate(int32(trade.InputDecimals))
	}
	return size
}

func skip(reason domain.SkipReason, detail string) *domain.Skipped {
	return &domain.Skipped{Reason: reason, Detail: detail}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
