// internal/storage/gormdb/convert.go
package gormdb

import (
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/storage/models"
)

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	v := n.Decimal
	return &v
}

func walletToModel(w domain.TrackedWallet) models.Wallet {
	return models.Wallet{
		Address:     w.Address,
		Name:        w.Name,
		Enabled:     w.Enabled,
		SizeParam:   nullDecimal(w.Overrides.SizeParam),
		MinTradeSOL: nullDecimal(w.Overrides.MinTradeSOL),
		MaxTradeSOL: nullDecimal(w.Overrides.MaxTradeSOL),
		Direction:   string(w.Overrides.Direction),
		AlertOnBuy:  w.Overrides.AlertOnBuy,
		AlertOnSell: w.Overrides.AlertOnSell,
		CursorSig:   w.Cursor.Signature,
		CursorSlot:  w.Cursor.Slot,
		AddedAt:     w.AddedAt,
	}
}

func walletFromModel(m models.Wallet) domain.TrackedWallet {
	return domain.TrackedWallet{
		Address: m.Address,
		Name:    m.Name,
		Enabled: m.Enabled,
		Overrides: domain.WalletOverrides{
			SizeParam:   decimalPtr(m.SizeParam),
			MinTradeSOL: decimalPtr(m.MinTradeSOL),
			MaxTradeSOL: decimalPtr(m.MaxTradeSOL),
			Direction:   domain.DirectionFilter(m.Direction),
			AlertOnBuy:  m.AlertOnBuy,
			AlertOnSell: m.AlertOnSell,
		},
		Cursor:  domain.Cursor{Signature: m.CursorSig, Slot: m.CursorSlot},
		AddedAt: m.AddedAt,
	}
}

func settingsToModel(s domain.CopySettings) models.CopySettings {
	return models.CopySettings{
		Key:            models.SettingsKeyGlobal,
		Enabled:        s.Enabled,
		SizingMode:     string(s.SizingMode),
		SizeParam:      s.SizeParam,
		FixedSize:      s.FixedSize,
		BalanceCapPct:  s.BalanceCapPct,
		MinTradeSOL:    s.MinTradeSOL,
		MaxTradeSOL:    s.MaxTradeSOL,
		Direction:      string(s.Direction),
		MaxSlippageBps: s.MaxSlippageBps,
		Whitelist:      s.Whitelist,
		Blacklist:      s.Blacklist,
	}
}

func settingsFromModel(m models.CopySettings) domain.CopySettings {
	return domain.CopySettings{
		Enabled:        m.Enabled,
		SizingMode:     domain.SizingMode(m.SizingMode),
		SizeParam:      m.SizeParam,
		FixedSize:      m.FixedSize,
		BalanceCapPct:  m.BalanceCapPct,
		Whitelist:      m.Whitelist,
		Blacklist:      m.Blacklist,
		MinTradeSOL:    m.MinTradeSOL,
		MaxTradeSOL:    m.MaxTradeSOL,
		Direction:      domain.DirectionFilter(m.Direction),
		MaxSlippageBps: m.MaxSlippageBps,
	}
}

func positionToModel(p domain.Position) models.Position {
	return models.Position{
		PositionID:     p.ID,
		Token:          p.Token,
		QuoteMint:      p.QuoteMint,
		EntryPrice:     p.EntryPrice,
		EntrySize:      p.EntrySize,
		RemainingSize:  p.RemainingSize,
		EntryCost:      p.EntryCost,
		TakeProfitPct:  p.TakeProfitPct,
		StopLossPct:    p.StopLossPct,
		Source:         p.Source,
		EntryResultID:  p.EntryResultID,
		Status:         string(p.Status),
		PendingOrderID: p.PendingOrderID,
		PendingSize:    p.PendingSize,
		OpenedAt:       p.OpenedAt,
		ClosedAt:       p.ClosedAt,
	}
}

func positionFromModel(m models.Position) domain.Position {
	return domain.Position{
		ID:             m.PositionID,
		Token:          m.Token,
		QuoteMint:      m.QuoteMint,
		EntryPrice:     m.EntryPrice,
		EntrySize:      m.EntrySize,
		RemainingSize:  m.RemainingSize,
		EntryCost:      m.EntryCost,
		TakeProfitPct:  m.TakeProfitPct,
		StopLossPct:    m.StopLossPct,
		Source:         m.Source,
		EntryResultID:  m.EntryResultID,
		Status:         domain.PositionStatus(m.Status),
		PendingOrderID: m.PendingOrderID,
		PendingSize:    m.PendingSize,
		OpenedAt:       m.OpenedAt,
		ClosedAt:       m.ClosedAt,
	}
}

func resultToModel(r domain.TradeResult) models.TradeResult {
	return models.TradeResult{
		ResultID:       r.ID,
		OrderID:        r.Order.ID,
		Source:         r.Order.Source,
		Kind:           string(r.Order.Kind),
		Direction:      string(r.Order.Direction),
		InputMint:      r.Order.InputMint,
		OutputMint:     r.Order.OutputMint,
		Amount:         r.Order.Amount,
		InputDecimals:  r.Order.InputDecimals,
		OutputDecimals: r.Order.OutputDecimals,
		MaxSlippageBps: r.Order.MaxSlippageBps,
		PositionID:     r.Order.PositionID,
		TriggeredBy:    r.Order.TriggeredBy,
		OrderCreatedAt: r.Order.CreatedAt,
		Signature:      r.Signature,
		InAmount:       r.InAmount,
		OutAmount:      r.OutAmount,
		Status:         string(r.Status),
		ErrorCategory:  string(r.ErrorCategory),
		ErrorMessage:   r.Error,
		SubmittedAt:    r.SubmittedAt,
		ResolvedAt:     r.ResolvedAt,
	}
}

func resultFromModel(m models.TradeResult) domain.TradeResult {
	return domain.TradeResult{
		ID: m.ResultID,
		Order: domain.Order{
			ID:             m.OrderID,
			Source:         m.Source,
			Kind:           domain.OrderKind(m.Kind),
			Direction:      domain.Direction(m.Direction),
			InputMint:      m.InputMint,
			OutputMint:     m.OutputMint,
			Amount:         m.Amount,
			InputDecimals:  m.InputDecimals,
			OutputDecimals: m.OutputDecimals,
			MaxSlippageBps: m.MaxSlippageBps,
			PositionID:     m.PositionID,
			TriggeredBy:    m.TriggeredBy,
			CreatedAt:      m.OrderCreatedAt,
		},
		Signature:     m.Signature,
		InAmount:      m.InAmount,
		OutAmount:     m.OutAmount,
		Status:        domain.TradeStatus(m.Status),
		ErrorCategory: domain.ErrorCategory(m.ErrorCategory),
		Error:         m.ErrorMessage,
		SubmittedAt:   m.SubmittedAt,
		ResolvedAt:    m.ResolvedAt,
	}
}

func limitToModel(o domain.LimitOrder) models.LimitOrder {
	return models.LimitOrder{
		OrderID:      o.ID,
		Type:         string(o.Type),
		Token:        o.Token,
		QuoteMint:    o.QuoteMint,
		TargetPrice:  o.TargetPrice,
		Amount:       o.Amount,
		PositionID:   o.PositionID,
		SlippageBps:  o.SlippageBps,
		Status:       string(o.Status),
		OpenedAt:     o.CreatedAt,
		ExpiresAt:    o.ExpiresAt,
		TriggeredAt:  o.TriggeredAt,
		FilledAt:     o.FilledAt,
		FillPrice:    o.FillPrice,
		SwapOrderID:  o.OrderID,
		ResultID:     o.ResultID,
		Signature:    o.Signature,
		ErrorMessage: o.Error,
	}
}

func limitFromModel(m models.LimitOrder) domain.LimitOrder {
	return domain.LimitOrder{
		ID:          m.OrderID,
		Type:        domain.LimitOrderType(m.Type),
		Token:       m.Token,
		QuoteMint:   m.QuoteMint,
		TargetPrice: m.TargetPrice,
		Amount:      m.Amount,
		PositionID:  m.PositionID,
		SlippageBps: m.SlippageBps,
		Status:      domain.LimitStatus(m.Status),
		CreatedAt:   m.OpenedAt,
		ExpiresAt:   m.ExpiresAt,
		TriggeredAt: m.TriggeredAt,
		FilledAt:    m.FilledAt,
		FillPrice:   m.FillPrice,
		OrderID:     m.SwapOrderID,
		ResultID:    m.ResultID,
		Signature:   m.Signature,
		Error:       m.ErrorMessage,
	}
}
