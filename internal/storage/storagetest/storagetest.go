// Package storagetest holds the behaviour every storage.Storage must satisfy.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

const (
	walletA = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	walletB = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	tokenX  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

// Run exercises s against the storage contract. newStore must return an
// empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Run("wallets", func(t *testing.T) { testWallets(t, newStore(t)) })
	t.Run("settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("positions", func(t *testing.T) { testPositions(t, newStore(t)) })
	t.Run("results", func(t *testing.T) { testResults(t, newStore(t)) })
	t.Run("limit orders", func(t *testing.T) { testLimitOrders(t, newStore(t)) })
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ts(sec int64) time.Time { return time.Unix(1700000000+sec, 0).UTC() }

func testWallets(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	size := dec("0.25")
	require.NoError(t, s.SaveWallet(ctx, domain.TrackedWallet{
		Address: walletA,
		Name:    "whale",
		Enabled: true,
		Overrides: domain.WalletOverrides{
			SizeParam:  &size,
			Direction:  domain.FilterBuyOnly,
			AlertOnBuy: true,
		},
		AddedAt: ts(0),
	}))
	require.NoError(t, s.SaveWallet(ctx, domain.TrackedWallet{Address: walletB, Enabled: true, AddedAt: ts(1)}))

	require.NoError(t, s.UpdateCursor(ctx, walletA, domain.Cursor{Signature: "sig-9", Slot: 900}))

	wallets, err := s.ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 2)

	a := wallets[0]
	assert.Equal(t, walletA, a.Address)
	assert.Equal(t, "whale", a.Name)
	require.NotNil(t, a.Overrides.SizeParam)
	assert.True(t, a.Overrides.SizeParam.Equal(size))
	assert.Nil(t, a.Overrides.MinTradeSOL)
	assert.Equal(t, domain.FilterBuyOnly, a.Overrides.Direction)
	assert.Equal(t, domain.Cursor{Signature: "sig-9", Slot: 900}, a.Cursor)

	// Re-saving keeps the cursor.
	a.Enabled = false
	require.NoError(t, s.SaveWallet(ctx, a))
	wallets, err = s.ListWallets(ctx)
	require.NoError(t, err)
	assert.False(t, wallets[0].Enabled)
	assert.Equal(t, "sig-9", wallets[0].Cursor.Signature)

	require.NoError(t, s.DeleteWallet(ctx, walletA))
	assert.ErrorIs(t, s.DeleteWallet(ctx, walletA), domain.ErrWalletNotFound)

	wallets, err = s.ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, walletB, wallets[0].Address)
}

func testSettings(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.LoadSettings(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	want := domain.CopySettings{
		Enabled:        true,
		SizingMode:     domain.SizingProportional,
		SizeParam:      dec("0.1"),
		BalanceCapPct:  dec("0.2"),
		Blacklist:      []string{tokenX},
		MinTradeSOL:    dec("0.05"),
		Direction:      domain.FilterBoth,
		MaxSlippageBps: 250,
	}
	require.NoError(t, s.SaveSettings(ctx, want))

	want.Enabled = false
	require.NoError(t, s.SaveSettings(ctx, want))

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, domain.SizingProportional, got.SizingMode)
	assert.True(t, got.SizeParam.Equal(want.SizeParam))
	assert.True(t, got.BalanceCapPct.Equal(want.BalanceCapPct))
	assert.True(t, got.MinTradeSOL.Equal(want.MinTradeSOL))
	assert.Equal(t, []string{tokenX}, got.Blacklist)
	assert.Empty(t, got.Whitelist)
	assert.Equal(t, 250, got.MaxSlippageBps)
}

func testPositions(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	open := domain.Position{
		ID:            "pos-1",
		Token:         tokenX,
		QuoteMint:     domain.SOLMint,
		EntryPrice:    dec("0.002"),
		EntrySize:     dec("500"),
		RemainingSize: dec("500"),
		EntryCost:     dec("1"),
		TakeProfitPct: dec("50"),
		StopLossPct:   dec("20"),
		Source:        walletA,
		EntryResultID: "res-1",
		Status:        domain.PositionOpen,
		OpenedAt:      ts(10),
	}
	manual := open
	manual.ID = "pos-2"
	manual.Source = domain.SourceManual
	manual.OpenedAt = ts(20)

	require.NoError(t, s.SavePosition(ctx, open))
	require.NoError(t, s.SavePosition(ctx, manual))

	closedAt := ts(30)
	open.Status = domain.PositionClosed
	open.RemainingSize = decimal.Zero
	open.ClosedAt = &closedAt
	require.NoError(t, s.SavePosition(ctx, open))

	got, err := s.GetPosition(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, got.Status)
	assert.True(t, got.RemainingSize.IsZero())
	require.NotNil(t, got.ClosedAt)
	assert.True(t, got.ClosedAt.Equal(closedAt))
	assert.True(t, got.EntryPrice.Equal(dec("0.002")))

	_, err = s.GetPosition(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	all, err := s.ListPositions(ctx, storage.PositionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "pos-1", all[0].ID)

	openOnly, err := s.ListPositions(ctx, storage.PositionFilter{Status: []domain.PositionStatus{domain.PositionOpen, domain.PositionClosing}})
	require.NoError(t, err)
	require.Len(t, openOnly, 1)
	assert.Equal(t, "pos-2", openOnly[0].ID)

	bySource, err := s.ListPositions(ctx, storage.PositionFilter{Source: walletA})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "pos-1", bySource[0].ID)
}

func testResults(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	order := domain.Order{
		ID:             "copy-sig-1",
		Source:         walletA,
		Kind:           domain.KindEntry,
		Direction:      domain.DirectionBuy,
		InputMint:      domain.SOLMint,
		OutputMint:     tokenX,
		Amount:         dec("1"),
		MaxSlippageBps: 300,
		TriggeredBy:    "sig-1",
		CreatedAt:      ts(0),
	}
	pending := domain.TradeResult{
		ID:          "res-1",
		Order:       order,
		Signature:   "tx-1",
		Status:      domain.TradePending,
		SubmittedAt: ts(1),
	}
	require.NoError(t, s.SaveTradeResult(ctx, pending))

	exit := domain.TradeResult{
		ID: "res-2",
		Order: domain.Order{
			ID:         "exit-1",
			Source:     walletA,
			Kind:       domain.KindExit,
			Direction:  domain.DirectionSell,
			InputMint:  tokenX,
			OutputMint: domain.SOLMint,
			Amount:     dec("250"),
			PositionID: "pos-1",
			CreatedAt:  ts(5),
		},
		Status:        domain.TradeFailed,
		ErrorCategory: domain.CategorySlippage,
		Error:         "slippage exceeded",
		SubmittedAt:   ts(6),
	}
	require.NoError(t, s.SaveTradeResult(ctx, exit))

	resolved := ts(2)
	pending.Status = domain.TradeConfirmed
	pending.InAmount = dec("1")
	pending.OutAmount = dec("498.5")
	pending.ResolvedAt = &resolved
	require.NoError(t, s.SaveTradeResult(ctx, pending))

	got, err := s.GetTradeResult(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeConfirmed, got.Status)
	assert.True(t, got.OutAmount.Equal(dec("498.5")))
	assert.Equal(t, order.ID, got.Order.ID)
	assert.Equal(t, order.TriggeredBy, got.Order.TriggeredBy)
	require.NotNil(t, got.ResolvedAt)

	_, err = s.GetTradeResult(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := s.ListTradeResults(ctx, storage.ResultFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "res-1", all[0].ID)

	failed, err := s.ListTradeResults(ctx, storage.ResultFilter{Status: domain.TradeFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.CategorySlippage, failed[0].ErrorCategory)

	byPosition, err := s.ListTradeResults(ctx, storage.ResultFilter{PositionID: "pos-1"})
	require.NoError(t, err)
	require.Len(t, byPosition, 1)
	assert.Equal(t, "res-2", byPosition[0].ID)

	limited, err := s.ListTradeResults(ctx, storage.ResultFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testLimitOrders(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	expires := ts(3600)
	buy := domain.LimitOrder{
		ID:          "limit-1",
		Type:        domain.LimitBuy,
		Token:       tokenX,
		QuoteMint:   domain.SOLMint,
		TargetPrice: dec("0.0015"),
		Amount:      dec("0.5"),
		SlippageBps: 150,
		Status:      domain.LimitPending,
		CreatedAt:   ts(0),
		ExpiresAt:   &expires,
	}
	stop := domain.LimitOrder{
		ID:          "limit-2",
		Type:        domain.StopLoss,
		Token:       walletB,
		QuoteMint:   domain.SOLMint,
		TargetPrice: dec("0.8"),
		Amount:      dec("100"),
		PositionID:  "pos-1",
		Status:      domain.LimitPending,
		CreatedAt:   ts(5),
	}
	require.NoError(t, s.SaveLimitOrder(ctx, buy))
	require.NoError(t, s.SaveLimitOrder(ctx, stop))

	filled := ts(60)
	buy.Status = domain.LimitFilled
	buy.FilledAt = &filled
	buy.FillPrice = dec("0.00149")
	buy.OrderID = "limit-limit-1"
	buy.Signature = "tx-9"
	require.NoError(t, s.SaveLimitOrder(ctx, buy))

	got, err := s.GetLimitOrder(ctx, "limit-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LimitFilled, got.Status)
	assert.Equal(t, domain.LimitBuy, got.Type)
	assert.True(t, got.TargetPrice.Equal(dec("0.0015")))
	assert.True(t, got.FillPrice.Equal(dec("0.00149")))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expires))
	assert.Equal(t, "limit-limit-1", got.OrderID)
	assert.Equal(t, 150, got.SlippageBps)

	_, err = s.GetLimitOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrLimitNotFound)

	all, err := s.ListLimitOrders(ctx, storage.LimitFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "limit-1", all[0].ID)

	pending, err := s.ListLimitOrders(ctx, storage.LimitFilter{Status: []domain.LimitStatus{domain.LimitPending, domain.LimitTriggered}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pos-1", pending[0].PositionID)

	byToken, err := s.ListLimitOrders(ctx, storage.LimitFilter{Token: tokenX})
	require.NoError(t, err)
	require.Len(t, byToken, 1)
	assert.Equal(t, "limit-1", byToken[0].ID)
}
