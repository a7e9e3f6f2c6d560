package position

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

func TestLimitBuyTriggersAndOpensPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.mgr.PlaceLimit(ctx, LimitRequest{
		Type:        domain.LimitBuy,
		Token:       tokenB,
		TargetPrice: d("0.5"),
		Amount:      d("2"),
		SlippageBps: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LimitPending, o.Status)
	assert.Equal(t, domain.SOLMint, o.QuoteMint)

	f.prices.set(tokenB, "0.6")
	assert.Equal(t, 0, f.mgr.CheckPrices(ctx))
	assert.Empty(t, f.exec.submitted())

	f.prices.set(tokenB, "0.5")
	assert.Equal(t, 1, f.mgr.CheckPrices(ctx))

	orders := f.exec.submitted()
	require.Len(t, orders, 1)
	buy := orders[0]
	assert.Equal(t, domain.KindEntry, buy.Kind)
	assert.Equal(t, domain.SourceManual, buy.Source)
	assert.Equal(t, domain.SOLMint, buy.InputMint)
	assert.Equal(t, tokenB, buy.OutputMint)
	assert.True(t, buy.Amount.Equal(d("2")))
	assert.Equal(t, 200, buy.MaxSlippageBps)
	assert.Equal(t, "limit:"+o.ID, buy.TriggeredBy)

	stored, err := f.store.GetLimitOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LimitTriggered, stored.Status)
	assert.Equal(t, buy.ID, stored.OrderID)

	// Already triggered: the next tick leaves it alone.
	assert.Equal(t, 0, f.mgr.CheckPrices(ctx))
	_, err = f.mgr.CancelLimit(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrLimitNotPending)

	require.NoError(t, f.mgr.ApplyResult(ctx, domain.TradeResult{
		ID:        "res-limit",
		Order:     buy,
		Signature: "sig-limit",
		InAmount:  d("2"),
		OutAmount: d("4"),
		Status:    domain.TradeConfirmed,
	}))

	stored, err = f.store.GetLimitOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LimitFilled, stored.Status)
	assert.True(t, stored.FillPrice.Equal(d("0.5")))
	assert.Equal(t, "sig-limit", stored.Signature)
	require.NotNil(t, stored.FilledAt)

	open := f.mgr.OpenFor(domain.SourceManual, tokenB)
	require.Len(t, open, 1)
	assert.True(t, open[0].EntrySize.Equal(d("4")))
}

func TestStopLossLimitSellsPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := openPosition(t, f)

	o, err := f.mgr.PlaceLimit(ctx, LimitRequest{
		Type:        domain.StopLoss,
		PositionID:  p.ID,
		TargetPrice: d("0.9"),
	})
	require.NoError(t, err)
	assert.Equal(t, tokenB, o.Token)
	assert.True(t, o.Amount.IsZero())

	f.prices.set(tokenB, "0.95")
	assert.Equal(t, 0, f.mgr.CheckPrices(ctx))

	f.prices.set(tokenB, "0.85")
	assert.Equal(t, 1, f.mgr.CheckPrices(ctx))

	orders := f.exec.submitted()
	require.Len(t, orders, 1)
	sell := orders[0]
	assert.Equal(t, domain.KindExit, sell.Kind)
	assert.Equal(t, p.ID, sell.PositionID)
	assert.True(t, sell.Amount.Equal(d("20")), "zero amount sells the rest")
	assert.Equal(t, "limit-"+o.ID, sell.ID)

	got, err := f.mgr.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosing, got.Status)

	require.NoError(t, f.mgr.ApplyResult(ctx, exitResult(sell, domain.TradeFailed, "0", "0")))

	stored, err := f.store.GetLimitOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LimitFailed, stored.Status)
	got, err = f.mgr.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionOpen, got.Status, "failed sell reopens the position")
}

func TestLimitSellWaitsWhilePositionCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := openPosition(t, f)

	o, err := f.mgr.PlaceLimit(ctx, LimitRequest{
		Type:        domain.TakeProfit,
		PositionID:  p.ID,
		TargetPrice: d("1.2"),
		Amount:      d("5"),
	})
	require.NoError(t, err)

	manual, err := f.mgr.Close(ctx, p.ID, d("50"))
	require.NoError(t, err)

	f.prices.set(tokenB, "1.25")
	assert.Equal(t, 0, f.mgr.CheckPrices(ctx))
	stored, err := f.store.GetLimitOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LimitPending, stored.Status)

	require.NoError(t, f.mgr.ApplyResult(ctx, exitResult(manual, domain.TradeConfirmed, "10", "12")))
	assert.Equal(t, 1, f.mgr.CheckPrices(ctx))

	orders := f.exec.submitted()
	require.Len(t, orders, 2)
	assert.True(t, orders[1].Amount.Equal(d("5")))
}

func TestLimitOrderExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.mgr.PlaceLimit(ctx, LimitRequest{
		Type:        domain.LimitSell,
		Token:       tokenB,
		TargetPrice: d("3"),
		Amount:      d("10"),
		ExpiresIn:   time.Hour,
	})
	require.NoError(t, err)
	require.NotNil(t, o.ExpiresAt)

	f.clock.Advance(time.Hour)
	f.prices.set(tokenB, "5")
	assert.Equal(t, 0, f.mgr.CheckPrices(ctx))
	assert.Empty(t, f.exec.submitted())

	stored, err := f.store.GetLimitOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LimitExpired, stored.Status)
}

func TestCancelLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.mgr.PlaceLimit(ctx, LimitRequest{
		Type:        domain.LimitBuy,
		Token:       tokenB,
		TargetPrice: d("1"),
		Amount:      d("1"),
	})
	require.NoError(t, err)

	cancelled, err := f.mgr.CancelLimit(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LimitCancelled, cancelled.Status)

	_, err = f.mgr.CancelLimit(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrLimitNotPending)
	_, err = f.mgr.CancelLimit(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrLimitNotFound)

	f.prices.set(tokenB, "0.5")
	assert.Equal(t, 0, f.mgr.CheckPrices(ctx))

	all, err := f.mgr.ListLimits(ctx, storage.LimitFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.LimitCancelled, all[0].Status)
}

func TestPlaceLimitRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := openPosition(t, f)

	cases := map[string]LimitRequest{
		"unknown type":       {Type: "trailing", Token: tokenB, TargetPrice: d("1"), Amount: d("1")},
		"zero price":         {Type: domain.LimitBuy, Token: tokenB, Amount: d("1")},
		"zero amount":        {Type: domain.LimitSell, Token: tokenB, TargetPrice: d("1")},
		"buy on position":    {Type: domain.LimitBuy, PositionID: p.ID, TargetPrice: d("1"), Amount: d("1")},
		"no token":           {Type: domain.LimitBuy, TargetPrice: d("1"), Amount: d("1")},
		"token is the quote": {Type: domain.LimitBuy, Token: domain.SOLMint, TargetPrice: d("1"), Amount: d("1")},
		"wrong token":        {Type: domain.StopLoss, PositionID: p.ID, Token: walletA, TargetPrice: d("1")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.mgr.PlaceLimit(ctx, req)
			assert.Error(t, err)
		})
	}

	_, err := f.mgr.PlaceLimit(ctx, LimitRequest{Type: domain.StopLoss, PositionID: "missing", TargetPrice: d("1")})
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestLoadRestoresPendingLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.mgr.PlaceLimit(ctx, LimitRequest{
		Type:        domain.LimitSell,
		Token:       tokenB,
		TargetPrice: d("2"),
		Amount:      d("10"),
	})
	require.NoError(t, err)

	restarted := NewManager(f.exec, f.store, f.prices, nil, clock.NewFake(start), Config{}, zaptest.NewLogger(t))
	require.NoError(t, restarted.Load(ctx))

	f.prices.set(tokenB, "2.1")
	assert.Equal(t, 1, restarted.CheckPrices(ctx))

	orders := f.exec.submitted()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.KindExit, orders[0].Kind)
	assert.Equal(t, tokenB, orders[0].InputMint)
	assert.Equal(t, domain.SOLMint, orders[0].OutputMint)
	assert.Empty(t, orders[0].PositionID)
	assert.Equal(t, "limit:"+o.ID, orders[0].TriggeredBy)
}
