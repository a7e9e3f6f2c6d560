package pnl

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
	"github.com/rovshanmuradov/solana-copybot/internal/storage/memory"
)

const (
	walletA = "WaLLetA111111111111111111111111111111111111"
	tokenB  = "TokenB11111111111111111111111111111111111111"
	tokenC  = "TokenC11111111111111111111111111111111111111"
)

var start = time.Unix(1700000000, 0).UTC()

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type staticPrices map[string]decimal.Decimal

func (s staticPrices) Price(_ context.Context, token, _ string) (decimal.Decimal, error) {
	p, ok := s[token]
	if !ok {
		return decimal.Zero, router.ErrPriceUnavailable
	}
	return p, nil
}

func position(id, source, token, cost, size, remaining string, status domain.PositionStatus, openedAt time.Time) domain.Position {
	return domain.Position{
		ID:            id,
		Token:         token,
		QuoteMint:     domain.SOLMint,
		EntryPrice:    d(cost).Div(d(size)),
		EntrySize:     d(size),
		RemainingSize: d(remaining),
		EntryCost:     d(cost),
		TakeProfitPct: d("50"),
		StopLossPct:   d("25"),
		Source:        source,
		EntryResultID: "entry-" + id,
		Status:        status,
		OpenedAt:      openedAt,
	}
}

func exit(id, positionID, source, sold, received string, status domain.TradeStatus, at time.Time) domain.TradeResult {
	return domain.TradeResult{
		ID: id,
		Order: domain.Order{
			ID:         "order-" + id,
			Source:     source,
			Kind:       domain.KindExit,
			Direction:  domain.DirectionSell,
			OutputMint: domain.SOLMint,
			Amount:     d(sold),
			PositionID: positionID,
		},
		InAmount:    d(sold),
		OutAmount:   d(received),
		Status:      status,
		SubmittedAt: at,
	}
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	for _, p := range []domain.Position{
		position("p1", walletA, tokenB, "10", "20", "15", domain.PositionOpen, start),
		position("p2", walletA, tokenC, "10", "10", "0", domain.PositionClosed, start.Add(time.Minute)),
		position("p3", domain.SourceManual, tokenC, "5", "10", "0", domain.PositionClosed, start.Add(2*time.Minute)),
	} {
		require.NoError(t, s.SavePosition(ctx, p))
	}
	for _, r := range []domain.TradeResult{
		exit("x1", "p1", walletA, "5", "4", domain.TradeConfirmed, start.Add(time.Hour)),
		exit("x1-failed", "p1", walletA, "15", "0", domain.TradeFailed, start.Add(2*time.Hour)),
		exit("x2", "p2", walletA, "10", "7", domain.TradeConfirmed, start.Add(3*time.Hour)),
		exit("x3", "p3", domain.SourceManual, "10", "8", domain.TradeConfirmed, start.Add(4*time.Hour)),
	} {
		require.NoError(t, s.SaveTradeResult(ctx, r))
	}
	return s
}

func TestReportScopes(t *testing.T) {
	tracker := NewTracker(seededStore(t), staticPrices{tokenB: d("0.6")}, zaptest.NewLogger(t))
	ctx := context.Background()

	cases := []struct {
		scope      string
		realized   string
		unrealized string
		positions  int
		open       int
		wins       int
		losses     int
		winRate    float64
	}{
		{"all", "1.5", "1.5", 3, 1, 1, 1, 0.5},
		{"wallet:" + walletA, "-1.5", "1.5", 2, 1, 0, 1, 0},
		{"manual", "3", "0", 1, 0, 1, 0, 1},
		{"position:p1", "1.5", "1.5", 1, 1, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.scope, func(t *testing.T) {
			scope, err := ParseScope(tc.scope)
			require.NoError(t, err)

			s, err := tracker.Report(ctx, scope)
			require.NoError(t, err)

			assert.True(t, s.Realized.Equal(d(tc.realized)), "realized %s", s.Realized)
			assert.True(t, s.Unrealized.Equal(d(tc.unrealized)), "unrealized %s", s.Unrealized)
			assert.True(t, s.Total.Equal(s.Realized.Add(s.Unrealized)))
			assert.Equal(t, tc.positions, s.Positions)
			assert.Equal(t, tc.open, s.OpenPositions)
			assert.Equal(t, tc.wins, s.Wins)
			assert.Equal(t, tc.losses, s.Losses)
			assert.InDelta(t, tc.winRate, s.WinRate, 1e-9)
			assert.False(t, s.MarkUnavailable)
		})
	}
}

func TestReportWithoutMarkPrice(t *testing.T) {
	tracker := NewTracker(seededStore(t), staticPrices{}, zaptest.NewLogger(t))

	s, err := tracker.Report(context.Background(), Scope{Kind: ScopeAll})
	require.NoError(t, err)
	assert.True(t, s.MarkUnavailable)
	assert.True(t, s.Unrealized.IsZero())
	assert.True(t, s.Realized.Equal(d("1.5")))
}

func TestReportKeepsQuoteMintsApart(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	usdc := position("p4", walletA, tokenB, "100", "20", "0", domain.PositionClosed, start.Add(5*time.Minute))
	usdc.QuoteMint = domain.USDCMint
	require.NoError(t, store.SavePosition(ctx, usdc))
	sold := exit("x4", "p4", walletA, "20", "130", domain.TradeConfirmed, start.Add(5*time.Hour))
	sold.Order.OutputMint = domain.USDCMint
	require.NoError(t, store.SaveTradeResult(ctx, sold))

	tracker := NewTracker(store, staticPrices{tokenB: d("0.6")}, zaptest.NewLogger(t))
	s, err := tracker.Report(ctx, Scope{Kind: ScopeAll})
	require.NoError(t, err)

	assert.Equal(t, domain.SOLMint, s.QuoteMint)
	assert.True(t, s.Realized.Equal(d("1.5")), "USDC fills stay out of SOL totals: %s", s.Realized)
	assert.True(t, s.Basis.Equal(d("25")), "basis %s", s.Basis)
	assert.Equal(t, 3, s.Positions)

	require.Len(t, s.Others, 1)
	other := s.Others[0]
	assert.Equal(t, domain.USDCMint, other.QuoteMint)
	assert.True(t, other.Realized.Equal(d("30")), "realized %s", other.Realized)
	assert.True(t, other.Total.Equal(d("30")))
	assert.Equal(t, 1, other.Positions)
	assert.Equal(t, 1, other.Wins)
	assert.InDelta(t, 1.0, other.WinRate, 1e-9)
}

func TestReportUnknownPosition(t *testing.T) {
	tracker := NewTracker(seededStore(t), nil, zaptest.NewLogger(t))

	_, err := tracker.Report(context.Background(), Scope{Kind: ScopePosition, Key: "missing"})
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestParseScope(t *testing.T) {
	for raw, want := range map[string]Scope{
		"":                  {Kind: ScopeAll},
		"all":               {Kind: ScopeAll},
		"manual":            {Kind: ScopeWallet, Key: domain.SourceManual},
		"wallet:" + walletA: {Kind: ScopeWallet, Key: walletA},
		"position:p1":       {Kind: ScopePosition, Key: "p1"},
	} {
		got, err := ParseScope(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	for _, raw := range []string{"wallet:", "token:abc", "everything"} {
		_, err := ParseScope(raw)
		assert.ErrorIs(t, err, ErrInvalidScope, raw)
	}
}

func TestRealizedAndUnrealizedFormulas(t *testing.T) {
	p := position("p", walletA, tokenB, "10", "20", "15", domain.PositionOpen, start)

	realized := Realized(p, []domain.TradeResult{exit("x", "p", walletA, "5", "4", domain.TradeConfirmed, start)})
	assert.True(t, realized.Equal(d("1.5")))

	assert.True(t, Unrealized(p, d("0.5")).Equal(d("0")))
	assert.True(t, Unrealized(p, d("0.4")).Equal(d("-1.5")))
}
