package telegram

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-copybot/internal/analyzer"
	"github.com/rovshanmuradov/solana-copybot/internal/bot"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

const (
	walletA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	tokenX  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseWalletCommands(t *testing.T) {
	cmd, err := ParseCommand("track", walletA+" big whale")
	require.NoError(t, err)
	assert.Equal(t, bot.TrackWalletCommand{Address: walletA, Name: "big whale"}, cmd)

	cmd, err = ParseCommand("wallet", walletA+" off")
	require.NoError(t, err)
	assert.Equal(t, bot.SetWalletEnabledCommand{Address: walletA, Enabled: false}, cmd)

	cmd, err = ParseCommand("rename", walletA+" degen")
	require.NoError(t, err)
	update := cmd.(bot.UpdateWalletCommand)
	require.NotNil(t, update.Name)
	assert.Equal(t, "degen", *update.Name)

	cmd, err = ParseCommand("alerts", walletA+" sell")
	require.NoError(t, err)
	update = cmd.(bot.UpdateWalletCommand)
	require.NotNil(t, update.AlertOnBuy)
	require.NotNil(t, update.AlertOnSell)
	assert.False(t, *update.AlertOnBuy)
	assert.True(t, *update.AlertOnSell)

	_, err = ParseCommand("alerts", walletA+" loud")
	assert.Error(t, err)
	_, err = ParseCommand("untrack", "")
	assert.Error(t, err)
}

func TestParseSettingsCommands(t *testing.T) {
	cmd, err := ParseCommand("copy", "ON")
	require.NoError(t, err)
	assert.Equal(t, bot.SetCopyEnabledCommand{Enabled: true}, cmd)

	cmd, err = ParseCommand("set", "size 0.25")
	require.NoError(t, err)
	patch := cmd.(bot.UpdateCopySettingsCommand)
	require.NotNil(t, patch.SizeParam)
	assert.True(t, patch.SizeParam.Equal(d("0.25")))

	cmd, err = ParseCommand("set", "mode proportional")
	require.NoError(t, err)
	patch = cmd.(bot.UpdateCopySettingsCommand)
	require.NotNil(t, patch.SizingMode)
	assert.Equal(t, domain.SizingProportional, *patch.SizingMode)

	cmd, err = ParseCommand("set", "slippage 250")
	require.NoError(t, err)
	patch = cmd.(bot.UpdateCopySettingsCommand)
	require.NotNil(t, patch.MaxSlippageBps)
	assert.Equal(t, 250, *patch.MaxSlippageBps)

	_, err = ParseCommand("set", "leverage 10")
	assert.Error(t, err)
	_, err = ParseCommand("set", "size lots")
	assert.Error(t, err)

	cmd, err = ParseCommand("blacklist", tokenX)
	require.NoError(t, err)
	assert.Equal(t, []string{tokenX}, cmd.(bot.UpdateCopySettingsCommand).Blacklist)

	// "none" clears the list; a nil list would leave it unchanged.
	cmd, err = ParseCommand("whitelist", "none")
	require.NoError(t, err)
	wl := cmd.(bot.UpdateCopySettingsCommand).Whitelist
	assert.NotNil(t, wl)
	assert.Empty(t, wl)
}

func TestParseTradingCommands(t *testing.T) {
	cmd, err := ParseCommand("buy", tokenX+" 0.5 150")
	require.NoError(t, err)
	order := cmd.(bot.ManualOrderCommand)
	assert.Equal(t, domain.DirectionBuy, order.Direction)
	assert.Equal(t, tokenX, order.Token)
	assert.True(t, order.Amount.Equal(d("0.5")))
	assert.Equal(t, 150, order.SlippageBps)

	cmd, err = ParseCommand("sell", tokenX+" 1000")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionSell, cmd.(bot.ManualOrderCommand).Direction)

	_, err = ParseCommand("buy", tokenX+" lots")
	assert.Error(t, err)

	cmd, err = ParseCommand("tp", "pos-1 80%")
	require.NoError(t, err)
	thresholds := cmd.(bot.UpdatePositionThresholdsCommand)
	require.NotNil(t, thresholds.TakeProfitPct)
	assert.Nil(t, thresholds.StopLossPct)
	assert.True(t, thresholds.TakeProfitPct.Equal(d("80")))

	cmd, err = ParseCommand("sl", "pos-1 15")
	require.NoError(t, err)
	thresholds = cmd.(bot.UpdatePositionThresholdsCommand)
	require.NotNil(t, thresholds.StopLossPct)
	assert.True(t, thresholds.StopLossPct.Equal(d("15")))

	cmd, err = ParseCommand("close", "pos-1")
	require.NoError(t, err)
	assert.True(t, cmd.(bot.ClosePositionCommand).Percentage.Equal(d("100")))

	cmd, err = ParseCommand("close", "pos-1 25")
	require.NoError(t, err)
	assert.True(t, cmd.(bot.ClosePositionCommand).Percentage.Equal(d("25")))
}

func TestParseQueryCommands(t *testing.T) {
	cmd, err := ParseCommand("pnl", "")
	require.NoError(t, err)
	assert.Equal(t, bot.GetPnLCommand{Scope: "all"}, cmd)

	cmd, err = ParseCommand("pnl", "wallet:"+walletB)
	require.NoError(t, err)
	assert.Equal(t, bot.GetPnLCommand{Scope: "wallet:" + walletB}, cmd)

	cmd, err = ParseCommand("positions", "all")
	require.NoError(t, err)
	assert.Len(t, cmd.(bot.ListPositionsCommand).Status, 3)

	cmd, err = ParseCommand("positions", "")
	require.NoError(t, err)
	assert.Empty(t, cmd.(bot.ListPositionsCommand).Status)

	_, err = ParseCommand("moon", "")
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}

func TestFormatResult(t *testing.T) {
	text := FormatResult(bot.CommandResult{OK: true, Data: domain.PnLSummary{
		Scope:    "all",
		Realized: d("1.5"),
		Total:    d("1.5"),
		Wins:     3,
		Losses:   1,
		WinRate:  0.75,
	}})
	assert.Contains(t, text, "realized: 1.5 SOL")
	assert.Contains(t, text, "win rate: 75.0% (3W/1L)")
	assert.NotContains(t, text, "USDC")

	text = FormatResult(bot.CommandResult{OK: true, Data: domain.PnLSummary{
		Scope:  "all",
		Others: []domain.PnLSummary{{QuoteMint: domain.USDCMint, Positions: 1, Realized: d("30"), Total: d("30")}},
	}})
	assert.Contains(t, text, "USDC positions (1): realized 30, unrealized 0, total 30 USDC")

	text = FormatResult(bot.CommandResult{OK: true, Data: []domain.Position{}})
	assert.Equal(t, "No positions.", text)

	text = FormatResult(bot.CommandResult{OK: true})
	assert.Equal(t, "✅ Done", text)

	text = FormatResult(bot.CommandResult{
		Err: errors.New("execution failed [slippage]: quote moved"),
		Data: bot.ManualOrderResult{Result: &domain.TradeResult{
			Status:    domain.TradeFailed,
			Signature: "3xyz",
		}},
	})
	assert.Contains(t, text, "❌ execution failed [slippage]")
	assert.Contains(t, text, "sig: 3xyz")
}

func TestParseLimitCommands(t *testing.T) {
	cmd, err := ParseCommand("limit", "buy "+tokenX+" 0.002 1.5 300 24")
	require.NoError(t, err)
	place := cmd.(bot.PlaceLimitOrderCommand)
	assert.Equal(t, domain.LimitBuy, place.Type)
	assert.Equal(t, tokenX, place.Token)
	assert.Empty(t, place.PositionID)
	assert.True(t, place.TargetPrice.Equal(d("0.002")))
	assert.True(t, place.Amount.Equal(d("1.5")))
	assert.Equal(t, 300, place.SlippageBps)
	assert.Equal(t, 24*time.Hour, place.ExpiresIn)
	require.NoError(t, place.Validate())

	cmd, err = ParseCommand("limit", "sl pos-1 0.0009 all")
	require.NoError(t, err)
	place = cmd.(bot.PlaceLimitOrderCommand)
	assert.Equal(t, domain.StopLoss, place.Type)
	assert.Equal(t, "pos-1", place.PositionID)
	assert.Empty(t, place.Token)
	assert.True(t, place.Amount.IsZero())
	require.NoError(t, place.Validate())

	cmd, err = ParseCommand("limit", "take_profit "+tokenX+" 0.01 100")
	require.NoError(t, err)
	place = cmd.(bot.PlaceLimitOrderCommand)
	assert.Equal(t, domain.TakeProfit, place.Type)
	assert.Equal(t, tokenX, place.Token)

	for _, args := range []string{
		"",
		"trailing " + tokenX + " 1 1",
		"buy " + tokenX + " cheap 1",
		"buy " + tokenX + " 1 lots",
		"buy " + tokenX + " 1 1 wide",
		"buy " + tokenX + " 1 1 100 -2",
	} {
		_, err := ParseCommand("limit", args)
		assert.Error(t, err, args)
	}

	cmd, err = ParseCommand("limits", "all")
	require.NoError(t, err)
	assert.Equal(t, bot.ListLimitOrdersCommand{All: true}, cmd)

	cmd, err = ParseCommand("cancellimit", "lim-1")
	require.NoError(t, err)
	assert.Equal(t, bot.CancelLimitOrderCommand{ID: "lim-1"}, cmd)
	_, err = ParseCommand("cancellimit", "")
	assert.Error(t, err)
}

func TestParseAnalyzeCommands(t *testing.T) {
	cmd, err := ParseCommand("stats", "")
	require.NoError(t, err)
	assert.Equal(t, bot.CopyStatsCommand{}, cmd)

	cmd, err = ParseCommand("stats", walletA)
	require.NoError(t, err)
	assert.Equal(t, bot.AnalyzeWalletCommand{Address: walletA}, cmd)

	cmd, err = ParseCommand("analyze", walletA+" 200 fresh")
	require.NoError(t, err)
	assert.Equal(t, bot.AnalyzeWalletCommand{Address: walletA, Limit: 200, Refresh: true}, cmd)

	_, err = ParseCommand("analyze", "")
	assert.Error(t, err)
	_, err = ParseCommand("analyze", walletA+" many")
	assert.Error(t, err)
}

func TestFormatLimitsAndAnalysis(t *testing.T) {
	expires := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	text := FormatResult(bot.CommandResult{OK: true, Data: []domain.LimitOrder{
		{ID: "lim-1", Type: domain.LimitBuy, Token: tokenX, QuoteMint: domain.SOLMint, TargetPrice: d("0.5"), Amount: d("2"), Status: domain.LimitPending, ExpiresAt: &expires},
		{ID: "lim-2", Type: domain.StopLoss, Token: tokenX, QuoteMint: domain.SOLMint, TargetPrice: d("0.1"), PositionID: "pos-1", Status: domain.LimitTriggered},
	}})
	assert.Contains(t, text, "Limit orders (2)")
	assert.Contains(t, text, "lim-1 limit_buy 2")
	assert.Contains(t, text, "@ 0.5 SOL [pending] expires 2024-03-01 12:00")
	assert.Contains(t, text, "lim-2 stop_loss all")
	assert.Contains(t, text, "position pos-1")

	assert.Equal(t, "No limit orders.", FormatResult(bot.CommandResult{OK: true, Data: []domain.LimitOrder{}}))

	text = FormatResult(bot.CommandResult{OK: true, Data: analyzer.Stats{
		Address:         walletA,
		Transactions:    40,
		TotalTrades:     10,
		Buys:            6,
		Sells:           4,
		WinRate:         75,
		TotalPnLSOL:     d("12.5"),
		LargestWinSOL:   d("9"),
		LargestLossSOL:  d("-1"),
		AvgTradeSizeSOL: d("0.8"),
		MostTraded:      tokenX,
		Unreadable:      2,
	}})
	assert.Contains(t, text, "grade S")
	assert.Contains(t, text, "swaps: 10 (6 buys, 4 sells)")
	assert.Contains(t, text, "win rate: 75.0%")
	assert.Contains(t, text, "pnl: 12.5 SOL (best 9, worst -1)")
	assert.Contains(t, text, "2 transactions unreadable")

	text = FormatResult(bot.CommandResult{OK: true, Data: analyzer.Stats{Address: walletB, Transactions: 3}})
	assert.Contains(t, text, "grade D")
	assert.Contains(t, text, "No swaps found.")
}

func TestFormatLimitEvents(t *testing.T) {
	base := events.NewBase(events.LimitOrderChanged, time.Unix(1700000000, 0))
	order := domain.LimitOrder{ID: "lim-1", Type: domain.TakeProfit, Token: tokenX, Status: domain.LimitFilled, FillPrice: d("1.2"), Signature: "5sig"}

	text := formatEvent(&events.LimitOrderEvent{BaseEvent: base, Order: order, From: domain.LimitTriggered})
	assert.Contains(t, text, "lim-1 take_profit filled @ 1.2")
	assert.Contains(t, text, "sig: 5sig")

	order.Status, order.Error = domain.LimitFailed, "route not found"
	text = formatEvent(&events.LimitOrderEvent{BaseEvent: base, Order: order, From: domain.LimitTriggered})
	assert.Contains(t, text, "failed: route not found")

	order.Status = domain.LimitPending
	assert.Empty(t, formatEvent(&events.LimitOrderEvent{BaseEvent: base, Order: order}))
}
