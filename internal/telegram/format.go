// internal/telegram/format.go
package telegram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rovshanmuradov/solana-copybot/internal/analyzer"
	"github.com/rovshanmuradov/solana-copybot/internal/bot"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

// FormatResult renders a command result as a chat reply.
func FormatResult(res bot.CommandResult) string {
	if res.Err != nil {
		text := "❌ " + res.Error()
		if out, ok := res.Data.(bot.ManualOrderResult); ok && out.Result != nil && out.Result.Signature != "" {
			text += "\nsig: " + out.Result.Signature
		}
		return text
	}

	switch data := res.Data.(type) {
	case domain.TrackedWallet:
		return formatWallet(data)
	case []domain.TrackedWallet:
		return formatWallets(data)
	case domain.CopySettings:
		return formatSettings(data)
	case bot.ManualOrderResult:
		return formatManualOrder(data)
	case domain.Order:
		return fmt.Sprintf("📉 Close submitted: %s %s (position %s)", data.Amount, domain.ShortAddress(data.InputMint), data.PositionID)
	case domain.Position:
		return formatPosition(data)
	case []domain.Position:
		return formatPositions(data)
	case domain.PnLSummary:
		return formatPnL(data)
	case bot.CopyStats:
		return formatStats(data)
	case domain.LimitOrder:
		return formatLimit(data)
	case []domain.LimitOrder:
		return formatLimits(data)
	case analyzer.Stats:
		return formatAnalysis(data)
	default:
		return "✅ Done"
	}
}

func formatWallet(w domain.TrackedWallet) string {
	state := "🟢 on"
	if !w.Enabled {
		state = "⏸ off"
	}
	var alerts []string
	if w.Overrides.AlertOnBuy {
		alerts = append(alerts, "buy")
	}
	if w.Overrides.AlertOnSell {
		alerts = append(alerts, "sell")
	}
	line := fmt.Sprintf("%s %s (%s)", state, w.DisplayName(), w.Address)
	if len(alerts) > 0 {
		line += " alerts: " + strings.Join(alerts, ",")
	}
	return line
}

func formatWallets(ws []domain.TrackedWallet) string {
	if len(ws) == 0 {
		return "No tracked wallets. Use /track <address>."
	}
	lines := []string{fmt.Sprintf("👛 Tracked wallets (%d)", len(ws))}
	for _, w := range ws {
		lines = append(lines, formatWallet(w))
	}
	return strings.Join(lines, "\n")
}

func formatSettings(s domain.CopySettings) string {
	state := "ON"
	if !s.Enabled {
		state = "OFF"
	}
	lines := []string{
		"⚙️ Copy trading " + state,
		fmt.Sprintf("mode: %s", s.SizingMode),
	}
	switch s.SizingMode {
	case domain.SizingFixed:
		lines = append(lines, fmt.Sprintf("fixed size: %s", s.FixedSize))
	case domain.SizingProportional:
		lines = append(lines, fmt.Sprintf("size: %s of source, cap %s of balance", s.SizeParam, s.BalanceCapPct))
	default:
		lines = append(lines, fmt.Sprintf("size: %s of source", s.SizeParam))
	}
	lines = append(lines,
		fmt.Sprintf("trade size: %s to %s SOL", s.MinTradeSOL, s.MaxTradeSOL),
		fmt.Sprintf("direction: %s", s.Direction),
		fmt.Sprintf("max slippage: %d bps", s.MaxSlippageBps),
		fmt.Sprintf("whitelist: %d, blacklist: %d", len(s.Whitelist), len(s.Blacklist)),
	)
	return strings.Join(lines, "\n")
}

func formatManualOrder(out bot.ManualOrderResult) string {
	if out.Result == nil {
		return fmt.Sprintf("📤 Sell queued: %s %s (position %s)", out.Order.Amount, domain.ShortAddress(out.Order.InputMint), out.Order.PositionID)
	}
	r := out.Result
	switch r.Status {
	case domain.TradeConfirmed:
		return fmt.Sprintf("✅ %s confirmed: %s %s → %s %s\nsig: %s",
			r.Order.Direction,
			r.InAmount, domain.ShortAddress(r.Order.InputMint),
			r.OutAmount, domain.ShortAddress(r.Order.OutputMint),
			r.Signature)
	case domain.TradePending:
		return fmt.Sprintf("⏳ %s pending\nsig: %s", r.Order.Direction, r.Signature)
	default:
		return fmt.Sprintf("❌ %s failed [%s]: %s", r.Order.Direction, r.ErrorCategory, r.Error)
	}
}

func formatPosition(p domain.Position) string {
	return fmt.Sprintf("📊 %s %s\nsize: %s / %s @ %s\nTP: %s%% (%s)  SL: %s%% (%s)\nsource: %s  status: %s",
		p.ID, domain.ShortAddress(p.Token),
		p.RemainingSize, p.EntrySize, p.EntryPrice,
		p.TakeProfitPct, p.TakeProfitPrice().Round(9), p.StopLossPct, p.StopLossPrice().Round(9),
		sourceName(p.Source), p.Status)
}

func formatPositions(ps []domain.Position) string {
	if len(ps) == 0 {
		return "No positions."
	}
	lines := []string{fmt.Sprintf("📊 Positions (%d)", len(ps))}
	for _, p := range ps {
		lines = append(lines, fmt.Sprintf("%s %s %s/%s @ %s TP %s%% SL %s%% [%s] %s",
			p.ID, domain.ShortAddress(p.Token), p.RemainingSize, p.EntrySize, p.EntryPrice,
			p.TakeProfitPct, p.StopLossPct, p.Status, sourceName(p.Source)))
	}
	return strings.Join(lines, "\n")
}

func formatPnL(s domain.PnLSummary) string {
	scope := s.Scope
	if s.Key != "" {
		scope += ":" + s.Key
	}
	lines := []string{
		"💰 PnL " + scope,
		fmt.Sprintf("realized: %s SOL", s.Realized.Round(9)),
		fmt.Sprintf("unrealized: %s SOL", s.Unrealized.Round(9)),
		fmt.Sprintf("total: %s SOL", s.Total.Round(9)),
		fmt.Sprintf("positions: %d (%d open)", s.Positions, s.OpenPositions),
		fmt.Sprintf("win rate: %.1f%% (%dW/%dL)", s.WinRate*100, s.Wins, s.Losses),
	}
	if s.MarkUnavailable {
		lines = append(lines, "⚠️ some prices unavailable, unrealized is partial")
	}
	for _, o := range s.Others {
		sym := domain.MintSymbol(o.QuoteMint)
		lines = append(lines, fmt.Sprintf("%s positions (%d): realized %s, unrealized %s, total %s %s",
			sym, o.Positions, o.Realized.Round(6), o.Unrealized.Round(6), o.Total.Round(6), sym))
	}
	return strings.Join(lines, "\n")
}

func formatStats(s bot.CopyStats) string {
	lines := []string{
		"📈 Copy stats",
		fmt.Sprintf("detected: %d", s.Detected),
		fmt.Sprintf("copied: %d", s.Copied),
		fmt.Sprintf("confirmed: %d, failed: %d", s.Confirmed, s.Failed),
		fmt.Sprintf("skipped: %d", s.SkippedTotal()),
	}
	reasons := make([]string, 0, len(s.Skipped))
	for r := range s.Skipped {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		lines = append(lines, fmt.Sprintf("  %s: %d", r, s.Skipped[domain.SkipReason(r)]))
	}
	return strings.Join(lines, "\n")
}

func formatLimit(o domain.LimitOrder) string {
	amount := o.Amount.String()
	if o.Amount.IsZero() {
		amount = "all"
	}
	line := fmt.Sprintf("📌 %s %s %s %s @ %s %s [%s]",
		o.ID, o.Type, amount, domain.ShortAddress(o.Token), o.TargetPrice, domain.MintSymbol(o.QuoteMint), o.Status)
	if o.PositionID != "" {
		line += " position " + o.PositionID
	}
	if o.ExpiresAt != nil && o.Status == domain.LimitPending {
		line += " expires " + o.ExpiresAt.UTC().Format("2006-01-02 15:04")
	}
	return line
}

func formatLimits(orders []domain.LimitOrder) string {
	if len(orders) == 0 {
		return "No limit orders."
	}
	lines := []string{fmt.Sprintf("📌 Limit orders (%d)", len(orders))}
	for _, o := range orders {
		lines = append(lines, formatLimit(o))
	}
	return strings.Join(lines, "\n")
}

func formatAnalysis(s analyzer.Stats) string {
	lines := []string{
		fmt.Sprintf("🔎 %s grade %s", s.Address, s.Grade()),
		fmt.Sprintf("transactions: %d, swaps: %d (%d buys, %d sells)", s.Transactions, s.TotalTrades, s.Buys, s.Sells),
	}
	if s.TotalTrades == 0 {
		return strings.Join(append(lines, "No swaps found."), "\n")
	}
	lines = append(lines,
		fmt.Sprintf("win rate: %.1f%%", s.WinRate),
		fmt.Sprintf("pnl: %s SOL (best %s, worst %s)", s.TotalPnLSOL.Round(4), s.LargestWinSOL.Round(4), s.LargestLossSOL.Round(4)),
		fmt.Sprintf("avg trade: %s SOL", s.AvgTradeSizeSOL.Round(4)),
		fmt.Sprintf("most traded: %s", domain.ShortAddress(s.MostTraded)),
		fmt.Sprintf("active: %s to %s", s.FirstTrade.UTC().Format("2006-01-02"), s.LastTrade.UTC().Format("2006-01-02")),
	)
	if s.Unreadable > 0 {
		lines = append(lines, fmt.Sprintf("⚠️ %d transactions unreadable", s.Unreadable))
	}
	return strings.Join(lines, "\n")
}

func sourceName(source string) string {
	if source == domain.SourceManual {
		return domain.SourceManual
	}
	return domain.ShortAddress(source)
}

// formatEvent renders a notification, or "" when the event is not worth one.
func formatEvent(event events.Event) string {
	switch ev := event.(type) {
	case *events.TradeExecutedEvent:
		r := ev.Result
		label := "🪞 Copy"
		if r.Order.Source == domain.SourceManual {
			label = "✋ Manual"
		}
		switch r.Status {
		case domain.TradeConfirmed:
			return fmt.Sprintf("%s %s confirmed: %s %s → %s %s\nsig: %s",
				label, r.Order.Direction,
				r.InAmount, domain.ShortAddress(r.Order.InputMint),
				r.OutAmount, domain.ShortAddress(r.Order.OutputMint),
				r.Signature)
		case domain.TradeFailed:
			return fmt.Sprintf("%s %s failed [%s]: %s", label, r.Order.Direction, r.ErrorCategory, r.Error)
		}
	case *events.PositionChangedEvent:
		p := ev.Position
		switch p.Status {
		case domain.PositionOpen:
			if ev.From == "" {
				return fmt.Sprintf("📈 Position opened %s: %s %s @ %s (%s)",
					p.ID, p.EntrySize, domain.ShortAddress(p.Token), p.EntryPrice, sourceName(p.Source))
			}
		case domain.PositionClosing:
			if ev.Reason == "take_profit" || ev.Reason == "stop_loss" {
				return fmt.Sprintf("🎯 %s hit on %s, selling %s %s", ev.Reason, p.ID, p.PendingSize, domain.ShortAddress(p.Token))
			}
		case domain.PositionClosed:
			return fmt.Sprintf("🏁 Position closed %s (%s)", p.ID, domain.ShortAddress(p.Token))
		}
	case *events.LimitOrderEvent:
		o := ev.Order
		switch o.Status {
		case domain.LimitTriggered:
			return fmt.Sprintf("📌 Limit %s %s triggered on %s", o.ID, o.Type, domain.ShortAddress(o.Token))
		case domain.LimitFilled:
			return fmt.Sprintf("✅ Limit %s %s filled @ %s\nsig: %s", o.ID, o.Type, o.FillPrice, o.Signature)
		case domain.LimitFailed:
			return fmt.Sprintf("❌ Limit %s %s failed: %s", o.ID, o.Type, o.Error)
		case domain.LimitExpired:
			return fmt.Sprintf("⌛ Limit %s %s expired", o.ID, o.Type)
		}
	case *events.FeedHealthEvent:
		if ev.Type() == events.FeedDegraded {
			return fmt.Sprintf("⚠️ Feed degraded for %s after %d attempts: %s", domain.ShortAddress(ev.Wallet), ev.Attempts, ev.Err)
		}
		return fmt.Sprintf("✅ Feed recovered for %s", domain.ShortAddress(ev.Wallet))
	case *events.MonitoringGapEvent:
		return fmt.Sprintf("🕳 Monitoring gap for %s after %s: %s", domain.ShortAddress(ev.Wallet), ev.From.Signature, ev.Reason)
	case *events.CopySkippedEvent:
		text := fmt.Sprintf("⏭ Skipped %s %s from %s: %s",
			ev.Trade.Direction, domain.ShortAddress(ev.Trade.TradedToken()), domain.ShortAddress(ev.Trade.Wallet), ev.Reason)
		if ev.Detail != "" {
			text += " (" + ev.Detail + ")"
		}
		return text
	}
	return ""
}

// formatAlert renders a per-wallet buy/sell alert.
func formatAlert(w domain.TrackedWallet, t domain.DetectedTrade) string {
	icon := "🟢"
	if t.Direction == domain.DirectionSell {
		icon = "🔴"
	}
	return fmt.Sprintf("%s %s %s: %s %s → %s %s\nsig: %s",
		icon, w.DisplayName(), t.Direction,
		t.InputAmount, domain.ShortAddress(t.InputMint),
		t.OutputAmount, domain.ShortAddress(t.OutputMint),
		t.Signature)
}
