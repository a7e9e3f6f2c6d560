// internal/telegram/commands.go
package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/bot"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// ErrUnknownCommand is returned for commands ParseCommand does not know.
var ErrUnknownCommand = errors.New("unknown command")

const helpText = `🤖 Copy bot commands

Wallets
/track <address> [name]
/untrack <address>
/wallet <address> on|off
/rename <address> <name>
/alerts <address> buy|sell|both|none
/wallets

Copy settings
/copy on|off
/set <mode|size|fixed|cap|min|max|direction|slippage> <value>
/whitelist <mint...>|none
/blacklist <mint...>|none
/stats [address]
/analyze <address> [transactions] [fresh]

Trading
/buy <token> <sol> [slippage_bps]
/sell <token> <amount> [slippage_bps]
/positions [all]
/tp <position_id> <percent>
/sl <position_id> <percent>
/close <position_id> [percent]
/pnl [all|manual|wallet:<address>|position:<id>]

Limit orders
/limit buy|sell|sl|tp <token|position_id> <price> <amount|all> [slippage_bps] [expires_hours]
/limits [all]
/cancellimit <id>`

// ParseCommand turns a chat command and its arguments into a core command.
func ParseCommand(name, args string) (bot.Command, error) {
	fields := strings.Fields(args)

	switch strings.ToLower(name) {
	case "track":
		if len(fields) < 1 {
			return nil, usage("/track <address> [name]")
		}
		return bot.TrackWalletCommand{Address: fields[0], Name: strings.Join(fields[1:], " ")}, nil

	case "untrack":
		if len(fields) != 1 {
			return nil, usage("/untrack <address>")
		}
		return bot.UntrackWalletCommand{Address: fields[0]}, nil

	case "copy":
		if len(fields) != 1 {
			return nil, usage("/copy on|off")
		}
		on, err := parseSwitch(fields[0])
		if err != nil {
			return nil, err
		}
		return bot.SetCopyEnabledCommand{Enabled: on}, nil

	case "wallet":
		if len(fields) != 2 {
			return nil, usage("/wallet <address> on|off")
		}
		on, err := parseSwitch(fields[1])
		if err != nil {
			return nil, err
		}
		return bot.SetWalletEnabledCommand{Address: fields[0], Enabled: on}, nil

	case "rename":
		if len(fields) < 2 {
			return nil, usage("/rename <address> <name>")
		}
		name := strings.Join(fields[1:], " ")
		return bot.UpdateWalletCommand{Address: fields[0], Name: &name}, nil

	case "alerts":
		if len(fields) != 2 {
			return nil, usage("/alerts <address> buy|sell|both|none")
		}
		var onBuy, onSell bool
		switch strings.ToLower(fields[1]) {
		case "buy":
			onBuy = true
		case "sell":
			onSell = true
		case "both":
			onBuy, onSell = true, true
		case "none", "off":
		default:
			return nil, usage("/alerts <address> buy|sell|both|none")
		}
		return bot.UpdateWalletCommand{Address: fields[0], AlertOnBuy: &onBuy, AlertOnSell: &onSell}, nil

	case "set":
		if len(fields) != 2 {
			return nil, usage("/set <key> <value>")
		}
		return parseSetting(strings.ToLower(fields[0]), fields[1])

	case "whitelist", "blacklist":
		if len(fields) == 0 {
			return nil, usage("/" + name + " <mint...>|none")
		}
		mints := fields
		if len(fields) == 1 && strings.EqualFold(fields[0], "none") {
			mints = []string{}
		}
		if strings.EqualFold(name, "whitelist") {
			return bot.UpdateCopySettingsCommand{Whitelist: mints}, nil
		}
		return bot.UpdateCopySettingsCommand{Blacklist: mints}, nil

	case "buy", "sell":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, usage("/" + name + " <token> <amount> [slippage_bps]")
		}
		amount, err := decimal.NewFromString(fields[1])
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q", fields[1])
		}
		cmd := bot.ManualOrderCommand{
			Direction: domain.Direction(strings.ToLower(name)),
			Token:     fields[0],
			Amount:    amount,
		}
		if len(fields) == 3 {
			bps, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("invalid slippage %q", fields[2])
			}
			cmd.SlippageBps = bps
		}
		return cmd, nil

	case "tp", "sl":
		if len(fields) != 2 {
			return nil, usage("/" + name + " <position_id> <percent>")
		}
		pct, err := parsePercent(fields[1])
		if err != nil {
			return nil, err
		}
		cmd := bot.UpdatePositionThresholdsCommand{PositionID: fields[0]}
		if strings.EqualFold(name, "tp") {
			cmd.TakeProfitPct = &pct
		} else {
			cmd.StopLossPct = &pct
		}
		return cmd, nil

	case "close":
		if len(fields) < 1 || len(fields) > 2 {
			return nil, usage("/close <position_id> [percent]")
		}
		pct := decimal.NewFromInt(100)
		if len(fields) == 2 {
			var err error
			if pct, err = parsePercent(fields[1]); err != nil {
				return nil, err
			}
		}
		return bot.ClosePositionCommand{PositionID: fields[0], Percentage: pct}, nil

	case "pnl":
		scope := "all"
		if len(fields) > 0 {
			scope = fields[0]
		}
		return bot.GetPnLCommand{Scope: scope}, nil

	case "positions":
		cmd := bot.ListPositionsCommand{}
		if len(fields) > 0 && strings.EqualFold(fields[0], "all") {
			cmd.Status = []domain.PositionStatus{domain.PositionOpen, domain.PositionClosing, domain.PositionClosed}
		}
		return cmd, nil

	case "wallets":
		return bot.ListWalletsCommand{}, nil

	case "stats":
		if len(fields) == 0 {
			return bot.CopyStatsCommand{}, nil
		}
		return parseAnalyze(fields)

	case "analyze":
		if len(fields) == 0 {
			return nil, usage("/analyze <address> [transactions] [fresh]")
		}
		return parseAnalyze(fields)

	case "limit":
		return parseLimit(fields)

	case "limits":
		all := len(fields) > 0 && strings.EqualFold(fields[0], "all")
		return bot.ListLimitOrdersCommand{All: all}, nil

	case "cancellimit":
		if len(fields) != 1 {
			return nil, usage("/cancellimit <id>")
		}
		return bot.CancelLimitOrderCommand{ID: fields[0]}, nil
	}

	return nil, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
}

func parseAnalyze(fields []string) (bot.Command, error) {
	if len(fields) > 3 {
		return nil, usage("/analyze <address> [transactions] [fresh]")
	}
	cmd := bot.AnalyzeWalletCommand{Address: fields[0]}
	for _, f := range fields[1:] {
		if strings.EqualFold(f, "fresh") {
			cmd.Refresh = true
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction count %q", f)
		}
		cmd.Limit = n
	}
	return cmd, nil
}

var limitTypes = map[string]domain.LimitOrderType{
	"buy":  domain.LimitBuy,
	"sell": domain.LimitSell,
	"sl":   domain.StopLoss,
	"tp":   domain.TakeProfit,
}

// parseLimit reads /limit <type> <token|position_id> <price> <amount|all>
// [slippage_bps] [expires_hours]. A sell target that is not a mint address
// is taken as a position ID.
func parseLimit(fields []string) (bot.Command, error) {
	const help = "/limit buy|sell|sl|tp <token|position_id> <price> <amount|all> [slippage_bps] [expires_hours]"
	if len(fields) < 4 || len(fields) > 6 {
		return nil, usage(help)
	}

	typ, ok := limitTypes[strings.ToLower(fields[0])]
	if !ok {
		typ = domain.LimitOrderType(strings.ToLower(fields[0]))
		if !typ.Valid() {
			return nil, usage(help)
		}
	}
	cmd := bot.PlaceLimitOrderCommand{Type: typ}

	if _, err := solana.PublicKeyFromBase58(fields[1]); err == nil || typ.Direction() == domain.DirectionBuy {
		cmd.Token = fields[1]
	} else {
		cmd.PositionID = fields[1]
	}

	price, err := decimal.NewFromString(fields[2])
	if err != nil {
		return nil, fmt.Errorf("invalid price %q", fields[2])
	}
	cmd.TargetPrice = price

	if !strings.EqualFold(fields[3], "all") {
		amount, err := decimal.NewFromString(fields[3])
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q", fields[3])
		}
		cmd.Amount = amount
	}

	if len(fields) > 4 {
		bps, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("invalid slippage %q", fields[4])
		}
		cmd.SlippageBps = bps
	}
	if len(fields) > 5 {
		hours, err := strconv.ParseFloat(fields[5], 64)
		if err != nil || hours < 0 {
			return nil, fmt.Errorf("invalid expiry %q", fields[5])
		}
		cmd.ExpiresIn = time.Duration(hours * float64(time.Hour))
	}
	return cmd, nil
}

func parseSetting(key, value string) (bot.Command, error) {
	var cmd bot.UpdateCopySettingsCommand
	switch key {
	case "mode":
		mode := domain.SizingMode(strings.ToLower(value))
		cmd.SizingMode = &mode
	case "direction":
		dir := domain.DirectionFilter(strings.ToLower(value))
		cmd.Direction = &dir
	case "slippage":
		bps, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid slippage %q", value)
		}
		cmd.MaxSlippageBps = &bps
	case "size", "fixed", "cap", "min", "max":
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", key, value)
		}
		switch key {
		case "size":
			cmd.SizeParam = &v
		case "fixed":
			cmd.FixedSize = &v
		case "cap":
			cmd.BalanceCapPct = &v
		case "min":
			cmd.MinTradeSOL = &v
		case "max":
			cmd.MaxTradeSOL = &v
		}
	default:
		return nil, fmt.Errorf("unknown setting %q", key)
	}
	return cmd, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func parsePercent(s string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSuffix(s, "%"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percent %q", s)
	}
	return pct, nil
}

func usage(text string) error {
	return fmt.Errorf("usage: %s", text)
}
