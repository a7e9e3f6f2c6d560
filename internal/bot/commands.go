// internal/bot/commands.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

var ErrNoHandler = errors.New("no handler registered for command")

// Command is a request into the core. Front ends build commands; the bus
// validates and dispatches them.
type Command interface {
	GetType() string
	Validate() error
}

// CommandResult is the structured outcome of a command.
type CommandResult struct {
	OK   bool        `json:"ok"`
	Data interface{} `json:"data,omitempty"`
	Err  error       `json:"-"`
}

// Error returns the failure message, or "" on success.
func (r CommandResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// TrackWalletCommand starts mirroring a wallet.
type TrackWalletCommand struct {
	Address   string                  `json:"address"`
	Name      string                  `json:"name"`
	Disabled  bool                    `json:"disabled"`
	Overrides *domain.WalletOverrides `json:"overrides,omitempty"`
}

func (c TrackWalletCommand) GetType() string { return "track_wallet" }

func (c TrackWalletCommand) Validate() error {
	return validateAddress(c.Address)
}

// UntrackWalletCommand stops mirroring a wallet.
type UntrackWalletCommand struct {
	Address string `json:"address"`
}

func (c UntrackWalletCommand) GetType() string { return "untrack_wallet" }
func (c UntrackWalletCommand) Validate() error { return validateAddress(c.Address) }

// SetCopyEnabledCommand switches copy trading globally.
type SetCopyEnabledCommand struct {
	Enabled bool `json:"enabled"`
}

func (c SetCopyEnabledCommand) GetType() string { return "set_copy_enabled" }
func (c SetCopyEnabledCommand) Validate() error { return nil }

// SetWalletEnabledCommand pauses or resumes copying of one wallet.
type SetWalletEnabledCommand struct {
	Address string `json:"address"`
	Enabled bool   `json:"enabled"`
}

func (c SetWalletEnabledCommand) GetType() string { return "set_wallet_enabled" }
func (c SetWalletEnabledCommand) Validate() error { return validateAddress(c.Address) }

// UpdateWalletCommand renames a wallet, replaces its overrides or flips its
// alert flags. Alert flags are applied after Overrides.
type UpdateWalletCommand struct {
	Address     string                  `json:"address"`
	Name        *string                 `json:"name,omitempty"`
	Overrides   *domain.WalletOverrides `json:"overrides,omitempty"`
	AlertOnBuy  *bool                   `json:"alert_on_buy,omitempty"`
	AlertOnSell *bool                   `json:"alert_on_sell,omitempty"`
}

func (c UpdateWalletCommand) GetType() string { return "update_wallet" }

func (c UpdateWalletCommand) Validate() error {
	if err := validateAddress(c.Address); err != nil {
		return err
	}
	if c.Name == nil && c.Overrides == nil && c.AlertOnBuy == nil && c.AlertOnSell == nil {
		return errors.New("nothing to update")
	}
	return nil
}

// UpdateCopySettingsCommand patches the global copy settings. Nil fields
// are left unchanged; a non-nil list replaces the stored list.
type UpdateCopySettingsCommand struct {
	SizingMode     *domain.SizingMode      `json:"sizing_mode,omitempty"`
	SizeParam      *decimal.Decimal        `json:"size_param,omitempty"`
	FixedSize      *decimal.Decimal        `json:"fixed_size,omitempty"`
	BalanceCapPct  *decimal.Decimal        `json:"balance_cap_pct,omitempty"`
	MinTradeSOL    *decimal.Decimal        `json:"min_trade_sol,omitempty"`
	MaxTradeSOL    *decimal.Decimal        `json:"max_trade_sol,omitempty"`
	Direction      *domain.DirectionFilter `json:"direction,omitempty"`
	Whitelist      []string                `json:"whitelist,omitempty"`
	Blacklist      []string                `json:"blacklist,omitempty"`
	MaxSlippageBps *int                    `json:"max_slippage_bps,omitempty"`
}

func (c UpdateCopySettingsCommand) GetType() string { return "update_copy_settings" }

func (c UpdateCopySettingsCommand) Validate() error {
	for _, mint := range append(append([]string(nil), c.Whitelist...), c.Blacklist...) {
		if err := validateAddress(mint); err != nil {
			return fmt.Errorf("token list: %w", err)
		}
	}
	return nil
}

// Apply writes the non-nil fields onto s.
func (c UpdateCopySettingsCommand) Apply(s *domain.CopySettings) error {
	if c.SizingMode != nil {
		s.SizingMode = *c.SizingMode
	}
	if c.SizeParam != nil {
		s.SizeParam = *c.SizeParam
	}
	if c.FixedSize != nil {
		s.FixedSize = *c.FixedSize
	}
	if c.BalanceCapPct != nil {
		s.BalanceCapPct = *c.BalanceCapPct
	}
	if c.MinTradeSOL != nil {
		s.MinTradeSOL = *c.MinTradeSOL
	}
	if c.MaxTradeSOL != nil {
		s.MaxTradeSOL = *c.MaxTradeSOL
	}
	if c.Direction != nil {
		s.Direction = *c.Direction
	}
	if c.Whitelist != nil {
		s.Whitelist = append([]string(nil), c.Whitelist...)
	}
	if c.Blacklist != nil {
		s.Blacklist = append([]string(nil), c.Blacklist...)
	}
	if c.MaxSlippageBps != nil {
		s.MaxSlippageBps = *c.MaxSlippageBps
	}
	return nil
}

// ManualOrderCommand buys Token for Amount SOL, or sells Amount of Token.
type ManualOrderCommand struct {
	Direction   domain.Direction `json:"direction"`
	Token       string           `json:"token"`
	Amount      decimal.Decimal  `json:"amount"`
	SlippageBps int              `json:"slippage_bps"`
}

func (c ManualOrderCommand) GetType() string { return "manual_order" }

func (c ManualOrderCommand) Validate() error {
	if c.Direction != domain.DirectionBuy && c.Direction != domain.DirectionSell {
		return fmt.Errorf("direction must be buy or sell, got %q", c.Direction)
	}
	if err := validateAddress(c.Token); err != nil {
		return err
	}
	if c.Token == domain.SOLMint {
		return errors.New("token must not be SOL")
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", c.Amount)
	}
	if c.SlippageBps < 0 || c.SlippageBps > 10_000 {
		return fmt.Errorf("invalid slippage %d bps", c.SlippageBps)
	}
	return nil
}

// UpdatePositionThresholdsCommand changes TP/SL on an open position.
type UpdatePositionThresholdsCommand struct {
	PositionID    string           `json:"position_id"`
	TakeProfitPct *decimal.Decimal `json:"take_profit_pct,omitempty"`
	StopLossPct   *decimal.Decimal `json:"stop_loss_pct,omitempty"`
}

func (c UpdatePositionThresholdsCommand) GetType() string { return "update_position_thresholds" }

func (c UpdatePositionThresholdsCommand) Validate() error {
	if c.PositionID == "" {
		return errors.New("position_id cannot be empty")
	}
	if c.TakeProfitPct == nil && c.StopLossPct == nil {
		return errors.New("take_profit_pct or stop_loss_pct is required")
	}
	return nil
}

// ClosePositionCommand sells Percentage percent of a position.
type ClosePositionCommand struct {
	PositionID string          `json:"position_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

func (c ClosePositionCommand) GetType() string { return "close_position" }

func (c ClosePositionCommand) Validate() error {
	if c.PositionID == "" {
		return errors.New("position_id cannot be empty")
	}
	if !c.Percentage.IsPositive() || c.Percentage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("percentage must be between 0 and 100, got: %s", c.Percentage)
	}
	return nil
}

// GetPnLCommand reports PnL for a scope string ("all", "manual",
// "wallet:<address>", "position:<id>").
type GetPnLCommand struct {
	Scope string `json:"scope"`
}

func (c GetPnLCommand) GetType() string { return "get_pnl" }
func (c GetPnLCommand) Validate() error { return nil }

// ListPositionsCommand lists positions, open and closing by default.
type ListPositionsCommand struct {
	Status []domain.PositionStatus `json:"status,omitempty"`
	Source string                  `json:"source,omitempty"`
}

func (c ListPositionsCommand) GetType() string { return "list_positions" }
func (c ListPositionsCommand) Validate() error { return nil }

// PlaceLimitOrderCommand holds a swap until the price crosses TargetPrice.
// Token may be empty when PositionID names the position to sell from.
type PlaceLimitOrderCommand struct {
	Type        domain.LimitOrderType `json:"type"`
	Token       string                `json:"token,omitempty"`
	TargetPrice decimal.Decimal       `json:"target_price"`
	Amount      decimal.Decimal       `json:"amount"`
	PositionID  string                `json:"position_id,omitempty"`
	SlippageBps int                   `json:"slippage_bps"`
	ExpiresIn   time.Duration         `json:"expires_in,omitempty"`
}

func (c PlaceLimitOrderCommand) GetType() string { return "place_limit_order" }

func (c PlaceLimitOrderCommand) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("type must be limit_buy, limit_sell, stop_loss or take_profit, got %q", c.Type)
	}
	if c.PositionID == "" || c.Token != "" {
		if err := validateAddress(c.Token); err != nil {
			return err
		}
	}
	if !c.TargetPrice.IsPositive() {
		return fmt.Errorf("target price must be positive, got %s", c.TargetPrice)
	}
	if c.Amount.IsNegative() || (c.Amount.IsZero() && c.PositionID == "") {
		return fmt.Errorf("amount must be positive, got %s", c.Amount)
	}
	if c.SlippageBps < 0 || c.SlippageBps > 10_000 {
		return fmt.Errorf("invalid slippage %d bps", c.SlippageBps)
	}
	if c.ExpiresIn < 0 {
		return errors.New("expiry must not be negative")
	}
	return nil
}

type CancelLimitOrderCommand struct {
	ID string `json:"id"`
}

func (c CancelLimitOrderCommand) GetType() string { return "cancel_limit_order" }

func (c CancelLimitOrderCommand) Validate() error {
	if c.ID == "" {
		return errors.New("id cannot be empty")
	}
	return nil
}

// ListLimitOrdersCommand lists pending and triggered limit orders, or every
// limit order when All is set.
type ListLimitOrdersCommand struct {
	All bool `json:"all"`
}

func (c ListLimitOrdersCommand) GetType() string { return "list_limit_orders" }
func (c ListLimitOrdersCommand) Validate() error { return nil }

// AnalyzeWalletCommand grades a wallet from its last Limit transactions.
type AnalyzeWalletCommand struct {
	Address string `json:"address"`
	Limit   int    `json:"limit"`
	Refresh bool   `json:"refresh"`
}

func (c AnalyzeWalletCommand) GetType() string { return "analyze_wallet" }

func (c AnalyzeWalletCommand) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	return validateAddress(c.Address)
}

type ListWalletsCommand struct{}

func (c ListWalletsCommand) GetType() string { return "list_wallets" }
func (c ListWalletsCommand) Validate() error { return nil }

type CopyStatsCommand struct{}

func (c CopyStatsCommand) GetType() string { return "copy_stats" }
func (c CopyStatsCommand) Validate() error { return nil }

func validateAddress(addr string) error {
	if addr == "" {
		return errors.New("address cannot be empty")
	}
	if _, err := solana.PublicKeyFromBase58(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}

// CommandHandler executes one command type.
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) (interface{}, error)
}

// HandlerFunc adapts a function to CommandHandler.
type HandlerFunc func(ctx context.Context, cmd Command) (interface{}, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (interface{}, error) {
	return f(ctx, cmd)
}

// CommandBus routes commands to handlers by their concrete type.
type CommandBus struct {
	handlers map[reflect.Type]CommandHandler
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewCommandBus creates an empty bus.
func NewCommandBus(logger *zap.Logger) *CommandBus {
	return &CommandBus{
		handlers: make(map[reflect.Type]CommandHandler),
		logger:   logger.Named("command_bus"),
	}
}

// RegisterHandler binds handler to the concrete type of cmd.
func (bus *CommandBus) RegisterHandler(cmd Command, handler CommandHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.handlers[reflect.TypeOf(cmd)] = handler
	bus.logger.Debug("Command handler registered", zap.String("command", cmd.GetType()))
}

// Send validates cmd and runs its handler.
func (bus *CommandBus) Send(ctx context.Context, cmd Command) CommandResult {
	if err := cmd.Validate(); err != nil {
		bus.logger.Warn("Command validation failed",
			zap.String("command", cmd.GetType()),
			zap.Error(err))
		return CommandResult{Err: fmt.Errorf("invalid %s: %w", cmd.GetType(), err)}
	}

	bus.mu.RLock()
	handler, ok := bus.handlers[reflect.TypeOf(cmd)]
	bus.mu.RUnlock()
	if !ok {
		bus.logger.Error("No handler for command", zap.String("command", cmd.GetType()))
		return CommandResult{Err: fmt.Errorf("%w: %s", ErrNoHandler, cmd.GetType())}
	}

	data, err := handler.Handle(ctx, cmd)
	if err != nil {
		bus.logger.Warn("Command failed",
			zap.String("command", cmd.GetType()),
			zap.Error(err))
		return CommandResult{Data: data, Err: err}
	}

	bus.logger.Debug("Command executed", zap.String("command", cmd.GetType()))
	return CommandResult{OK: true, Data: data}
}

// Registered lists the names of commands with a handler.
func (bus *CommandBus) Registered() []string {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	names := make([]string, 0, len(bus.handlers))
	for t := range bus.handlers {
		names = append(names, reflect.Zero(t).Interface().(Command).GetType())
	}
	return names
}
