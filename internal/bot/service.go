// internal/bot/service.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/analyzer"
	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/pnl"
	"github.com/rovshanmuradov/solana-copybot/internal/position"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

// WalletTracker is the monitor's control side.
type WalletTracker interface {
	Track(w domain.TrackedWallet) error
	Untrack(address string) error
	SetEnabled(address string, enabled bool) (domain.TrackedWallet, error)
	UpdateWallet(address string, fn func(w *domain.TrackedWallet)) (domain.TrackedWallet, error)
	Wallets() []domain.TrackedWallet
}

// SettingsEditor owns the copy settings.
type SettingsEditor interface {
	Settings() domain.CopySettings
	SetEnabled(ctx context.Context, enabled bool) (domain.CopySettings, error)
	UpdateSettings(ctx context.Context, fn func(*domain.CopySettings) error) (domain.CopySettings, error)
}

// OrderExecutor runs an order to completion.
type OrderExecutor interface {
	Execute(ctx context.Context, order domain.Order) (domain.TradeResult, error)
}

// PositionController is the command side of the position manager.
type PositionController interface {
	PositionCloser
	Close(ctx context.Context, id string, pct decimal.Decimal) (domain.Order, error)
	UpdateThresholds(ctx context.Context, id string, takeProfit, stopLoss *decimal.Decimal) (domain.Position, error)
	List(ctx context.Context, filter storage.PositionFilter) ([]domain.Position, error)
}

// LimitController places and cancels price-triggered orders.
type LimitController interface {
	PlaceLimit(ctx context.Context, req position.LimitRequest) (domain.LimitOrder, error)
	CancelLimit(ctx context.Context, id string) (domain.LimitOrder, error)
	ListLimits(ctx context.Context, filter storage.LimitFilter) ([]domain.LimitOrder, error)
}

// WalletAnalyzer grades a wallet from its on-chain history.
type WalletAnalyzer interface {
	Analyze(ctx context.Context, address string, limit int, refresh bool) (analyzer.Stats, error)
}

// PnLReporter computes PnL summaries.
type PnLReporter interface {
	Report(ctx context.Context, scope pnl.Scope) (domain.PnLSummary, error)
}

// ManualOrderResult is the outcome of a manual order. Sells that close a
// position are queued, so Result is nil for them.
type ManualOrderResult struct {
	Order  domain.Order        `json:"order"`
	Result *domain.TradeResult `json:"result,omitempty"`
}

// Deps are the collaborators of Service.
type Deps struct {
	Monitor   WalletTracker
	Wallets   storage.WalletStore
	Engine    SettingsEditor
	Executor  OrderExecutor
	Positions PositionController
	PnL       PnLReporter
	Stats     *Stats
	Clock     clock.Clock

	// Optional. Their commands have no handler when nil.
	Limits   LimitController
	Analyzer WalletAnalyzer
}

// Service is the command surface of the core. Every operation is available
// as a method and as a typed command on the bus.
type Service struct {
	deps   Deps
	bus    *CommandBus
	logger *zap.Logger
}

// NewService creates the service and registers a handler per command.
func NewService(deps Deps, logger *zap.Logger) *Service {
	if deps.Stats == nil {
		deps.Stats = NewStats()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	s := &Service{
		deps:   deps,
		bus:    NewCommandBus(logger),
		logger: logger.Named("service"),
	}
	s.register()
	return s
}

// Commands returns the bus front ends send commands to.
func (s *Service) Commands() *CommandBus { return s.bus }

// Send is shorthand for Commands().Send.
func (s *Service) Send(ctx context.Context, cmd Command) CommandResult {
	return s.bus.Send(ctx, cmd)
}

func (s *Service) register() {
	s.bus.RegisterHandler(TrackWalletCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return s.TrackWallet(ctx, c.(TrackWalletCommand))
	}))
	s.bus.RegisterHandler(UntrackWalletCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return nil, s.UntrackWallet(ctx, c.(UntrackWalletCommand).Address)
	}))
	s.bus.RegisterHandler(SetCopyEnabledCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return s.SetCopyEnabled(ctx, c.(SetCopyEnabledCommand).Enabled)
	}))
	s.bus.RegisterHandler(SetWalletEnabledCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		cmd := c.(SetWalletEnabledCommand)
		return s.SetWalletEnabled(ctx, cmd.Address, cmd.Enabled)
	}))
	s.bus.RegisterHandler(UpdateWalletCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return s.UpdateWallet(ctx, c.(UpdateWalletCommand))
	}))
	s.bus.RegisterHandler(UpdateCopySettingsCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return s.UpdateCopySettings(ctx, c.(UpdateCopySettingsCommand))
	}))
	s.bus.RegisterHandler(ManualOrderCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return s.ManualOrder(ctx, c.(ManualOrderCommand))
	}))
	s.bus.RegisterHandler(UpdatePositionThresholdsCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		cmd := c.(UpdatePositionThresholdsCommand)
		return s.UpdatePositionThresholds(ctx, cmd.PositionID, cmd.TakeProfitPct, cmd.StopLossPct)
	}))
	s.bus.RegisterHandler(ClosePositionCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		cmd := c.(ClosePositionCommand)
		return s.ClosePosition(ctx, cmd.PositionID, cmd.Percentage)
	}))
	s.bus.RegisterHandler(GetPnLCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return s.GetPnL(ctx, c.(GetPnLCommand).Scope)
	}))
	s.bus.RegisterHandler(ListPositionsCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		cmd := c.(ListPositionsCommand)
		return s.ListPositions(ctx, storage.PositionFilter{Status: cmd.Status, Source: cmd.Source})
	}))
	s.bus.RegisterHandler(ListWalletsCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return s.ListWallets(), nil
	}))
	s.bus.RegisterHandler(CopyStatsCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
		return s.CopyStats(), nil
	}))
	if s.deps.Limits != nil {
		s.bus.RegisterHandler(PlaceLimitOrderCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
			return s.PlaceLimitOrder(ctx, c.(PlaceLimitOrderCommand))
		}))
		s.bus.RegisterHandler(CancelLimitOrderCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
			return s.CancelLimitOrder(ctx, c.(CancelLimitOrderCommand).ID)
		}))
		s.bus.RegisterHandler(ListLimitOrdersCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
			return s.ListLimitOrders(ctx, c.(ListLimitOrdersCommand).All)
		}))
	}
	if s.deps.Analyzer != nil {
		s.bus.RegisterHandler(AnalyzeWalletCommand{}, HandlerFunc(func(ctx context.Context, c Command) (interface{}, error) {
			cmd := c.(AnalyzeWalletCommand)
			return s.AnalyzeWallet(ctx, cmd.Address, cmd.Limit, cmd.Refresh)
		}))
	}
}

// Restore resumes monitoring of every persisted wallet from its cursor.
func (s *Service) Restore(ctx context.Context) (int, error) {
	wallets, err := s.deps.Wallets.ListWallets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load wallets: %w", err)
	}
	restored := 0
	for _, w := range wallets {
		if err := s.deps.Monitor.Track(w); err != nil {
			s.logger.Error("Failed to resume wallet", zap.String("wallet", w.Address), zap.Error(err))
			continue
		}
		restored++
	}
	s.logger.Info("♻️ Tracked wallets restored", zap.Int("count", restored))
	return restored, nil
}

// TrackWallet starts monitoring a new wallet and persists it.
func (s *Service) TrackWallet(ctx context.Context, cmd TrackWalletCommand) (domain.TrackedWallet, error) {
	w := domain.TrackedWallet{
		Address: cmd.Address,
		Name:    cmd.Name,
		Enabled: !cmd.Disabled,
		AddedAt: s.deps.Clock.Now(),
	}
	if cmd.Overrides != nil {
		w.Overrides = *cmd.Overrides
	}

	if err := s.deps.Monitor.Track(w); err != nil {
		return domain.TrackedWallet{}, err
	}
	if err := s.deps.Wallets.SaveWallet(ctx, w); err != nil {
		if uerr := s.deps.Monitor.Untrack(w.Address); uerr != nil {
			s.logger.Error("Failed to roll back tracking", zap.String("wallet", w.Address), zap.Error(uerr))
		}
		return domain.TrackedWallet{}, fmt.Errorf("failed to save wallet: %w", err)
	}
	return w, nil
}

// UntrackWallet stops monitoring and forgets the wallet. Its positions stay
// open and keep their TP/SL.
func (s *Service) UntrackWallet(ctx context.Context, address string) error {
	if err := s.deps.Monitor.Untrack(address); err != nil {
		return err
	}
	if err := s.deps.Wallets.DeleteWallet(ctx, address); err != nil && !errors.Is(err, domain.ErrWalletNotFound) {
		return fmt.Errorf("failed to delete wallet: %w", err)
	}
	return nil
}

// SetCopyEnabled switches copy trading globally.
func (s *Service) SetCopyEnabled(ctx context.Context, enabled bool) (domain.CopySettings, error) {
	return s.deps.Engine.SetEnabled(ctx, enabled)
}

// SetWalletEnabled pauses or resumes copying of one wallet.
func (s *Service) SetWalletEnabled(ctx context.Context, address string, enabled bool) (domain.TrackedWallet, error) {
	w, err := s.deps.Monitor.SetEnabled(address, enabled)
	if err != nil {
		return domain.TrackedWallet{}, err
	}
	return w, s.saveWallet(ctx, w)
}

// UpdateWallet renames a wallet, replaces its overrides or flips alerts.
func (s *Service) UpdateWallet(ctx context.Context, cmd UpdateWalletCommand) (domain.TrackedWallet, error) {
	w, err := s.deps.Monitor.UpdateWallet(cmd.Address, func(w *domain.TrackedWallet) {
		if cmd.Name != nil {
			w.Name = *cmd.Name
		}
		if cmd.Overrides != nil {
			w.Overrides = *cmd.Overrides
		}
		if cmd.AlertOnBuy != nil {
			w.Overrides.AlertOnBuy = *cmd.AlertOnBuy
		}
		if cmd.AlertOnSell != nil {
			w.Overrides.AlertOnSell = *cmd.AlertOnSell
		}
	})
	if err != nil {
		return domain.TrackedWallet{}, err
	}
	return w, s.saveWallet(ctx, w)
}

func (s *Service) saveWallet(ctx context.Context, w domain.TrackedWallet) error {
	if err := s.deps.Wallets.SaveWallet(ctx, w); err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

// UpdateCopySettings patches the global copy settings.
func (s *Service) UpdateCopySettings(ctx context.Context, cmd UpdateCopySettingsCommand) (domain.CopySettings, error) {
	return s.deps.Engine.UpdateSettings(ctx, cmd.Apply)
}

// ManualOrder buys a token with SOL, or sells it back. A sell closes the
// oldest open manual position in the token when there is one; otherwise it
// runs as a plain swap.
func (s *Service) ManualOrder(ctx context.Context, cmd ManualOrderCommand) (ManualOrderResult, error) {
	order := domain.Order{
		ID:             "manual-" + uuid.NewString(),
		Source:         domain.SourceManual,
		Direction:      cmd.Direction,
		Amount:         cmd.Amount,
		MaxSlippageBps: cmd.SlippageBps,
		TriggeredBy:    "user",
		CreatedAt:      s.deps.Clock.Now(),
	}
	if cmd.Direction == domain.DirectionBuy {
		order.Kind = domain.KindEntry
		order.InputMint, order.OutputMint = domain.SOLMint, cmd.Token
		order.InputDecimals = domain.SOLDecimals
	} else {
		order.Kind = domain.KindExit
		order.InputMint, order.OutputMint = cmd.Token, domain.SOLMint
		order.OutputDecimals = domain.SOLDecimals

		if open := s.deps.Positions.OpenFor(domain.SourceManual, cmd.Token); len(open) > 0 {
			closeOrder, err := s.deps.Positions.CloseAmount(ctx, open[0].ID, cmd.Amount, order.ID, order.TriggeredBy, cmd.SlippageBps)
			if err != nil {
				return ManualOrderResult{}, err
			}
			return ManualOrderResult{Order: closeOrder}, nil
		}
	}

	result, err := s.deps.Executor.Execute(ctx, order)
	if result.ID == "" {
		return ManualOrderResult{Order: order}, err
	}
	return ManualOrderResult{Order: order, Result: &result}, err
}

// UpdatePositionThresholds changes TP/SL; the next price check uses them.
func (s *Service) UpdatePositionThresholds(ctx context.Context, id string, takeProfit, stopLoss *decimal.Decimal) (domain.Position, error) {
	return s.deps.Positions.UpdateThresholds(ctx, id, takeProfit, stopLoss)
}

// ClosePosition sells pct percent of the position's remaining size.
func (s *Service) ClosePosition(ctx context.Context, id string, pct decimal.Decimal) (domain.Order, error) {
	return s.deps.Positions.Close(ctx, id, pct)
}

// GetPnL reports PnL for a scope string.
func (s *Service) GetPnL(ctx context.Context, rawScope string) (domain.PnLSummary, error) {
	scope, err := pnl.ParseScope(rawScope)
	if err != nil {
		return domain.PnLSummary{}, err
	}
	return s.deps.PnL.Report(ctx, scope)
}

// ListPositions lists positions, open and closing ones when no status is given.
func (s *Service) ListPositions(ctx context.Context, filter storage.PositionFilter) ([]domain.Position, error) {
	if len(filter.Status) == 0 {
		filter.Status = []domain.PositionStatus{domain.PositionOpen, domain.PositionClosing}
	}
	positions, err := s.deps.Positions.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].OpenedAt.Before(positions[j].OpenedAt) })
	return positions, nil
}

// ListWallets lists tracked wallets by address.
func (s *Service) ListWallets() []domain.TrackedWallet {
	wallets := s.deps.Monitor.Wallets()
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Address < wallets[j].Address })
	return wallets
}

// CopyStats returns pipeline counters since start.
func (s *Service) CopyStats() CopyStats {
	return s.deps.Stats.Snapshot()
}

// PlaceLimitOrder stores a limit order; the position manager fires it on the
// first price tick that crosses the target.
func (s *Service) PlaceLimitOrder(ctx context.Context, cmd PlaceLimitOrderCommand) (domain.LimitOrder, error) {
	return s.deps.Limits.PlaceLimit(ctx, position.LimitRequest{
		Type:        cmd.Type,
		Token:       cmd.Token,
		TargetPrice: cmd.TargetPrice,
		Amount:      cmd.Amount,
		PositionID:  cmd.PositionID,
		SlippageBps: cmd.SlippageBps,
		ExpiresIn:   cmd.ExpiresIn,
	})
}

// CancelLimitOrder cancels a pending limit order.
func (s *Service) CancelLimitOrder(ctx context.Context, id string) (domain.LimitOrder, error) {
	return s.deps.Limits.CancelLimit(ctx, id)
}

// ListLimitOrders lists unfinished limit orders, or all of them.
func (s *Service) ListLimitOrders(ctx context.Context, all bool) ([]domain.LimitOrder, error) {
	filter := storage.LimitFilter{}
	if !all {
		filter.Status = []domain.LimitStatus{domain.LimitPending, domain.LimitTriggered}
	}
	return s.deps.Limits.ListLimits(ctx, filter)
}

// AnalyzeWallet grades a wallet from its recent swaps.
func (s *Service) AnalyzeWallet(ctx context.Context, address string, limit int, refresh bool) (analyzer.Stats, error) {
	return s.deps.Analyzer.Analyze(ctx, address, limit, refresh)
}
