// internal/copytrade/engine.go
package copytrade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// SettingsStore persists copy settings.
type SettingsStore interface {
	SaveSettings(ctx context.Context, s domain.CopySettings) error
}

// Engine owns the copy settings and turns detected trades into orders.
// Settings have a single writer; every evaluation reads one consistent copy.
type Engine struct {
	mu       sync.RWMutex
	settings domain.CopySettings
	store    SettingsStore
	logger   *zap.Logger
}

// NewEngine creates an engine with the given initial settings.
func NewEngine(initial domain.CopySettings, store SettingsStore, logger *zap.Logger) *Engine {
	if initial.Direction == "" {
		initial.Direction = domain.FilterBoth
	}
	return &Engine{
		settings: initial.Clone(),
		store:    store,
		logger:   logger.Named("copy_engine"),
	}
}

// Settings returns a snapshot of the current settings.
func (e *Engine) Settings() domain.CopySettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings.Clone()
}

// SetEnabled switches copy trading globally. Orders already handed to the
// executor are not affected.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) (domain.CopySettings, error) {
	return e.UpdateSettings(ctx, func(s *domain.CopySettings) error {
		s.Enabled = enabled
		return nil
	})
}

// UpdateSettings applies fn to a copy of the settings, validates and persists
// the result, then publishes it to subsequent evaluations.
func (e *Engine) UpdateSettings(ctx context.Context, fn func(*domain.CopySettings) error) (domain.CopySettings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.settings.Clone()
	if err := fn(&next); err != nil {
		return e.settings.Clone(), err
	}
	if err := ValidateSettings(next); err != nil {
		return e.settings.Clone(), err
	}
	if e.store != nil {
		if err := e.store.SaveSettings(ctx, next); err != nil {
			return e.settings.Clone(), fmt.Errorf("failed to persist copy settings: %w", err)
		}
	}
	e.settings = next

	e.logger.Info("⚙️ Copy settings updated",
		zap.Bool("enabled", next.Enabled),
		zap.String("sizing_mode", string(next.SizingMode)),
		zap.String("size_param", next.SizeParam.String()),
		zap.String("direction", string(next.Direction)),
		zap.Int("whitelist", len(next.Whitelist)),
		zap.Int("blacklist", len(next.Blacklist)))
	return next.Clone(), nil
}

// Evaluate runs the copy policy against the current settings.
func (e *Engine) Evaluate(trade domain.DetectedTrade, wallet domain.TrackedWallet, balance decimal.Decimal) (domain.Order, *domain.Skipped) {
	return Evaluate(trade, wallet, e.Settings(), balance)
}

// ValidateSettings rejects settings the engine cannot evaluate.
func ValidateSettings(s domain.CopySettings) error {
	if !s.SizingMode.Valid() {
		return fmt.Errorf("invalid sizing mode %q", s.SizingMode)
	}
	switch s.Direction {
	case domain.FilterBoth, domain.FilterBuyOnly, domain.FilterSellOnly:
	default:
		return fmt.Errorf("invalid direction filter %q", s.Direction)
	}
	if s.SizeParam.IsNegative() || s.FixedSize.IsNegative() || s.BalanceCapPct.IsNegative() {
		return errors.New("sizing parameters must not be negative")
	}
	if s.BalanceCapPct.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("balance cap must be a fraction between 0 and 1")
	}
	if s.MinTradeSOL.IsNegative() || s.MaxTradeSOL.IsNegative() {
		return errors.New("trade size bounds must not be negative")
	}
	if s.MaxTradeSOL.IsPositive() && s.MinTradeSOL.GreaterThan(s.MaxTradeSOL) {
		return errors.New("min trade size exceeds max trade size")
	}
	if s.MaxSlippageBps < 0 || s.MaxSlippageBps > 10_000 {
		return fmt.Errorf("invalid max slippage %d bps", s.MaxSlippageBps)
	}
	return nil
}
