// internal/position/ticker.go
package position

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// Run checks prices every CheckInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("▶️ Price checks started", zap.Duration("interval", m.cfg.CheckInterval))
	for {
		m.CheckPrices(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-m.clock.After(m.cfg.CheckInterval):
		}
	}
}

// CheckPrices runs one tick: every open position is priced against the
// thresholds it had when the tick started, then pending limit orders are
// checked. It returns the number of closes and limit orders triggered.
func (m *Manager) CheckPrices(ctx context.Context) int {
	closes := m.checkPositions(ctx)
	return closes + m.checkLimits(ctx)
}

func (m *Manager) checkPositions(ctx context.Context) int {
	m.mu.Lock()
	snapshot := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		if p.Status == domain.PositionOpen {
			snapshot = append(snapshot, *p)
		}
	}
	m.mu.Unlock()

	triggered := 0
	for _, p := range snapshot {
		if ctx.Err() != nil {
			return triggered
		}
		price, err := m.prices.Price(ctx, p.Token, p.QuoteMint)
		if err != nil {
			m.logger.Debug("Price unavailable", zap.String("token", p.Token), zap.Error(err))
			continue
		}

		reason := thresholdHit(p, price)
		if reason == "" {
			continue
		}
		m.logger.Info("🎯 Threshold hit",
			zap.String("position_id", p.ID),
			zap.String("reason", reason),
			zap.String("price", price.String()),
			zap.String("entry_price", p.EntryPrice.String()))

		if m.triggerClose(ctx, p.ID, reason) {
			triggered++
		}
	}
	return triggered
}

// thresholdHit reports which threshold price crosses, if any.
func thresholdHit(p domain.Position, price decimal.Decimal) string {
	switch {
	case price.GreaterThanOrEqual(p.TakeProfitPrice()):
		return TriggerTakeProfit
	case price.LessThanOrEqual(p.StopLossPrice()):
		return TriggerStopLoss
	}
	return ""
}

func (m *Manager) triggerClose(ctx context.Context, id, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[id]
	if !ok || p.Status != domain.PositionOpen {
		return false
	}
	if _, err := m.startClose(ctx, p, p.RemainingSize, "", reason, 0); err != nil {
		m.logger.Warn("Failed to close position", zap.String("position_id", id), zap.Error(err))
		return false
	}
	return true
}
