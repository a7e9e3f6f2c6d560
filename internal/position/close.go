// internal/position/close.go
package position

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

const (
	TriggerTakeProfit = "take_profit"
	TriggerStopLoss   = "stop_loss"
	TriggerUser       = "user"
)

var hundred = decimal.NewFromInt(100)

// Close sells pct percent of the remaining size on user request.
func (m *Manager) Close(ctx context.Context, id string, pct decimal.Decimal) (domain.Order, error) {
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return domain.Order{}, fmt.Errorf("close percentage must be in (0, 100], got %s", pct)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.live(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	amount := p.RemainingSize.Mul(pct).Div(hundred)
	return m.startClose(ctx, p, amount, "", TriggerUser, 0)
}

// CloseAmount sells up to amount of the position to mirror a copied sell.
// The amount is capped at the remaining size. orderID and slippageBps are
// taken from the copy order when set.
func (m *Manager) CloseAmount(ctx context.Context, id string, amount decimal.Decimal, orderID, triggeredBy string, slippageBps int) (domain.Order, error) {
	if !amount.IsPositive() {
		return domain.Order{}, errors.New("close amount must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.live(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return m.startClose(ctx, p, amount, orderID, triggeredBy, slippageBps)
}

// startClose moves p to closing and hands a sell order to the executor.
// Callers hold m.mu.
func (m *Manager) startClose(ctx context.Context, p *domain.Position, amount decimal.Decimal, orderID, reason string, slippageBps int) (domain.Order, error) {
	if p.Status != domain.PositionOpen {
		return domain.Order{}, domain.ErrPositionBusy
	}

	amount = decimal.Min(amount, p.RemainingSize)
	if p.RemainingSize.Sub(amount).LessThanOrEqual(m.cfg.Epsilon) {
		amount = p.RemainingSize
	}
	if !amount.IsPositive() {
		return domain.Order{}, errors.New("nothing left to close")
	}
	if orderID == "" {
		orderID = "close-" + uuid.NewString()
	}

	order := domain.Order{
		ID:             orderID,
		Source:         p.Source,
		Kind:           domain.KindExit,
		Direction:      domain.DirectionSell,
		InputMint:      p.Token,
		OutputMint:     p.QuoteMint,
		Amount:         amount,
		MaxSlippageBps: slippageBps,
		PositionID:     p.ID,
		TriggeredBy:    reason,
		CreatedAt:      m.clock.Now(),
	}
	if p.QuoteMint == domain.SOLMint {
		order.OutputDecimals = domain.SOLDecimals
	}

	next := *p
	next.Status = domain.PositionClosing
	next.PendingOrderID = order.ID
	next.PendingSize = amount
	if err := m.store.SavePosition(ctx, next); err != nil {
		return domain.Order{}, fmt.Errorf("failed to save position: %w", err)
	}

	if _, err := m.exec.Submit(ctx, order); err != nil {
		rollback := *p
		if serr := m.store.SavePosition(ctx, rollback); serr != nil {
			m.logger.Error("Failed to roll back position", zap.String("position_id", p.ID), zap.Error(serr))
		}
		return domain.Order{}, fmt.Errorf("failed to submit close order: %w", err)
	}
	*p = next

	m.logger.Info("📉 Closing position",
		zap.String("position_id", p.ID),
		zap.String("reason", reason),
		zap.String("amount", amount.String()),
		zap.String("remaining", p.RemainingSize.String()),
		zap.String("order_id", order.ID))
	m.publish(next, domain.PositionOpen, reason)
	return order, nil
}

// ApplyResult is the executor's result hook. Confirmed entries open
// positions; exit results move closing positions on. Results of limit
// order swaps also settle the limit order.
func (m *Manager) ApplyResult(ctx context.Context, r domain.TradeResult) error {
	if id, ok := limitID(r.Order); ok {
		if err := m.applyLimitResult(ctx, id, r); err != nil {
			m.logger.Warn("Failed to update limit order", zap.String("limit_id", id), zap.Error(err))
		}
	}
	switch r.Order.Kind {
	case domain.KindEntry:
		if r.Status != domain.TradeConfirmed {
			return nil
		}
		_, err := m.Open(ctx, r)
		return err
	case domain.KindExit:
		if r.Order.PositionID == "" {
			return nil
		}
		return m.applyExit(ctx, r)
	}
	return nil
}

func (m *Manager) applyExit(ctx context.Context, r domain.TradeResult) error {
	if r.Status == domain.TradePending {
		m.logger.Info("⏳ Close order pending, position stays closing",
			zap.String("position_id", r.Order.PositionID),
			zap.String("order_id", r.Order.ID))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[r.Order.PositionID]
	if !ok {
		m.logger.Warn("Exit result for unknown or closed position",
			zap.String("position_id", r.Order.PositionID),
			zap.String("result_id", r.ID))
		return nil
	}
	current := p.Status == domain.PositionClosing && p.PendingOrderID == r.Order.ID

	next := *p
	reason := "close_failed"
	if r.Status == domain.TradeConfirmed {
		sold := r.InAmount
		if !sold.IsPositive() {
			sold = r.Order.Amount
		}
		sold = decimal.Min(sold, next.RemainingSize)
		next.RemainingSize = next.RemainingSize.Sub(sold)
		reason = "partial_close"
		if next.RemainingSize.LessThanOrEqual(m.cfg.Epsilon) {
			next.RemainingSize = decimal.Zero
			next.Status = domain.PositionClosed
			now := m.clock.Now()
			next.ClosedAt = &now
			reason = "closed"
		}
	}
	if current || next.Status == domain.PositionClosed {
		if next.Status != domain.PositionClosed {
			next.Status = domain.PositionOpen
		}
		next.PendingOrderID = ""
		next.PendingSize = decimal.Zero
	}
	if !current && r.Status != domain.TradeConfirmed {
		return nil
	}

	if err := m.store.SavePosition(ctx, next); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	from := p.Status
	if next.Status == domain.PositionClosed {
		delete(m.positions, next.ID)
	} else {
		*p = next
	}

	fields := []zap.Field{
		zap.String("position_id", next.ID),
		zap.String("status", string(next.Status)),
		zap.String("remaining", next.RemainingSize.String()),
		zap.String("result_id", r.ID),
	}
	switch {
	case next.Status == domain.PositionClosed:
		m.logger.Info("🏁 Position closed", fields...)
	case r.Status == domain.TradeFailed:
		m.logger.Warn("↩️ Close failed, position reopened", append(fields, zap.String("error", r.Error))...)
	default:
		m.logger.Info("✂️ Position partially closed", fields...)
	}
	m.publish(next, from, reason)
	return nil
}
