// internal/position/limit.go
package position

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

// limitTrigger prefixes Order.TriggeredBy on swaps placed by a limit order.
const limitTrigger = "limit:"

// LimitRequest describes a limit order to place. QuoteMint defaults to SOL,
// or to the position's quote when PositionID is set. A sell tied to a
// position with a zero Amount sells whatever remains when it triggers.
type LimitRequest struct {
	Type        domain.LimitOrderType
	Token       string
	QuoteMint   string
	TargetPrice decimal.Decimal
	Amount      decimal.Decimal
	PositionID  string
	SlippageBps int
	ExpiresIn   time.Duration
}

// PlaceLimit validates and stores a pending limit order. It is checked from
// the next price tick on.
func (m *Manager) PlaceLimit(ctx context.Context, req LimitRequest) (domain.LimitOrder, error) {
	if !req.Type.Valid() {
		return domain.LimitOrder{}, fmt.Errorf("unknown limit order type %q", req.Type)
	}
	if !req.TargetPrice.IsPositive() {
		return domain.LimitOrder{}, errors.New("target price must be positive")
	}
	if req.Amount.IsNegative() || (req.Amount.IsZero() && req.PositionID == "") {
		return domain.LimitOrder{}, errors.New("amount must be positive")
	}
	if req.SlippageBps < 0 {
		return domain.LimitOrder{}, errors.New("slippage must not be negative")
	}
	if req.ExpiresIn < 0 {
		return domain.LimitOrder{}, errors.New("expiry must not be negative")
	}
	if req.Type == domain.LimitBuy && req.PositionID != "" {
		return domain.LimitOrder{}, errors.New("limit buys cannot target a position")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if req.PositionID != "" {
		p, err := m.live(ctx, req.PositionID)
		if err != nil {
			return domain.LimitOrder{}, err
		}
		if req.Token != "" && req.Token != p.Token {
			return domain.LimitOrder{}, fmt.Errorf("position %s holds %s, not %s", p.ID, p.Token, req.Token)
		}
		req.Token = p.Token
		req.QuoteMint = p.QuoteMint
	}
	if req.Token == "" {
		return domain.LimitOrder{}, errors.New("token is required")
	}
	if req.QuoteMint == "" {
		req.QuoteMint = domain.SOLMint
	}
	if req.Token == req.QuoteMint {
		return domain.LimitOrder{}, errors.New("token and quote mint must differ")
	}

	now := m.clock.Now()
	o := domain.LimitOrder{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Token:       req.Token,
		QuoteMint:   req.QuoteMint,
		TargetPrice: req.TargetPrice,
		Amount:      req.Amount,
		PositionID:  req.PositionID,
		SlippageBps: req.SlippageBps,
		Status:      domain.LimitPending,
		CreatedAt:   now,
	}
	if req.ExpiresIn > 0 {
		at := now.Add(req.ExpiresIn)
		o.ExpiresAt = &at
	}
	if err := m.store.SaveLimitOrder(ctx, o); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("failed to save limit order: %w", err)
	}
	m.limits[o.ID] = &o

	m.logger.Info("📌 Limit order placed",
		zap.String("limit_id", o.ID),
		zap.String("type", string(o.Type)),
		zap.String("token", o.Token),
		zap.String("target_price", o.TargetPrice.String()),
		zap.String("amount", o.Amount.String()))
	m.publishLimit(o, "")
	return o, nil
}

// CancelLimit cancels a pending limit order. Triggered orders already have a
// swap in flight and cannot be cancelled.
func (m *Manager) CancelLimit(ctx context.Context, id string) (domain.LimitOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.limits[id]
	if !ok {
		if _, err := m.store.GetLimitOrder(ctx, id); err != nil {
			return domain.LimitOrder{}, err
		}
		return domain.LimitOrder{}, domain.ErrLimitNotPending
	}
	if o.Status != domain.LimitPending {
		return domain.LimitOrder{}, domain.ErrLimitNotPending
	}

	next := *o
	next.Status = domain.LimitCancelled
	if err := m.store.SaveLimitOrder(ctx, next); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("failed to save limit order: %w", err)
	}
	delete(m.limits, id)

	m.logger.Info("🚫 Limit order cancelled", zap.String("limit_id", id))
	m.publishLimit(next, domain.LimitPending)
	return next, nil
}

// ListLimits returns limit orders from storage, finished ones included.
func (m *Manager) ListLimits(ctx context.Context, filter storage.LimitFilter) ([]domain.LimitOrder, error) {
	return m.store.ListLimitOrders(ctx, filter)
}

func (m *Manager) loadLimits(ctx context.Context) (int, error) {
	live, err := m.store.ListLimitOrders(ctx, storage.LimitFilter{
		Status: []domain.LimitStatus{domain.LimitPending, domain.LimitTriggered},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load limit orders: %w", err)
	}
	for i := range live {
		o := live[i]
		m.limits[o.ID] = &o
	}
	return len(live), nil
}

// checkLimits expires stale orders and fires the ones whose price crossed.
// Prices are fetched once per token and quote per tick.
func (m *Manager) checkLimits(ctx context.Context) int {
	m.mu.Lock()
	snapshot := make([]domain.LimitOrder, 0, len(m.limits))
	for _, o := range m.limits {
		if o.Status == domain.LimitPending {
			snapshot = append(snapshot, *o)
		}
	}
	m.mu.Unlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt) })

	type pair struct{ token, quote string }
	prices := make(map[pair]decimal.Decimal)

	triggered := 0
	for _, o := range snapshot {
		if ctx.Err() != nil {
			return triggered
		}
		if o.Expired(m.clock.Now()) {
			m.expireLimit(ctx, o.ID)
			continue
		}

		key := pair{o.Token, o.QuoteMint}
		price, ok := prices[key]
		if !ok {
			p, err := m.prices.Price(ctx, o.Token, o.QuoteMint)
			if err != nil {
				m.logger.Debug("Price unavailable", zap.String("token", o.Token), zap.Error(err))
				continue
			}
			price = p
			prices[key] = p
		}
		if !o.ShouldTrigger(price) {
			continue
		}
		m.logger.Info("🎯 Limit price reached",
			zap.String("limit_id", o.ID),
			zap.String("type", string(o.Type)),
			zap.String("price", price.String()),
			zap.String("target_price", o.TargetPrice.String()))
		if m.triggerLimit(ctx, o.ID) {
			triggered++
		}
	}
	return triggered
}

func (m *Manager) expireLimit(ctx context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.limits[id]
	if !ok || o.Status != domain.LimitPending {
		return
	}
	next := *o
	next.Status = domain.LimitExpired
	if err := m.store.SaveLimitOrder(ctx, next); err != nil {
		m.logger.Warn("Failed to expire limit order", zap.String("limit_id", id), zap.Error(err))
		return
	}
	delete(m.limits, id)
	m.logger.Info("⌛ Limit order expired", zap.String("limit_id", id))
	m.publishLimit(next, domain.LimitPending)
}

// triggerLimit hands the limit's swap to the executor. A sell against a
// position that is already closing stays pending for the next tick.
func (m *Manager) triggerLimit(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.limits[id]
	if !ok || o.Status != domain.LimitPending {
		return false
	}

	order, err := m.submitLimit(ctx, o)
	if errors.Is(err, domain.ErrPositionBusy) {
		m.logger.Debug("Position busy, limit order waits", zap.String("limit_id", id))
		return false
	}

	next := *o
	now := m.clock.Now()
	if err != nil {
		next.Status = domain.LimitFailed
		next.Error = err.Error()
		m.logger.Warn("Limit order failed to submit", zap.String("limit_id", id), zap.Error(err))
	} else {
		next.Status = domain.LimitTriggered
		next.TriggeredAt = &now
		next.OrderID = order.ID
	}
	if serr := m.store.SaveLimitOrder(ctx, next); serr != nil {
		m.logger.Error("Failed to save limit order", zap.String("limit_id", id), zap.Error(serr))
	}
	if next.Status == domain.LimitFailed {
		delete(m.limits, id)
	} else {
		*o = next
	}
	m.publishLimit(next, domain.LimitPending)
	return err == nil
}

// submitLimit builds and submits the swap for o. Callers hold m.mu.
func (m *Manager) submitLimit(ctx context.Context, o *domain.LimitOrder) (domain.Order, error) {
	orderID := "limit-" + o.ID
	reason := limitTrigger + o.ID

	if o.PositionID != "" {
		p, err := m.live(ctx, o.PositionID)
		if err != nil {
			return domain.Order{}, err
		}
		amount := o.Amount
		if amount.IsZero() {
			amount = p.RemainingSize
		}
		return m.startClose(ctx, p, amount, orderID, reason, o.SlippageBps)
	}

	order := domain.Order{
		ID:             orderID,
		Source:         domain.SourceManual,
		Kind:           domain.KindExit,
		Direction:      o.Type.Direction(),
		InputMint:      o.Token,
		OutputMint:     o.QuoteMint,
		Amount:         o.Amount,
		MaxSlippageBps: o.SlippageBps,
		TriggeredBy:    reason,
		CreatedAt:      m.clock.Now(),
	}
	if o.Type == domain.LimitBuy {
		order.Kind = domain.KindEntry
		order.InputMint, order.OutputMint = o.QuoteMint, o.Token
	}
	if order.InputMint == domain.SOLMint {
		order.InputDecimals = domain.SOLDecimals
	}
	if order.OutputMint == domain.SOLMint {
		order.OutputDecimals = domain.SOLDecimals
	}
	if _, err := m.exec.Submit(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("failed to submit limit order: %w", err)
	}
	return order, nil
}

// applyLimitResult moves a triggered limit order on from its swap result.
func (m *Manager) applyLimitResult(ctx context.Context, id string, r domain.TradeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.limits[id]
	if !ok || o.OrderID != r.Order.ID {
		return nil
	}

	next := *o
	next.ResultID = r.ID
	next.Signature = r.Signature
	switch r.Status {
	case domain.TradeConfirmed:
		now := m.clock.Now()
		next.Status = domain.LimitFilled
		next.FilledAt = &now
		next.FillPrice = r.Price()
	case domain.TradeFailed:
		next.Status = domain.LimitFailed
		next.Error = r.Error
	}
	if err := m.store.SaveLimitOrder(ctx, next); err != nil {
		return fmt.Errorf("failed to save limit order: %w", err)
	}
	if !next.Status.Terminal() {
		*o = next
		return nil
	}

	delete(m.limits, id)
	m.logger.Info("📌 Limit order finished",
		zap.String("limit_id", id),
		zap.String("status", string(next.Status)),
		zap.String("result_id", r.ID),
		zap.String("fill_price", next.FillPrice.String()))
	m.publishLimit(next, domain.LimitTriggered)
	return nil
}

// limitID returns the limit order behind a swap, if any.
func limitID(o domain.Order) (string, bool) {
	return strings.CutPrefix(o.TriggeredBy, limitTrigger)
}

func (m *Manager) publishLimit(o domain.LimitOrder, from domain.LimitStatus) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(&events.LimitOrderEvent{
		BaseEvent: events.NewBase(events.LimitOrderChanged, m.clock.Now()),
		Order:     o,
		From:      from,
	}); err != nil {
		m.logger.Debug("Event not published", zap.Error(err))
	}
}
