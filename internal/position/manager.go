// internal/position/manager.go
package position

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

// Config holds the price check cadence and default thresholds. Thresholds
// are percentages: TP 50 means entry × 1.5.
type Config struct {
	CheckInterval     time.Duration
	DefaultTakeProfit decimal.Decimal
	DefaultStopLoss   decimal.Decimal
	Epsilon           decimal.Decimal
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     10 * time.Second,
		DefaultTakeProfit: decimal.NewFromInt(50),
		DefaultStopLoss:   decimal.NewFromInt(25),
		Epsilon:           decimal.New(1, -9),
	}
}

// OrderSubmitter queues an order for execution. Results come back through
// ApplyResult.
type OrderSubmitter interface {
	Submit(ctx context.Context, order domain.Order) (<-chan domain.TradeResult, error)
}

// Store persists positions and limit orders.
type Store interface {
	storage.PositionStore
	storage.LimitOrderStore
}

// Publisher receives position events.
type Publisher interface {
	Publish(event events.Event) error
}

// Manager owns the live position set. All transitions happen under one lock
// and are persisted before the lock is released.
type Manager struct {
	exec   OrderSubmitter
	store  Store
	prices router.PriceSource
	bus    Publisher
	clock  clock.Clock
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	positions map[string]*domain.Position   // open and closing
	byEntry   map[string]string             // entry result id -> position id
	limits    map[string]*domain.LimitOrder // pending and triggered
}

// NewManager creates a manager. bus may be nil.
func NewManager(exec OrderSubmitter, store Store, prices router.PriceSource, bus Publisher, clk clock.Clock, cfg Config, logger *zap.Logger) *Manager {
	def := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if !cfg.DefaultTakeProfit.IsPositive() {
		cfg.DefaultTakeProfit = def.DefaultTakeProfit
	}
	if !cfg.DefaultStopLoss.IsPositive() {
		cfg.DefaultStopLoss = def.DefaultStopLoss
	}
	if !cfg.Epsilon.IsPositive() {
		cfg.Epsilon = def.Epsilon
	}
	return &Manager{
		exec:      exec,
		store:     store,
		prices:    prices,
		bus:       bus,
		clock:     clk,
		cfg:       cfg,
		logger:    logger.Named("positions"),
		positions: make(map[string]*domain.Position),
		byEntry:   make(map[string]string),
		limits:    make(map[string]*domain.LimitOrder),
	}
}

// Load restores open and closing positions and unfinished limit orders
// from storage.
func (m *Manager) Load(ctx context.Context) error {
	live, err := m.store.ListPositions(ctx, storage.PositionFilter{
		Status: []domain.PositionStatus{domain.PositionOpen, domain.PositionClosing},
	})
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range live {
		p := live[i]
		m.positions[p.ID] = &p
		m.byEntry[p.EntryResultID] = p.ID
	}
	limits, err := m.loadLimits(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("📂 Positions restored", zap.Int("count", len(live)), zap.Int("limit_orders", limits))
	return nil
}

// Open creates a position from a confirmed entry. Opening the same entry
// twice returns the existing position.
func (m *Manager) Open(ctx context.Context, r domain.TradeResult) (domain.Position, error) {
	if r.Status != domain.TradeConfirmed || r.Order.Kind != domain.KindEntry {
		return domain.Position{}, errors.New("only confirmed entries open positions")
	}
	if !r.OutAmount.IsPositive() || !r.InAmount.IsPositive() {
		return domain.Position{}, fmt.Errorf("entry %s has no fill amounts", r.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byEntry[r.ID]; ok {
		if p, ok := m.positions[id]; ok {
			return *p, nil
		}
		return m.store.GetPosition(ctx, id)
	}

	p := domain.Position{
		ID:            uuid.NewString(),
		Token:         r.Order.OutputMint,
		QuoteMint:     r.Order.InputMint,
		EntryPrice:    r.Price(),
		EntrySize:     r.OutAmount,
		RemainingSize: r.OutAmount,
		EntryCost:     r.InAmount,
		TakeProfitPct: m.cfg.DefaultTakeProfit,
		StopLossPct:   m.cfg.DefaultStopLoss,
		Source:        r.Order.Source,
		EntryResultID: r.ID,
		Status:        domain.PositionOpen,
		OpenedAt:      m.clock.Now(),
	}
	if err := m.store.SavePosition(ctx, p); err != nil {
		return domain.Position{}, fmt.Errorf("failed to save position: %w", err)
	}
	m.positions[p.ID] = &p
	m.byEntry[r.ID] = p.ID

	m.logger.Info("📈 Position opened",
		zap.String("position_id", p.ID),
		zap.String("token", p.Token),
		zap.String("size", p.EntrySize.String()),
		zap.String("entry_price", p.EntryPrice.String()),
		zap.String("source", p.Source))
	m.publish(p, "", "opened")
	return p, nil
}

// UpdateThresholds changes TP/SL percentages. Nil leaves a value unchanged.
// The change is seen by the next price check, not the one in progress.
func (m *Manager) UpdateThresholds(ctx context.Context, id string, takeProfit, stopLoss *decimal.Decimal) (domain.Position, error) {
	if takeProfit != nil && !takeProfit.IsPositive() {
		return domain.Position{}, errors.New("take profit must be positive")
	}
	if stopLoss != nil && (!stopLoss.IsPositive() || stopLoss.GreaterThanOrEqual(decimal.NewFromInt(100))) {
		return domain.Position{}, errors.New("stop loss must be between 0 and 100")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.live(ctx, id)
	if err != nil {
		return domain.Position{}, err
	}
	next := *p
	if takeProfit != nil {
		next.TakeProfitPct = *takeProfit
	}
	if stopLoss != nil {
		next.StopLossPct = *stopLoss
	}
	if err := m.store.SavePosition(ctx, next); err != nil {
		return domain.Position{}, fmt.Errorf("failed to save position: %w", err)
	}
	*p = next

	m.logger.Info("🎯 Thresholds updated",
		zap.String("position_id", id),
		zap.String("take_profit_pct", next.TakeProfitPct.String()),
		zap.String("stop_loss_pct", next.StopLossPct.String()))
	return next, nil
}

// Get returns a position, live or closed.
func (m *Manager) Get(ctx context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	if p, ok := m.positions[id]; ok {
		out := *p
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()
	return m.store.GetPosition(ctx, id)
}

// List returns positions from storage, closed ones included.
func (m *Manager) List(ctx context.Context, filter storage.PositionFilter) ([]domain.Position, error) {
	return m.store.ListPositions(ctx, filter)
}

// OpenFor returns open positions of source in token, oldest first.
func (m *Manager) OpenFor(source, token string) []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Position
	for _, p := range m.positions {
		if p.Status == domain.PositionOpen && p.Source == source && p.Token == token {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// live returns the in-memory position or an error explaining why it is not live.
// Callers hold m.mu.
func (m *Manager) live(ctx context.Context, id string) (*domain.Position, error) {
	if p, ok := m.positions[id]; ok {
		return p, nil
	}
	stored, err := m.store.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Status == domain.PositionClosed {
		return nil, domain.ErrPositionClosed
	}
	return nil, domain.ErrPositionNotFound
}

func (m *Manager) publish(p domain.Position, from domain.PositionStatus, reason string) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(&events.PositionChangedEvent{
		BaseEvent: events.NewBase(events.PositionChanged, m.clock.Now()),
		Position:  p,
		From:      from,
		Reason:    reason,
	}); err != nil {
		m.logger.Debug("Event not published", zap.Error(err))
	}
}
