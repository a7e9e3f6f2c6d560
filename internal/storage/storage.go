// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// Storage is the durable record: tracked wallets, copy settings, positions and
// trade results and limit orders. It is enough to resume monitoring and rebuild PnL after a restart.
type Storage interface {
	WalletStore
	SettingsStore
	PositionStore
	ResultStore
	LimitOrderStore

	RunMigrations() error
	Close() error
}

// WalletStore persists the tracked wallet set and per-wallet cursors.
type WalletStore interface {
	SaveWallet(ctx context.Context, w domain.TrackedWallet) error
	DeleteWallet(ctx context.Context, address string) error
	ListWallets(ctx context.Context) ([]domain.TrackedWallet, error)
	UpdateCursor(ctx context.Context, address string, c domain.Cursor) error
}

// SettingsStore persists copy settings. LoadSettings returns domain.ErrNotFound
// before the first save.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (domain.CopySettings, error)
	SaveSettings(ctx context.Context, s domain.CopySettings) error
}

// PositionStore persists positions, open and closed.
type PositionStore interface {
	SavePosition(ctx context.Context, p domain.Position) error
	GetPosition(ctx context.Context, id string) (domain.Position, error)
	ListPositions(ctx context.Context, filter PositionFilter) ([]domain.Position, error)
}

// ResultStore persists trade results. SaveTradeResult upserts by result id so
// a pending result can be resolved in place.
type ResultStore interface {
	SaveTradeResult(ctx context.Context, r domain.TradeResult) error
	GetTradeResult(ctx context.Context, id string) (domain.TradeResult, error)
	ListTradeResults(ctx context.Context, filter ResultFilter) ([]domain.TradeResult, error)
}

// LimitOrderStore persists limit orders. SaveLimitOrder upserts by id.
type LimitOrderStore interface {
	SaveLimitOrder(ctx context.Context, o domain.LimitOrder) error
	GetLimitOrder(ctx context.Context, id string) (domain.LimitOrder, error)
	ListLimitOrders(ctx context.Context, filter LimitFilter) ([]domain.LimitOrder, error)
}

// PositionFilter selects positions. Zero fields match everything.
type PositionFilter struct {
	Status []domain.PositionStatus
	Source string
}

// Match reports whether p passes the filter.
func (f PositionFilter) Match(p domain.Position) bool {
	if f.Source != "" && p.Source != f.Source {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, s := range f.Status {
		if p.Status == s {
			return true
		}
	}
	return false
}

// ResultFilter selects trade results. Zero fields match everything.
type ResultFilter struct {
	Status     domain.TradeStatus
	PositionID string
	Source     string
	Limit      int
}

// Match reports whether r passes the filter, ignoring Limit.
func (f ResultFilter) Match(r domain.TradeResult) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.PositionID != "" && r.Order.PositionID != f.PositionID {
		return false
	}
	if f.Source != "" && r.Order.Source != f.Source {
		return false
	}
	return true
}

// LimitFilter selects limit orders. Zero fields match everything.
type LimitFilter struct {
	Status []domain.LimitStatus
	Token  string
}

// Match reports whether o passes the filter.
func (f LimitFilter) Match(o domain.LimitOrder) bool {
	if f.Token != "" && o.Token != f.Token {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, s := range f.Status {
		if o.Status == s {
			return true
		}
	}
	return false
}
