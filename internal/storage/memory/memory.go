// Package memory is a process-local storage.Storage. State is lost on exit;
// it backs the "memory" DSN and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

type Store struct {
	mu        sync.RWMutex
	wallets   map[string]domain.TrackedWallet
	order     []string
	settings  *domain.CopySettings
	positions map[string]domain.Position
	results   map[string]domain.TradeResult
	resultSeq map[string]int
	seq       int
	limits    map[string]domain.LimitOrder
}

var _ storage.Storage = (*Store)(nil)

func New() *Store {
	return &Store{
		wallets:   make(map[string]domain.TrackedWallet),
		positions: make(map[string]domain.Position),
		results:   make(map[string]domain.TradeResult),
		resultSeq: make(map[string]int),
		limits:    make(map[string]domain.LimitOrder),
	}
}

func (s *Store) RunMigrations() error { return nil }
func (s *Store) Close() error         { return nil }

func (s *Store) SaveWallet(_ context.Context, w domain.TrackedWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.wallets[w.Address]; ok {
		w.Cursor = prev.Cursor
		w.AddedAt = prev.AddedAt
	} else {
		s.order = append(s.order, w.Address)
	}
	s.wallets[w.Address] = w
	return nil
}

func (s *Store) DeleteWallet(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[address]; !ok {
		return domain.ErrWalletNotFound
	}
	delete(s.wallets, address)
	for i, a := range s.order {
		if a == address {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) ListWallets(_ context.Context) ([]domain.TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TrackedWallet, 0, len(s.order))
	for _, a := range s.order {
		out = append(out, s.wallets[a])
	}
	return out, nil
}

func (s *Store) UpdateCursor(_ context.Context, address string, c domain.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[address]
	if !ok {
		return nil
	}
	w.Cursor = c
	s.wallets[address] = w
	return nil
}

func (s *Store) LoadSettings(_ context.Context) (domain.CopySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return domain.CopySettings{}, domain.ErrNotFound
	}
	return s.settings.Clone(), nil
}

func (s *Store) SaveSettings(_ context.Context, cs domain.CopySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cs.Clone()
	s.settings = &c
	return nil
}

func (s *Store) SavePosition(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[p.ID] = p
	return nil
}

func (s *Store) GetPosition(_ context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return p, nil
}

func (s *Store) ListPositions(_ context.Context, filter storage.PositionFilter) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Position
	for _, p := range s.positions {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out, nil
}

func (s *Store) SaveTradeResult(_ context.Context, r domain.TradeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[r.ID]; !ok {
		s.seq++
		s.resultSeq[r.ID] = s.seq
	}
	s.results[r.ID] = r
	return nil
}

func (s *Store) GetTradeResult(_ context.Context, id string) (domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return domain.TradeResult{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListTradeResults(_ context.Context, filter storage.ResultFilter) ([]domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TradeResult
	for _, r := range s.results {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return s.resultSeq[out[i].ID] < s.resultSeq[out[j].ID]
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) SaveLimitOrder(_ context.Context, o domain.LimitOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limits[o.ID] = o
	return nil
}

func (s *Store) GetLimitOrder(_ context.Context, id string) (domain.LimitOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.limits[id]
	if !ok {
		return domain.LimitOrder{}, domain.ErrLimitNotFound
	}
	return o, nil
}

func (s *Store) ListLimitOrders(_ context.Context, filter storage.LimitFilter) ([]domain.LimitOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LimitOrder
	for _, o := range s.limits {
		if filter.Match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
