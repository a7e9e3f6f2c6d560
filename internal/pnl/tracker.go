// internal/pnl/tracker.go
package pnl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

// Scope kinds.
const (
	ScopeAll      = "all"
	ScopeWallet   = "wallet"
	ScopePosition = "position"
)

var ErrInvalidScope = errors.New("invalid pnl scope")

// Scope selects the positions a report covers.
type Scope struct {
	Kind string
	Key  string
}

func (s Scope) String() string {
	if s.Kind == ScopeAll {
		return ScopeAll
	}
	return s.Kind + ":" + s.Key
}

// ParseScope accepts "all", "manual", "wallet:<address>" and "position:<id>".
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == ScopeAll:
		return Scope{Kind: ScopeAll}, nil
	case raw == domain.SourceManual:
		return Scope{Kind: ScopeWallet, Key: domain.SourceManual}, nil
	}

	kind, key, ok := strings.Cut(raw, ":")
	if !ok || key == "" {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, raw)
	}
	switch kind {
	case ScopeWallet, ScopePosition:
		return Scope{Kind: kind, Key: key}, nil
	}
	return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, raw)
}

// Store is the read side of storage the tracker needs.
type Store interface {
	GetPosition(ctx context.Context, id string) (domain.Position, error)
	ListPositions(ctx context.Context, filter storage.PositionFilter) ([]domain.Position, error)
	ListTradeResults(ctx context.Context, filter storage.ResultFilter) ([]domain.TradeResult, error)
}

// Tracker computes PnL from stored positions and confirmed results. Nothing
// is cached, so a report always reflects the latest confirmed fills.
type Tracker struct {
	store  Store
	prices router.PriceSource
	logger *zap.Logger
}

// NewTracker creates a tracker. prices may be nil, in which case unrealized
// PnL is reported as unavailable.
func NewTracker(store Store, prices router.PriceSource, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, prices: prices, logger: logger.Named("pnl")}
}

// Report computes the summary for scope.
func (t *Tracker) Report(ctx context.Context, scope Scope) (domain.PnLSummary, error) {
	positions, err := t.positions(ctx, scope)
	if err != nil {
		return domain.PnLSummary{}, err
	}

	filter := storage.ResultFilter{Status: domain.TradeConfirmed}
	switch scope.Kind {
	case ScopeWallet:
		filter.Source = scope.Key
	case ScopePosition:
		filter.PositionID = scope.Key
	}
	results, err := t.store.ListTradeResults(ctx, filter)
	if err != nil {
		return domain.PnLSummary{}, fmt.Errorf("failed to list results: %w", err)
	}
	exits := make(map[string][]domain.TradeResult)
	for _, r := range results {
		if r.Order.Kind == domain.KindExit && r.Order.PositionID != "" {
			exits[r.Order.PositionID] = append(exits[r.Order.PositionID], r)
		}
	}

	// One summary per quote mint so SOL and stablecoin amounts never mix.
	byQuote := make(map[string]*domain.PnLSummary)
	marks := make(map[string]decimal.Decimal)

	for _, p := range positions {
		quote := p.QuoteMint
		if quote == "" {
			quote = domain.SOLMint
		}
		summary, ok := byQuote[quote]
		if !ok {
			summary = &domain.PnLSummary{Scope: scope.Kind, Key: scope.Key, QuoteMint: quote}
			byQuote[quote] = summary
		}

		summary.Positions++
		summary.Basis = summary.Basis.Add(p.EntryCost)

		realized := Realized(p, exits[p.ID])
		summary.Realized = summary.Realized.Add(realized)

		if p.Status == domain.PositionClosed {
			switch realized.Sign() {
			case 1:
				summary.Wins++
			case -1:
				summary.Losses++
			}
			continue
		}

		summary.OpenPositions++
		if !p.RemainingSize.IsPositive() {
			continue
		}
		mark, ok := t.mark(ctx, p, marks)
		if !ok {
			summary.MarkUnavailable = true
			continue
		}
		summary.Unrealized = summary.Unrealized.Add(Unrealized(p, mark))
	}

	summary := domain.PnLSummary{Scope: scope.Kind, Key: scope.Key, QuoteMint: domain.SOLMint}
	if sol, ok := byQuote[domain.SOLMint]; ok {
		summary = *sol
	}
	finish(&summary)

	others := make([]string, 0, len(byQuote))
	for quote := range byQuote {
		if quote != domain.SOLMint {
			others = append(others, quote)
		}
	}
	sort.Strings(others)
	for _, quote := range others {
		other := byQuote[quote]
		finish(other)
		summary.Others = append(summary.Others, *other)
	}
	return summary, nil
}

func finish(s *domain.PnLSummary) {
	s.Total = s.Realized.Add(s.Unrealized)
	if closed := s.Wins + s.Losses; closed > 0 {
		s.WinRate = float64(s.Wins) / float64(closed)
	}
}

func (t *Tracker) positions(ctx context.Context, scope Scope) ([]domain.Position, error) {
	switch scope.Kind {
	case ScopeAll:
		return t.store.ListPositions(ctx, storage.PositionFilter{})
	case ScopeWallet:
		return t.store.ListPositions(ctx, storage.PositionFilter{Source: scope.Key})
	case ScopePosition:
		p, err := t.store.GetPosition(ctx, scope.Key)
		if err != nil {
			return nil, err
		}
		return []domain.Position{p}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope.Kind)
}

func (t *Tracker) mark(ctx context.Context, p domain.Position, cache map[string]decimal.Decimal) (decimal.Decimal, bool) {
	key := p.Token + "/" + p.QuoteMint
	if price, ok := cache[key]; ok {
		return price, true
	}
	if t.prices == nil {
		return decimal.Zero, false
	}
	price, err := t.prices.Price(ctx, p.Token, p.QuoteMint)
	if err != nil {
		t.logger.Debug("Mark price unavailable", zap.String("token", p.Token), zap.Error(err))
		return decimal.Zero, false
	}
	cache[key] = price
	return price, true
}

// Realized is Σ(exit proceeds − entry cost × sold / entry size) over the
// confirmed exits of p.
func Realized(p domain.Position, exits []domain.TradeResult) decimal.Decimal {
	total := decimal.Zero
	if !p.EntrySize.IsPositive() {
		return total
	}
	for _, r := range exits {
		sold := r.InAmount
		if !sold.IsPositive() {
			sold = r.Order.Amount
		}
		cost := p.EntryCost.Mul(sold).Div(p.EntrySize)
		total = total.Add(r.OutAmount.Sub(cost))
	}
	return total
}

// Unrealized is mark × remaining − entry cost × remaining / entry size.
func Unrealized(p domain.Position, mark decimal.Decimal) decimal.Decimal {
	if !p.EntrySize.IsPositive() {
		return decimal.Zero
	}
	cost := p.EntryCost.Mul(p.RemainingSize).Div(p.EntrySize)
	return mark.Mul(p.RemainingSize).Sub(cost)
}
