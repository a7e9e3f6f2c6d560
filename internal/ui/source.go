package ui

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/pnl"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

// Source is the storage the dashboard reads. It never writes.
type Source interface {
	ListPositions(ctx context.Context, filter storage.PositionFilter) ([]domain.Position, error)
	ListWallets(ctx context.Context) ([]domain.TrackedWallet, error)
	ListTradeResults(ctx context.Context, filter storage.ResultFilter) ([]domain.TradeResult, error)
}

// PnLReporter computes PnL summaries.
type PnLReporter interface {
	Report(ctx context.Context, scope pnl.Scope) (domain.PnLSummary, error)
}

// Snapshot is one consistent read of the bot state.
type Snapshot struct {
	Live    []domain.Position
	Closed  []domain.Position
	Wallets []domain.TrackedWallet
	PnL     domain.PnLSummary
	At      time.Time
}

// Load reads a snapshot. Live positions are oldest first, closed ones most
// recently closed first.
func Load(ctx context.Context, src Source, reporter PnLReporter, now time.Time) (Snapshot, error) {
	live, err := src.ListPositions(ctx, storage.PositionFilter{
		Status: []domain.PositionStatus{domain.PositionOpen, domain.PositionClosing},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list positions: %w", err)
	}
	closed, err := src.ListPositions(ctx, storage.PositionFilter{
		Status: []domain.PositionStatus{domain.PositionClosed},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list closed positions: %w", err)
	}
	wallets, err := src.ListWallets(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list wallets: %w", err)
	}
	summary, err := reporter.Report(ctx, pnl.Scope{Kind: pnl.ScopeAll})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to compute pnl: %w", err)
	}

	sort.Slice(live, func(i, j int) bool { return live[i].OpenedAt.Before(live[j].OpenedAt) })
	sort.Slice(closed, func(i, j int) bool { return closedAt(closed[i]).After(closedAt(closed[j])) })
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Address < wallets[j].Address })

	return Snapshot{Live: live, Closed: closed, Wallets: wallets, PnL: summary, At: now}, nil
}

func closedAt(p domain.Position) time.Time {
	if p.ClosedAt == nil {
		return p.OpenedAt
	}
	return *p.ClosedAt
}
