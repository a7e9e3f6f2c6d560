// Package analyzer grades a wallet from its recent on-chain swaps before it
// is tracked.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

const (
	DefaultLimit = 100
	// MaxLimit is the largest page getSignaturesForAddress serves.
	MaxLimit = 1000

	cacheTTL     = 5 * time.Minute
	recentTrades = 20
	fetchWorkers = 8
)

// History reads a wallet's transactions. solbc.Client implements it.
type History interface {
	Signatures(ctx context.Context, wallet string, until string, limit int) ([]*rpc.TransactionSignature, error)
	FetchEvent(ctx context.Context, wallet, signature string) (domain.RawEvent, error)
}

// Parser classifies a transaction as a swap by the wallet.
type Parser interface {
	Parse(ev domain.RawEvent) (domain.DetectedTrade, error)
}

// Grade buckets a wallet by win rate and SOL PnL.
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// TokenStats is the SOL flow of one traded token.
type TokenStats struct {
	Mint     string          `json:"mint"`
	Buys     int             `json:"buys"`
	Sells    int             `json:"sells"`
	Spent    decimal.Decimal `json:"spent_sol"`
	Received decimal.Decimal `json:"received_sol"`
	PnL      decimal.Decimal `json:"pnl_sol"`
}

// Stats summarizes a wallet's recent swaps. SOL figures only count trades
// with a SOL leg; token-to-token swaps are counted but carry no SOL value.
type Stats struct {
	Address         string                 `json:"address"`
	Transactions    int                    `json:"transactions"`
	TotalTrades     int                    `json:"total_trades"`
	Buys            int                    `json:"buys"`
	Sells           int                    `json:"sells"`
	WinRate         float64                `json:"win_rate"` // percent of tokens with positive PnL
	TotalPnLSOL     decimal.Decimal        `json:"total_pnl_sol"`
	AvgTradeSizeSOL decimal.Decimal        `json:"avg_trade_size_sol"`
	LargestWinSOL   decimal.Decimal        `json:"largest_win_sol"`
	LargestLossSOL  decimal.Decimal        `json:"largest_loss_sol"`
	MostTraded      string                 `json:"most_traded"`
	FirstTrade      time.Time              `json:"first_trade"`
	LastTrade       time.Time              `json:"last_trade"`
	Tokens          []TokenStats           `json:"tokens"`
	Recent          []domain.DetectedTrade `json:"recent"` // newest first
	Unreadable      int                    `json:"unreadable"`
	AnalyzedAt      time.Time              `json:"analyzed_at"`
}

// Grade is S for >= 70% wins and more than 10 SOL, A for >= 60% and 5 SOL,
// B for >= 50% and any profit, C for >= 40%, D otherwise.
func (s Stats) Grade() Grade {
	switch {
	case s.WinRate >= 70 && s.TotalPnLSOL.GreaterThan(decimal.NewFromInt(10)):
		return GradeS
	case s.WinRate >= 60 && s.TotalPnLSOL.GreaterThan(decimal.NewFromInt(5)):
		return GradeA
	case s.WinRate >= 50 && s.TotalPnLSOL.IsPositive():
		return GradeB
	case s.WinRate >= 40:
		return GradeC
	}
	return GradeD
}

type cached struct {
	stats Stats
	limit int
}

// Analyzer fetches and summarizes wallet history. Results are cached per
// wallet for five minutes.
type Analyzer struct {
	history History
	parser  Parser
	clock   clock.Clock
	workers int
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]cached
}

// New creates an analyzer.
func New(history History, parser Parser, clk clock.Clock, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		history: history,
		parser:  parser,
		clock:   clk,
		workers: fetchWorkers,
		logger:  logger.Named("analyzer"),
		cache:   make(map[string]cached),
	}
}

// Analyze reads up to limit of the wallet's latest transactions and
// summarizes the swaps among them. Transactions that cannot be fetched are
// counted in Unreadable. A cached result covering at least limit
// transactions is reused unless refresh is set.
func (a *Analyzer) Analyze(ctx context.Context, address string, limit int, refresh bool) (Stats, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	if !refresh {
		if s, ok := a.cached(address, limit); ok {
			a.logger.Debug("Wallet stats cached", zap.String("wallet", address))
			return s, nil
		}
	}

	sigs, err := a.history.Signatures(ctx, address, "", limit)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list transactions: %w", err)
	}

	trades, unreadable, err := a.fetchTrades(ctx, address, sigs)
	if err != nil {
		return Stats{}, err
	}

	s := Summarize(address, trades)
	s.Transactions = len(sigs)
	s.Unreadable = unreadable
	s.AnalyzedAt = a.clock.Now()

	a.mu.Lock()
	a.cache[address] = cached{stats: s, limit: limit}
	a.mu.Unlock()

	a.logger.Info("🔎 Wallet analyzed",
		zap.String("wallet", address),
		zap.Int("transactions", len(sigs)),
		zap.Int("trades", s.TotalTrades),
		zap.Int("unreadable", unreadable),
		zap.Float64("win_rate", s.WinRate),
		zap.String("pnl_sol", s.TotalPnLSOL.String()))
	return s, nil
}

func (a *Analyzer) cached(address string, limit int) (Stats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.cache[address]
	if !ok || c.limit < limit || a.clock.Now().Sub(c.stats.AnalyzedAt) >= cacheTTL {
		return Stats{}, false
	}
	return c.stats, true
}

// fetchTrades loads the transactions with bounded concurrency and keeps the
// swaps, in signature order.
func (a *Analyzer) fetchTrades(ctx context.Context, address string, sigs []*rpc.TransactionSignature) ([]domain.DetectedTrade, int, error) {
	slots := make([]*domain.DetectedTrade, len(sigs))
	failed := make([]bool, len(sigs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, sig := range sigs {
		if sig == nil || sig.Err != nil {
			continue
		}
		signature := sig.Signature.String()
		g.Go(func() error {
			ev, err := a.history.FetchEvent(gctx, address, signature)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				a.logger.Debug("Transaction unreadable", zap.String("signature", signature), zap.Error(err))
				failed[i] = true
				return nil
			}
			trade, err := a.parser.Parse(ev)
			if err != nil {
				if !errors.Is(err, domain.ErrNotASwap) {
					a.logger.Debug("Transaction not parsed", zap.String("signature", signature), zap.Error(err))
				}
				return nil
			}
			slots[i] = &trade
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var trades []domain.DetectedTrade
	unreadable := 0
	for i := range sigs {
		if failed[i] {
			unreadable++
		}
		if slots[i] != nil {
			trades = append(trades, *slots[i])
		}
	}
	return trades, unreadable, nil
}

// Summarize computes stats over trades given newest first.
func Summarize(address string, trades []domain.DetectedTrade) Stats {
	s := Stats{
		Address:         address,
		TotalPnLSOL:     decimal.Zero,
		AvgTradeSizeSOL: decimal.Zero,
		LargestWinSOL:   decimal.Zero,
		LargestLossSOL:  decimal.Zero,
	}
	if len(trades) == 0 {
		return s
	}
	s.TotalTrades = len(trades)
	s.Recent = append([]domain.DetectedTrade(nil), trades[:min(recentTrades, len(trades))]...)

	byMint := make(map[string]*TokenStats)
	volume, priced := decimal.Zero, 0
	for _, t := range trades {
		if s.FirstTrade.IsZero() || t.Timestamp.Before(s.FirstTrade) {
			s.FirstTrade = t.Timestamp
		}
		if t.Timestamp.After(s.LastTrade) {
			s.LastTrade = t.Timestamp
		}

		mint := t.TradedToken()
		ts, ok := byMint[mint]
		if !ok {
			ts = &TokenStats{Mint: mint, Spent: decimal.Zero, Received: decimal.Zero}
			byMint[mint] = ts
		}

		sol, hasSOL := solLeg(t)
		if hasSOL {
			volume = volume.Add(sol)
			priced++
		}
		switch t.Direction {
		case domain.DirectionBuy:
			s.Buys++
			ts.Buys++
			if hasSOL {
				ts.Spent = ts.Spent.Add(sol)
			}
		case domain.DirectionSell:
			s.Sells++
			ts.Sells++
			if hasSOL {
				ts.Received = ts.Received.Add(sol)
			}
		}
	}

	wins := 0
	for _, ts := range byMint {
		ts.PnL = ts.Received.Sub(ts.Spent)
		s.TotalPnLSOL = s.TotalPnLSOL.Add(ts.PnL)
		if ts.PnL.IsPositive() {
			wins++
		}
		if ts.PnL.GreaterThan(s.LargestWinSOL) {
			s.LargestWinSOL = ts.PnL
		}
		if ts.PnL.LessThan(s.LargestLossSOL) {
			s.LargestLossSOL = ts.PnL
		}
		s.Tokens = append(s.Tokens, *ts)
	}
	sort.Slice(s.Tokens, func(i, j int) bool {
		ni, nj := s.Tokens[i].Buys+s.Tokens[i].Sells, s.Tokens[j].Buys+s.Tokens[j].Sells
		if ni != nj {
			return ni > nj
		}
		return s.Tokens[i].Mint < s.Tokens[j].Mint
	})
	s.MostTraded = s.Tokens[0].Mint
	s.WinRate = float64(wins) / float64(len(byMint)) * 100
	if priced > 0 {
		s.AvgTradeSizeSOL = volume.Div(decimal.NewFromInt(int64(priced)))
	}
	return s
}

// solLeg is the SOL side of a trade, if it has one.
func solLeg(t domain.DetectedTrade) (decimal.Decimal, bool) {
	switch domain.SOLMint {
	case t.InputMint:
		return t.InputAmount, true
	case t.OutputMint:
		return t.OutputAmount, true
	}
	return decimal.Zero, false
}
