// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

var ErrMonitorStopped = errors.New("wallet monitor stopped")

// Config tunes reconnects, backfill and dedupe.
type Config struct {
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	DegradedAfter int
	BackfillLimit int
	DedupeSize    int
	BufferSize    int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BackoffBase:   time.Second,
		BackoffCap:    30 * time.Second,
		DegradedAfter: 5,
		BackfillLimit: 100,
		DedupeSize:    2048,
		BufferSize:    256,
	}
}

// TradeParser turns a raw transaction into a swap.
type TradeParser interface {
	Parse(ev domain.RawEvent) (domain.DetectedTrade, error)
}

// CursorStore persists the last delivered transaction per wallet.
type CursorStore interface {
	UpdateCursor(ctx context.Context, address string, c domain.Cursor) error
}

// Publisher receives monitoring events.
type Publisher interface {
	Publish(event events.Event) error
}

// Detection is a parsed trade with the wallet as it was when the trade was seen.
type Detection struct {
	Trade  domain.DetectedTrade
	Wallet domain.TrackedWallet

	ack func()
}

// NewDetection builds a detection whose Done calls done.
func NewDetection(trade domain.DetectedTrade, wallet domain.TrackedWallet, done func()) Detection {
	return Detection{Trade: trade, Wallet: wallet, ack: done}
}

// Done marks the detection as handled. The persisted cursor never moves past
// a detection that is not done, so a restart replays it. Safe to call twice.
func (d Detection) Done() {
	if d.ack != nil {
		d.ack()
	}
}

// Monitor runs one worker per tracked wallet and merges their trades into a
// single channel. Each worker writes in on-chain order.
type Monitor struct {
	feed    blockchain.Feed
	parser  TradeParser
	cursors CursorStore
	bus     Publisher
	clock   clock.Clock
	cfg     Config
	logger  *zap.Logger

	trades chan Detection

	mu      sync.RWMutex
	workers map[string]*walletWorker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a monitor. bus and cursors may be nil.
func New(feed blockchain.Feed, parser TradeParser, cursors CursorStore, bus Publisher, clk clock.Clock, cfg Config, logger *zap.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = def.DegradedAfter
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = def.BackfillLimit
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = def.DedupeSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		feed:    feed,
		parser:  parser,
		cursors: cursors,
		bus:     bus,
		clock:   clk,
		cfg:     cfg,
		logger:  logger.Named("monitor"),
		trades:  make(chan Detection, cfg.BufferSize),
		workers: make(map[string]*walletWorker),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Trades is the merged stream of detected swaps.
func (m *Monitor) Trades() <-chan Detection {
	return m.trades
}

// Track starts watching w. It resumes from w.Cursor when set.
func (m *Monitor) Track(w domain.TrackedWallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return ErrMonitorStopped
	}
	if _, ok := m.workers[w.Address]; ok {
		return domain.ErrWalletExists
	}

	ctx, cancel := context.WithCancel(m.ctx)
	worker := &walletWorker{
		m:      m,
		wallet: w,
		cancel: cancel,
		done:   make(chan struct{}),
		seen:   newSeenSet(m.cfg.DedupeSize),
		logger: m.logger.With(zap.String("wallet", w.Address), zap.String("name", w.DisplayName())),
	}
	m.workers[w.Address] = worker

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(worker.done)
		worker.run(ctx)
	}()

	m.logger.Info("👀 Tracking wallet",
		zap.String("wallet", w.Address),
		zap.String("name", w.DisplayName()),
		zap.String("cursor", w.Cursor.Signature))
	m.publish(&events.WalletEvent{BaseEvent: events.NewBase(events.WalletTracked, m.clock.Now()), Wallet: w})
	return nil
}

// Untrack stops the wallet's worker and waits for it to exit. Other wallets
// are not touched. Trades already on the channel stay there.
func (m *Monitor) Untrack(address string) error {
	m.mu.Lock()
	worker, ok := m.workers[address]
	if ok {
		delete(m.workers, address)
	}
	m.mu.Unlock()

	if !ok {
		return domain.ErrWalletNotFound
	}

	worker.cancel()
	<-worker.done

	m.logger.Info("🛑 Wallet untracked", zap.String("wallet", address))
	m.publish(&events.WalletEvent{BaseEvent: events.NewBase(events.WalletUntracked, m.clock.Now()), Wallet: worker.snapshot()})
	return nil
}

// SetEnabled flips copying for a wallet. The feed keeps running so the cursor
// stays current while copying is paused.
func (m *Monitor) SetEnabled(address string, enabled bool) (domain.TrackedWallet, error) {
	return m.UpdateWallet(address, func(w *domain.TrackedWallet) { w.Enabled = enabled })
}

// UpdateWallet applies fn to the tracked wallet's name, flags and overrides.
// The address and cursor cannot be changed this way.
func (m *Monitor) UpdateWallet(address string, fn func(w *domain.TrackedWallet)) (domain.TrackedWallet, error) {
	m.mu.RLock()
	worker, ok := m.workers[address]
	m.mu.RUnlock()
	if !ok {
		return domain.TrackedWallet{}, domain.ErrWalletNotFound
	}

	worker.mu.Lock()
	defer worker.mu.Unlock()

	updated := worker.wallet
	fn(&updated)
	updated.Address = worker.wallet.Address
	updated.Cursor = worker.wallet.Cursor
	worker.wallet = updated
	return updated, nil
}

// Wallet returns the current state of a tracked wallet.
func (m *Monitor) Wallet(address string) (domain.TrackedWallet, bool) {
	m.mu.RLock()
	worker, ok := m.workers[address]
	m.mu.RUnlock()
	if !ok {
		return domain.TrackedWallet{}, false
	}
	return worker.snapshot(), true
}

// Wallets lists tracked wallets in no particular order.
func (m *Monitor) Wallets() []domain.TrackedWallet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.TrackedWallet, 0, len(m.workers))
	for _, worker := range m.workers {
		out = append(out, worker.snapshot())
	}
	return out
}

// Stop cancels every worker and waits for them.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.cancel()
	m.workers = make(map[string]*walletWorker)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("🛑 Wallet monitor stopped")
}

func (m *Monitor) publish(ev events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ev); err != nil {
		m.logger.Debug("Event not published", zap.String("type", string(ev.Type())), zap.Error(err))
	}
}
