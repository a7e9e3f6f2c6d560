package bot

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/solana-copybot/internal/analyzer"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/monitor"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
)

const (
	walletA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	tokenX  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	owner   = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

var start = time.Unix(1700000000, 0).UTC()

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ev events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) ofType(t events.EventType) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, ev := range b.events {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}

// fakeTracker stands in for the wallet monitor.
type fakeTracker struct {
	mu      sync.Mutex
	wallets map[string]domain.TrackedWallet
	trades  chan monitor.Detection
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		wallets: make(map[string]domain.TrackedWallet),
		trades:  make(chan monitor.Detection, 16),
	}
}

func (f *fakeTracker) Track(w domain.TrackedWallet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.wallets[w.Address]; ok {
		return domain.ErrWalletExists
	}
	f.wallets[w.Address] = w
	return nil
}

func (f *fakeTracker) Untrack(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.wallets[address]; !ok {
		return domain.ErrWalletNotFound
	}
	delete(f.wallets, address)
	return nil
}

func (f *fakeTracker) SetEnabled(address string, enabled bool) (domain.TrackedWallet, error) {
	return f.UpdateWallet(address, func(w *domain.TrackedWallet) { w.Enabled = enabled })
}

func (f *fakeTracker) UpdateWallet(address string, fn func(w *domain.TrackedWallet)) (domain.TrackedWallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[address]
	if !ok {
		return domain.TrackedWallet{}, domain.ErrWalletNotFound
	}
	fn(&w)
	f.wallets[address] = w
	return w, nil
}

func (f *fakeTracker) Wallet(address string) (domain.TrackedWallet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[address]
	return w, ok
}

func (f *fakeTracker) Wallets() []domain.TrackedWallet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TrackedWallet, 0, len(f.wallets))
	for _, w := range f.wallets {
		out = append(out, w)
	}
	return out
}

func (f *fakeTracker) Trades() <-chan monitor.Detection { return f.trades }

// fakeSubmitter records orders and never resolves them.
type fakeSubmitter struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, order domain.Order) (<-chan domain.TradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.orders = append(f.orders, order)
	return make(chan domain.TradeResult, 1), nil
}

func (f *fakeSubmitter) submitted() []domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Order(nil), f.orders...)
}

// fakeExecutor resolves every order with the configured outcome.
type fakeExecutor struct {
	mu     sync.Mutex
	orders []domain.Order
	result func(domain.Order) domain.TradeResult
}

func (f *fakeExecutor) Execute(_ context.Context, order domain.Order) (domain.TradeResult, error) {
	f.mu.Lock()
	f.orders = append(f.orders, order)
	f.mu.Unlock()

	r := f.result(order)
	if r.Status == domain.TradeFailed {
		return r, domain.NewExecutionError(r.ErrorCategory, r.Error, nil)
	}
	return r, nil
}

type fakeBalances struct {
	sol    decimal.Decimal
	tokens map[string]decimal.Decimal
}

func (f fakeBalances) SOLBalance(context.Context, string) (decimal.Decimal, error) {
	return f.sol, nil
}

func (f fakeBalances) TokenBalance(_ context.Context, _, mint string) (decimal.Decimal, error) {
	return f.tokens[mint], nil
}

type staticPrices map[string]decimal.Decimal

func (s staticPrices) Price(_ context.Context, token, _ string) (decimal.Decimal, error) {
	p, ok := s[token]
	if !ok {
		return decimal.Zero, router.ErrPriceUnavailable
	}
	return p, nil
}

type fakeAnalyzer struct {
	stats analyzer.Stats
	err   error
	calls []AnalyzeWalletCommand
}

func (a *fakeAnalyzer) Analyze(_ context.Context, address string, limit int, refresh bool) (analyzer.Stats, error) {
	a.calls = append(a.calls, AnalyzeWalletCommand{Address: address, Limit: limit, Refresh: refresh})
	return a.stats, a.err
}
