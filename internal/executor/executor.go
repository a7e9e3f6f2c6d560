// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

var ErrExecutorClosed = errors.New("executor is shutting down")

// Config bounds quoting, confirmation and reconciliation.
type Config struct {
	Workers            int
	QuoteTimeout       time.Duration
	PollInterval       time.Duration
	ConfirmTimeout     time.Duration
	ReconcileInterval  time.Duration
	ExpireAfter        time.Duration
	DefaultSlippageBps int
	MaxSlippageBps     int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:            4,
		QuoteTimeout:       10 * time.Second,
		PollInterval:       2 * time.Second,
		ConfirmTimeout:     60 * time.Second,
		ReconcileInterval:  30 * time.Second,
		ExpireAfter:        2 * time.Minute,
		DefaultSlippageBps: 100,
		MaxSlippageBps:     500,
	}
}

// StatusChecker reports the confirmation state of a signature.
type StatusChecker interface {
	TransactionStatus(ctx context.Context, signature string, searchHistory bool) (domain.TxStatus, error)
}

// ResultStore persists trade results.
type ResultStore interface {
	SaveTradeResult(ctx context.Context, r domain.TradeResult) error
	ListTradeResults(ctx context.Context, filter storage.ResultFilter) ([]domain.TradeResult, error)
}

// ResultHandler is told about every result after it is persisted.
type ResultHandler interface {
	ApplyResult(ctx context.Context, r domain.TradeResult) error
}

// Publisher receives execution events.
type Publisher interface {
	Publish(event events.Event) error
}

type job struct {
	order domain.Order
	done  chan domain.TradeResult
}

// Executor runs orders through quote, sign, submit and confirmation. Orders
// with the same (source, token) key run one at a time in submission order;
// different keys run in parallel up to Workers.
type Executor struct {
	router  router.Router
	signer  router.Signer
	chain   StatusChecker
	store   ResultStore
	bus     Publisher
	clock   clock.Clock
	cfg     Config
	logger  *zap.Logger
	sem     *semaphore.Weighted
	handler ResultHandler

	mu     sync.Mutex
	queues map[domain.ExecKey][]*job
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an executor. bus may be nil.
func New(r router.Router, signer router.Signer, chain StatusChecker, store ResultStore, bus Publisher, clk clock.Clock, cfg Config, logger *zap.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = def.QuoteTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = def.ReconcileInterval
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = def.ExpireAfter
	}
	if cfg.MaxSlippageBps <= 0 {
		cfg.MaxSlippageBps = def.MaxSlippageBps
	}
	if cfg.DefaultSlippageBps <= 0 || cfg.DefaultSlippageBps > cfg.MaxSlippageBps {
		cfg.DefaultSlippageBps = min(def.DefaultSlippageBps, cfg.MaxSlippageBps)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		router: r,
		signer: signer,
		chain:  chain,
		store:  store,
		bus:    bus,
		clock:  clk,
		cfg:    cfg,
		logger: logger.Named("executor"),
		sem:    semaphore.NewWeighted(int64(cfg.Workers)),
		queues: make(map[domain.ExecKey][]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetResultHandler installs the handler for resolved results. It must be
// called before the first Submit.
func (e *Executor) SetResultHandler(h ResultHandler) {
	e.handler = h
}

// Submit queues order behind earlier orders with the same key and returns a
// channel that receives exactly one result.
func (e *Executor) Submit(ctx context.Context, order domain.Order) (<-chan domain.TradeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j := &job{order: order, done: make(chan domain.TradeResult, 1)}
	key := order.Key()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrExecutorClosed
	}

	queue, running := e.queues[key]
	e.queues[key] = append(queue, j)
	if !running {
		e.wg.Add(1)
		go e.runKey(key)
	}

	e.logger.Debug("Order queued",
		zap.String("order_id", order.ID),
		zap.String("key", key.String()),
		zap.Int("queue_depth", len(queue)+1))
	return j.done, nil
}

// Execute submits order and waits for its result. The returned error is the
// execution failure of a failed result, nil for confirmed and pending ones.
func (e *Executor) Execute(ctx context.Context, order domain.Order) (domain.TradeResult, error) {
	ch, err := e.Submit(ctx, order)
	if err != nil {
		return domain.TradeResult{}, err
	}
	select {
	case r := <-ch:
		return r, ResultError(r)
	case <-ctx.Done():
		return domain.TradeResult{}, ctx.Err()
	}
}

// runKey drains one key's queue. The key's entry is removed under the lock
// only when the queue is empty, so a later Submit starts a fresh runner.
func (e *Executor) runKey(key domain.ExecKey) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		queue := e.queues[key]
		if len(queue) == 0 {
			delete(e.queues, key)
			e.mu.Unlock()
			return
		}
		j := queue[0]
		e.queues[key] = queue[1:]
		e.mu.Unlock()

		j.done <- e.runJob(j.order)
		close(j.done)
	}
}

func (e *Executor) runJob(order domain.Order) domain.TradeResult {
	if err := e.sem.Acquire(e.ctx, 1); err != nil {
		r := e.newResult(order)
		return e.finish(e.ctx, e.fail(r, ErrExecutorClosed))
	}
	defer e.sem.Release(1)
	return e.execute(e.ctx, order)
}

// Shutdown stops accepting orders and waits for queued and in-flight orders.
// When ctx ends first, confirmation polling is cut short and unresolved
// orders are left pending for the next reconciliation.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		e.logger.Info("🛑 Executor stopped")
		return nil
	case <-ctx.Done():
		e.logger.Warn("Executor shutdown timeout, abandoning in-flight confirmations")
		e.cancel()
		<-done
		return ctx.Err()
	}
}

// InFlight returns the number of keys with queued or running orders.
func (e *Executor) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queues)
}

func (e *Executor) publish(r domain.TradeResult) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(&events.TradeExecutedEvent{
		BaseEvent: events.NewBase(events.TradeExecuted, e.clock.Now()),
		Result:    r,
	}); err != nil {
		e.logger.Debug("Event not published", zap.Error(err))
	}
}

// ResultError rebuilds the execution error of a failed result.
func ResultError(r domain.TradeResult) error {
	if r.Status != domain.TradeFailed {
		return nil
	}
	var sentinel error
	switch r.ErrorCategory {
	case domain.CategorySlippage:
		sentinel = domain.ErrSlippageExceeded
	case domain.CategoryInsufficientBalance:
		sentinel = domain.ErrInsufficientBalance
	}
	return domain.NewExecutionError(r.ErrorCategory, r.Error, sentinel)
}
