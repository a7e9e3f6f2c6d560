// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-copybot/internal/analyzer"
	"github.com/rovshanmuradov/solana-copybot/internal/blockchain"
	"github.com/rovshanmuradov/solana-copybot/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/config"
	"github.com/rovshanmuradov/solana-copybot/internal/copytrade"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/executor"
	"github.com/rovshanmuradov/solana-copybot/internal/metrics"
	"github.com/rovshanmuradov/solana-copybot/internal/monitor"
	"github.com/rovshanmuradov/solana-copybot/internal/parser"
	"github.com/rovshanmuradov/solana-copybot/internal/pnl"
	"github.com/rovshanmuradov/solana-copybot/internal/position"
	"github.com/rovshanmuradov/solana-copybot/internal/router/jupiter"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
	"github.com/rovshanmuradov/solana-copybot/internal/storage/gormdb"
	"github.com/rovshanmuradov/solana-copybot/internal/storage/memory"
	"github.com/rovshanmuradov/solana-copybot/internal/wallet"
)

// Runner builds the pipeline from configuration and runs it until a signal
// or a fatal error.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clock.Clock

	store     storage.Storage
	bus       *events.Bus
	chain     *solbc.Client
	monitor   *monitor.Monitor
	engine    *copytrade.Engine
	exec      *executor.Executor
	positions *position.Manager
	metrics   *metrics.Collector
	pipeline  *Pipeline
	service   *Service

	extra    []namedRun
	shutdown *ShutdownHandler
}

type namedRun struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunner wires every component. Nothing runs until Run.
func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	if cfg.PrivateKey == "" {
		return nil, errors.New("private_key is required to sign copy trades")
	}
	signer, err := wallet.NewWallet(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	store, err := OpenStorage(cfg.Storage.DSN, logger)
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate storage: %w", err)
	}

	settings, err := loadSettings(ctx, store, cfg.Copy)
	if err != nil {
		store.Close()
		return nil, err
	}

	clk := clock.New()
	bus := events.NewBus(logger, 1024)
	chain := solbc.NewClient(cfg.RPCURL, logger)

	var feed blockchain.Feed
	if cfg.WebSocketURL != "" {
		feed = solbc.NewWSFeed(chain, cfg.WebSocketURL, logger)
	} else {
		feed = solbc.NewPollFeed(chain, cfg.Monitor.PollInterval(), clk, logger)
	}

	mon := monitor.New(feed, parser.New(), store, bus, clk, monitor.Config{
		BackoffBase:   cfg.Monitor.BackoffBase(),
		BackoffCap:    cfg.Monitor.BackoffCap(),
		DegradedAfter: cfg.Monitor.DegradedAfter,
		BackfillLimit: cfg.Monitor.BackfillLimit,
		DedupeSize:    cfg.Monitor.DedupeSize,
		BufferSize:    cfg.Monitor.BufferSize,
	}, logger)

	jup := jupiter.NewClient(jupiter.Config{
		BaseURL:  cfg.Router.BaseURL,
		PriceURL: cfg.Router.PriceURL,
		APIKey:   cfg.Router.APIKey,
		Timeout:  cfg.Router.Timeout(),
		Retries:  cfg.Router.Retries,
	}, chain, logger)

	exec := executor.New(jup, signer, chain, store, bus, clk, executor.Config{
		Workers:            cfg.Executor.Workers,
		QuoteTimeout:       cfg.Executor.QuoteTimeout(),
		PollInterval:       cfg.Executor.PollInterval(),
		ConfirmTimeout:     cfg.Executor.ConfirmTimeout(),
		ReconcileInterval:  cfg.Executor.ReconcileInterval(),
		ExpireAfter:        cfg.Executor.ExpireAfter(),
		DefaultSlippageBps: cfg.Executor.DefaultSlippageBps,
		MaxSlippageBps:     cfg.Executor.MaxSlippageBps,
	}, logger)

	positions := position.NewManager(exec, store, jup, bus, clk, position.Config{
		CheckInterval:     cfg.Positions.CheckInterval(),
		DefaultTakeProfit: decimal.NewFromFloat(cfg.Positions.DefaultTakeProfit),
		DefaultStopLoss:   decimal.NewFromFloat(cfg.Positions.DefaultStopLoss),
		Epsilon:           decimal.NewFromFloat(cfg.Positions.Epsilon),
	}, logger)
	exec.SetResultHandler(positions)

	engine := copytrade.NewEngine(settings, store, logger)
	collector := metrics.NewCollector(logger)
	stats := NewStats()
	bus.SubscribeAll(collector)
	bus.SubscribeAll(stats)

	service := NewService(Deps{
		Monitor:   mon,
		Wallets:   store,
		Engine:    engine,
		Executor:  exec,
		Positions: positions,
		PnL:       pnl.NewTracker(store, jup, logger),
		Stats:     stats,
		Clock:     clk,
		Limits:    positions,
		Analyzer:  analyzer.New(chain, parser.New(), clk, logger),
	}, logger)

	r := &Runner{
		cfg:       cfg,
		logger:    logger.Named("runner"),
		clock:     clk,
		store:     store,
		bus:       bus,
		chain:     chain,
		monitor:   mon,
		engine:    engine,
		exec:      exec,
		positions: positions,
		metrics:   collector,
		pipeline:  NewPipeline(mon, engine, chain, signer.Address(), exec, positions, bus, clk, logger),
		service:   service,
		shutdown:  NewShutdownHandler(logger, 30*time.Second),
	}

	// Stopped in reverse: monitor first so no new trades arrive, storage last.
	r.shutdown.AddCloser("storage", store.Close)
	r.shutdown.Add("event_bus", bus.Shutdown)
	r.shutdown.Add("executor", exec.Shutdown)
	r.shutdown.Add("monitor", func(context.Context) error { mon.Stop(); return nil })

	r.logger.Info("🤖 Copy bot wired",
		zap.String("wallet", signer.Address()),
		zap.Bool("websocket_feed", cfg.WebSocketURL != ""),
		zap.Bool("copy_enabled", settings.Enabled),
		zap.String("sizing_mode", string(settings.SizingMode)))
	return r, nil
}

// Service is the command surface front ends talk to.
func (r *Runner) Service() *Service { return r.service }

// Bus carries notifications for front ends.
func (r *Runner) Bus() *events.Bus { return r.bus }

// Monitor exposes tracked wallet state for alert filtering.
func (r *Runner) Monitor() *monitor.Monitor { return r.monitor }

// Go adds a service that runs alongside the pipeline and stops with it.
func (r *Runner) Go(name string, run func(ctx context.Context) error) {
	r.extra = append(r.extra, namedRun{name: name, run: run})
}

// Run restores state, starts every loop and blocks until SIGINT/SIGTERM or
// the first loop error, then shuts down.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.restore(ctx); err != nil {
		return errors.Join(err, r.shutdown.Shutdown())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.pipeline.Run(gctx) })
	g.Go(func() error { return r.positions.Run(gctx) })
	g.Go(func() error { return r.exec.RunReconciler(gctx) })
	if r.cfg.MetricsAddr != "" {
		g.Go(func() error { return r.metrics.Serve(gctx, r.cfg.MetricsAddr) })
	}
	for _, svc := range r.extra {
		svc := svc
		g.Go(func() error {
			if err := svc.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", svc.name, err)
			}
			return nil
		})
	}

	r.logger.Info("🚀 Copy bot running")
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("💥 Copy bot stopped on error", zap.Error(err))
	} else {
		err = nil
	}
	return errors.Join(err, r.shutdown.Shutdown())
}

func (r *Runner) restore(ctx context.Context) error {
	if err := r.positions.Load(ctx); err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}
	live, err := r.store.ListPositions(ctx, storage.PositionFilter{
		Status: []domain.PositionStatus{domain.PositionOpen, domain.PositionClosing},
	})
	if err != nil {
		return fmt.Errorf("failed to count positions: %w", err)
	}
	r.metrics.SetOpenPositions(len(live))

	if _, err := r.service.Restore(ctx); err != nil {
		return err
	}
	return nil
}

// OpenStorage picks the backend from the DSN: "memory", "sqlite://<path>"
// or a postgres URL.
func OpenStorage(dsn string, logger *zap.Logger) (storage.Storage, error) {
	if strings.EqualFold(dsn, "memory") {
		logger.Warn("⚠️ Using in-memory storage, state is lost on exit")
		return memory.New(), nil
	}
	store, err := gormdb.Open(dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

// loadSettings prefers stored settings and seeds them from config on first start.
func loadSettings(ctx context.Context, store storage.SettingsStore, cc config.CopyConfig) (domain.CopySettings, error) {
	stored, err := store.LoadSettings(ctx)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.CopySettings{}, fmt.Errorf("failed to load copy settings: %w", err)
	}

	seeded := SettingsFromConfig(cc)
	if err := copytrade.ValidateSettings(seeded); err != nil {
		return domain.CopySettings{}, fmt.Errorf("invalid copy settings in config: %w", err)
	}
	if err := store.SaveSettings(ctx, seeded); err != nil {
		return domain.CopySettings{}, fmt.Errorf("failed to save copy settings: %w", err)
	}
	return seeded, nil
}

// SettingsFromConfig converts the config section into copy settings.
func SettingsFromConfig(cc config.CopyConfig) domain.CopySettings {
	return domain.CopySettings{
		Enabled:        cc.Enabled,
		SizingMode:     domain.SizingMode(cc.SizingMode),
		SizeParam:      decimal.NewFromFloat(cc.SizeParam),
		FixedSize:      decimal.NewFromFloat(cc.FixedSize),
		BalanceCapPct:  decimal.NewFromFloat(cc.BalanceCapPct),
		Whitelist:      append([]string(nil), cc.Whitelist...),
		Blacklist:      append([]string(nil), cc.Blacklist...),
		MinTradeSOL:    decimal.NewFromFloat(cc.MinTradeSOL),
		MaxTradeSOL:    decimal.NewFromFloat(cc.MaxTradeSOL),
		Direction:      domain.DirectionFilter(cc.Direction),
		MaxSlippageBps: cc.MaxSlippageBps,
	}
}
