// internal/metrics/collector.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

const namespace = "copybot"

// Collector turns pipeline events into Prometheus series. It owns its
// registry so several collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	trackedWallets  prometheus.Gauge
	tradesDetected  *prometheus.CounterVec
	monitoringGaps  *prometheus.CounterVec
	feedDegraded    *prometheus.GaugeVec
	copySkipped     *prometheus.CounterVec
	copyOrders      *prometheus.CounterVec
	tradeResults    *prometheus.CounterVec
	tradeDuration   *prometheus.HistogramVec
	openPositions   prometheus.Gauge
	positionChanges *prometheus.CounterVec
	limitOrders     *prometheus.CounterVec
}

// NewCollector registers every series on a fresh registry.
func NewCollector(logger *zap.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		logger:   logger.Named("metrics"),

		trackedWallets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tracked_wallets",
			Help:      "Number of wallets currently tracked",
		}),
		tradesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "trades_detected_total",
			Help:      "Swaps detected on tracked wallets",
		}, []string{"direction", "dex"}),
		monitoringGaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "gaps_total",
			Help:      "Backfills that could not reach the stored cursor",
		}, []string{"wallet"}),
		feedDegraded: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "feed_degraded",
			Help:      "1 while a wallet feed is in degraded mode",
		}, []string{"wallet"}),
		copySkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copy",
			Name:      "skipped_total",
			Help:      "Detected trades that produced no order, by reason",
		}, []string{"reason"}),
		copyOrders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "copy",
			Name:      "orders_total",
			Help:      "Copy orders handed to the executor",
		}, []string{"direction"}),
		tradeResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "results_total",
			Help:      "Trade results by status and failure category",
		}, []string{"source", "status", "category"}),
		tradeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "resolution_seconds",
			Help:      "Time from submission to a confirmed or failed result",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"status"}),
		openPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Positions not yet closed",
		}),
		positionChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "transitions_total",
			Help:      "Position state transitions by reason",
		}, []string{"status", "reason"}),
		limitOrders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "limit_orders_total",
			Help:      "Limit order transitions by type and status",
		}, []string{"type", "status"}),
	}
}

// Registry exposes the registry for tests and custom handlers.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// SetOpenPositions seeds the open positions gauge after a restart.
func (c *Collector) SetOpenPositions(n int) { c.openPositions.Set(float64(n)) }

// Handle implements events.Handler.
func (c *Collector) Handle(_ context.Context, event events.Event) error {
	switch ev := event.(type) {
	case *events.WalletEvent:
		if ev.Type() == events.WalletTracked {
			c.trackedWallets.Inc()
		} else {
			c.trackedWallets.Dec()
			c.feedDegraded.DeleteLabelValues(ev.Wallet.Address)
		}
	case *events.TradeDetectedEvent:
		c.tradesDetected.WithLabelValues(string(ev.Trade.Direction), ev.Trade.DEX).Inc()
	case *events.MonitoringGapEvent:
		c.monitoringGaps.WithLabelValues(ev.Wallet).Inc()
	case *events.FeedHealthEvent:
		v := 0.0
		if ev.Type() == events.FeedDegraded {
			v = 1
		}
		c.feedDegraded.WithLabelValues(ev.Wallet).Set(v)
	case *events.CopySkippedEvent:
		c.copySkipped.WithLabelValues(string(ev.Reason)).Inc()
	case *events.CopyOrderedEvent:
		c.copyOrders.WithLabelValues(string(ev.Order.Direction)).Inc()
	case *events.TradeExecutedEvent:
		c.recordResult(ev.Result)
	case *events.PositionChangedEvent:
		switch {
		case ev.From == "" && ev.Position.Status == domain.PositionOpen:
			c.openPositions.Inc()
		case ev.Position.Status == domain.PositionClosed && ev.From != domain.PositionClosed:
			c.openPositions.Dec()
		}
		c.positionChanges.WithLabelValues(string(ev.Position.Status), ev.Reason).Inc()
	case *events.LimitOrderEvent:
		c.limitOrders.WithLabelValues(string(ev.Order.Type), string(ev.Order.Status)).Inc()
	}
	return nil
}

func (c *Collector) recordResult(r domain.TradeResult) {
	source := "copy"
	if r.Order.Source == domain.SourceManual {
		source = domain.SourceManual
	}
	c.tradeResults.WithLabelValues(source, string(r.Status), string(r.ErrorCategory)).Inc()
	if r.ResolvedAt != nil {
		c.tradeDuration.WithLabelValues(string(r.Status)).Observe(r.ResolvedAt.Sub(r.SubmittedAt).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("📊 Metrics endpoint listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
