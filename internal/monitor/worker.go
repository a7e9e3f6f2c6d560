// internal/monitor/worker.go
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
)

type walletWorker struct {
	m      *Monitor
	cancel context.CancelFunc
	done   chan struct{}
	seen   *seenSet
	logger *zap.Logger

	mu     sync.Mutex
	wallet domain.TrackedWallet

	failures int
	degraded bool

	// unacked holds delivered transactions in feed order until the persisted
	// cursor may pass them.
	ackMu   sync.Mutex
	unacked []*delivery
}

type delivery struct {
	cursor domain.Cursor
	acked  bool
}

func (w *walletWorker) snapshot() domain.TrackedWallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wallet
}

func (w *walletWorker) address() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wallet.Address
}

func (w *walletWorker) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.m.cfg.BackoffBase
	b.MaxInterval = w.m.cfg.BackoffCap
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}

// run keeps a subscription alive until ctx is cancelled. Retries never give up.
func (w *walletWorker) run(ctx context.Context) {
	b := w.newBackOff()

	for ctx.Err() == nil {
		err := w.session(ctx, b)
		if ctx.Err() != nil {
			return
		}

		w.failures++
		w.logger.Warn("⚠️ Wallet feed disconnected",
			zap.Int("attempt", w.failures),
			zap.Error(err))

		if w.failures >= w.m.cfg.DegradedAfter && !w.degraded {
			w.degraded = true
			w.logger.Error("❌ Wallet feed degraded", zap.Int("attempts", w.failures))
			w.m.publish(&events.FeedHealthEvent{
				BaseEvent: events.NewBase(events.FeedDegraded, w.m.clock.Now()),
				Wallet:    w.address(),
				Attempts:  w.failures,
				Err:       err.Error(),
			})
		}

		delay := b.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-w.m.clock.After(delay):
		}
	}
}

// session subscribes, replays anything missed since the cursor and then
// delivers live transactions until the subscription fails.
func (w *walletWorker) session(ctx context.Context, b *backoff.ExponentialBackOff) error {
	addr := w.address()

	sub, err := w.m.feed.Subscribe(ctx, addr)
	if err != nil {
		return err
	}
	defer sub.Close()

	if err := w.backfill(ctx); err != nil {
		return err
	}

	if w.failures > 0 {
		w.logger.Info("✅ Wallet feed recovered", zap.Int("after_attempts", w.failures))
		if w.degraded {
			w.m.publish(&events.FeedHealthEvent{
				BaseEvent: events.NewBase(events.FeedRecovered, w.m.clock.Now()),
				Wallet:    addr,
				Attempts:  w.failures,
			})
		}
	}
	w.failures = 0
	w.degraded = false
	b.Reset()

	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, domain.ErrFeedDisconnected) {
				err = errors.Join(domain.ErrFeedDisconnected, err)
			}
			return err
		}
		if !w.deliver(ctx, ev) {
			return ctx.Err()
		}
	}
}

func (w *walletWorker) backfill(ctx context.Context) error {
	addr := w.address()
	cursor := w.snapshot().Cursor

	evs, found, err := w.m.feed.Backfill(ctx, addr, cursor, w.m.cfg.BackfillLimit)
	if err != nil {
		return err
	}

	if !found {
		gap := &events.MonitoringGapEvent{
			BaseEvent: events.NewBase(events.MonitoringGap, w.m.clock.Now()),
			Wallet:    addr,
			From:      cursor,
			Reason:    "cursor not reached within backfill window",
		}
		if len(evs) > 0 {
			gap.To = domain.Cursor{Signature: evs[0].Signature, Slot: evs[0].Slot}
		}
		w.logger.Warn("⚠️ Monitoring gap, older transactions were not replayed",
			zap.String("from", cursor.Signature),
			zap.String("to", gap.To.Signature),
			zap.Int("recovered", len(evs)))
		w.m.publish(gap)
	}

	if len(evs) > 0 {
		w.logger.Info("📥 Backfilled missed transactions", zap.Int("count", len(evs)))
	}
	for _, ev := range evs {
		if !w.deliver(ctx, ev) {
			return ctx.Err()
		}
	}
	return nil
}

// deliver parses one transaction and hands a swap to the merged channel. The
// in-memory cursor moves at once; the persisted one waits for Detection.Done.
// It returns false only when ctx ends mid-send.
func (w *walletWorker) deliver(ctx context.Context, ev domain.RawEvent) bool {
	if ev.Signature == "" || !w.seen.Add(ev.Signature) {
		return true
	}
	if ev.Wallet == "" {
		ev.Wallet = w.address()
	}

	cursor := domain.Cursor{Signature: ev.Signature, Slot: ev.Slot}
	d := w.track(cursor)

	trade, err := w.m.parser.Parse(ev)
	switch {
	case err == nil:
		wallet := w.snapshot()
		select {
		case w.m.trades <- NewDetection(trade, wallet, func() { w.ack(d) }):
		case <-ctx.Done():
			w.untrack(d)
			return false
		}
		w.logger.Info("🔎 Trade detected",
			zap.String("direction", string(trade.Direction)),
			zap.String("input", trade.InputMint),
			zap.String("output", trade.OutputMint),
			zap.String("in_amount", trade.InputAmount.String()),
			zap.String("out_amount", trade.OutputAmount.String()),
			zap.String("dex", trade.DEX),
			zap.String("signature", trade.Signature))
		w.m.publish(&events.TradeDetectedEvent{
			BaseEvent:  events.NewBase(events.TradeDetected, w.m.clock.Now()),
			Trade:      trade,
			WalletName: wallet.DisplayName(),
		})
	case errors.Is(err, domain.ErrNotASwap):
		w.logger.Debug("Skipping transaction", zap.String("signature", ev.Signature), zap.Error(err))
		w.ack(d)
	default:
		w.logger.Warn("Failed to parse transaction", zap.String("signature", ev.Signature), zap.Error(err))
		w.ack(d)
	}

	w.mu.Lock()
	w.wallet.Cursor = cursor
	w.mu.Unlock()
	return true
}

func (w *walletWorker) track(c domain.Cursor) *delivery {
	w.ackMu.Lock()
	defer w.ackMu.Unlock()
	d := &delivery{cursor: c}
	w.unacked = append(w.unacked, d)
	return d
}

func (w *walletWorker) untrack(d *delivery) {
	w.ackMu.Lock()
	defer w.ackMu.Unlock()
	for i, u := range w.unacked {
		if u == d {
			w.unacked = append(w.unacked[:i], w.unacked[i+1:]...)
			return
		}
	}
}

// ack marks d handled and persists the newest cursor whose predecessors are
// all handled too.
func (w *walletWorker) ack(d *delivery) {
	w.ackMu.Lock()
	defer w.ackMu.Unlock()
	if d.acked {
		return
	}
	d.acked = true

	var commit *domain.Cursor
	for len(w.unacked) > 0 && w.unacked[0].acked {
		commit = &w.unacked[0].cursor
		w.unacked = w.unacked[1:]
	}
	if commit != nil {
		w.persist(*commit)
	}
}

func (w *walletWorker) persist(c domain.Cursor) {
	if w.m.cursors == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.m.cursors.UpdateCursor(ctx, w.address(), c); err != nil {
		w.logger.Warn("Failed to persist cursor", zap.String("signature", c.Signature), zap.Error(err))
	}
}
