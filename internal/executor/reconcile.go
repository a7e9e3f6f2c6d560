// internal/executor/reconcile.go
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
)

// Reconcile resolves pending results left by confirmation timeouts or a
// restart. Results still unknown after ExpireAfter become failed/expired.
// It returns the number of results resolved.
func (e *Executor) Reconcile(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	pending, err := e.store.ListTradeResults(ctx, storage.ResultFilter{Status: domain.TradePending})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending results: %w", err)
	}

	resolved := 0
	for _, r := range pending {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if e.inFlight(r.Order) {
			continue
		}

		next, done := e.reconcileOne(ctx, r)
		if !done {
			continue
		}
		e.finish(ctx, next)
		resolved++
	}

	if resolved > 0 {
		e.logger.Info("🔄 Reconciled pending trades", zap.Int("resolved", resolved), zap.Int("pending", len(pending)))
	}
	return resolved, nil
}

func (e *Executor) reconcileOne(ctx context.Context, r domain.TradeResult) (domain.TradeResult, bool) {
	if r.Signature != "" {
		status, err := e.chain.TransactionStatus(ctx, r.Signature, true)
		switch {
		case err != nil:
			// Unknown is not absent; never expire on a failed lookup.
			e.logger.Warn("Status lookup failed, keeping result pending",
				zap.String("result_id", r.ID), zap.String("signature", r.Signature), zap.Error(err))
			return r, false
		case status.State == domain.TxConfirmed:
			return e.resolve(r), true
		case status.State == domain.TxFailed:
			return e.failOnChain(r, status.Err), true
		}
	}

	if e.clock.Now().Sub(r.SubmittedAt) >= e.cfg.ExpireAfter {
		return e.fail(r, domain.NewExecutionError(domain.CategoryExpired,
			fmt.Sprintf("unresolved %s after submission", e.cfg.ExpireAfter), domain.ErrConfirmationTimeout)), true
	}
	return r, false
}

// inFlight reports whether an order with the same key is still being worked
// on, in which case its pending record belongs to the runner.
func (e *Executor) inFlight(order domain.Order) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.queues[order.Key()]
	return ok
}

// RunReconciler reconciles once immediately and then every ReconcileInterval
// until ctx is cancelled.
func (e *Executor) RunReconciler(ctx context.Context) error {
	for {
		if _, err := e.Reconcile(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("Reconciliation failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-e.clock.After(e.cfg.ReconcileInterval):
		}
	}
}
