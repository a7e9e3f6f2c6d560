// internal/executor/run.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/router"
)

func (e *Executor) newResult(order domain.Order) domain.TradeResult {
	return domain.TradeResult{
		ID:          uuid.NewString(),
		Order:       order,
		Status:      domain.TradePending,
		SubmittedAt: e.clock.Now(),
	}
}

// slippageLimit is the tighter of the order's limit and the configured ceiling.
func (e *Executor) slippageLimit(order domain.Order) int {
	limit := order.MaxSlippageBps
	if limit <= 0 {
		limit = e.cfg.DefaultSlippageBps
	}
	return min(limit, e.cfg.MaxSlippageBps)
}

// execute runs one order to a result. It never returns a result without
// persisting and publishing it first.
func (e *Executor) execute(ctx context.Context, order domain.Order) domain.TradeResult {
	r := e.newResult(order)
	logger := e.logger.With(
		zap.String("order_id", order.ID),
		zap.String("result_id", r.ID),
		zap.String("source", order.Source),
		zap.String("direction", string(order.Direction)))

	if !order.Amount.IsPositive() {
		return e.finish(ctx, e.fail(r, domain.NewExecutionError(domain.CategoryRouter, "order amount must be positive", nil)))
	}

	limit := e.slippageLimit(order)
	quoteCtx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
	quote, err := e.router.Quote(quoteCtx, router.QuoteRequest{
		InputMint:      order.InputMint,
		OutputMint:     order.OutputMint,
		Amount:         order.Amount,
		InputDecimals:  order.InputDecimals,
		OutputDecimals: order.OutputDecimals,
		SlippageBps:    limit,
		Taker:          e.signer.Address(),
	})
	cancel()
	if err != nil {
		logger.Warn("Quote failed", zap.Error(err))
		return e.finish(ctx, e.fail(r, err))
	}

	if bps := max(quote.SlippageBps, quote.PriceImpactBps()); bps > limit {
		logger.Warn("⚠️ Quote rejected, slippage above limit",
			zap.Int("quoted_bps", quote.SlippageBps),
			zap.Int("impact_bps", quote.PriceImpactBps()),
			zap.Int("limit_bps", limit))
		return e.finish(ctx, e.fail(r, domain.NewExecutionError(domain.CategorySlippage,
			fmt.Sprintf("quoted %d bps exceeds limit %d bps", bps, limit), domain.ErrSlippageExceeded)))
	}
	if len(quote.Transaction) == 0 {
		return e.finish(ctx, e.fail(r, domain.NewExecutionError(domain.CategoryRouter, "quote carries no transaction", nil)))
	}

	signed, err := e.signer.SignTransaction(quote.Transaction)
	if err != nil {
		return e.finish(ctx, e.fail(r, domain.NewExecutionError(domain.CategoryUnknown, "signing failed", err)))
	}

	r.InAmount, r.OutAmount = quote.InAmount, quote.OutAmount
	sub, err := e.router.Submit(ctx, quote, signed)
	r.Signature = sub.Signature
	if err != nil {
		if r.Signature == "" {
			r.Signature = signatureOf(signed)
		}
		if errors.Is(err, router.ErrRejected) || r.Signature == "" {
			logger.Warn("Submit failed", zap.String("signature", r.Signature), zap.Error(err))
			return e.finish(ctx, e.fail(r, err))
		}
		// The signed transaction may still land; only the chain can tell.
		logger.Warn("Submit outcome unknown, polling signature",
			zap.String("signature", r.Signature), zap.Error(err))
		e.save(ctx, r)
		return e.finish(ctx, e.confirm(ctx, r))
	}
	if !sub.InAmount.IsZero() {
		r.InAmount = sub.InAmount
	}
	if !sub.OutAmount.IsZero() {
		r.OutAmount = sub.OutAmount
	}

	logger.Info("📤 Transaction submitted",
		zap.String("signature", r.Signature),
		zap.String("in", r.InAmount.String()),
		zap.String("out", r.OutAmount.String()))

	// Pending record first so a crash while polling leaves something to reconcile.
	e.save(ctx, r)

	return e.finish(ctx, e.confirm(ctx, r))
}

// signatureOf returns the fee payer signature of a signed transaction, or "".
func signatureOf(signed []byte) string {
	tx, err := solana.TransactionFromBytes(signed)
	if err != nil || len(tx.Signatures) == 0 || tx.Signatures[0] == (solana.Signature{}) {
		return ""
	}
	return tx.Signatures[0].String()
}

// confirm polls the signature until it resolves or ConfirmTimeout passes on
// the executor clock. A timeout leaves the result pending, never failed.
func (e *Executor) confirm(ctx context.Context, r domain.TradeResult) domain.TradeResult {
	deadline := e.clock.Now().Add(e.cfg.ConfirmTimeout)

	for {
		status, err := e.chain.TransactionStatus(ctx, r.Signature, false)
		switch {
		case err != nil:
			e.logger.Debug("Status lookup failed", zap.String("signature", r.Signature), zap.Error(err))
		case status.State == domain.TxConfirmed:
			return e.resolve(r)
		case status.State == domain.TxFailed:
			return e.failOnChain(r, status.Err)
		}

		if !e.clock.Now().Before(deadline) {
			r.Error = domain.ErrConfirmationTimeout.Error()
			e.logger.Warn("⏳ Confirmation timeout, result left pending",
				zap.String("signature", r.Signature),
				zap.Duration("waited", e.cfg.ConfirmTimeout))
			return r
		}

		select {
		case <-ctx.Done():
			r.Error = domain.ErrConfirmationTimeout.Error()
			return r
		case <-e.clock.After(e.cfg.PollInterval):
		}
	}
}

func (e *Executor) resolve(r domain.TradeResult) domain.TradeResult {
	now := e.clock.Now()
	r.Status = domain.TradeConfirmed
	r.ErrorCategory = ""
	r.Error = ""
	r.ResolvedAt = &now
	return r
}

func (e *Executor) failOnChain(r domain.TradeResult, chainErr string) domain.TradeResult {
	cat := domain.CategorizeChainError(chainErr)
	if cat == domain.CategoryUnknown && chainErr != "" {
		cat = domain.CategoryProgramError
	}
	return e.fail(r, domain.NewExecutionError(cat, chainErr, nil))
}

func (e *Executor) fail(r domain.TradeResult, err error) domain.TradeResult {
	now := e.clock.Now()
	r.Status = domain.TradeFailed
	r.ErrorCategory = domain.CategoryOf(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if r.ErrorCategory == domain.CategoryUnknown {
			r.ErrorCategory = domain.CategoryRouter
		}
	}
	r.Error = err.Error()
	r.ResolvedAt = &now
	return r
}

// finish persists r, hands it to the result handler and publishes it.
func (e *Executor) finish(ctx context.Context, r domain.TradeResult) domain.TradeResult {
	e.save(ctx, r)

	if e.handler != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := e.handler.ApplyResult(hctx, r); err != nil {
			e.logger.Error("Result handler failed", zap.String("result_id", r.ID), zap.Error(err))
		}
		cancel()
	}
	e.publish(r)

	fields := []zap.Field{
		zap.String("result_id", r.ID),
		zap.String("order_id", r.Order.ID),
		zap.String("status", string(r.Status)),
		zap.String("signature", r.Signature),
	}
	switch r.Status {
	case domain.TradeConfirmed:
		e.logger.Info("✅ Trade confirmed", append(fields,
			zap.String("in", r.InAmount.String()),
			zap.String("out", r.OutAmount.String()))...)
	case domain.TradeFailed:
		e.logger.Warn("❌ Trade failed", append(fields,
			zap.String("category", string(r.ErrorCategory)),
			zap.String("error", r.Error))...)
	default:
		e.logger.Info("⏳ Trade pending", fields...)
	}
	return r
}

func (e *Executor) save(ctx context.Context, r domain.TradeResult) {
	if e.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.SaveTradeResult(sctx, r); err != nil {
		e.logger.Error("Failed to persist trade result", zap.String("result_id", r.ID), zap.Error(err))
	}
}
