// internal/bot/pipeline.go
package bot

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/clock"
	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/events"
	"github.com/rovshanmuradov/solana-copybot/internal/monitor"
	logutil "github.com/rovshanmuradov/solana-copybot/internal/utils/logger"
)

// TradeSource is the monitor side of the pipeline.
type TradeSource interface {
	Trades() <-chan monitor.Detection
	Wallet(address string) (domain.TrackedWallet, bool)
}

// Evaluator is the copy decision.
type Evaluator interface {
	Settings() domain.CopySettings
	Evaluate(trade domain.DetectedTrade, wallet domain.TrackedWallet, balance decimal.Decimal) (domain.Order, *domain.Skipped)
}

// BalanceReader reads the bot wallet's balances for proportional sizing.
type BalanceReader interface {
	SOLBalance(ctx context.Context, owner string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, owner, mint string) (decimal.Decimal, error)
}

// OrderSubmitter queues orders for execution.
type OrderSubmitter interface {
	Submit(ctx context.Context, order domain.Order) (<-chan domain.TradeResult, error)
}

// PositionCloser closes copied positions when the source wallet sells.
type PositionCloser interface {
	OpenFor(source, token string) []domain.Position
	CloseAmount(ctx context.Context, id string, amount decimal.Decimal, orderID, triggeredBy string, slippageBps int) (domain.Order, error)
}

// Publisher receives pipeline events.
type Publisher interface {
	Publish(event events.Event) error
}

// Pipeline connects detected trades to the executor: every detection is
// evaluated once and either becomes an order or a skip event.
type Pipeline struct {
	source    TradeSource
	engine    Evaluator
	balances  BalanceReader
	owner     string
	exec      OrderSubmitter
	positions PositionCloser
	bus       Publisher
	clock     clock.Clock
	logger    *zap.Logger
}

// NewPipeline wires the stages. owner is the bot wallet address used for
// balance lookups; balances may be nil when proportional sizing is unused.
func NewPipeline(source TradeSource, engine Evaluator, balances BalanceReader, owner string, exec OrderSubmitter, positions PositionCloser, bus Publisher, clk clock.Clock, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source:    source,
		engine:    engine,
		balances:  balances,
		owner:     owner,
		exec:      exec,
		positions: positions,
		bus:       bus,
		clock:     clk,
		logger:    logger.Named("pipeline"),
	}
}

// Run consumes detections until ctx is cancelled or the source closes.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("🔁 Copy pipeline started")
	trades := p.source.Trades()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("🛑 Copy pipeline stopped")
			return nil
		case det, ok := <-trades:
			if !ok {
				return nil
			}
			p.Handle(ctx, det)
		}
	}
}

// Handle evaluates one detection and dispatches the result. The detection is
// marked done once its order is queued or it is skipped.
func (p *Pipeline) Handle(ctx context.Context, det monitor.Detection) {
	defer det.Done()

	trade := det.Trade
	wallet := det.Wallet
	if live, ok := p.source.Wallet(trade.Wallet); ok {
		wallet = live
	}

	var balance decimal.Decimal
	if p.engine.Settings().SizingMode == domain.SizingProportional {
		balance = p.balance(ctx, trade.InputMint)
	}

	order, skipped := p.engine.Evaluate(trade, wallet, balance)
	if skipped != nil {
		p.skip(trade, skipped)
		return
	}

	if order.Kind == domain.KindExit {
		p.mirrorExit(ctx, trade, order)
		return
	}

	if _, err := p.exec.Submit(ctx, order); err != nil {
		p.logger.Error("Failed to submit copy order", append(logutil.OrderFields(order), zap.Error(err))...)
		return
	}
	p.logger.Info("📋 Copy order submitted", logutil.OrderFields(order)...)
	p.publish(&events.CopyOrderedEvent{BaseEvent: events.NewBase(events.CopyOrdered, p.clock.Now()), Trade: trade, Order: order})
}

// mirrorExit sells out of the wallet's open positions in the token, oldest
// first, up to the copied amount.
func (p *Pipeline) mirrorExit(ctx context.Context, trade domain.DetectedTrade, order domain.Order) {
	open := p.positions.OpenFor(order.Source, order.Token())
	if len(open) == 0 {
		p.skip(trade, &domain.Skipped{Reason: domain.SkipNoPosition, Detail: order.Token()})
		return
	}

	left := order.Amount
	placed := 0
	var lastErr error
	for _, pos := range open {
		if !left.IsPositive() {
			break
		}
		amount := decimal.Min(left, pos.RemainingSize)
		orderID := order.ID
		if placed > 0 {
			orderID = fmt.Sprintf("%s-%d", order.ID, placed+1)
		}
		closeOrder, err := p.positions.CloseAmount(ctx, pos.ID, amount, orderID, order.TriggeredBy, order.MaxSlippageBps)
		if err != nil {
			lastErr = err
			p.logger.Warn("Failed to close copied position",
				zap.String("position_id", pos.ID),
				zap.String("signature", trade.Signature),
				zap.Error(err))
			continue
		}
		placed++
		left = left.Sub(closeOrder.Amount)
		p.logger.Info("📋 Copy sell submitted", logutil.OrderFields(closeOrder)...)
		p.publish(&events.CopyOrderedEvent{BaseEvent: events.NewBase(events.CopyOrdered, p.clock.Now()), Trade: trade, Order: closeOrder})
	}

	if placed == 0 {
		detail := order.Token()
		if lastErr != nil {
			detail = lastErr.Error()
		}
		p.skip(trade, &domain.Skipped{Reason: domain.SkipNoPosition, Detail: detail})
	}
}

func (p *Pipeline) balance(ctx context.Context, mint string) decimal.Decimal {
	if p.balances == nil || p.owner == "" {
		return decimal.Zero
	}
	var (
		bal decimal.Decimal
		err error
	)
	if mint == domain.SOLMint {
		bal, err = p.balances.SOLBalance(ctx, p.owner)
	} else {
		bal, err = p.balances.TokenBalance(ctx, p.owner, mint)
	}
	if err != nil {
		p.logger.Warn("Balance lookup failed, sizing from zero", zap.String("mint", mint), zap.Error(err))
		return decimal.Zero
	}
	return bal
}

func (p *Pipeline) skip(trade domain.DetectedTrade, s *domain.Skipped) {
	p.logger.Debug("Trade not copied",
		zap.String("wallet", trade.Wallet),
		zap.String("signature", trade.Signature),
		zap.String("reason", string(s.Reason)),
		zap.String("detail", s.Detail))
	p.publish(&events.CopySkippedEvent{
		BaseEvent: events.NewBase(events.CopySkipped, p.clock.Now()),
		Trade:     trade,
		Reason:    s.Reason,
		Detail:    s.Detail,
	})
}

func (p *Pipeline) publish(ev events.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ev); err != nil {
		p.logger.Debug("Event not published", zap.String("type", string(ev.Type())), zap.Error(err))
	}
}
