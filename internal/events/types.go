// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// EventType represents the type of event.
type EventType string

const (
	anyEvent EventType = "*"

	// Monitoring events
	WalletTracked   EventType = "wallet.tracked"
	WalletUntracked EventType = "wallet.untracked"
	TradeDetected   EventType = "trade.detected"
	MonitoringGap   EventType = "monitoring.gap"
	FeedDegraded    EventType = "monitoring.degraded"
	FeedRecovered   EventType = "monitoring.recovered"

	// Copy events
	CopySkipped EventType = "copy.skipped"
	CopyOrdered EventType = "copy.ordered"

	// Execution events
	TradeExecuted EventType = "trade.executed"

	// Position events
	PositionChanged   EventType = "position.changed"
	LimitOrderChanged EventType = "limit.changed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType { return e.EventType }

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// NewBase stamps an event header.
func NewBase(t EventType, at time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: at}
}

// WalletEvent is emitted when the tracked set changes.
type WalletEvent struct {
	BaseEvent
	Wallet domain.TrackedWallet
}

// TradeDetectedEvent carries a parsed swap of a tracked wallet.
type TradeDetectedEvent struct {
	BaseEvent
	Trade      domain.DetectedTrade
	WalletName string
}

// MonitoringGapEvent reports transactions that could not be replayed after an outage.
type MonitoringGapEvent struct {
	BaseEvent
	Wallet string
	// Last transaction known delivered before the outage.
	From domain.Cursor
	// Oldest transaction recovered by the backfill, if any.
	To     domain.Cursor
	Reason string
}

// FeedHealthEvent reports a wallet feed entering or leaving degraded mode.
type FeedHealthEvent struct {
	BaseEvent
	Wallet   string
	Attempts int
	Err      string
}

// CopySkippedEvent records a detected trade that produced no order.
type CopySkippedEvent struct {
	BaseEvent
	Trade  domain.DetectedTrade
	Reason domain.SkipReason
	Detail string
}

// CopyOrderedEvent records an order handed to the executor.
type CopyOrderedEvent struct {
	BaseEvent
	Trade domain.DetectedTrade
	Order domain.Order
}

// TradeExecutedEvent carries a trade result, including pending and failed ones.
type TradeExecutedEvent struct {
	BaseEvent
	Result domain.TradeResult
}

// PositionChangedEvent reports a position state transition.
type PositionChangedEvent struct {
	BaseEvent
	Position domain.Position
	From     domain.PositionStatus
	Reason   string
}

// LimitOrderEvent reports a limit order transition.
type LimitOrderEvent struct {
	BaseEvent
	Order domain.LimitOrder
	From  domain.LimitStatus
}
