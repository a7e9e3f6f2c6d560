// internal/storage/models/position.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Position struct {
	BaseModel
	PositionID     string          `gorm:"uniqueIndex;not null;type:varchar(64)"`
	Token          string          `gorm:"index;not null;type:varchar(44)"`
	QuoteMint      string          `gorm:"not null;type:varchar(44)"`
	EntryPrice     decimal.Decimal `gorm:"type:decimal(40,18);not null"`
	EntrySize      decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	RemainingSize  decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	EntryCost      decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	TakeProfitPct  decimal.Decimal `gorm:"type:decimal(10,4);not null"`
	StopLossPct    decimal.Decimal `gorm:"type:decimal(10,4);not null"`
	Source         string          `gorm:"index;not null;type:varchar(44)"`
	EntryResultID  string          `gorm:"type:varchar(64)"`
	Status         string          `gorm:"index;not null;type:varchar(16)"`
	PendingOrderID string          `gorm:"type:varchar(100)"`
	PendingSize    decimal.Decimal `gorm:"type:decimal(30,12)"`
	OpenedAt       time.Time       `gorm:"not null"`
	ClosedAt       *time.Time
}
