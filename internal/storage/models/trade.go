// internal/storage/models/trade.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeResult flattens an order and its execution outcome into one row.
type TradeResult struct {
	BaseModel
	ResultID       string          `gorm:"uniqueIndex;not null;type:varchar(64)"`
	OrderID        string          `gorm:"index;not null;type:varchar(100)"`
	Source         string          `gorm:"index;not null;type:varchar(44)"`
	Kind           string          `gorm:"not null;type:varchar(8)"`
	Direction      string          `gorm:"not null;type:varchar(8)"`
	InputMint      string          `gorm:"not null;type:varchar(44)"`
	OutputMint     string          `gorm:"not null;type:varchar(44)"`
	Amount         decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	InputDecimals  uint8
	OutputDecimals uint8
	MaxSlippageBps int             `gorm:"not null"`
	PositionID     string          `gorm:"index;type:varchar(64)"`
	TriggeredBy    string          `gorm:"type:varchar(100)"`
	OrderCreatedAt time.Time
	Signature      string          `gorm:"index;type:varchar(88)"`
	InAmount       decimal.Decimal `gorm:"type:decimal(30,12)"`
	OutAmount      decimal.Decimal `gorm:"type:decimal(30,12)"`
	Status         string          `gorm:"index;not null;type:varchar(16)"`
	ErrorCategory  string          `gorm:"type:varchar(32)"`
	ErrorMessage   string          `gorm:"type:text"`
	SubmittedAt    time.Time       `gorm:"index"`
	ResolvedAt     *time.Time
}
