// internal/storage/models/limit.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LimitOrder struct {
	BaseModel
	OrderID      string          `gorm:"uniqueIndex;not null;type:varchar(64)"`
	Type         string          `gorm:"not null;type:varchar(16)"`
	Token        string          `gorm:"index;not null;type:varchar(44)"`
	QuoteMint    string          `gorm:"not null;type:varchar(44)"`
	TargetPrice  decimal.Decimal `gorm:"type:decimal(40,18);not null"`
	Amount       decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	PositionID   string          `gorm:"type:varchar(64)"`
	SlippageBps  int             `gorm:"not null"`
	Status       string          `gorm:"index;not null;type:varchar(16)"`
	OpenedAt     time.Time       `gorm:"not null"`
	ExpiresAt    *time.Time
	TriggeredAt  *time.Time
	FilledAt     *time.Time
	FillPrice    decimal.Decimal `gorm:"type:decimal(40,18)"`
	SwapOrderID  string          `gorm:"type:varchar(100)"`
	ResultID     string          `gorm:"type:varchar(64)"`
	Signature    string          `gorm:"type:varchar(88)"`
	ErrorMessage string          `gorm:"type:text"`
}
