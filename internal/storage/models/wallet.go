// internal/storage/models/wallet.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	BaseModel
	Address     string              `gorm:"uniqueIndex;not null;type:varchar(44)"`
	Name        string              `gorm:"type:varchar(100)"`
	Enabled     bool                `gorm:"not null;default:true"`
	SizeParam   decimal.NullDecimal `gorm:"type:decimal(30,12)"`
	MinTradeSOL decimal.NullDecimal `gorm:"type:decimal(30,12)"`
	MaxTradeSOL decimal.NullDecimal `gorm:"type:decimal(30,12)"`
	Direction   string              `gorm:"type:varchar(8)"`
	AlertOnBuy  bool                `gorm:"not null;default:true"`
	AlertOnSell bool                `gorm:"not null;default:true"`
	CursorSig   string              `gorm:"type:varchar(88)"`
	CursorSlot  uint64
	AddedAt     time.Time
}
