// internal/storage/models/settings.go
package models

import "github.com/shopspring/decimal"

// SettingsKeyGlobal is the only settings row.
const SettingsKeyGlobal = "global"

type CopySettings struct {
	BaseModel
	Key            string          `gorm:"column:scope_key;uniqueIndex;not null;type:varchar(32)"`
	Enabled        bool            `gorm:"not null"`
	SizingMode     string          `gorm:"not null;type:varchar(16)"`
	SizeParam      decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	FixedSize      decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	BalanceCapPct  decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	MinTradeSOL    decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	MaxTradeSOL    decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	Direction      string          `gorm:"not null;type:varchar(8)"`
	MaxSlippageBps int             `gorm:"not null"`
	Whitelist      []string        `gorm:"serializer:json;type:text"`
	Blacklist      []string        `gorm:"serializer:json;type:text"`
}
