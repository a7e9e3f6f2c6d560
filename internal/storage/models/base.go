// internal/storage/models/base.go
package models

import "time"

// BaseModel replaces gorm.Model so deletes stay hard deletes.
type BaseModel struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}
