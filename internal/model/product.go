package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable item identified by its barcode.
type Product struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:256;not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Barcode     string          `gorm:"uniqueIndex;size:64;not null" json:"barcode"`
	Description string          `gorm:"size:1024" json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
