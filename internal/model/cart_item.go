package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is one line of a cart. A product appears at most once per cart;
// adding it again increments the quantity instead of creating a new line.
type CartItem struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	CartID    int64           `gorm:"uniqueIndex:idx_cart_product;not null" json:"cartId"`
	ProductID int64           `gorm:"uniqueIndex:idx_cart_product;not null" json:"productId"`
	Name      string          `gorm:"size:256;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Barcode   string          `gorm:"size:64;not null" json:"barcode"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
