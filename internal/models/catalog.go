package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product carries display metadata only; price and stock live on variants.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Category  *string   `db:"category" json:"category,omitempty"`
	Supplier  *string   `db:"supplier" json:"supplier,omitempty"`
	Bodyshape *string   `db:"bodyshape" json:"bodyshape,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// VariantKey identifies a purchasable (product, color, size) combination.
type VariantKey struct {
	ProductID int64  `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
}

// Normalize trims whitespace from the color and size components.
func (k VariantKey) Normalize() VariantKey {
	k.Color = strings.TrimSpace(k.Color)
	k.Size = strings.TrimSpace(k.Size)
	return k
}

// Variant is a priced, stocked product combination.
type Variant struct {
	ID          int64           `db:"id" json:"id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Color       string          `db:"color" json:"color"`
	Size        string          `db:"size" json:"size"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Quantity    int             `db:"quantity" json:"quantity"`
}

// Key returns the variant's identifying triple.
func (v Variant) Key() VariantKey {
	return VariantKey{ProductID: v.ProductID, Color: v.Color, Size: v.Size}
}
