package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoreSettings is the process-wide singleton settings row.
type StoreSettings struct {
	SiteName              string          `db:"site_name" json:"site_name"`
	TaxPercent            decimal.Decimal `db:"tax_percent" json:"tax_percent"`
	ShippingFlat          decimal.Decimal `db:"shipping_flat" json:"shipping_flat"`
	FreeShippingThreshold decimal.Decimal `db:"free_shipping_threshold" json:"free_shipping_threshold"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}
