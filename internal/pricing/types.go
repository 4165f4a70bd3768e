package pricing

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/PortNumber53/storefront/backend/internal/models"
)

// Priced is the result of pricing a cart.
type Priced struct {
	Plan            models.MembershipPlan
	DiscountPercent decimal.Decimal
	Items           []PricedItem
	Summary         Summary
}

// PricedItem is a cart line with its resolved prices.
type PricedItem struct {
	ProductID   int64
	ProductName string
	Color       string
	Size        string
	Quantity    int
	BasePrice   decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Summary is the order-level money breakdown.
type Summary struct {
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

// Money values are encoded as fixed two-decimal strings so repeated quotes
// serialise identically.

func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Subtotal   string `json:"subtotal"`
		Shipping   string `json:"shipping"`
		Tax        string `json:"tax"`
		GrandTotal string `json:"grand_total"`
	}{
		Subtotal:   s.Subtotal.StringFixed(2),
		Shipping:   s.Shipping.StringFixed(2),
		Tax:        s.Tax.StringFixed(2),
		GrandTotal: s.GrandTotal.StringFixed(2),
	})
}

func (p PricedItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ProductID   int64  `json:"product_id"`
		ProductName string `json:"product_name"`
		Color       string `json:"color"`
		Size        string `json:"size"`
		Quantity    int    `json:"quantity"`
		BasePrice   string `json:"base_price"`
		UnitPrice   string `json:"unit_price"`
		LineTotal   string `json:"line_total"`
	}{
		ProductID:   p.ProductID,
		ProductName: p.ProductName,
		Color:       p.Color,
		Size:        p.Size,
		Quantity:    p.Quantity,
		BasePrice:   p.BasePrice.StringFixed(2),
		UnitPrice:   p.UnitPrice.StringFixed(2),
		LineTotal:   p.LineTotal.StringFixed(2),
	})
}

func (p Priced) MarshalJSON() ([]byte, error) {
	var plan *models.MembershipPlan
	if p.Plan != "" {
		plan = &p.Plan
	}
	items := p.Items
	if items == nil {
		items = []PricedItem{}
	}
	return json.Marshal(struct {
		Plan            *models.MembershipPlan `json:"plan"`
		DiscountPercent string                 `json:"discount_percent"`
		Items           []PricedItem           `json:"items"`
		Summary         Summary                `json:"summary"`
	}{
		Plan:            plan,
		DiscountPercent: p.DiscountPercent.String(),
		Items:           items,
		Summary:         p.Summary,
	})
}
