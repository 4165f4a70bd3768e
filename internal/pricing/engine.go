// Package pricing turns requested cart lines into a priced order summary.
//
// All money is decimal and rounded to cents half away from zero at every
// step. Quote and checkout share Engine.Price so the previewed total and the
// charged total come from the same computation.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PortNumber53/storefront/backend/internal/membership"
	"github.com/PortNumber53/storefront/backend/internal/models"
	"github.com/PortNumber53/storefront/backend/internal/store"
)

var (
	ErrInvalidItem     = errors.New("invalid item")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrVariantNotFound = errors.New("variant not found")
)

var hundred = decimal.NewFromInt(100)

// Item is one requested cart line.
type Item struct {
	ProductID int64  `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// Key returns the normalised variant key for the line.
func (i Item) Key() models.VariantKey {
	return models.VariantKey{ProductID: i.ProductID, Color: i.Color, Size: i.Size}.Normalize()
}

// Source provides the rows pricing reads. Both the pool-backed store and an
// open transaction satisfy it.
type Source interface {
	GetVariant(ctx context.Context, key models.VariantKey) (*models.Variant, error)
	ActiveMembership(ctx context.Context, customerID int64, asOf time.Time) (*models.Membership, error)
}

// SettingsSource returns the current store settings. It must not fail.
type SettingsSource interface {
	Get(ctx context.Context) models.StoreSettings
}

// Engine prices carts.
type Engine struct {
	discounts membership.Discounts
	settings  SettingsSource
	now       func() time.Time
}

func NewEngine(discounts membership.Discounts, settings SettingsSource) *Engine {
	return &Engine{discounts: discounts, settings: settings, now: time.Now}
}

// Validate checks cart shape without touching storage.
func Validate(items []Item) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for i, item := range items {
		key := item.Key()
		switch {
		case item.Quantity <= 0:
			return fmt.Errorf("%w: line %d: quantity must be positive", ErrInvalidItem, i)
		case key.ProductID <= 0:
			return fmt.Errorf("%w: line %d: product_id is required", ErrInvalidItem, i)
		case key.Color == "":
			return fmt.Errorf("%w: line %d: color is required", ErrInvalidItem, i)
		case key.Size == "":
			return fmt.Errorf("%w: line %d: size is required", ErrInvalidItem, i)
		}
	}
	return nil
}

// Settings returns the settings the engine prices with.
func (e *Engine) Settings(ctx context.Context) models.StoreSettings {
	return e.settings.Get(ctx)
}

// Price resolves the customer's plan, prices every line from the variant's
// current price and computes the order summary.
func (e *Engine) Price(ctx context.Context, src Source, customerID int64, items []Item) (*Priced, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}
	return e.PriceWithSettings(ctx, src, e.settings.Get(ctx), customerID, items)
}

// PriceWithSettings is Price with the settings already resolved. Callers
// holding a transaction use it so pricing never needs a second connection.
func (e *Engine) PriceWithSettings(ctx context.Context, src Source, st models.StoreSettings, customerID int64, items []Item) (*Priced, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}

	asOf := e.now()
	m, err := src.ActiveMembership(ctx, customerID, asOf)
	if err != nil {
		return nil, fmt.Errorf("pricing: resolve membership: %w", err)
	}
	plan, _, _ := membership.PlanOf(m, asOf)
	percent := e.discounts.PercentForPlan(plan)

	priced := &Priced{
		Plan:            plan,
		DiscountPercent: percent,
		Items:           make([]PricedItem, 0, len(items)),
	}
	lines := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		key := item.Key()
		v, err := src.GetVariant(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: product %d %s/%s", ErrVariantNotFound, key.ProductID, key.Color, key.Size)
			}
			return nil, fmt.Errorf("pricing: lookup variant: %w", err)
		}

		unit := DiscountedUnit(v.Price, percent)
		line := LineTotal(unit, item.Quantity)
		priced.Items = append(priced.Items, PricedItem{
			ProductID:   key.ProductID,
			ProductName: v.ProductName,
			Color:       key.Color,
			Size:        key.Size,
			Quantity:    item.Quantity,
			BasePrice:   v.Price,
			UnitPrice:   unit,
			LineTotal:   line,
		})
		lines = append(lines, line)
	}

	priced.Summary = Summarize(lines, st)
	return priced, nil
}

// Round2 rounds to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// DiscountedUnit applies a percentage discount to a base price.
func DiscountedUnit(base, percent decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(hundred.Sub(percent)).Div(hundred))
}

// LineTotal is unit × quantity, rounded.
func LineTotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return Round2(unit.Mul(decimal.NewFromInt(int64(quantity))))
}

// Summarize computes subtotal, shipping, tax and grand total from line totals.
func Summarize(lineTotals []decimal.Decimal, st models.StoreSettings) Summary {
	subtotal := decimal.Zero
	for _, line := range lineTotals {
		subtotal = subtotal.Add(line)
	}
	subtotal = Round2(subtotal)

	shipping := Round2(st.ShippingFlat)
	threshold := st.FreeShippingThreshold
	if threshold.IsPositive() && subtotal.GreaterThanOrEqual(threshold) {
		shipping = decimal.Zero
	}

	tax := Round2(subtotal.Mul(st.TaxPercent).Div(hundred))

	return Summary{
		Subtotal:   subtotal,
		Shipping:   shipping,
		Tax:        tax,
		GrandTotal: Round2(subtotal.Add(shipping).Add(tax)),
	}
}
