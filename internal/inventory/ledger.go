// Package inventory tracks per-variant stock.
//
// Decrements are clamped at zero and never rejected for insufficient stock:
// two checkouts racing for the last unit both succeed and the later one
// floors the quantity at zero. A low or zero result is surfaced through a
// stock.low event instead.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PortNumber53/storefront/backend/internal/events"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
	"github.com/PortNumber53/storefront/backend/internal/pricing"
	"github.com/PortNumber53/storefront/backend/internal/store"
)

// Decrementer lowers stock. Both the store and an open transaction satisfy it.
type Decrementer interface {
	DecrementVariantStock(ctx context.Context, key models.VariantKey, delta int) (int, error)
}

// Repository is the pool-backed stock persistence.
type Repository interface {
	Decrementer
	SetVariantQuantity(ctx context.Context, key models.VariantKey, quantity int) error
}

// Publisher receives low-stock events.
type Publisher interface {
	Publish(eventType string, payload any) events.Event
}

// Alerter queues an out-of-band low-stock alert.
type Alerter interface {
	AlertLowStock(ctx context.Context, low LowStock) error
}

// Adjustment records one applied decrement.
type Adjustment struct {
	Key      models.VariantKey `json:"variant"`
	Delta    int               `json:"delta"`
	Quantity int               `json:"quantity"`
}

// LowStock is the stock.low event payload.
type LowStock struct {
	ProductID int64  `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
}

// Ledger applies stock changes and reports low stock.
type Ledger struct {
	repo      Repository
	publisher Publisher
	alerter   Alerter
	threshold int
	log       *logger.Logger
}

func NewLedger(repo Repository, publisher Publisher, threshold int, log *logger.Logger) *Ledger {
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{
		repo:      repo,
		publisher: publisher,
		threshold: threshold,
		log:       log.With("component", "InventoryLedger"),
	}
}

// SetAlerter registers an alerter for low-stock notifications. Alerts are
// raised alongside stock.low events.
func (l *Ledger) SetAlerter(a Alerter) {
	l.alerter = a
}

// Decrement lowers a variant's stock by delta, floored at zero, and returns
// the resulting quantity.
func (l *Ledger) Decrement(ctx context.Context, productID int64, color, size string, delta int) (int, error) {
	adj, err := l.DecrementTx(ctx, l.repo, models.VariantKey{ProductID: productID, Color: color, Size: size}, delta)
	if err != nil {
		return 0, err
	}
	l.NotifyLow(ctx, adj)
	return adj.Quantity, nil
}

// DecrementTx applies a decrement through d without publishing anything. The
// caller publishes with NotifyLow once the surrounding transaction commits.
func (l *Ledger) DecrementTx(ctx context.Context, d Decrementer, key models.VariantKey, delta int) (Adjustment, error) {
	key = key.Normalize()
	if err := validateKey(key); err != nil {
		return Adjustment{}, err
	}
	if delta <= 0 {
		return Adjustment{}, fmt.Errorf("%w: delta must be positive", pricing.ErrInvalidItem)
	}

	qty, err := d.DecrementVariantStock(ctx, key, delta)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Adjustment{}, fmt.Errorf("%w: product %d %s/%s", pricing.ErrVariantNotFound, key.ProductID, key.Color, key.Size)
		}
		return Adjustment{}, err
	}
	return Adjustment{Key: key, Delta: delta, Quantity: qty}, nil
}

// NotifyLow publishes stock.low for each adjustment at or below the
// threshold. Best-effort: failures are logged and never returned.
func (l *Ledger) NotifyLow(ctx context.Context, adjs ...Adjustment) {
	for _, adj := range adjs {
		if adj.Quantity > l.threshold {
			continue
		}
		low := LowStock{
			ProductID: adj.Key.ProductID,
			Color:     adj.Key.Color,
			Size:      adj.Key.Size,
			Quantity:  adj.Quantity,
			Threshold: l.threshold,
		}
		l.log.Info("stock low", "product_id", low.ProductID, "color", low.Color, "size", low.Size, "quantity", low.Quantity)
		if l.publisher != nil {
			l.publisher.Publish(events.TypeStockLow, low)
		}
		if l.alerter != nil {
			if err := l.alerter.AlertLowStock(ctx, low); err != nil {
				l.log.Warn("queue low stock alert failed", "product_id", low.ProductID, "error", err)
			}
		}
	}
}

// SetQuantity overwrites a variant's stock (manual admin edit).
func (l *Ledger) SetQuantity(ctx context.Context, key models.VariantKey, quantity int) error {
	key = key.Normalize()
	if err := validateKey(key); err != nil {
		return err
	}
	if quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", pricing.ErrInvalidItem)
	}
	if err := l.repo.SetVariantQuantity(ctx, key, quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: product %d %s/%s", pricing.ErrVariantNotFound, key.ProductID, key.Color, key.Size)
		}
		return err
	}
	return nil
}

func validateKey(key models.VariantKey) error {
	if key.ProductID <= 0 || strings.TrimSpace(key.Color) == "" || strings.TrimSpace(key.Size) == "" {
		return fmt.Errorf("%w: product_id, color and size are required", pricing.ErrInvalidItem)
	}
	return nil
}
