package store

import (
	"context"
	"fmt"

	"github.com/PortNumber53/storefront/backend/internal/models"
)

const variantColumns = `
  v.id,
  v.product_id,
  p.name AS product_name,
  v.color,
  v.size,
  v.price,
  v.quantity`

func getVariant(ctx context.Context, ex executor, key models.VariantKey) (*models.Variant, error) {
	query := `SELECT` + variantColumns + `
FROM variants v
JOIN products p ON p.id = v.product_id
WHERE v.product_id = $1 AND v.color = $2 AND v.size = $3`

	var v models.Variant
	if err := ex.GetContext(ctx, &v, query, key.ProductID, key.Color, key.Size); err != nil {
		return nil, fmt.Errorf("store: get variant %d/%s/%s: %w", key.ProductID, key.Color, key.Size, notFound(err))
	}
	return &v, nil
}

// decrementVariantStock floors the stored quantity at zero and returns the
// resulting value.
func decrementVariantStock(ctx context.Context, ex executor, key models.VariantKey, delta int) (int, error) {
	var quantity int
	err := ex.GetContext(ctx, &quantity, `
UPDATE variants
SET quantity = GREATEST(quantity - $4, 0),
    updated_at = now()
WHERE product_id = $1 AND color = $2 AND size = $3
RETURNING quantity`, key.ProductID, key.Color, key.Size, delta)
	if err != nil {
		return 0, fmt.Errorf("store: decrement variant %d/%s/%s: %w", key.ProductID, key.Color, key.Size, notFound(err))
	}
	return quantity, nil
}

// GetVariant looks up a variant with its product display name.
func (s *Store) GetVariant(ctx context.Context, key models.VariantKey) (*models.Variant, error) {
	return getVariant(ctx, s.db, key)
}

// DecrementVariantStock atomically lowers a variant's quantity, clamped at zero.
func (s *Store) DecrementVariantStock(ctx context.Context, key models.VariantKey, delta int) (int, error) {
	return decrementVariantStock(ctx, s.db, key, delta)
}

// SetVariantQuantity overwrites a variant's stock (manual admin edit).
func (s *Store) SetVariantQuantity(ctx context.Context, key models.VariantKey, quantity int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE variants
SET quantity = $4,
    updated_at = now()
WHERE product_id = $1 AND color = $2 AND size = $3`, key.ProductID, key.Color, key.Size, quantity)
	if err != nil {
		return fmt.Errorf("store: set variant quantity: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("store: set variant quantity %d/%s/%s: %w", key.ProductID, key.Color, key.Size, ErrNotFound)
	}
	return nil
}

// GetVariant reads a variant inside the transaction.
func (t *Tx) GetVariant(ctx context.Context, key models.VariantKey) (*models.Variant, error) {
	return getVariant(ctx, t.tx, key)
}

// DecrementVariantStock lowers a variant's quantity inside the transaction.
func (t *Tx) DecrementVariantStock(ctx context.Context, key models.VariantKey, delta int) (int, error) {
	return decrementVariantStock(ctx, t.tx, key, delta)
}
