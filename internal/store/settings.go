package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/PortNumber53/storefront/backend/internal/models"
)

const settingsColumns = `site_name, tax_percent, shipping_flat, free_shipping_threshold, updated_at`

// GetSettings returns the singleton settings row, creating it with column
// defaults when it does not exist yet.
func (s *Store) GetSettings(ctx context.Context) (*models.StoreSettings, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: db cannot be nil")
	}

	var st models.StoreSettings
	err := s.db.GetContext(ctx, &st, `SELECT `+settingsColumns+` FROM settings WHERE id = 1`)
	if err == nil {
		return &st, nil
	}
	if !errors.Is(notFound(err), ErrNotFound) {
		return nil, fmt.Errorf("store: get settings: %w", err)
	}

	if err := s.db.GetContext(ctx, &st, `
INSERT INTO settings (id) VALUES (1)
ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
RETURNING `+settingsColumns); err != nil {
		return nil, fmt.Errorf("store: create default settings: %w", err)
	}
	return &st, nil
}

// UpsertSettings replaces the singleton settings row.
func (s *Store) UpsertSettings(ctx context.Context, st *models.StoreSettings) error {
	if err := s.db.QueryRowxContext(ctx, `
INSERT INTO settings (id, site_name, tax_percent, shipping_flat, free_shipping_threshold)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET site_name = EXCLUDED.site_name,
    tax_percent = EXCLUDED.tax_percent,
    shipping_flat = EXCLUDED.shipping_flat,
    free_shipping_threshold = EXCLUDED.free_shipping_threshold,
    updated_at = now()
RETURNING updated_at`,
		st.SiteName, st.TaxPercent, st.ShippingFlat, st.FreeShippingThreshold,
	).Scan(&st.UpdatedAt); err != nil {
		return fmt.Errorf("store: upsert settings: %w", err)
	}
	return nil
}
