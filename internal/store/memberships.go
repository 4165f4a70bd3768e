package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/storefront/backend/internal/models"
)

const membershipColumns = `id, customer_id, plan, status, start_at, end_at, created_at, updated_at`

// activeMembership returns the currently valid active row with the latest end
// date, or nil when the customer has none.
func activeMembership(ctx context.Context, ex executor, customerID int64, asOf time.Time) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + `
FROM memberships
WHERE customer_id = $1
  AND status = 'active'
  AND start_at <= $2
  AND end_at >= $2
ORDER BY end_at DESC
LIMIT 1`

	var m models.Membership
	if err := ex.GetContext(ctx, &m, query, customerID, asOf); err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: active membership for customer %d: %w", customerID, err)
	}
	return &m, nil
}

// ActiveMembership returns the customer's authoritative membership at asOf.
func (s *Store) ActiveMembership(ctx context.Context, customerID int64, asOf time.Time) (*models.Membership, error) {
	return activeMembership(ctx, s.db, customerID, asOf)
}

// ActiveMembership reads the customer's membership inside the transaction.
func (t *Tx) ActiveMembership(ctx context.Context, customerID int64, asOf time.Time) (*models.Membership, error) {
	return activeMembership(ctx, t.tx, customerID, asOf)
}

// ReplaceActiveMembership cancels every active row of the customer and inserts
// m as the single active membership. A per-customer advisory lock serialises
// concurrent subscribes so at most one active row survives.
func (s *Store) ReplaceActiveMembership(ctx context.Context, m *models.Membership) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, m.CustomerID); err != nil {
			return fmt.Errorf("store: lock memberships for customer %d: %w", m.CustomerID, err)
		}

		if _, err := tx.tx.ExecContext(ctx, `
UPDATE memberships
SET status = 'cancelled', updated_at = now()
WHERE customer_id = $1 AND status = 'active'`, m.CustomerID); err != nil {
			return fmt.Errorf("store: supersede memberships: %w", err)
		}

		m.Status = models.MembershipActive
		if err := tx.tx.QueryRowxContext(ctx, `
INSERT INTO memberships (customer_id, plan, status, start_at, end_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`,
			m.CustomerID, m.Plan, m.Status, m.StartAt, m.EndAt,
		).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return fmt.Errorf("store: insert membership: %w", err)
		}
		return nil
	})
}

// CancelMemberships cancels the customer's active rows and reports how many
// were changed.
func (s *Store) CancelMemberships(ctx context.Context, customerID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE memberships
SET status = 'cancelled', updated_at = now()
WHERE customer_id = $1 AND status = 'active'`, customerID)
	if err != nil {
		return 0, fmt.Errorf("store: cancel memberships: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
