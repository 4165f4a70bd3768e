package store

import (
	"context"
	"fmt"

	"github.com/PortNumber53/storefront/backend/internal/models"
)

const orderColumns = `id, customer_id, status, total_amount, payment_token, created_at, updated_at`

const orderItemColumns = `id, order_id, product_id, product_name, color, size, quantity, unit_price`

// InsertOrder writes the order header and fills in its generated fields.
func (t *Tx) InsertOrder(ctx context.Context, o *models.Order) error {
	if err := t.tx.QueryRowxContext(ctx, `
INSERT INTO orders (customer_id, status, total_amount, payment_token)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`,
		o.CustomerID, o.Status, o.TotalAmount, o.PaymentToken,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return fmt.Errorf("store: insert order: %w", err)
	}
	return nil
}

// InsertOrderItem writes one line item with its frozen unit price.
func (t *Tx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	if err := t.tx.QueryRowxContext(ctx, `
INSERT INTO order_items (order_id, product_id, product_name, color, size, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		item.OrderID, item.ProductID, item.ProductName, item.Color, item.Size, item.Quantity, item.UnitPrice,
	).Scan(&item.ID); err != nil {
		return fmt.Errorf("store: insert order item for order %d: %w", item.OrderID, err)
	}
	return nil
}

// GetOrderByPaymentToken finds the order created for a payment confirmation.
func (s *Store) GetOrderByPaymentToken(ctx context.Context, token string) (*models.Order, error) {
	var o models.Order
	if err := s.db.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE payment_token = $1`, token); err != nil {
		return nil, fmt.Errorf("store: get order by payment token: %w", notFound(err))
	}
	return &o, nil
}

// GetOrder returns an order header by id.
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	if err := s.db.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("store: get order %d: %w", id, notFound(err))
	}
	return &o, nil
}

// ListOrderItems returns an order's line items in insertion order.
func (s *Store) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, `SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id ASC`, orderID); err != nil {
		return nil, fmt.Errorf("store: list order items for order %d: %w", orderID, err)
	}
	return items, nil
}

// UpdateOrderStatus sets an order's status. ErrNotFound when no row matches.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("store: update order status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("store: update order %d status: %w", id, ErrNotFound)
	}
	return nil
}

// RecordPaymentConfirmation stores the external payment token for audit. A
// token that was already recorded is not an error.
func (s *Store) RecordPaymentConfirmation(ctx context.Context, orderID int64, token string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO payment_confirmations (order_id, token)
VALUES ($1, $2)
ON CONFLICT (token) DO NOTHING`, orderID, token)
	if err != nil {
		return fmt.Errorf("store: record payment confirmation for order %d: %w", orderID, err)
	}
	return nil
}
