// Package checkout persists priced carts as orders.
//
// Create and Finalize each run in one transaction: the order header, every
// line item and every stock decrement commit together or not at all. Events,
// the payment audit row and notification jobs are written only after commit
// and never fail the order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PortNumber53/storefront/backend/internal/events"
	"github.com/PortNumber53/storefront/backend/internal/inventory"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
	"github.com/PortNumber53/storefront/backend/internal/pricing"
	"github.com/PortNumber53/storefront/backend/internal/store"
)

const defaultTxTimeout = 10 * time.Second

// Store is the persistence the coordinator needs.
type Store interface {
	pricing.Source
	WithTx(ctx context.Context, fn func(*store.Tx) error) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByPaymentToken(ctx context.Context, token string) (*models.Order, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error
	RecordPaymentConfirmation(ctx context.Context, orderID int64, token string) error
}

// Publisher receives order events.
type Publisher interface {
	Publish(eventType string, payload any) events.Event
}

// Notifier queues customer notifications for order changes.
type Notifier interface {
	NotifyOrder(ctx context.Context, order *models.Order) error
}

// Deps wires a Coordinator.
type Deps struct {
	Store     Store
	Engine    *pricing.Engine
	Ledger    *inventory.Ledger
	Settings  pricing.SettingsSource
	Publisher Publisher
	Notifier  Notifier
	TxTimeout time.Duration
	Logger    *logger.Logger
}

// Coordinator runs the checkout state machine:
// quoted -> pending -> paid -> shipped | cancelled.
type Coordinator struct {
	store     Store
	engine    *pricing.Engine
	ledger    *inventory.Ledger
	settings  pricing.SettingsSource
	publisher Publisher
	notifier  Notifier
	txTimeout time.Duration
	log       *logger.Logger
}

func NewCoordinator(d Deps) (*Coordinator, error) {
	if d.Store == nil || d.Engine == nil || d.Ledger == nil || d.Settings == nil {
		return nil, errors.New("checkout: store, engine, ledger and settings are required")
	}
	if d.TxTimeout <= 0 {
		d.TxTimeout = defaultTxTimeout
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &Coordinator{
		store:     d.Store,
		engine:    d.Engine,
		ledger:    d.Ledger,
		settings:  d.Settings,
		publisher: d.Publisher,
		notifier:  d.Notifier,
		txTimeout: d.TxTimeout,
		log:       d.Logger.With("component", "CheckoutCoordinator"),
	}, nil
}

// OrderResult is returned by CreatePendingOrder and Finalize. ChargedTotal is
// the total stored on the order header.
type OrderResult struct {
	Order        *models.Order   `json:"order"`
	Pricing      *pricing.Priced `json:"pricing,omitempty"`
	Summary      pricing.Summary `json:"summary"`
	ChargedTotal string          `json:"charged_total"`
	Replayed     bool            `json:"replayed"`
}

// OrderDetail is an order with its frozen line items. Summary is recomputed
// from the stored unit prices and the current settings; ChargedTotal is the
// total recorded when the order was created.
type OrderDetail struct {
	Order        *models.Order      `json:"order"`
	Items        []models.OrderItem `json:"items"`
	Summary      pricing.Summary    `json:"summary"`
	ChargedTotal string             `json:"charged_total"`
}

// OrderEvent is the payload of order.* events.
type OrderEvent struct {
	OrderID    int64              `json:"order_id"`
	CustomerID int64              `json:"customer_id"`
	Status     models.OrderStatus `json:"status"`
	Pricing    *pricing.Priced    `json:"pricing,omitempty"`
}

// Quote prices a cart without side effects.
func (c *Coordinator) Quote(ctx context.Context, customerID int64, items []pricing.Item) (*pricing.Priced, error) {
	return c.engine.Price(ctx, c.store, customerID, items)
}

// CreatePendingOrder persists an unpaid order.
func (c *Coordinator) CreatePendingOrder(ctx context.Context, customerID int64, items []pricing.Item) (*OrderResult, error) {
	order, priced, adjs, err := c.persist(ctx, "create order", customerID, items, models.OrderStatusPending, nil)
	if err != nil {
		return nil, err
	}

	c.log.Info("order created", "order_id", order.ID, "customer_id", customerID, "total", order.TotalAmount.StringFixed(2))
	c.afterCommit(ctx, events.TypeOrderCreated, order, priced, adjs)
	return &OrderResult{Order: order, Pricing: priced, Summary: priced.Summary, ChargedTotal: order.TotalAmount.StringFixed(2)}, nil
}

// Finalize persists a paid order for an external payment confirmation. The
// cart is repriced from scratch. A token that already produced an order
// returns that order with Replayed set and changes nothing.
func (c *Coordinator) Finalize(ctx context.Context, customerID int64, items []pricing.Item, paymentToken string) (*OrderResult, error) {
	token := strings.TrimSpace(paymentToken)
	if token == "" {
		return nil, fmt.Errorf("%w: payment token is required", pricing.ErrInvalidItem)
	}
	if err := pricing.Validate(items); err != nil {
		return nil, err
	}

	existing, err := c.store.GetOrderByPaymentToken(ctx, token)
	switch {
	case err == nil:
		return c.replay(ctx, customerID, existing)
	case !errors.Is(err, store.ErrNotFound):
		return nil, &TxError{Op: "finalize", Err: err}
	}

	order, priced, adjs, err := c.persist(ctx, "finalize", customerID, items, models.OrderStatusPaid, &token)
	if err != nil {
		if !store.IsUniqueViolation(err) {
			return nil, err
		}
		// A concurrent finalize with the same token committed first.
		existing, gerr := c.store.GetOrderByPaymentToken(ctx, token)
		if gerr != nil {
			return nil, &TxError{Op: "finalize", Err: errors.Join(err, gerr)}
		}
		return c.replay(ctx, customerID, existing)
	}

	if err := c.store.RecordPaymentConfirmation(ctx, order.ID, token); err != nil {
		c.log.Warn("record payment confirmation failed", "order_id", order.ID, "error", err)
	}

	c.log.Info("order paid", "order_id", order.ID, "customer_id", customerID, "total", order.TotalAmount.StringFixed(2))
	c.afterCommit(ctx, events.TypeOrderPaid, order, priced, adjs)
	return &OrderResult{Order: order, Pricing: priced, Summary: priced.Summary, ChargedTotal: order.TotalAmount.StringFixed(2)}, nil
}

// UpdateOrderStatus moves an order to status and publishes order.<status>.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := c.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return err
	}

	c.log.Info("order status updated", "order_id", orderID, "status", status)
	c.publish(events.OrderStatusType(string(status)), OrderEvent{OrderID: orderID, Status: status})

	if c.notifier != nil {
		if order, err := c.store.GetOrder(ctx, orderID); err == nil {
			c.notify(ctx, order)
		}
	}
	return nil
}

// GetOrderDetail loads an order with its line items and summary.
func (c *Coordinator) GetOrderDetail(ctx context.Context, orderID int64) (*OrderDetail, error) {
	order, err := c.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
		}
		return nil, err
	}
	items, err := c.store.ListOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.OrderItem{}
	}

	lines := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricing.LineTotal(item.UnitPrice, item.Quantity))
	}

	return &OrderDetail{
		Order:        order,
		Items:        items,
		Summary:      pricing.Summarize(lines, c.settings.Get(ctx)),
		ChargedTotal: order.TotalAmount.StringFixed(2),
	}, nil
}

// DecrementStock applies a standalone stock decrement.
func (c *Coordinator) DecrementStock(ctx context.Context, productID int64, color, size string, delta int) (int, error) {
	return c.ledger.Decrement(ctx, productID, color, size, delta)
}

// persist prices the cart and writes the order inside one bounded transaction.
func (c *Coordinator) persist(ctx context.Context, op string, customerID int64, items []pricing.Item, status models.OrderStatus, token *string) (*models.Order, *pricing.Priced, []inventory.Adjustment, error) {
	if err := pricing.Validate(items); err != nil {
		return nil, nil, nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	// Resolved before BeginTx so the unit of work holds a single connection.
	st := c.engine.Settings(txCtx)

	var (
		order  *models.Order
		priced *pricing.Priced
		adjs   []inventory.Adjustment
	)
	err := c.store.WithTx(txCtx, func(tx *store.Tx) error {
		p, err := c.engine.PriceWithSettings(txCtx, tx, st, customerID, items)
		if err != nil {
			return err
		}

		o := &models.Order{
			CustomerID:   customerID,
			Status:       status,
			TotalAmount:  p.Summary.GrandTotal,
			PaymentToken: token,
		}
		if err := tx.InsertOrder(txCtx, o); err != nil {
			return err
		}

		for _, item := range p.Items {
			line := &models.OrderItem{
				OrderID:     o.ID,
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Color:       item.Color,
				Size:        item.Size,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			}
			if err := tx.InsertOrderItem(txCtx, line); err != nil {
				return err
			}
		}

		applied := make([]inventory.Adjustment, 0, len(p.Items))
		for _, item := range p.Items {
			key := models.VariantKey{ProductID: item.ProductID, Color: item.Color, Size: item.Size}
			adj, err := c.ledger.DecrementTx(txCtx, tx, key, item.Quantity)
			if err != nil {
				return err
			}
			applied = append(applied, adj)
		}

		order, priced, adjs = o, p, applied
		return nil
	})
	if err != nil {
		return nil, nil, nil, c.classify(op, err)
	}
	return order, priced, adjs, nil
}

// classify passes cart and duplicate-token errors through and turns every
// other failure into a retryable TxError.
func (c *Coordinator) classify(op string, err error) error {
	switch {
	case errors.Is(err, pricing.ErrInvalidItem),
		errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, pricing.ErrVariantNotFound),
		store.IsUniqueViolation(err):
		return err
	}
	c.log.Warn("checkout transaction rolled back", "op", op, "error", err)
	return &TxError{Op: op, Err: err}
}

// replay answers a resubmitted payment token with the order it produced. The
// token must belong to the same customer.
func (c *Coordinator) replay(ctx context.Context, customerID int64, order *models.Order) (*OrderResult, error) {
	if order.CustomerID != customerID {
		c.log.Warn("payment token reused by another customer", "order_id", order.ID, "customer_id", customerID)
		return nil, fmt.Errorf("%w: order %d", ErrPaymentTokenConflict, order.ID)
	}
	detail, err := c.GetOrderDetail(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	c.log.Info("finalize replayed", "order_id", order.ID)
	return &OrderResult{Order: order, Summary: detail.Summary, ChargedTotal: detail.ChargedTotal, Replayed: true}, nil
}

func (c *Coordinator) afterCommit(ctx context.Context, eventType string, order *models.Order, priced *pricing.Priced, adjs []inventory.Adjustment) {
	c.publish(eventType, OrderEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		Pricing:    priced,
	})
	c.ledger.NotifyLow(ctx, adjs...)
	c.notify(ctx, order)
}

func (c *Coordinator) publish(eventType string, payload any) {
	if c.publisher != nil {
		c.publisher.Publish(eventType, payload)
	}
}

func (c *Coordinator) notify(ctx context.Context, order *models.Order) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyOrder(ctx, order); err != nil {
		c.log.Warn("queue order notification failed", "order_id", order.ID, "error", err)
	}
}
