package worker

import (
	"context"
	"fmt"

	"github.com/PortNumber53/storefront/backend/internal/inventory"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

// Message is an outbound notification.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Mailer delivers notifications. Resolving a customer id to an address is
// the mailer's concern.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes notifications to the log instead of sending them.
type LogMailer struct {
	Log *logger.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	m.Log.Info("notification", "recipient", msg.Recipient, "subject", msg.Subject, "body", msg.Body)
	return nil
}

// OperatorRecipient addresses low-stock alerts.
const OperatorRecipient = "operators"

// Notifications enqueues notification jobs. It satisfies the checkout
// notifier and the inventory alerter.
type Notifications struct {
	w *Worker
}

func NewNotifications(w *Worker) *Notifications {
	return &Notifications{w: w}
}

// NotifyOrder queues a customer notification for the order's current state.
func (n *Notifications) NotifyOrder(ctx context.Context, order *models.Order) error {
	return n.w.Enqueue(ctx, &models.Job{
		JobType: models.JobTypeOrderNotification,
		Payload: models.JSONB{
			"order_id":    order.ID,
			"customer_id": order.CustomerID,
			"status":      string(order.Status),
			"total":       order.TotalAmount.StringFixed(2),
		},
	})
}

// AlertLowStock queues an operator alert.
func (n *Notifications) AlertLowStock(ctx context.Context, low inventory.LowStock) error {
	return n.w.Enqueue(ctx, &models.Job{
		JobType: models.JobTypeLowStockAlert,
		Payload: models.JSONB{
			"product_id": low.ProductID,
			"color":      low.Color,
			"size":       low.Size,
			"quantity":   low.Quantity,
			"threshold":  low.Threshold,
		},
	})
}

// RegisterNotificationJobs binds the notification job types to mailer.
func RegisterNotificationJobs(w *Worker, mailer Mailer) {
	w.RegisterHandler(models.JobTypeOrderNotification, orderNotificationHandler(mailer))
	w.RegisterHandler(models.JobTypeLowStockAlert, lowStockAlertHandler(mailer))
}

func orderNotificationHandler(mailer Mailer) Handler {
	return func(ctx context.Context, job *models.Job) error {
		orderID, ok := job.Payload.Int64("order_id")
		if !ok {
			return fmt.Errorf("missing order_id in payload")
		}
		customerID, ok := job.Payload.Int64("customer_id")
		if !ok {
			return fmt.Errorf("missing customer_id in payload")
		}
		status, _ := job.Payload["status"].(string)
		total, _ := job.Payload["total"].(string)

		return mailer.Send(ctx, Message{
			Recipient: fmt.Sprintf("customer:%d", customerID),
			Subject:   fmt.Sprintf("Order #%d is %s", orderID, status),
			Body:      fmt.Sprintf("Your order #%d is now %s. Total: %s.", orderID, status, total),
		})
	}
}

func lowStockAlertHandler(mailer Mailer) Handler {
	return func(ctx context.Context, job *models.Job) error {
		productID, ok := job.Payload.Int64("product_id")
		if !ok {
			return fmt.Errorf("missing product_id in payload")
		}
		quantity, _ := job.Payload.Int64("quantity")
		color, _ := job.Payload["color"].(string)
		size, _ := job.Payload["size"].(string)

		return mailer.Send(ctx, Message{
			Recipient: OperatorRecipient,
			Subject:   fmt.Sprintf("Low stock: product %d %s/%s", productID, color, size),
			Body:      fmt.Sprintf("Product %d (%s/%s) is down to %d units.", productID, color, size, quantity),
		})
	}
}
