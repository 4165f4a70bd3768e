package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/PortNumber53/storefront/backend/internal/checkout"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
	"github.com/PortNumber53/storefront/backend/internal/pricing"
)

// CheckoutService is the order pipeline exposed over HTTP.
type CheckoutService interface {
	Quote(ctx context.Context, customerID int64, items []pricing.Item) (*pricing.Priced, error)
	CreatePendingOrder(ctx context.Context, customerID int64, items []pricing.Item) (*checkout.OrderResult, error)
	Finalize(ctx context.Context, customerID int64, items []pricing.Item, paymentToken string) (*checkout.OrderResult, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) error
	GetOrderDetail(ctx context.Context, orderID int64) (*checkout.OrderDetail, error)
	DecrementStock(ctx context.Context, productID int64, color, size string, delta int) (int, error)
}

type cartPayload struct {
	CustomerID   int64          `json:"customer_id"`
	Items        []pricing.Item `json:"items"`
	PaymentToken string         `json:"payment_token,omitempty"`
}

// Quote prices a cart without persisting anything.
func Quote(svc CheckoutService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cartPayload
		if !decodeJSON(w, r, &payload) {
			return
		}
		priced, err := svc.Quote(r.Context(), payload.CustomerID, payload.Items)
		if err != nil {
			writeError(w, log, "Quote", err)
			return
		}
		writeJSON(w, log, http.StatusOK, priced)
	}
}

// CreateOrder persists an unpaid order.
func CreateOrder(svc CheckoutService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cartPayload
		if !decodeJSON(w, r, &payload) {
			return
		}
		res, err := svc.CreatePendingOrder(r.Context(), payload.CustomerID, payload.Items)
		if err != nil {
			writeError(w, log, "CreateOrder", err)
			return
		}
		writeJSON(w, log, http.StatusCreated, res)
	}
}

// Finalize persists a paid order for a payment confirmation. Replays of a
// known token answer 200 with the existing order.
func Finalize(svc CheckoutService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cartPayload
		if !decodeJSON(w, r, &payload) {
			return
		}
		res, err := svc.Finalize(r.Context(), payload.CustomerID, payload.Items, payload.PaymentToken)
		if err != nil {
			writeError(w, log, "Finalize", err)
			return
		}
		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		writeJSON(w, log, status, res)
	}
}

// GetOrder returns an order with its line items and summary.
func GetOrder(svc CheckoutService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		detail, err := svc.GetOrderDetail(r.Context(), id)
		if err != nil {
			writeError(w, log, "GetOrder", err)
			return
		}
		writeJSON(w, log, http.StatusOK, detail)
	}
}

// UpdateOrderStatus applies an admin status transition.
func UpdateOrderStatus(svc CheckoutService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		var payload struct {
			Status string `json:"status"`
		}
		if !decodeJSON(w, r, &payload) {
			return
		}
		status := models.OrderStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
		if err := svc.UpdateOrderStatus(r.Context(), id, status); err != nil {
			writeError(w, log, "UpdateOrderStatus", err)
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]any{"id": id, "status": status})
	}
}
