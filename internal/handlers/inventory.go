package handlers

import (
	"context"
	"net/http"

	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

// StockAdmin overwrites stock levels.
type StockAdmin interface {
	SetQuantity(ctx context.Context, key models.VariantKey, quantity int) error
}

type stockPayload struct {
	ProductID int64  `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Delta     int    `json:"delta,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}

// DecrementStock lowers a variant's stock, floored at zero.
func DecrementStock(svc CheckoutService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload stockPayload
		if !decodeJSON(w, r, &payload) {
			return
		}
		qty, err := svc.DecrementStock(r.Context(), payload.ProductID, payload.Color, payload.Size, payload.Delta)
		if err != nil {
			writeError(w, log, "DecrementStock", err)
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]any{"quantity": qty})
	}
}

// SetStock overwrites a variant's stock.
func SetStock(admin StockAdmin, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload stockPayload
		if !decodeJSON(w, r, &payload) {
			return
		}
		key := models.VariantKey{ProductID: payload.ProductID, Color: payload.Color, Size: payload.Size}
		if err := admin.SetQuantity(r.Context(), key, payload.Quantity); err != nil {
			writeError(w, log, "SetStock", err)
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]any{"quantity": payload.Quantity})
	}
}
