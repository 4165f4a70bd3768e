package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/PortNumber53/storefront/backend/internal/checkout"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/membership"
	"github.com/PortNumber53/storefront/backend/internal/pricing"
	"github.com/PortNumber53/storefront/backend/internal/settings"
	"github.com/PortNumber53/storefront/backend/internal/store"
)

// retryAfterSeconds is advertised on retryable checkout failures.
const retryAfterSeconds = "1"

// writeError maps domain errors to HTTP statuses. Unexpected errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	switch {
	case checkout.IsRetryable(err):
		log.Warn(op+": retryable failure", "error", err)
		w.Header().Set("Retry-After", retryAfterSeconds)
		http.Error(w, "temporarily unable to complete checkout; retry", http.StatusServiceUnavailable)
	case errors.Is(err, pricing.ErrInvalidItem),
		errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidStatus),
		errors.Is(err, membership.ErrInvalidPlan),
		errors.Is(err, settings.ErrInvalidSettings):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pricing.ErrVariantNotFound),
		errors.Is(err, checkout.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrJobNotCancellable),
		errors.Is(err, checkout.ErrPaymentTokenConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error(op+": failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response failed", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return false
	}
	return true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
