package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/membership"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

// MembershipService manages customer subscriptions.
type MembershipService interface {
	Subscribe(ctx context.Context, customerID int64, plan models.MembershipPlan) (*models.Membership, error)
	Cancel(ctx context.Context, customerID int64) (bool, error)
	ActivePlan(ctx context.Context, customerID int64, asOf time.Time) (models.MembershipPlan, bool, error)
	Discounts() membership.Discounts
}

// Subscribe makes the requested plan the customer's active membership.
func Subscribe(svc MembershipService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			CustomerID int64                 `json:"customer_id"`
			Plan       models.MembershipPlan `json:"plan"`
		}
		if !decodeJSON(w, r, &payload) {
			return
		}
		if payload.CustomerID <= 0 {
			http.Error(w, "customer_id is required", http.StatusBadRequest)
			return
		}
		m, err := svc.Subscribe(r.Context(), payload.CustomerID, payload.Plan)
		if err != nil {
			writeError(w, log, "Subscribe", err)
			return
		}
		writeJSON(w, log, http.StatusCreated, m)
	}
}

// CancelMembership cancels the customer's active membership.
func CancelMembership(svc MembershipService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := int64Param(w, r, "customerID")
		if !ok {
			return
		}
		cancelled, err := svc.Cancel(r.Context(), customerID)
		if err != nil {
			writeError(w, log, "CancelMembership", err)
			return
		}
		if !cancelled {
			http.Error(w, "no active membership", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ActiveMembership reports the customer's current plan and discount.
func ActiveMembership(svc MembershipService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := int64Param(w, r, "customerID")
		if !ok {
			return
		}
		plan, active, err := svc.ActivePlan(r.Context(), customerID, time.Now())
		if err != nil {
			writeError(w, log, "ActiveMembership", err)
			return
		}

		resp := map[string]any{
			"customer_id":      customerID,
			"active":           active,
			"plan":             nil,
			"discount_percent": svc.Discounts().PercentForPlan(plan).String(),
		}
		if active {
			resp["plan"] = plan
		}
		writeJSON(w, log, http.StatusOK, resp)
	}
}
