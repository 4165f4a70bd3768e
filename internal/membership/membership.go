// Package membership resolves subscription plans and their checkout discounts.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PortNumber53/storefront/backend/internal/events"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

// ErrInvalidPlan is returned when subscribing to an unknown plan.
var ErrInvalidPlan = errors.New("membership: invalid plan")

// Discounts maps plans to their checkout discount percentage.
type Discounts struct {
	monthly decimal.Decimal
	yearly  decimal.Decimal
}

// NewDiscounts resolves the configured percentages. Yearly is never lower
// than monthly, and neither is negative.
func NewDiscounts(monthly, yearly float64) Discounts {
	m := decimal.NewFromFloat(monthly)
	y := decimal.NewFromFloat(yearly)
	if m.IsNegative() {
		m = decimal.Zero
	}
	if y.LessThan(m) {
		y = m
	}
	return Discounts{monthly: m, yearly: y}
}

// PercentForPlan returns the plan's discount, 0 for an empty or unknown plan.
func (d Discounts) PercentForPlan(plan models.MembershipPlan) decimal.Decimal {
	switch plan {
	case models.PlanMonthly:
		return d.monthly
	case models.PlanYearly:
		return d.yearly
	default:
		return decimal.Zero
	}
}

// Repository is the membership persistence used by the service.
type Repository interface {
	ActiveMembership(ctx context.Context, customerID int64, asOf time.Time) (*models.Membership, error)
	ReplaceActiveMembership(ctx context.Context, m *models.Membership) error
	CancelMemberships(ctx context.Context, customerID int64) (int64, error)
}

// Publisher receives membership lifecycle events.
type Publisher interface {
	Publish(eventType string, payload any) events.Event
}

// Service resolves active plans and manages the subscribe/cancel lifecycle.
type Service struct {
	repo      Repository
	discounts Discounts
	publisher Publisher
	log       *logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, discounts Discounts, publisher Publisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		discounts: discounts,
		publisher: publisher,
		log:       log.With("component", "MembershipService"),
		now:       time.Now,
	}
}

// Discounts exposes the resolved plan percentages.
func (s *Service) Discounts() Discounts {
	return s.discounts
}

// ActivePlan returns the customer's plan valid at asOf. ok is false when the
// customer has no active, in-window membership.
func (s *Service) ActivePlan(ctx context.Context, customerID int64, asOf time.Time) (models.MembershipPlan, bool, error) {
	m, err := s.repo.ActiveMembership(ctx, customerID, asOf)
	if err != nil {
		return "", false, err
	}
	return PlanOf(m, asOf)
}

// PlanOf returns the plan carried by an active membership row, if any.
func PlanOf(m *models.Membership, asOf time.Time) (models.MembershipPlan, bool, error) {
	if m == nil || !m.ValidAt(asOf) {
		return "", false, nil
	}
	return m.Plan, true, nil
}

// Subscribe makes plan the customer's only active membership, starting now.
func (s *Service) Subscribe(ctx context.Context, customerID int64, plan models.MembershipPlan) (*models.Membership, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	if customerID <= 0 {
		return nil, fmt.Errorf("membership: customer id must be positive")
	}

	start := s.now().UTC()
	m := &models.Membership{
		CustomerID: customerID,
		Plan:       plan,
		StartAt:    start,
		EndAt:      PeriodEnd(plan, start),
	}
	if err := s.repo.ReplaceActiveMembership(ctx, m); err != nil {
		return nil, err
	}

	s.log.Info("membership subscribed", "customer_id", customerID, "plan", plan, "end_at", m.EndAt)
	if s.publisher != nil {
		s.publisher.Publish(events.TypeMembershipSubscribed, m)
	}
	return m, nil
}

// Cancel cancels every active membership of the customer. It reports whether
// anything was cancelled.
func (s *Service) Cancel(ctx context.Context, customerID int64) (bool, error) {
	n, err := s.repo.CancelMemberships(ctx, customerID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	s.log.Info("membership cancelled", "customer_id", customerID)
	if s.publisher != nil {
		s.publisher.Publish(events.TypeMembershipCancelled, map[string]any{"customer_id": customerID})
	}
	return true, nil
}

// PeriodEnd returns when a plan bought at start lapses.
func PeriodEnd(plan models.MembershipPlan, start time.Time) time.Time {
	if plan == models.PlanYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
