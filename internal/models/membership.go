package models

import "time"

// MembershipPlan is a subscription tier granting a checkout discount.
type MembershipPlan string

const (
	PlanMonthly MembershipPlan = "monthly"
	PlanYearly  MembershipPlan = "yearly"
)

// Valid reports whether the plan is one of the known tiers.
func (p MembershipPlan) Valid() bool {
	return p == PlanMonthly || p == PlanYearly
}

// MembershipStatus is the stored lifecycle state of a membership row.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipCancelled MembershipStatus = "cancelled"
)

// Membership belongs to exactly one customer. A row stops applying either
// when cancelled or when its end date passes; there is no expiry sweep.
type Membership struct {
	ID         int64            `db:"id" json:"id"`
	CustomerID int64            `db:"customer_id" json:"customer_id"`
	Plan       MembershipPlan   `db:"plan" json:"plan"`
	Status     MembershipStatus `db:"status" json:"status"`
	StartAt    time.Time        `db:"start_at" json:"start_at"`
	EndAt      time.Time        `db:"end_at" json:"end_at"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// ValidAt reports whether the membership grants its plan at the given instant.
func (m Membership) ValidAt(asOf time.Time) bool {
	return m.Status == MembershipActive && !asOf.Before(m.StartAt) && !asOf.After(m.EndAt)
}
