package models

import "time"

type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipExpired   MembershipStatus = "expired"
	MembershipCancelled MembershipStatus = "cancelled"
)

// Membership is a time-boxed grant. A stored status of active is provisional:
// the row is only eligible while EndDate has not passed.
type Membership struct {
	ID        int64            `json:"id"`
	MemberID  int64            `json:"member_id"`
	PlanID    int64            `json:"plan_id"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
	Status    MembershipStatus `json:"status"`
	Plan      Plan             `json:"plan"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Lapsed reports whether the grant ended before now.
func (m *Membership) Lapsed(now time.Time) bool {
	return m.EndDate.Before(now)
}

// Plan is the catalog entry a membership was bought against.
type Plan struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DurationDays int    `json:"duration_days"`
}
