package models

import "time"

type VisitStatus string

const (
	VisitActive    VisitStatus = "active"
	VisitCompleted VisitStatus = "completed"
)

// Visit is one open/close cycle of gym presence.
type Visit struct {
	ID           int64       `json:"id"`
	MemberID     int64       `json:"member_id"`
	CheckInTime  time.Time   `json:"check_in_time"`
	CheckOutTime *time.Time  `json:"check_out_time,omitempty"`
	Credential   string      `json:"-"`
	LockerNumber *int        `json:"locker_number,omitempty"`
	Branch       string      `json:"branch"`
	Status       VisitStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (v *Visit) IsActive() bool {
	return v != nil && v.Status == VisitActive
}
