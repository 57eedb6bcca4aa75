package models

import "time"

type TicketState string

const (
	TicketPending  TicketState = "pending"
	TicketUsed     TicketState = "used"
	TicketExpired  TicketState = "expired"
	TicketNotFound TicketState = "not_found"
)

// Ticket is the short-lived view over a member's durable credential shown on
// the member display. Code is the credential itself so any scanner resolves it.
type Ticket struct {
	MemberID      int64      `json:"-" bson:"member_id"`
	Code          string     `json:"code" bson:"code"`
	IssuedAt      time.Time  `json:"issued_at" bson:"issued_at"`
	ExpiresAt     time.Time  `json:"expires_at" bson:"expires_at"`
	UsedAt        *time.Time `json:"used_at,omitempty" bson:"used_at,omitempty"`
	VisitID       *int64     `json:"visit_id,omitempty" bson:"visit_id,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty" bson:"cooldown_until,omitempty"`
	// PurgeAt drives the Mongo TTL index: the later of expiry and cooldown end.
	PurgeAt time.Time `json:"-" bson:"purge_at"`
}

// State derives the display state of the ticket at now.
func (t *Ticket) State(now time.Time) TicketState {
	switch {
	case t == nil:
		return TicketNotFound
	case t.UsedAt != nil && t.CoolingDown(now):
		return TicketUsed
	case t.UsedAt != nil:
		// Cooldown over: the used marker has been acknowledged by time.
		return TicketExpired
	case !now.Before(t.ExpiresAt):
		return TicketExpired
	default:
		return TicketPending
	}
}

func (t *Ticket) CoolingDown(now time.Time) bool {
	return t.CooldownUntil != nil && now.Before(*t.CooldownUntil)
}
