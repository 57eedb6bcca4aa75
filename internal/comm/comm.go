package comm

import (
	"encoding/json"
	"time"
)

// NATS subjects used by the check-in services.
const (
	MemberNotifyTopic   = "member.notify"
	TicketStatusTopic   = "checkin.ticket"
	VisitOpenedType     = "visit-opened"
	VisitClosedType     = "visit-closed"
	VisitAutoClosedType = "visit-auto-closed"
	TicketStatusType    = "ticket-status"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "visit-opened", "ticket-status"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

// VisitNotice is the payload delivered to a member's notification channel.
type VisitNotice struct {
	MemberID  int64     `json:"member_id"`
	VisitID   int64     `json:"visit_id"`
	Branch    string    `json:"branch"`
	Locker    *int      `json:"locker_number,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketStatus is pushed to member displays watching a ticket code.
type TicketStatus struct {
	Code          string     `json:"code"`
	State         string     `json:"state"`
	VisitID       *int64     `json:"visit_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}
