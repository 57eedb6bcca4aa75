package models

import (
	"time"
)

// Member is the identity record the check-in engine reads. Only the QR
// credential is ever written here, and only once.
type Member struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	HomeBranch   string    `json:"home_branch,omitempty"`
	Active       bool      `json:"active"` // false means suspended
	QRCredential string    `json:"-"`      // empty until first issued
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MemberSummary is what an operator sees after a scan.
type MemberSummary struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	HomeBranch string `json:"home_branch,omitempty"`
	Active     bool   `json:"active"`
}

func (m *Member) Summary() *MemberSummary {
	if m == nil {
		return nil
	}
	return &MemberSummary{
		ID:         m.ID,
		Username:   m.Username,
		Name:       m.Name,
		HomeBranch: m.HomeBranch,
		Active:     m.Active,
	}
}
