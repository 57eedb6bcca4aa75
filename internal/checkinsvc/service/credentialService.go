package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/config"
	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	"github.com/avvvet/gym-services/internal/comm"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CredentialService maps durable QR credentials to members and issues the
// short-lived tickets shown on member displays.
type CredentialService struct {
	members  MemberStore
	tickets  TicketStore
	notifier Notifier
	cfg      config.Config
	now      Clock
	newCode  func() string
}

func NewCredentialService(members MemberStore, tickets TicketStore, notifier Notifier, cfg config.Config, now Clock) *CredentialService {
	if now == nil {
		now = SystemClock
	}
	return &CredentialService{
		members:  members,
		tickets:  tickets,
		notifier: notifier,
		cfg:      cfg,
		now:      now,
		newCode:  uuid.NewString,
	}
}

// ExtractCode pulls the credential out of a scanned payload. Scanners may
// deliver a whole URL or path; the credential is its trailing segment.
func ExtractCode(raw string) string {
	code := strings.TrimSpace(raw)
	if i := strings.IndexAny(code, "?#"); i >= 0 {
		code = code[:i]
	}
	code = strings.TrimRight(code, "/")
	if i := strings.LastIndex(code, "/"); i >= 0 {
		code = code[i+1:]
	}
	if unescaped, err := url.PathUnescape(code); err == nil {
		code = unescaped
	}
	return code
}

// EnsureCredential returns the member's durable credential, creating it on
// first use. An existing credential is never replaced.
func (s *CredentialService) EnsureCredential(ctx context.Context, memberID int64) (string, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", ErrMemberNotFound
	}
	if member.QRCredential != "" {
		return member.QRCredential, nil
	}

	stored, err := s.members.AssignCredential(ctx, memberID, s.newCode())
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", ErrMemberNotFound
	}

	log.Infof("issued QR credential for member %d", memberID)
	return stored, nil
}

// ResolveCredential looks the credential up by exact match. ok is false when
// no member carries it.
func (s *CredentialService) ResolveCredential(ctx context.Context, credential string) (member *models.Member, ok bool, err error) {
	if credential == "" {
		return nil, false, nil
	}
	member, err = s.members.GetByCredential(ctx, credential)
	if err != nil {
		return nil, false, err
	}
	return member, member != nil, nil
}

// IssueTicket returns the member's display ticket. A ticket that is still
// comfortably valid, or one cooling down after a check-in, is returned as
// is; otherwise a fresh ticket replaces it.
func (s *CredentialService) IssueTicket(ctx context.Context, memberID int64) (*models.Ticket, error) {
	code, err := s.EnsureCredential(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	current, err := s.tickets.GetByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	if current != nil && current.Code == code {
		if current.UsedAt != nil && current.CoolingDown(now) {
			return current, nil
		}
		if current.UsedAt == nil && current.ExpiresAt.Sub(now) > s.cfg.TicketRenewWindow {
			return current, nil
		}
	}

	ticket := &models.Ticket{
		MemberID:  memberID,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.TicketTTL),
	}
	if err := s.tickets.Save(ctx, ticket); err != nil {
		return nil, err
	}

	log.Debugf("issued ticket for member %d expiring at %s", memberID, ticket.ExpiresAt.Format("15:04:05"))
	return ticket, nil
}

// TicketStatus reports the display state of the ticket behind code.
func (s *CredentialService) TicketStatus(ctx context.Context, code string) (comm.TicketStatus, error) {
	code = ExtractCode(code)
	status := comm.TicketStatus{Code: code, State: string(models.TicketNotFound)}
	if code == "" {
		return status, nil
	}

	ticket, err := s.tickets.GetByCode(ctx, code)
	if err != nil {
		return status, err
	}
	return ticketStatus(ticket, code, s.now()), nil
}

// MarkTicketUsed flags the ticket behind code as used by visitID and starts
// the cooldown. Scans of a credential that has no ticket return nil.
func (s *CredentialService) MarkTicketUsed(ctx context.Context, code string, visitID int64) (*models.Ticket, error) {
	current, err := s.tickets.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	now := s.now()
	// Re-approval of the same visit keeps the original cooldown.
	if current.UsedAt != nil && current.VisitID != nil && *current.VisitID == visitID && current.CoolingDown(now) {
		return current, nil
	}

	ticket, err := s.tickets.MarkUsed(ctx, code, visitID, now, now.Add(s.cfg.Cooldown))
	if err != nil {
		return nil, fmt.Errorf("mark ticket used: %w", err)
	}
	if ticket == nil {
		return nil, nil
	}

	if s.notifier != nil {
		if err := s.notifier.PublishTicketStatus(ctx, ticketStatus(ticket, code, now)); err != nil {
			log.Warnf("publish ticket status for visit %d: %v", visitID, err)
		}
	}
	return ticket, nil
}

func ticketStatus(t *models.Ticket, code string, now time.Time) comm.TicketStatus {
	status := comm.TicketStatus{Code: code, State: string(t.State(now))}
	if t == nil {
		return status
	}
	expiresAt := t.ExpiresAt
	status.ExpiresAt = &expiresAt
	status.VisitID = t.VisitID
	if t.CoolingDown(now) {
		status.CooldownUntil = t.CooldownUntil
	}
	return status
}
