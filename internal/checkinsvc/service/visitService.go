package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/config"
	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	"github.com/avvvet/gym-services/internal/comm"
	log "github.com/sirupsen/logrus"
)

// Reason explains a refused check-in.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonSuspended    Reason = "suspended"
	ReasonNoMembership Reason = "no_membership"
	ReasonCooldown     Reason = "cooldown"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:     "credential not found",
	ReasonSuspended:    "member suspended",
	ReasonNoMembership: "no eligible membership",
	ReasonCooldown:     "check-in cooldown in effect",
}

func (r Reason) Message() string {
	return reasonMessages[r]
}

// Validation is the outcome of checking a scanned credential. It is a
// result, not an error: refusals carry Success=false and a Reason.
type Validation struct {
	Success       bool                  `json:"success"`
	Reason        Reason                `json:"reason,omitempty"`
	Message       string                `json:"message"`
	Member        *models.MemberSummary `json:"member,omitempty"`
	Membership    *MembershipSummary    `json:"membership,omitempty"`
	ActiveVisit   *models.Visit         `json:"active_visit,omitempty"`
	CooldownUntil *time.Time            `json:"cooldown_until,omitempty"`
}

func (v *Validation) refuse(r Reason) *Validation {
	v.Success = false
	v.Reason = r
	v.Message = r.Message()
	return v
}

// CheckIn is the outcome of an approval.
type CheckIn struct {
	Validation
	Visit *models.Visit `json:"visit,omitempty"`
	// Created is false when an already open visit was returned.
	Created bool `json:"created"`
}

type ApproveRequest struct {
	Code         string
	LockerNumber *int
	// Branch is the operator's assigned branch.
	Branch string
}

// VisitService owns the visit lifecycle: (none) -> active -> completed. Every
// entry path, including the reaper, goes through open and close so the
// one-active-visit rule is checked in one place.
type VisitService struct {
	visits      VisitStore
	credentials *CredentialService
	eligibility *EligibilityService
	notifier    Notifier
	cfg         config.Config
	now         Clock
}

func NewVisitService(visits VisitStore, credentials *CredentialService,
	eligibility *EligibilityService, notifier Notifier, cfg config.Config, now Clock) *VisitService {
	if now == nil {
		now = SystemClock
	}
	return &VisitService{
		visits:      visits,
		credentials: credentials,
		eligibility: eligibility,
		notifier:    notifier,
		cfg:         cfg,
		now:         now,
	}
}

// Validate checks a scanned payload without touching any visit. It is safe to
// cancel at any point.
func (s *VisitService) Validate(ctx context.Context, raw string) (*Validation, error) {
	v, _, err := s.evaluate(ctx, ExtractCode(raw))
	return v, err
}

func (s *VisitService) evaluate(ctx context.Context, code string) (*Validation, *models.Member, error) {
	v := &Validation{}

	member, ok, err := s.credentials.ResolveCredential(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return v.refuse(ReasonNotFound), nil, nil
	}
	v.Member = member.Summary()

	elig, err := s.eligibility.CurrentEligibility(ctx, member.ID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	v.Membership = elig.Summary(now)

	if !member.Active {
		return v.refuse(ReasonSuspended), member, nil
	}
	if elig == nil {
		return v.refuse(ReasonNoMembership), member, nil
	}

	active, err := s.visits.GetActiveByMember(ctx, member.ID)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		v.Success = true
		v.ActiveVisit = active
		v.Message = "already checked in"
		return v, member, nil
	}

	last, err := s.visits.LatestByCredential(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if last != nil {
		until := last.CheckInTime.Add(s.cfg.Cooldown)
		if now.Before(until) {
			v.CooldownUntil = &until
			return v.refuse(ReasonCooldown), member, nil
		}
	}

	v.Success = true
	v.Message = "eligible for check-in"
	return v, member, nil
}

// Approve re-validates the credential and opens a visit for the member. When a
// visit is already open it is returned unchanged.
func (s *VisitService) Approve(ctx context.Context, req ApproveRequest) (*CheckIn, error) {
	code := ExtractCode(req.Code)

	v, member, err := s.evaluate(ctx, code)
	if err != nil {
		return nil, err
	}
	result := &CheckIn{Validation: *v}
	if !v.Success {
		return result, nil
	}

	branch := req.Branch
	if branch == "" {
		branch = member.HomeBranch
	}

	visit, created, err := s.open(ctx, member, code, branch, req.LockerNumber)
	if err != nil {
		return nil, err
	}
	result.Visit = visit
	result.Created = created
	result.ActiveVisit = nil
	if created {
		result.Message = "checked in"
		s.notify(ctx, comm.VisitOpenedType, visit, "Checked in", fmt.Sprintf("Welcome! You checked in at %s.", visit.Branch))
	}

	ticket, err := s.credentials.MarkTicketUsed(ctx, code, visit.ID)
	if err != nil {
		log.Errorf("marking ticket used for visit %d: %v", visit.ID, err)
	} else if ticket != nil {
		result.CooldownUntil = ticket.CooldownUntil
	}

	return result, nil
}

// ActiveVisit returns the member's open visit, or nil.
func (s *VisitService) ActiveVisit(ctx context.Context, memberID int64) (*models.Visit, error) {
	return s.visits.GetActiveByMember(ctx, memberID)
}

// Checkout completes a visit. Checking out a completed visit is a no-op that
// returns it with its original check-out time.
func (s *VisitService) Checkout(ctx context.Context, visitID int64) (*models.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	visit, _, err = s.close(ctx, visit, comm.VisitClosedType)
	return visit, err
}

// CheckoutOwn is Checkout restricted to the member's own visits.
func (s *VisitService) CheckoutOwn(ctx context.Context, memberID, visitID int64) (*models.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	if visit.MemberID != memberID {
		return nil, ErrForbidden
	}
	visit, _, err = s.close(ctx, visit, comm.VisitClosedType)
	return visit, err
}

// ForceClose completes a visit on behalf of the system rather than the member.
func (s *VisitService) ForceClose(ctx context.Context, visitID int64) (*models.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	visit, _, err = s.close(ctx, visit, comm.VisitAutoClosedType)
	return visit, err
}

func (s *VisitService) Name() string { return "visit-reaper" }

// Sweep force-closes every visit open longer than the dwell ceiling and
// reports how many it closed. A failure on one visit does not stop the rest.
func (s *VisitService) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.DwellCeiling)
	stale, err := s.visits.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	closed := 0
	var errs []error
	for _, visit := range stale {
		_, ok, err := s.close(ctx, visit, comm.VisitAutoClosedType)
		if err != nil {
			errs = append(errs, fmt.Errorf("visit %d: %w", visit.ID, err))
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

// open is the only way a visit comes into existence.
func (s *VisitService) open(ctx context.Context, member *models.Member, code, branch string, locker *int) (*models.Visit, bool, error) {
	active, err := s.visits.GetActiveByMember(ctx, member.ID)
	if err != nil {
		return nil, false, err
	}
	if active != nil {
		return active, false, nil
	}

	visit, err := s.visits.Create(ctx, &models.Visit{
		MemberID:     member.ID,
		CheckInTime:  s.now(),
		Credential:   code,
		LockerNumber: locker,
		Branch:       branch,
		Status:       models.VisitActive,
	})
	if err != nil {
		return nil, false, err
	}

	log.Infof("visit %d opened for member %d at %s", visit.ID, member.ID, branch)
	return visit, true, nil
}

// close completes visit unless somebody else already did. closedNow reports
// whether this call performed the transition.
func (s *VisitService) close(ctx context.Context, visit *models.Visit, kind string) (result *models.Visit, closedNow bool, err error) {
	if visit.Status == models.VisitCompleted {
		return visit, false, nil
	}

	at := s.now()
	closedNow, err = s.visits.Close(ctx, visit.ID, at)
	if err != nil {
		return nil, false, err
	}

	if !closedNow {
		// Lost a race with another closer; report the stored row.
		current, err := s.visits.GetByID(ctx, visit.ID)
		if err != nil {
			return nil, false, err
		}
		if current == nil {
			return nil, false, ErrVisitNotFound
		}
		return current, false, nil
	}

	closed := *visit
	closed.Status = models.VisitCompleted
	closed.CheckOutTime = &at

	if kind == comm.VisitAutoClosedType {
		log.Infof("visit %d for member %d auto-closed after %s", closed.ID, closed.MemberID, at.Sub(closed.CheckInTime).Round(time.Minute))
		s.notify(ctx, kind, &closed, "Visit closed", "Your visit was closed automatically.")
	} else {
		log.Infof("visit %d for member %d checked out", closed.ID, closed.MemberID)
		s.notify(ctx, kind, &closed, "Checked out", "See you next time!")
	}
	return &closed, true, nil
}

func (s *VisitService) notify(ctx context.Context, kind string, visit *models.Visit, title, body string) {
	if s.notifier == nil {
		return
	}
	notice := comm.VisitNotice{
		MemberID:  visit.MemberID,
		VisitID:   visit.ID,
		Branch:    visit.Branch,
		Locker:    visit.LockerNumber,
		Title:     title,
		Body:      body,
		Timestamp: s.now(),
	}
	if err := s.notifier.NotifyMember(ctx, kind, notice); err != nil {
		log.Warnf("notify member %d (%s): %v", visit.MemberID, kind, err)
	}
}
