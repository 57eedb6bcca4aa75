package service

import (
	"context"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	log "github.com/sirupsen/logrus"
)

// Eligibility is the effective grant that lets a member in.
type Eligibility struct {
	Membership *models.Membership `json:"membership"`
	Plan       models.Plan        `json:"plan"`
}

// MembershipSummary is the operator-facing view of a membership.
type MembershipSummary struct {
	ID        int64                   `json:"id"`
	PlanName  string                  `json:"plan_name"`
	StartDate time.Time               `json:"start_date"`
	EndDate   time.Time               `json:"end_date"`
	Status    models.MembershipStatus `json:"status"`
	DaysLeft  int                     `json:"days_left"`
}

func (e *Eligibility) Summary(now time.Time) *MembershipSummary {
	if e == nil || e.Membership == nil {
		return nil
	}
	ms := e.Membership
	return &MembershipSummary{
		ID:        ms.ID,
		PlanName:  e.Plan.Name,
		StartDate: ms.StartDate,
		EndDate:   ms.EndDate,
		Status:    ms.Status,
		DaysLeft:  int(ms.EndDate.Sub(now).Hours() / 24),
	}
}

// EligibilityService answers whether a member currently holds access rights.
// Stored membership status is provisional: rows past their end date are
// flipped to expired when read and never count as eligible.
type EligibilityService struct {
	memberships MembershipStore
	now         Clock
}

func NewEligibilityService(memberships MembershipStore, now Clock) *EligibilityService {
	if now == nil {
		now = SystemClock
	}
	return &EligibilityService{memberships: memberships, now: now}
}

// CurrentEligibility returns the member's effective membership, or nil when
// none applies. Among several valid rows the latest end date wins.
func (s *EligibilityService) CurrentEligibility(ctx context.Context, memberID int64) (*Eligibility, error) {
	rows, err := s.memberships.ListActive(ctx, memberID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var best *models.Membership
	for _, ms := range rows {
		if ms.Lapsed(now) {
			s.expire(ctx, ms)
			continue
		}
		if ms.StartDate.After(now) {
			continue
		}
		if best == nil || ms.EndDate.After(best.EndDate) {
			best = ms
		}
	}

	if best == nil {
		return nil, nil
	}
	return &Eligibility{Membership: best, Plan: best.Plan}, nil
}

// expire writes back a lapsed row. Failures are logged; the next read retries.
func (s *EligibilityService) expire(ctx context.Context, ms *models.Membership) {
	if err := s.memberships.MarkExpired(ctx, ms.ID); err != nil {
		log.Warnf("lazy expiration of membership %d for member %d failed: %v", ms.ID, ms.MemberID, err)
		return
	}
	ms.Status = models.MembershipExpired
	log.Infof("membership %d for member %d expired on %s", ms.ID, ms.MemberID, ms.EndDate.Format(time.DateOnly))
}
