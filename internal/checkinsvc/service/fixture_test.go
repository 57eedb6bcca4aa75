package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/config"
	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	"github.com/avvvet/gym-services/internal/checkinsvc/store"
	"github.com/avvvet/gym-services/internal/testkit/checkinfakes"
	log "github.com/sirupsen/logrus"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func init() {
	log.SetLevel(log.ErrorLevel)
}

type fixture struct {
	clock       *checkinfakes.Clock
	members     *checkinfakes.MemberStore
	memberships *checkinfakes.MembershipStore
	visits      *checkinfakes.VisitStore
	tickets     *store.MemoryTicketStore
	notifier    *checkinfakes.Notifier
	cfg         config.Config

	credentials *CredentialService
	eligibility *EligibilityService
	svc         *VisitService
}

func newFixture(t interface{ Helper() }) *fixture {
	t.Helper()

	f := &fixture{
		clock:       checkinfakes.NewClock(t0),
		members:     checkinfakes.NewMemberStore(),
		memberships: checkinfakes.NewMembershipStore(),
		visits:      checkinfakes.NewVisitStore(),
		tickets:     store.NewMemoryTicketStore(),
		notifier:    &checkinfakes.Notifier{},
		cfg:         config.Default(),
	}
	f.credentials = NewCredentialService(f.members, f.tickets, f.notifier, f.cfg, f.clock.Now)
	f.eligibility = NewEligibilityService(f.memberships, f.clock.Now)
	f.svc = NewVisitService(f.visits, f.credentials, f.eligibility, f.notifier, f.cfg, f.clock.Now)
	return f
}

// addMember stores an active member with a credential and returns the
// credential.
func (f *fixture) addMember(id int64) string {
	cred := fmt.Sprintf("cred-%d", id)
	f.members.Put(models.Member{
		ID:           id,
		Username:     fmt.Sprintf("member%d", id),
		Name:         fmt.Sprintf("Member %d", id),
		HomeBranch:   "downtown",
		Active:       true,
		QRCredential: cred,
	})
	return cred
}

func (f *fixture) suspend(id int64) {
	m, _ := f.members.GetByID(context.Background(), id)
	m.Active = false
	f.members.Put(*m)
}

func (f *fixture) addMembership(id, memberID int64, start, end time.Time) {
	f.memberships.Put(models.Membership{
		ID:        id,
		MemberID:  memberID,
		PlanID:    1,
		StartDate: start,
		EndDate:   end,
		Status:    models.MembershipActive,
		Plan:      models.Plan{ID: 1, Name: "Monthly", DurationDays: 30},
	})
}

// eligibleMember adds a member holding a month-long membership.
func (f *fixture) eligibleMember(id int64) string {
	cred := f.addMember(id)
	f.addMembership(id*100, id, t0.AddDate(0, 0, -10), t0.AddDate(0, 0, 20))
	return cred
}
