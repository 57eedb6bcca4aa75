package service

import (
	"context"
	"errors"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	"github.com/avvvet/gym-services/internal/comm"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrVisitNotFound  = errors.New("visit not found")
	ErrForbidden      = errors.New("visit belongs to another member")
)

// Clock returns the current time. Components take one so tests can move time.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

// Lookups return nil, nil for a missing row; errors are infrastructure failures.

type MemberStore interface {
	GetByID(ctx context.Context, id int64) (*models.Member, error)
	GetByCredential(ctx context.Context, credential string) (*models.Member, error)
	AssignCredential(ctx context.Context, id int64, credential string) (string, error)
}

type MembershipStore interface {
	ListActive(ctx context.Context, memberID int64) ([]*models.Membership, error)
	MarkExpired(ctx context.Context, id int64) error
}

type VisitStore interface {
	GetByID(ctx context.Context, id int64) (*models.Visit, error)
	GetActiveByMember(ctx context.Context, memberID int64) (*models.Visit, error)
	LatestByCredential(ctx context.Context, credential string) (*models.Visit, error)
	Create(ctx context.Context, v *models.Visit) (*models.Visit, error)
	Close(ctx context.Context, id int64, at time.Time) (bool, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.Visit, error)
	CountActive(ctx context.Context) (int, error)
}

type TicketStore interface {
	GetByMember(ctx context.Context, memberID int64) (*models.Ticket, error)
	GetByCode(ctx context.Context, code string) (*models.Ticket, error)
	Save(ctx context.Context, t *models.Ticket) error
	MarkUsed(ctx context.Context, code string, visitID int64, usedAt, cooldownUntil time.Time) (*models.Ticket, error)
}

// Notifier delivers visit notices and ticket status changes. Delivery is
// best effort; callers log failures and carry on.
type Notifier interface {
	NotifyMember(ctx context.Context, kind string, notice comm.VisitNotice) error
	PublishTicketStatus(ctx context.Context, status comm.TicketStatus) error
}
