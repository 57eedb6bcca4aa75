package store

import (
	"context"
	"fmt"

	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type MembershipStore struct {
	db *pgxpool.Pool
}

func NewMembershipStore(db *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{db: db}
}

// ListActive returns the member's rows whose stored status is active, latest
// end date first. Rows may already be past their end date.
func (s *MembershipStore) ListActive(ctx context.Context, memberID int64) (list []*models.Membership, err error) {
	ctx, span := startSpan(ctx, "memberships.list_active", attribute.Int64("member.id", memberID))
	defer func() { endSpan(span, err) }()

	rows, err := s.db.Query(ctx, `
		SELECT ms.id, ms.member_id, ms.plan_id, ms.start_date, ms.end_date, ms.status,
		       ms.created_at, ms.updated_at, p.id, p.name, p.duration_days
		FROM memberships ms
		JOIN plans p ON p.id = ms.plan_id
		WHERE ms.member_id = $1 AND ms.status = 'active'
		ORDER BY ms.end_date DESC, ms.id DESC
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships for member %d: %w", memberID, err)
	}
	defer rows.Close()

	for rows.Next() {
		ms := &models.Membership{}
		if err := rows.Scan(
			&ms.ID,
			&ms.MemberID,
			&ms.PlanID,
			&ms.StartDate,
			&ms.EndDate,
			&ms.Status,
			&ms.CreatedAt,
			&ms.UpdatedAt,
			&ms.Plan.ID,
			&ms.Plan.Name,
			&ms.Plan.DurationDays,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		list = append(list, ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	span.SetAttributes(attribute.Int("memberships.count", len(list)))
	return list, nil
}

// MarkExpired flips a lapsed row to expired. Rows no longer active are left alone.
func (s *MembershipStore) MarkExpired(ctx context.Context, id int64) (err error) {
	ctx, span := startSpan(ctx, "memberships.mark_expired", attribute.Int64("membership.id", id))
	defer func() { endSpan(span, err) }()

	_, err = s.db.Exec(ctx, `
		UPDATE memberships
		SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to expire membership %d: %w", id, err)
	}
	return nil
}
