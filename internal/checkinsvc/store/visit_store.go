package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type VisitStore struct {
	db *pgxpool.Pool
}

func NewVisitStore(db *pgxpool.Pool) *VisitStore {
	return &VisitStore{db: db}
}

const visitColumns = `id, member_id, check_in_time, check_out_time, credential, locker_number, branch, status, created_at, updated_at`

func scanVisit(row pgx.Row) (*models.Visit, error) {
	v := &models.Visit{}
	err := row.Scan(
		&v.ID,
		&v.MemberID,
		&v.CheckInTime,
		&v.CheckOutTime,
		&v.Credential,
		&v.LockerNumber,
		&v.Branch,
		&v.Status,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *VisitStore) queryOne(ctx context.Context, query string, args ...any) (*models.Visit, error) {
	v, err := scanVisit(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// GetByID returns nil, nil when the visit does not exist.
func (s *VisitStore) GetByID(ctx context.Context, id int64) (v *models.Visit, err error) {
	ctx, span := startSpan(ctx, "visits.get_by_id", attribute.Int64("visit.id", id))
	defer func() { endSpan(span, err) }()

	v, err = s.queryOne(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get visit %d: %w", id, err)
	}
	return v, nil
}

// GetActiveByMember returns the member's open visit, if any. Should more than
// one be open the most recent wins.
func (s *VisitStore) GetActiveByMember(ctx context.Context, memberID int64) (v *models.Visit, err error) {
	ctx, span := startSpan(ctx, "visits.get_active_by_member", attribute.Int64("member.id", memberID))
	defer func() { endSpan(span, err) }()

	v, err = s.queryOne(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE member_id = $1 AND status = 'active'
		ORDER BY check_in_time DESC
		LIMIT 1
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active visit for member %d: %w", memberID, err)
	}
	return v, nil
}

// LatestByCredential returns the most recent visit opened with credential.
func (s *VisitStore) LatestByCredential(ctx context.Context, credential string) (v *models.Visit, err error) {
	ctx, span := startSpan(ctx, "visits.latest_by_credential")
	defer func() { endSpan(span, err) }()

	v, err = s.queryOne(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE credential = $1
		ORDER BY check_in_time DESC
		LIMIT 1
	`, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest visit by credential: %w", err)
	}
	return v, nil
}

// Create inserts an active visit and returns the stored row.
func (s *VisitStore) Create(ctx context.Context, visit *models.Visit) (v *models.Visit, err error) {
	ctx, span := startSpan(ctx, "visits.create", attribute.Int64("member.id", visit.MemberID))
	defer func() { endSpan(span, err) }()

	v, err = scanVisit(s.db.QueryRow(ctx, `
		INSERT INTO visits (member_id, check_in_time, credential, locker_number, branch, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+visitColumns,
		visit.MemberID, visit.CheckInTime, visit.Credential, visit.LockerNumber, visit.Branch, visit.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create visit for member %d: %w", visit.MemberID, err)
	}
	return v, nil
}

// Close completes an active visit at the given time. It reports false, and
// writes nothing, when the visit was already completed or does not exist.
func (s *VisitStore) Close(ctx context.Context, id int64, at time.Time) (closed bool, err error) {
	ctx, span := startSpan(ctx, "visits.close", attribute.Int64("visit.id", id))
	defer func() { endSpan(span, err) }()

	tag, err := s.db.Exec(ctx, `
		UPDATE visits
		SET status = 'completed', check_out_time = $2, updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to close visit %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStale returns active visits that checked in before cutoff.
func (s *VisitStore) ListStale(ctx context.Context, cutoff time.Time) (list []*models.Visit, err error) {
	ctx, span := startSpan(ctx, "visits.list_stale")
	defer func() { endSpan(span, err) }()

	rows, err := s.db.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE status = 'active' AND check_in_time < $1
		ORDER BY check_in_time ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale visits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	span.SetAttributes(attribute.Int("visits.stale", len(list)))
	return list, nil
}

func (s *VisitStore) CountActive(ctx context.Context) (count int, err error) {
	ctx, span := startSpan(ctx, "visits.count_active")
	defer func() { endSpan(span, err) }()

	if err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM visits WHERE status = 'active'`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active visits: %w", err)
	}
	return count, nil
}
