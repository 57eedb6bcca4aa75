package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/gym-services/internal/checkinsvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type MemberStore struct {
	db *pgxpool.Pool
}

func NewMemberStore(db *pgxpool.Pool) *MemberStore {
	return &MemberStore{db: db}
}

const memberColumns = `id, username, name, email, phone, home_branch, active, COALESCE(qr_credential, ''), created_at, updated_at`

func scanMember(row pgx.Row) (*models.Member, error) {
	m := &models.Member{}
	err := row.Scan(
		&m.ID,
		&m.Username,
		&m.Name,
		&m.Email,
		&m.Phone,
		&m.HomeBranch,
		&m.Active,
		&m.QRCredential,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID returns nil, nil when the member does not exist.
func (s *MemberStore) GetByID(ctx context.Context, id int64) (m *models.Member, err error) {
	ctx, span := startSpan(ctx, "members.get_by_id", attribute.Int64("member.id", id))
	defer func() { endSpan(span, err) }()

	m, err = scanMember(s.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member %d: %w", id, err)
	}
	return m, nil
}

// GetByCredential is an exact-match lookup; nil, nil when nothing matches.
func (s *MemberStore) GetByCredential(ctx context.Context, credential string) (m *models.Member, err error) {
	ctx, span := startSpan(ctx, "members.get_by_credential")
	defer func() { endSpan(span, err) }()

	m, err = scanMember(s.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE qr_credential = $1`, credential))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member by credential: %w", err)
	}
	return m, nil
}

// AssignCredential stores credential for the member unless one is already
// set, and returns whichever value is stored afterwards. It returns "" when
// the member does not exist.
func (s *MemberStore) AssignCredential(ctx context.Context, id int64, credential string) (stored string, err error) {
	ctx, span := startSpan(ctx, "members.assign_credential", attribute.Int64("member.id", id))
	defer func() { endSpan(span, err) }()

	// The conditional update makes concurrent first requests converge on the
	// value written by whichever one lands first.
	err = s.db.QueryRow(ctx, `
		UPDATE members
		SET qr_credential = $2, updated_at = now()
		WHERE id = $1 AND qr_credential IS NULL
		RETURNING qr_credential
	`, id, credential).Scan(&stored)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to assign credential to member %d: %w", id, err)
	}

	err = s.db.QueryRow(ctx, `SELECT COALESCE(qr_credential, '') FROM members WHERE id = $1`, id).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credential of member %d: %w", id, err)
	}
	return stored, nil
}
