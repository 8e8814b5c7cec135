package availability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// NOTE: assumes staff_availability with UNIQUE (user_id, org_id).

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Upsert writes only when the stored row is not newer. When the guard
// rejects the write no row is returned and the stored row is read back.
func (r *PostgresRepo) Upsert(ctx context.Context, a Availability) (Availability, error) {
	if a.UserID == "" || a.OrgID == "" {
		return Availability{}, ErrInvalidInput
	}
	skills, err := json.Marshal(nonNil(a.Skills))
	if err != nil {
		return Availability{}, err
	}

	const q = `
INSERT INTO staff_availability (user_id, org_id, status, skills, updated_at)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (user_id, org_id) DO UPDATE
SET status = EXCLUDED.status, skills = EXCLUDED.skills, updated_at = EXCLUDED.updated_at
WHERE staff_availability.updated_at <= EXCLUDED.updated_at
RETURNING user_id, org_id, status, skills, updated_at
`
	out, err := scanAvailability(r.db.QueryRowContext(ctx, q, a.UserID, a.OrgID, string(a.Status), string(skills), a.UpdatedAt.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return r.Get(ctx, a.UserID, a.OrgID)
	}
	return out, err
}

func (r *PostgresRepo) Get(ctx context.Context, userID, orgID string) (Availability, error) {
	const q = `
SELECT user_id, org_id, status, skills, updated_at
FROM staff_availability
WHERE user_id = $1 AND org_id = $2
`
	a, err := scanAvailability(r.db.QueryRowContext(ctx, q, userID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return Availability{}, ErrNotFound
	}
	return a, err
}

func (r *PostgresRepo) FindAvailable(ctx context.Context, orgID string) ([]Availability, error) {
	const q = `
SELECT user_id, org_id, status, skills, updated_at
FROM staff_availability
WHERE org_id = $1 AND status = 'available'
ORDER BY updated_at DESC, user_id ASC
`
	rows, err := r.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Availability, 0)
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAvailability(row rowScanner) (Availability, error) {
	var (
		a      Availability
		status string
		skills []byte
	)
	if err := row.Scan(&a.UserID, &a.OrgID, &status, &skills, &a.UpdatedAt); err != nil {
		return Availability{}, err
	}
	a.Status = Status(status)
	a.UpdatedAt = a.UpdatedAt.UTC()
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &a.Skills); err != nil {
			return Availability{}, err
		}
	}
	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
