package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"signaling-platform/pkg/utils"
)

// NOTE: This store assumes the tables created by internal/db/migrations:
// - calls (status transitions are guarded in SQL)
// - call_participants (UNIQUE (call_id, user_id))

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const callColumns = `id, org_id, status, created_by_user_id, accepted_by_user_id, ended_by_user_id,
candidates, reason, metadata, offer, answer, ring_ms, talk_ms,
ring_expires_at, started_at, ended_at, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Create(ctx context.Context, c Call) error {
	if err := validateNew(c); err != nil {
		return err
	}
	candidates, err := json.Marshal(nonNil(c.Candidates))
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO calls (id, org_id, status, created_by_user_id, candidates, reason, metadata, ring_expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7::jsonb, $8, $9, $10)
`
	_, err = s.db.ExecContext(ctx, q,
		c.ID,
		c.OrgID,
		string(c.Status),
		c.CreatedBy,
		string(candidates),
		c.Reason,
		string(metadata),
		c.RingExpiresAt.UTC(),
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
	)
	if pgCode(err) == pgUniqueViolation {
		return ErrConflict
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

// Transition is one UPDATE guarded by the expected statuses. Derived timestamps
// and analytics are computed in the same statement.
func (s *PostgresStore) Transition(ctx context.Context, id string, from []Status, u Update) (Call, error) {
	if err := validateUpdate(from, u); err != nil {
		return Call{}, err
	}

	q := `
UPDATE calls SET
  status = $2::text,
  accepted_by_user_id = CASE WHEN $2::text = 'accepted' THEN $3::text ELSE accepted_by_user_id END,
  ended_by_user_id = COALESCE(NULLIF($4::text, ''), ended_by_user_id),
  reason = COALESCE(NULLIF($5::text, ''), reason),
  started_at = CASE WHEN $2::text = 'accepted' THEN $6::timestamptz ELSE started_at END,
  ended_at = CASE WHEN $2::text IN ('declined', 'canceled', 'missed', 'ended') THEN $6::timestamptz ELSE ended_at END,
  ring_ms = CASE WHEN $2::text = 'accepted'
    THEN (EXTRACT(EPOCH FROM ($6::timestamptz - created_at)) * 1000)::BIGINT ELSE ring_ms END,
  talk_ms = CASE WHEN $2::text = 'ended' AND started_at IS NOT NULL
    THEN (EXTRACT(EPOCH FROM ($6::timestamptz - started_at)) * 1000)::BIGINT ELSE talk_ms END,
  updated_at = $6::timestamptz
WHERE id = $1 AND status = ANY(string_to_array($7::text, ','))
RETURNING ` + callColumns

	c, err := scanCall(s.db.QueryRowContext(ctx, q,
		id,
		string(u.Status),
		u.AcceptedBy,
		u.EndedBy,
		u.Reason,
		u.At.UTC(),
		joinStatuses(from),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, s.guardMiss(ctx, id, from)
	}
	return c, err
}

func (s *PostgresStore) AttachSessionDescription(ctx context.Context, id string, allowed []Status, sd SessionDescription) (Call, error) {
	if err := sd.Validate(); err != nil {
		return Call{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	body, err := json.Marshal(sd)
	if err != nil {
		return Call{}, err
	}
	column := "answer"
	if sd.Type == SDPOffer {
		column = "offer"
	}

	q := `UPDATE calls SET ` + column + ` = $2::jsonb
WHERE id = $1 AND status = ANY(string_to_array($3::text, ','))
RETURNING ` + callColumns
	c, err := scanCall(s.db.QueryRowContext(ctx, q, id, string(body), joinStatuses(allowed)))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, s.guardMiss(ctx, id, allowed)
	}
	return c, err
}

// guardMiss explains a conditional write that matched no row.
func (s *PostgresStore) guardMiss(ctx context.Context, id string, expected []Status) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM calls WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return &GuardError{CallID: id, Current: Status(current), Expected: expected}
}

func (s *PostgresStore) FindRinging(ctx context.Context, at time.Time) ([]Call, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE status = 'ringing' AND ring_expires_at <= $1
ORDER BY ring_expires_at ASC`
	return s.queryCalls(ctx, q, at.UTC())
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]Call, error) {
	var (
		where []string
		args  []any
	)
	if f.OrgID != "" {
		args = append(args, f.OrgID)
		where = append(where, fmt.Sprintf("org_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From.UTC())
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To.UTC())
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	q := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at ASC`
	return s.queryCalls(ctx, q, args...)
}

func (s *PostgresStore) queryCalls(ctx context.Context, q string, args ...any) ([]Call, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddParticipant(ctx context.Context, p Participant) (Participant, error) {
	if p.CallID == "" || p.UserID == "" {
		return Participant{}, ErrInvalidArgument
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO call_participants (id, call_id, user_id, role, joined_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (call_id, user_id) DO UPDATE SET left_at = NULL
RETURNING id, call_id, user_id, role, joined_at, left_at, quality
`
	var out Participant
	// The call row stays locked until the participant is in, so a concurrent
	// end cannot slip between the status check and the insert.
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM calls WHERE id = $1 FOR SHARE`, p.CallID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if Status(current).Terminal() {
			return &GuardError{CallID: p.CallID, Current: Status(current), Expected: []Status{StatusRinging, StatusAccepted}}
		}
		out, err = scanParticipant(tx.QueryRowContext(ctx, q, p.ID, p.CallID, p.UserID, string(p.Role), p.JoinedAt.UTC()))
		return err
	})
	if pgCode(err) == pgForeignKeyViolation {
		return Participant{}, ErrNotFound
	}
	if err != nil {
		return Participant{}, err
	}
	return out, nil
}

func (s *PostgresStore) AppendQualitySample(ctx context.Context, callID, userID string, q QualitySample) error {
	body, err := json.Marshal([]QualitySample{q})
	if err != nil {
		return err
	}
	const stmt = `
UPDATE call_participants SET quality = quality || $3::jsonb
WHERE call_id = $1 AND user_id = $2
`
	return expectOne(s.db.ExecContext(ctx, stmt, callID, userID, string(body)))
}

func (s *PostgresStore) MarkParticipantLeft(ctx context.Context, callID, userID string, at time.Time) error {
	const stmt = `UPDATE call_participants SET left_at = $3 WHERE call_id = $1 AND user_id = $2`
	return expectOne(s.db.ExecContext(ctx, stmt, callID, userID, at.UTC()))
}

func (s *PostgresStore) Participants(ctx context.Context, callID string) ([]Participant, error) {
	const q = `
SELECT id, call_id, user_id, role, joined_at, left_at, quality
FROM call_participants
WHERE call_id = $1
ORDER BY joined_at ASC
`
	rows, err := s.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c                    Call
		status               string
		acceptedBy, endedBy  sql.NullString
		candidates, metadata []byte
		offer, answer        []byte
		startedAt, endedAt   sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.OrgID,
		&status,
		&c.CreatedBy,
		&acceptedBy,
		&endedBy,
		&candidates,
		&c.Reason,
		&metadata,
		&offer,
		&answer,
		&c.Analytics.RingMillis,
		&c.Analytics.TalkMillis,
		&c.RingExpiresAt,
		&startedAt,
		&endedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Call{}, err
	}
	c.Status = Status(status)
	c.AcceptedBy = acceptedBy.String
	c.EndedBy = endedBy.String
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		c.EndedAt = &t
	}
	if err := unmarshalOptional(candidates, &c.Candidates); err != nil {
		return Call{}, err
	}
	if err := unmarshalOptional(metadata, &c.Metadata); err != nil {
		return Call{}, err
	}
	if len(offer) > 0 {
		c.Offer = &SessionDescription{}
		if err := json.Unmarshal(offer, c.Offer); err != nil {
			return Call{}, err
		}
	}
	if len(answer) > 0 {
		c.Answer = &SessionDescription{}
		if err := json.Unmarshal(answer, c.Answer); err != nil {
			return Call{}, err
		}
	}
	return c, nil
}

func scanParticipant(row rowScanner) (Participant, error) {
	var (
		p       Participant
		role    string
		leftAt  sql.NullTime
		quality []byte
	)
	if err := row.Scan(&p.ID, &p.CallID, &p.UserID, &role, &p.JoinedAt, &leftAt, &quality); err != nil {
		return Participant{}, err
	}
	p.Role = ParticipantRole(role)
	if leftAt.Valid {
		t := leftAt.Time.UTC()
		p.LeftAt = &t
	}
	if err := unmarshalOptional(quality, &p.Samples); err != nil {
		return Participant{}, err
	}
	return p, nil
}

func unmarshalOptional(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func joinStatuses(list []Status) string {
	parts := make([]string, 0, len(list))
	for _, s := range list {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ",")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
