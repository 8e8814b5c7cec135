package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo writes to audit_events. Rows are only ever inserted.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, org_id, type, actor_user_id, actor_role, ip_address,
  call_id, from_status, to_status, message, metadata, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '')::jsonb, $12)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.OrgID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.CallID, e.FromStatus, e.ToStatus, e.Message, e.Metadata, e.CreatedAt.UTC(),
	)
	return err
}

func (r *PostgresRepo) ListForCall(ctx context.Context, orgID, callID string) ([]Event, error) {
	const q = `
SELECT id, org_id, type, actor_user_id, actor_role, ip_address,
       call_id, from_status, to_status, message, COALESCE(metadata::text, ''), created_at
FROM audit_events
WHERE org_id = $1 AND call_id = $2
ORDER BY created_at ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, orgID, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e   Event
			typ string
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.CallID, &e.FromStatus, &e.ToStatus, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
