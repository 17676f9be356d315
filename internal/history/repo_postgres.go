package history

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo persists call history via database/sql (pgx stdlib driver).
//
// Expected schema:
//
//	CREATE TABLE call_history (
//	  id               UUID PRIMARY KEY,
//	  uuid             UUID NOT NULL,
//	  call_sid         TEXT,
//	  from_number      TEXT NOT NULL,
//	  to_number        TEXT NOT NULL,
//	  direction        TEXT NOT NULL,
//	  outcome          TEXT NOT NULL,
//	  duration_seconds INT NOT NULL DEFAULT 0,
//	  error_message    TEXT,
//	  created_at       TIMESTAMPTZ NOT NULL
//	);

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) (*PostgresRepo, error) {
	if db == nil {
		return nil, fmt.Errorf("history: db is nil")
	}
	return &PostgresRepo{db: db}, nil
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	const q = `
		INSERT INTO call_history
			(id, uuid, call_sid, from_number, to_number, direction, outcome, duration_seconds, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.UUID, rec.CallSid, rec.From, rec.To,
		rec.Direction, string(rec.Outcome), rec.DurationSeconds, rec.ErrorMessage, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history: insert record: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]Record, error) {
	const q = `
		SELECT id, uuid, call_sid, from_number, to_number, direction, outcome, duration_seconds, error_message, created_at
		FROM call_history
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var callSid, errMsg sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.UUID, &callSid, &rec.From, &rec.To,
			&rec.Direction, &rec.Outcome, &rec.DurationSeconds, &errMsg, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}
		rec.CallSid = callSid.String
		rec.ErrorMessage = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
