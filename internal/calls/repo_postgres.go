package calls

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"

	"callqa/internal/analysis"
	"callqa/internal/transcription"
	"callqa/pkg/utils"
)

// Schema is the DDL for calls and call_events, applied at startup.
//
//go:embed schema.sql
var Schema string

// PostgresRepo stores one row per call with the transcript and analysis
// embedded as JSONB.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const selectCall = `
SELECT id, user_id, audio_path, duration_sec, status, transcription_job_id, failure_reason,
       transcript, analysis, created_at, updated_at
FROM calls
`

func (r *PostgresRepo) Create(ctx context.Context, c *Call) error {
	tr, an, err := encodeDocs(c)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO calls (id, user_id, audio_path, duration_sec, status, transcription_job_id, failure_reason,
                   transcript, analysis, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err = r.db.ExecContext(ctx, q,
		c.ID,
		c.UserID,
		c.AudioPath,
		c.DurationSec,
		string(c.Status),
		c.TranscriptionJobID,
		c.FailureReason,
		tr,
		an,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectCall+`WHERE id = $1`, id))
}

func (r *PostgresRepo) GetByJobID(ctx context.Context, jobID string) (*Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectCall+`WHERE transcription_job_id = $1`, jobID))
}

func (r *PostgresRepo) Update(ctx context.Context, c *Call) error {
	tr, an, err := encodeDocs(c)
	if err != nil {
		return err
	}
	const q = `
UPDATE calls
SET duration_sec = $2, status = $3, transcription_job_id = $4, failure_reason = $5,
    transcript = $6, analysis = $7, updated_at = $8
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		c.ID,
		c.DurationSec,
		string(c.Status),
		c.TranscriptionJobID,
		c.FailureReason,
		tr,
		an,
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]*Call, error) {
	rows, err := r.db.QueryContext(ctx, selectCall+`WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes the call together with its audit trail.
func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM calls WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM call_events WHERE call_id = $1`, id)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepo) scanOne(row *sql.Row) (*Call, error) {
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scanCall(s rowScanner) (*Call, error) {
	var (
		c          Call
		status     string
		duration   sql.NullFloat64
		jobID      sql.NullString
		transcript []byte
		result     []byte
	)
	if err := s.Scan(
		&c.ID,
		&c.UserID,
		&c.AudioPath,
		&duration,
		&status,
		&jobID,
		&c.FailureReason,
		&transcript,
		&result,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	if duration.Valid {
		d := duration.Float64
		c.DurationSec = &d
	}
	if jobID.Valid {
		j := jobID.String
		c.TranscriptionJobID = &j
	}
	if len(transcript) > 0 {
		var t transcription.Transcript
		if err := json.Unmarshal(transcript, &t); err != nil {
			return nil, err
		}
		c.Transcript = &t
	}
	if len(result) > 0 {
		var a analysis.Analysis
		if err := json.Unmarshal(result, &a); err != nil {
			return nil, err
		}
		c.Analysis = &a
	}
	return &c, nil
}

// encodeDocs returns the JSONB columns; nil documents become SQL NULL.
func encodeDocs(c *Call) (transcript, result []byte, err error) {
	if c.Transcript != nil {
		if transcript, err = json.Marshal(c.Transcript); err != nil {
			return nil, nil, err
		}
	}
	if c.Analysis != nil {
		if result, err = analysis.Compact(c.Analysis); err != nil {
			return nil, nil, err
		}
	}
	return transcript, result, nil
}
