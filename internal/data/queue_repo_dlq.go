package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/urbanflow/rebal/internal/data/pgxutil"
	"github.com/urbanflow/rebal/internal/domain/model"
)

const dlqColumns = `
  dlq_id,
  job_id,
  type,
  payload_json,
  dedupe_key,
  reason_code,
  details_json,
  attempts,
  max_attempts,
  created_at,
  failed_at
`

// ListDLQ returns the most recently dead-lettered records, newest first.
func (r *QueueRepo) ListDLQ(ctx context.Context, limit int) ([]model.DlqRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+dlqColumns+` FROM job_dlq ORDER BY failed_at DESC, dlq_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dlq: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.DlqRecord
	for rows.Next() {
		rec, err := scanDlqRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dlq record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dlq: %w", err)
	}
	return records, nil
}

// RequeueFromDLQ resurrects a dead-lettered job: a fresh queue row is
// inserted with a reset attempt counter and the DLQ record is removed, both
// in one transaction. Returns the new job id.
func (r *QueueRepo) RequeueFromDLQ(ctx context.Context, dlqID int64) (string, error) {
	var newJobID string
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+dlqColumns+` FROM job_dlq WHERE dlq_id = $1 FOR UPDATE`, dlqID)
		rec, err := scanDlqRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("requeue dlq %d: %w", dlqID, ErrDlqRecordNotFound)
		}
		if err != nil {
			return fmt.Errorf("load dlq record %d: %w", dlqID, err)
		}

		var dedupeKey sql.NullString
		if rec.DedupeKey != nil {
			dedupeKey = sql.NullString{String: *rec.DedupeKey, Valid: true}
		}
		if err := tx.QueryRowContext(ctx, enqueueSQL,
			string(rec.Type), []byte(rec.Payload), dedupeKey, r.time.Now().UTC(), rec.MaxAttempts,
		).Scan(&newJobID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("requeue dlq %d: a live job already exists for dedupe key", dlqID)
			}
			return fmt.Errorf("requeue dlq %d: %w", dlqID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM job_dlq WHERE dlq_id = $1`, dlqID); err != nil {
			return fmt.Errorf("delete dlq record %d: %w", dlqID, err)
		}
		return nil
	}})
	if err != nil {
		return "", err
	}
	r.logger.InfoContext(ctx, "dlq record requeued", "dlq_id", dlqID, "job_id", newJobID)
	return newJobID, nil
}

// PruneDLQ deletes dead-lettered records that failed before the cutoff, in
// batches so the reaper never holds long locks. Returns rows deleted.
func (r *QueueRepo) PruneDLQ(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	res, err := r.DB.ExecContext(ctx, `
	  DELETE FROM job_dlq
	  WHERE dlq_id IN (
	    SELECT dlq_id FROM job_dlq WHERE failed_at < $1 ORDER BY failed_at LIMIT $2
	  )
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("prune dlq: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

func scanDlqRecord(row rowScanner) (*model.DlqRecord, error) {
	var (
		rec       model.DlqRecord
		payload   []byte
		details   []byte
		dedupeKey sql.NullString
	)
	if err := row.Scan(
		&rec.DlqID, &rec.JobID, &rec.Type, &payload, &dedupeKey, &rec.ReasonCode,
		&details, &rec.Attempts, &rec.MaxAttempts, &rec.CreatedAt, &rec.FailedAt,
	); err != nil {
		return nil, err
	}
	rec.Payload = payload
	rec.Details = details
	if dedupeKey.Valid {
		key := dedupeKey.String
		rec.DedupeKey = &key
	}
	return &rec, nil
}
