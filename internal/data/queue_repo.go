package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urbanflow/rebal/internal/data/pgxutil"
	"github.com/urbanflow/rebal/internal/domain/job"
	"github.com/urbanflow/rebal/internal/domain/model"
)

// DefaultMaxAttempts applies when an enqueue request does not set one.
const DefaultMaxAttempts = 10

const queueColumns = `
  job_id,
  type,
  payload_json,
  dedupe_key,
  visible_at,
  attempts,
  max_attempts,
  created_at
`

// QueueRepo is the durable task queue over Postgres. A job is visible when
// visible_at <= now; claiming extends visible_at (the lease) and bumps
// attempts in the same statement, so a crashed worker's claim simply expires.
type QueueRepo struct {
	DB      *sql.DB
	backoff job.BackoffPolicy
	lease   *job.LeasePolicy
	time    TimeProvider
	logger  *slog.Logger
}

// QueueRepoConfig holds construction options for QueueRepo.
type QueueRepoConfig struct {
	RepoConfig
	Backoff job.BackoffPolicy
	Lease   *job.LeasePolicy
}

// NewQueueRepo creates a QueueRepo.
func NewQueueRepo(db *sql.DB, cfg QueueRepoConfig) *QueueRepo {
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = job.DefaultBackoff
	}
	lease := cfg.Lease
	if lease == nil {
		lease = job.DefaultLease
	}
	return &QueueRepo{
		DB:      db,
		backoff: backoff,
		lease:   lease,
		time:    cfg.timeProvider(),
		logger:  cfg.logger(),
	}
}

const enqueueSQL = `
  INSERT INTO job_queue (type, payload_json, dedupe_key, visible_at, attempts, max_attempts, created_at)
  VALUES ($1, $2, $3, $4, 0, $5, $4)
  ON CONFLICT (type, dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING
  RETURNING job_id
`

// Enqueue inserts a job. When the request carries a dedupe key and an
// undeleted job with the same (type, dedupe_key) already exists, no row is
// inserted and the result reports Deduped.
func (r *QueueRepo) Enqueue(ctx context.Context, req model.EnqueueRequest) (model.EnqueueResult, error) {
	if err := req.Validate(); err != nil {
		return model.EnqueueResult{}, fmt.Errorf("validate enqueue request: %w", err)
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var dedupeKey sql.NullString
	if req.DedupeKey != nil {
		dedupeKey = sql.NullString{String: *req.DedupeKey, Valid: true}
	}

	var jobID string
	err := r.DB.QueryRowContext(ctx, enqueueSQL,
		string(req.Type), []byte(req.Payload), dedupeKey, r.time.Now().UTC(), maxAttempts,
	).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EnqueueResult{Deduped: true}, nil
	}
	if err != nil {
		return model.EnqueueResult{}, fmt.Errorf("enqueue job: %w", err)
	}
	return model.EnqueueResult{JobID: jobID}, nil
}

// ClaimParams groups parameters for Claim.
type ClaimParams struct {
	// Type filters claimable jobs; empty claims any type.
	Type model.JobType
	// Limit caps how many jobs one call may claim.
	Limit int
	// VisibilityTimeout is how long the claim lease lasts. Non-positive
	// values fall back to the repo's lease policy default and sub-second
	// values are rounded up, so a lease can never expire inside the same
	// polling tick that granted it.
	VisibilityTimeout time.Duration
}

const claimSQL = `
  WITH next_jobs AS (
    SELECT job_id
    FROM job_queue
    WHERE visible_at <= $1
      AND ($2::text IS NULL OR type = $2)
    ORDER BY visible_at, job_id
    LIMIT $3
    FOR UPDATE SKIP LOCKED
  )
  UPDATE job_queue q
  SET attempts = q.attempts + 1,
      visible_at = $4
  FROM next_jobs
  WHERE q.job_id = next_jobs.job_id
  RETURNING q.job_id, q.type, q.payload_json, q.dedupe_key, q.visible_at, q.attempts, q.max_attempts, q.created_at
`

// Claim leases up to params.Limit visible jobs. Row locking skips rows
// already locked by a concurrent claimer, so no two claimers ever return the
// same job. Selection, attempts increment and lease extension are one
// atomic statement.
func (r *QueueRepo) Claim(ctx context.Context, params ClaimParams) ([]model.Job, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 1
	}
	var typeFilter sql.NullString
	if params.Type != "" {
		typeFilter = sql.NullString{String: string(params.Type), Valid: true}
	}
	now := r.time.Now().UTC()

	rows, err := r.DB.QueryContext(ctx, claimSQL,
		now, typeFilter, limit, now.Add(r.lease.Resolve(params.VisibilityTimeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectJobsFromRows(rows)
}

// Ack deletes a finished job. Acking a job that is already gone is a no-op.
func (r *QueueRepo) Ack(ctx context.Context, jobID string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM job_queue WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("ack job %s: %w", jobID, err)
	}
	return nil
}

// FailParams groups parameters for Fail.
type FailParams struct {
	JobID      string
	ReasonCode string
	Details    json.RawMessage
}

// Fail records a failed attempt. If the job has reached its retry budget it
// is deleted and a DLQ record is inserted in the same transaction; otherwise
// its visible_at is pushed out by the backoff delay so it is retried later.
func (r *QueueRepo) Fail(ctx context.Context, params FailParams) (model.FailResult, error) {
	var result model.FailResult
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+queueColumns+` FROM job_queue WHERE job_id = $1 FOR UPDATE`, params.JobID)
		j, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("fail job %s: %w", params.JobID, ErrJobNotFound)
		}
		if err != nil {
			return err
		}

		if j.Attempts >= j.MaxAttempts {
			if err := insertDlqRecord(ctx, tx, j, params, r.time.Now().UTC()); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM job_queue WHERE job_id = $1`, j.ID); err != nil {
				return fmt.Errorf("delete exhausted job %s: %w", j.ID, err)
			}
			result.MovedToDLQ = true
			r.logger.WarnContext(ctx, "job moved to dlq",
				"job_id", j.ID, "type", j.Type, "attempts", j.Attempts, "reason_code", params.ReasonCode)
			return nil
		}

		delay := r.backoff.Delay(j.Attempts)
		if _, err := tx.ExecContext(ctx,
			`UPDATE job_queue SET visible_at = $1 WHERE job_id = $2`,
			r.time.Now().UTC().Add(delay), j.ID,
		); err != nil {
			return fmt.Errorf("requeue job %s: %w", j.ID, err)
		}
		return nil
	}})
	if err != nil {
		return model.FailResult{}, err
	}
	return result, nil
}

func insertDlqRecord(ctx context.Context, tx *sql.Tx, j *model.Job, params FailParams, failedAt time.Time) error {
	var details any
	if len(params.Details) > 0 {
		details = []byte(params.Details)
	}
	var dedupeKey sql.NullString
	if j.DedupeKey != nil {
		dedupeKey = sql.NullString{String: *j.DedupeKey, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
	  INSERT INTO job_dlq (job_id, type, payload_json, dedupe_key, reason_code, details_json, attempts, max_attempts, created_at, failed_at)
	  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, j.ID, string(j.Type), []byte(j.Payload), dedupeKey, params.ReasonCode, details,
		j.Attempts, j.MaxAttempts, j.CreatedAt, failedAt)
	if err != nil {
		return fmt.Errorf("insert dlq record for job %s: %w", j.ID, err)
	}
	return nil
}

// FindLiveByDedupeKey returns the live (not dead-lettered) job for a dedupe
// key, or ErrJobNotFound.
func (r *QueueRepo) FindLiveByDedupeKey(ctx context.Context, jobType model.JobType, dedupeKey string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM job_queue WHERE type = $1 AND dedupe_key = $2`,
		string(jobType), dedupeKey)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by dedupe key: %w", err)
	}
	return j, nil
}

// DeleteByDedupeKey removes the live job for a dedupe key and reports how
// many rows were deleted. Used by run cancellation.
func (r *QueueRepo) DeleteByDedupeKey(ctx context.Context, jobType model.JobType, dedupeKey string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM job_queue WHERE type = $1 AND dedupe_key = $2`,
		string(jobType), dedupeKey)
	if err != nil {
		return 0, fmt.Errorf("delete job by dedupe key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// Stats reports queue depth for operators.
func (r *QueueRepo) Stats(ctx context.Context) (model.QueueStats, error) {
	var stats model.QueueStats
	now := r.time.Now().UTC()
	err := r.DB.QueryRowContext(ctx, `
	  SELECT
	    COUNT(*) FILTER (WHERE visible_at <= $1),
	    COUNT(*) FILTER (WHERE visible_at > $1)
	  FROM job_queue
	`, now).Scan(&stats.Visible, &stats.Leased)
	if err != nil {
		return model.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_dlq`).Scan(&stats.DeadLettered); err != nil {
		return model.QueueStats{}, fmt.Errorf("dlq stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j         model.Job
		payload   []byte
		dedupeKey sql.NullString
	)
	if err := row.Scan(
		&j.ID, &j.Type, &payload, &dedupeKey,
		&j.VisibleAt, &j.Attempts, &j.MaxAttempts, &j.CreatedAt,
	); err != nil {
		return nil, err
	}
	j.Payload = json.RawMessage(payload)
	if dedupeKey.Valid {
		key := dedupeKey.String
		j.DedupeKey = &key
	}
	return &j, nil
}

func collectJobsFromRows(rows *sql.Rows) ([]model.Job, error) {
	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
