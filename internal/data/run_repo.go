package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/urbanflow/rebal/internal/data/pgxutil"
	"github.com/urbanflow/rebal/internal/domain/model"
)

// RunRepo is the output store: idempotent persistence of run summaries and
// their move lists, keyed by the run's natural identity. It goes through the
// pgx native connection so text[] reason codes and batch inserts work
// without driver shims.
type RunRepo struct {
	DB     *sql.DB
	time   TimeProvider
	logger *slog.Logger
}

// NewRunRepo creates a RunRepo.
func NewRunRepo(db *sql.DB, cfg RepoConfig) *RunRepo {
	return &RunRepo{
		DB:     db,
		time:   cfg.timeProvider(),
		logger: cfg.logger(),
	}
}

const upsertRunSQL = `
  INSERT INTO policy_runs (
    system_id, policy_version, policy_spec_sha256, sv, decision_bucket_ts,
    horizon_steps, input_quality, status, no_op, no_op_reason, error_reason, created_at
  )
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
  ON CONFLICT (system_id, policy_version, policy_spec_sha256, sv, decision_bucket_ts, horizon_steps)
  DO UPDATE SET
    input_quality = EXCLUDED.input_quality,
    status        = EXCLUDED.status,
    no_op         = EXCLUDED.no_op,
    no_op_reason  = EXCLUDED.no_op_reason,
    error_reason  = EXCLUDED.error_reason
  RETURNING run_id
`

// UpsertRun inserts or updates a run on its natural key. Only the mutable
// status fields are overwritten on conflict; run_id and the identity fields
// are stable across calls.
func (r *RunRepo) UpsertRun(ctx context.Context, run *model.PolicyRun) (string, error) {
	var runID string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return upsertRun(ctx, conn, run, r.time.Now().UTC(), &runID)
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// runQuerier is satisfied by both *pgx.Conn and pgx.Tx.
type runQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertRun(ctx context.Context, q runQuerier, run *model.PolicyRun, now time.Time, runID *string) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	err := q.QueryRow(ctx, upsertRunSQL,
		run.SystemID, run.PolicyVersion, run.PolicySpecSHA256, run.SV,
		run.DecisionBucketTS.UTC(), run.HorizonSteps, run.InputQuality,
		run.Status, run.NoOp, run.NoOpReason, run.ErrorReason, createdAt,
	).Scan(runID)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// ReplaceMoves deletes all moves for a run and inserts the new ranked list,
// in one transaction. Returns the inserted count.
func (r *RunRepo) ReplaceMoves(ctx context.Context, runID string, moves []model.PolicyMove) (int, error) {
	var inserted int
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		n, err := replaceMoves(ctx, tx, runID, moves)
		inserted = n
		return err
	}})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func replaceMoves(ctx context.Context, tx pgx.Tx, runID string, moves []model.PolicyMove) (int, error) {
	if _, err := tx.Exec(ctx, `DELETE FROM policy_moves WHERE run_id = $1`, runID); err != nil {
		return 0, fmt.Errorf("delete moves for run %s: %w", runID, err)
	}
	if len(moves) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, m := range moves {
		batch.Queue(`
		  INSERT INTO policy_moves (run_id, move_rank, from_station_key, to_station_key, bikes_moved, dist_m, reason_codes)
		  VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, runID, m.MoveRank, m.FromStationKey, m.ToStationKey, m.BikesMoved, m.DistM, m.ReasonCodes)
	}
	results := tx.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range moves {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("insert move for run %s: %w", runID, err)
		}
	}
	return len(moves), nil
}

// PersistParams groups a run and its full move set.
type PersistParams struct {
	Run   model.PolicyRun
	Moves []model.PolicyMove
}

// PersistResult writes the run upsert and the move replacement as one
// transaction, so a visible run can never be observed with stale or missing
// moves.
func (r *RunRepo) PersistResult(ctx context.Context, params PersistParams) (string, error) {
	var runID string
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		if err := upsertRun(ctx, tx, &params.Run, r.time.Now().UTC(), &runID); err != nil {
			return err
		}
		moves := make([]model.PolicyMove, len(params.Moves))
		copy(moves, params.Moves)
		for i := range moves {
			moves[i].RunID = runID
		}
		_, err := replaceMoves(ctx, tx, runID, moves)
		return err
	}})
	if err != nil {
		return "", err
	}
	r.logger.InfoContext(ctx, "run persisted",
		"run_id", runID, "system_id", params.Run.SystemID,
		"status", params.Run.Status, "moves", len(params.Moves))
	return runID, nil
}

const runSelectSQL = `
  SELECT r.run_id, r.system_id, r.policy_version, r.policy_spec_sha256, r.sv,
         r.decision_bucket_ts, r.horizon_steps, r.input_quality, r.status,
         r.no_op, r.no_op_reason, r.error_reason, r.created_at,
         (SELECT COUNT(*) FROM policy_moves m WHERE m.run_id = r.run_id) AS move_count
  FROM policy_runs r
`

// GetRunSummary loads the run for a natural key, or ErrRunNotFound.
func (r *RunRepo) GetRunSummary(ctx context.Context, key model.RunIdentity) (*model.PolicyRun, error) {
	var run *model.PolicyRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, runSelectSQL+`
		  WHERE r.system_id = $1 AND r.policy_version = $2 AND r.policy_spec_sha256 = $3
		    AND r.sv = $4 AND r.decision_bucket_ts = $5 AND r.horizon_steps = $6
		`, key.SystemID, key.PolicyVersion, key.PolicySpecSHA256, key.SV,
			key.DecisionBucketTS.UTC(), key.HorizonSteps)
		loaded, err := scanRun(row)
		run = loaded
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run summary: %w", err)
	}
	return run, nil
}

// GetRunByID loads one run by id, or ErrRunNotFound.
func (r *RunRepo) GetRunByID(ctx context.Context, runID string) (*model.PolicyRun, error) {
	var run *model.PolicyRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, runSelectSQL+` WHERE r.run_id = $1`, runID)
		loaded, err := scanRun(row)
		run = loaded
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// ListMoves returns up to limit moves for a run, ordered by rank.
func (r *RunRepo) ListMoves(ctx context.Context, runID string, limit int) ([]model.PolicyMove, error) {
	if limit <= 0 {
		limit = 50
	}
	var moves []model.PolicyMove
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
		  SELECT run_id, move_rank, from_station_key, to_station_key, bikes_moved, dist_m, reason_codes
		  FROM policy_moves
		  WHERE run_id = $1
		  ORDER BY move_rank
		  LIMIT $2
		`, runID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m model.PolicyMove
			if err := rows.Scan(&m.RunID, &m.MoveRank, &m.FromStationKey, &m.ToStationKey,
				&m.BikesMoved, &m.DistM, &m.ReasonCodes); err != nil {
				return err
			}
			moves = append(moves, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list moves for run %s: %w", runID, err)
	}
	return moves, nil
}

// PruneRuns deletes runs created before the cutoff, in batches. Moves go
// with their run via the FK cascade. Returns rows deleted.
func (r *RunRepo) PruneRuns(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	res, err := r.DB.ExecContext(ctx, `
	  DELETE FROM policy_runs
	  WHERE run_id IN (
	    SELECT run_id FROM policy_runs WHERE created_at < $1 ORDER BY created_at LIMIT $2
	  )
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

func scanRun(row pgx.Row) (*model.PolicyRun, error) {
	var run model.PolicyRun
	if err := row.Scan(
		&run.RunID, &run.SystemID, &run.PolicyVersion, &run.PolicySpecSHA256, &run.SV,
		&run.DecisionBucketTS, &run.HorizonSteps, &run.InputQuality, &run.Status,
		&run.NoOp, &run.NoOpReason, &run.ErrorReason, &run.CreatedAt, &run.MoveCount,
	); err != nil {
		return nil, err
	}
	return &run, nil
}
