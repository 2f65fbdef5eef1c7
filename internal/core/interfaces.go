// Package core defines the ports between the service layer and the data
// layer. Services depend on these interfaces, not on concrete repositories.
package core

import (
	"context"
	"time"

	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
)

// TaskQueue is the durable work queue port.
type TaskQueue interface {
	Enqueue(ctx context.Context, req model.EnqueueRequest) (model.EnqueueResult, error)
	Claim(ctx context.Context, params data.ClaimParams) ([]model.Job, error)
	Ack(ctx context.Context, jobID string) error
	Fail(ctx context.Context, params data.FailParams) (model.FailResult, error)
	FindLiveByDedupeKey(ctx context.Context, jobType model.JobType, dedupeKey string) (*model.Job, error)
	DeleteByDedupeKey(ctx context.Context, jobType model.JobType, dedupeKey string) (int64, error)
	Stats(ctx context.Context) (model.QueueStats, error)
}

// OutputStore is the idempotent run/move persistence port.
type OutputStore interface {
	UpsertRun(ctx context.Context, run *model.PolicyRun) (string, error)
	ReplaceMoves(ctx context.Context, runID string, moves []model.PolicyMove) (int, error)
	PersistResult(ctx context.Context, params data.PersistParams) (string, error)
	GetRunSummary(ctx context.Context, key model.RunIdentity) (*model.PolicyRun, error)
	ListMoves(ctx context.Context, runID string, limit int) ([]model.PolicyMove, error)
}

// SnapshotReader reads the station feed consumed by the worker and the
// coordinator's precondition check.
type SnapshotReader interface {
	ResolveBucket(ctx context.Context, systemID string, at time.Time) (time.Time, error)
	GetStationsAt(ctx context.Context, systemID string, bucket time.Time) ([]model.Station, error)
	GetNeighborEdges(ctx context.Context, systemID string) ([]model.NeighborEdge, error)
	SnapshotIdentity(ctx context.Context, systemID string, bucket time.Time) (model.SnapshotIdentity, error)
}

// DLQPruner deletes dead-letter records that failed before a cutoff.
type DLQPruner interface {
	PruneDLQ(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// RunPruner deletes persisted runs created before a cutoff.
type RunPruner interface {
	PruneRuns(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// RunCache is an optional read-through cache of completed run summaries.
type RunCache interface {
	Get(ctx context.Context, key model.RunIdentity) (*model.PolicyRun, error)
	Put(ctx context.Context, run *model.PolicyRun) error
	// Invalidate drops the entry for a key whose backing rows are gone.
	Invalidate(ctx context.Context, key model.RunIdentity) error
}
