// Package service contains the transport-agnostic business logic that sits
// between callers and the data layer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urbanflow/rebal/internal/core"
	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
	"github.com/urbanflow/rebal/internal/engine"
	apperrors "github.com/urbanflow/rebal/internal/errors"
)

// DefaultRetryAfter is the retry hint returned with pending responses when no
// override is configured.
const DefaultRetryAfter = 2 * time.Second

// DefaultMovesLimit bounds the ranked move list attached to a Ready response.
const DefaultMovesLimit = 50

// RunState is the externally observable state of one run key.
type RunState string

const (
	// RunStateReady means a completed run exists for the key.
	RunStateReady RunState = "ready"
	// RunStatePending means work for the key is queued but not finished.
	RunStatePending RunState = "pending"
)

// SnapshotPrecondition is a caller's assertion about the station snapshot it
// observed before requesting a run.
type SnapshotPrecondition struct {
	ViewSnapshotID     string `json:"view_snapshot_id"`
	ViewSnapshotSHA256 string `json:"view_snapshot_sha256"`
}

// SnapshotMismatchError reports that the caller's asserted snapshot identity
// disagrees with the current one. The caller must re-read the station feed
// and re-request; the coordinator never runs against data the caller has not
// seen.
type SnapshotMismatchError struct {
	Requested SnapshotPrecondition
	Current   model.SnapshotIdentity
}

// Error implements error.
func (e *SnapshotMismatchError) Error() string {
	return fmt.Sprintf("snapshot identity mismatch: requested %s, current %s",
		e.Requested.ViewSnapshotID, e.Current.ViewSnapshotID)
}

// RunRequest asks the coordinator for the state of one run key, optionally
// guarded by a snapshot precondition.
type RunRequest struct {
	Key RunKeyInput

	// Strategy, when set, must agree with the strategy inferred from the
	// policy version.
	Strategy engine.Strategy

	// Precondition, when set, is verified against the current snapshot
	// identity before any other work.
	Precondition *SnapshotPrecondition

	// IncludeMoves attaches the top ranked moves to a Ready response.
	IncludeMoves bool
}

// RunKeyInput is the caller-supplied run key.
type RunKeyInput = model.RunKey

// RunStatus is the definite answer to a RunRequest.
type RunStatus struct {
	State RunState `json:"state"`

	// Run and Moves are set when State is RunStateReady.
	Run   *model.PolicyRun   `json:"run,omitempty"`
	Moves []model.PolicyMove `json:"moves,omitempty"`

	// RetryAfter is the caller-facing retry hint when State is RunStatePending.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Enqueued is true when this request created the queue item (the key was
	// previously unseen).
	Enqueued bool `json:"enqueued,omitempty"`
}

// CancelOutcome is the result of a cancel operation.
type CancelOutcome string

const (
	// CancelOutcomeCanceled means a live queued job was removed.
	CancelOutcomeCanceled CancelOutcome = "canceled"
	// CancelOutcomeAlreadyCompleted means a run already exists for the key.
	CancelOutcomeAlreadyCompleted CancelOutcome = "already_completed"
	// CancelOutcomeNotFound means neither a run nor a live job exists.
	CancelOutcomeNotFound CancelOutcome = "not_found"
)

// CoordinatorOptions groups dependencies for Coordinator.
type CoordinatorOptions struct {
	Queue     core.TaskQueue      // Required: durable work queue
	Store     core.OutputStore    // Required: run/move persistence
	Snapshots core.SnapshotReader // Required: station feed reader
	Spec      model.PolicySpec    // Required: immutable effective policy spec

	Cache       core.RunCache // Optional: read-through run summary cache
	RetryAfter  time.Duration // Optional: pending retry hint override
	MovesLimit  int           // Optional: ranked moves returned on Ready
	MaxAttempts int           // Optional: max attempts for enqueued jobs
	Logger      *slog.Logger  // Optional: structured logger
}

// Coordinator resolves run requests against the output store and the queue.
// The state machine is observed at query time, never materialized: Ready when
// a run exists, Pending when a live job exists, and otherwise the request
// enqueues new work.
type Coordinator struct {
	queue       core.TaskQueue
	store       core.OutputStore
	snapshots   core.SnapshotReader
	cache       core.RunCache
	spec        model.PolicySpec
	retryAfter  time.Duration
	movesLimit  int
	maxAttempts int
	logger      *slog.Logger
}

// NewCoordinator constructs a Coordinator. Every request for the lifetime of
// the process resolves against the same base spec; only the policy version
// and its scoring rule vary per request.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Queue == nil {
		return nil, errors.New("TaskQueue is required")
	}
	if opts.Store == nil {
		return nil, errors.New("OutputStore is required")
	}
	if opts.Snapshots == nil {
		return nil, errors.New("SnapshotReader is required")
	}

	retryAfter := opts.RetryAfter
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	movesLimit := opts.MovesLimit
	if movesLimit <= 0 {
		movesLimit = DefaultMovesLimit
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		queue:       opts.Queue,
		store:       opts.Store,
		snapshots:   opts.Snapshots,
		cache:       opts.Cache,
		spec:        opts.Spec,
		retryAfter:  retryAfter,
		movesLimit:  movesLimit,
		maxAttempts: opts.MaxAttempts,
		logger:      logger.With("component", "coordinator"),
	}, nil
}

// SpecSHA256 returns the digest of the effective policy spec bound to one
// policy version. The worker derives run identities the same way, so a digest
// computed here always matches what gets persisted.
func (c *Coordinator) SpecSHA256(policyVersion string) (string, error) {
	spec, err := engine.SpecForVersion(c.spec, policyVersion)
	if err != nil {
		return "", err
	}
	return engine.SpecSHA256(spec)
}

// Request resolves the state of one run key. Callers always get a definite
// state or an error; a Pending response always carries a retry hint.
func (c *Coordinator) Request(ctx context.Context, req RunRequest) (RunStatus, error) {
	if err := req.Key.Validate(); err != nil {
		return RunStatus{}, apperrors.Validationf("invalid run key: %v", err)
	}

	inferred, err := engine.ParseStrategy(req.Key.PolicyVersion)
	if err != nil {
		return RunStatus{}, apperrors.Validationf("%v", err)
	}
	if req.Strategy != "" && !req.Strategy.Valid() {
		return RunStatus{}, apperrors.Validationf("unknown strategy %q", req.Strategy)
	}
	if req.Strategy != "" && req.Strategy != inferred {
		return RunStatus{}, apperrors.Validationf(
			"requested strategy %q does not match policy version %q (implies %q)",
			req.Strategy, req.Key.PolicyVersion, inferred)
	}

	if req.Precondition != nil {
		if err := c.checkPrecondition(ctx, req.Key, *req.Precondition); err != nil {
			return RunStatus{}, err
		}
	}

	identity, err := c.identity(req.Key)
	if err != nil {
		return RunStatus{}, apperrors.Validationf("%v", err)
	}

	// A cached summary can outlive its Postgres rows once the retention
	// sweep prunes them. A hit whose recorded moves are gone is stale: drop
	// the entry and resolve from the store instead.
	if run := c.cachedRun(ctx, identity); run != nil {
		if !req.IncludeMoves || run.MoveCount == 0 {
			return RunStatus{State: RunStateReady, Run: run}, nil
		}
		moves, err := c.store.ListMoves(ctx, run.RunID, c.movesLimit)
		if err != nil {
			return RunStatus{}, fmt.Errorf("list moves: %w", err)
		}
		if len(moves) > 0 {
			return RunStatus{State: RunStateReady, Run: run, Moves: moves}, nil
		}
		c.invalidateRun(ctx, identity)
	}

	run, err := c.store.GetRunSummary(ctx, identity)
	switch {
	case err == nil:
		c.cacheRun(ctx, run)
		return c.readyStatus(ctx, run, req.IncludeMoves)
	case errors.Is(err, data.ErrRunNotFound):
		// fall through to the queue
	default:
		return RunStatus{}, fmt.Errorf("get run summary: %w", err)
	}

	dedupeKey := req.Key.DedupeKey()
	_, err = c.queue.FindLiveByDedupeKey(ctx, model.JobTypePolicyRunV1, dedupeKey)
	switch {
	case err == nil:
		return RunStatus{State: RunStatePending, RetryAfter: c.retryAfter}, nil
	case errors.Is(err, data.ErrJobNotFound):
		// unseen, enqueue below
	default:
		return RunStatus{}, fmt.Errorf("find live job: %w", err)
	}

	return c.enqueue(ctx, req.Key, dedupeKey)
}

// Cancel removes the live queued job for a run key. A key that already has a
// completed run is rejected as already completed.
func (c *Coordinator) Cancel(ctx context.Context, key model.RunKey) (CancelOutcome, error) {
	if err := key.Validate(); err != nil {
		return "", apperrors.Validationf("invalid run key: %v", err)
	}

	identity, err := c.identity(key)
	if err != nil {
		return "", apperrors.Validationf("%v", err)
	}

	_, err = c.store.GetRunSummary(ctx, identity)
	switch {
	case err == nil:
		return CancelOutcomeAlreadyCompleted, nil
	case errors.Is(err, data.ErrRunNotFound):
		// no run yet, the job may still be cancelable
	default:
		return "", fmt.Errorf("get run summary: %w", err)
	}

	deleted, err := c.queue.DeleteByDedupeKey(ctx, model.JobTypePolicyRunV1, key.DedupeKey())
	if err != nil {
		return "", fmt.Errorf("delete queued job: %w", err)
	}
	if deleted == 0 {
		return CancelOutcomeNotFound, nil
	}

	c.logger.InfoContext(ctx, "canceled queued run",
		"system_id", key.SystemID,
		"dedupe_key", key.DedupeKey(),
	)
	return CancelOutcomeCanceled, nil
}

func (c *Coordinator) identity(key model.RunKey) (model.RunIdentity, error) {
	specSHA, err := c.SpecSHA256(key.PolicyVersion)
	if err != nil {
		return model.RunIdentity{}, err
	}
	return model.RunIdentity{
		SystemID:         key.SystemID,
		PolicyVersion:    key.PolicyVersion,
		PolicySpecSHA256: specSHA,
		SV:               key.SV,
		DecisionBucketTS: time.Unix(key.DecisionBucket, 0).UTC(),
		HorizonSteps:     key.HorizonSteps,
	}, nil
}

// checkPrecondition recomputes the canonical snapshot identity at the
// effective decision bucket and rejects the request on any disagreement with
// the caller's assertion. This guards against the station feed moving
// underneath a long-running request.
func (c *Coordinator) checkPrecondition(ctx context.Context, key model.RunKey, pre SnapshotPrecondition) error {
	requested := time.Unix(key.DecisionBucket, 0).UTC()

	bucket, err := c.snapshots.ResolveBucket(ctx, key.SystemID, requested)
	if err != nil {
		if errors.Is(err, data.ErrNoSnapshot) {
			return apperrors.Preconditionf(
				"no snapshot available for system %q at or before %s",
				key.SystemID, requested.Format(time.RFC3339))
		}
		return fmt.Errorf("resolve snapshot bucket: %w", err)
	}

	current, err := c.snapshots.SnapshotIdentity(ctx, key.SystemID, bucket)
	if err != nil {
		return fmt.Errorf("compute snapshot identity: %w", err)
	}

	if current.ViewSnapshotID != pre.ViewSnapshotID ||
		current.ViewSnapshotSHA256 != pre.ViewSnapshotSHA256 {
		return &SnapshotMismatchError{Requested: pre, Current: current}
	}
	return nil
}

func (c *Coordinator) readyStatus(ctx context.Context, run *model.PolicyRun, includeMoves bool) (RunStatus, error) {
	status := RunStatus{State: RunStateReady, Run: run}
	if !includeMoves || run.MoveCount == 0 {
		return status, nil
	}

	moves, err := c.store.ListMoves(ctx, run.RunID, c.movesLimit)
	if err != nil {
		return RunStatus{}, fmt.Errorf("list moves: %w", err)
	}
	status.Moves = moves
	return status, nil
}

func (c *Coordinator) enqueue(ctx context.Context, key model.RunKey, dedupeKey string) (RunStatus, error) {
	payload, err := json.Marshal(model.JobPayload{
		SystemID:         key.SystemID,
		SV:               key.SV,
		DecisionBucketTS: key.DecisionBucket,
		HorizonSteps:     key.HorizonSteps,
		PolicyVersion:    key.PolicyVersion,
	})
	if err != nil {
		return RunStatus{}, fmt.Errorf("marshal job payload: %w", err)
	}

	result, err := c.queue.Enqueue(ctx, model.EnqueueRequest{
		Type:        model.JobTypePolicyRunV1,
		Payload:     payload,
		DedupeKey:   &dedupeKey,
		MaxAttempts: c.maxAttempts,
	})
	if err != nil {
		return RunStatus{}, fmt.Errorf("enqueue run job: %w", err)
	}

	if result.Deduped {
		// Raced another requester between the live-job lookup and the insert;
		// the other job covers this key.
		return RunStatus{State: RunStatePending, RetryAfter: c.retryAfter}, nil
	}

	c.logger.InfoContext(ctx, "enqueued run job",
		"job_id", result.JobID,
		"system_id", key.SystemID,
		"policy_version", key.PolicyVersion,
		"dedupe_key", dedupeKey,
	)
	return RunStatus{State: RunStatePending, RetryAfter: c.retryAfter, Enqueued: true}, nil
}

// cachedRun is a best-effort cache read; cache failures degrade to a store
// lookup, never to a request failure.
func (c *Coordinator) cachedRun(ctx context.Context, identity model.RunIdentity) *model.PolicyRun {
	if c.cache == nil {
		return nil
	}
	run, err := c.cache.Get(ctx, identity)
	if err != nil {
		c.logger.WarnContext(ctx, "run cache read failed", "error", err)
		return nil
	}
	return run
}

func (c *Coordinator) invalidateRun(ctx context.Context, identity model.RunIdentity) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, identity); err != nil {
		c.logger.WarnContext(ctx, "run cache invalidate failed", "error", err)
		return
	}
	c.logger.InfoContext(ctx, "dropped stale run cache entry",
		"system_id", identity.SystemID,
		"policy_version", identity.PolicyVersion,
	)
}

func (c *Coordinator) cacheRun(ctx context.Context, run *model.PolicyRun) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(ctx, run); err != nil {
		c.logger.WarnContext(ctx, "run cache write failed", "error", err)
	}
}
