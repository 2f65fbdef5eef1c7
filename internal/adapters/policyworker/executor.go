package policyworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/urbanflow/rebal/internal/core"
	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
	"github.com/urbanflow/rebal/internal/engine"
)

// Retry reason codes recorded on the queue item when a transient failure
// sends it back for another attempt.
const (
	retryReasonSnapshotRead = "snapshot_read_error"
	retryReasonPersist      = "persist_error"
)

// maxErrorReasonLen bounds the error text stored on a failure run stub.
const maxErrorReasonLen = 512

// outcome is the result of executing one job.
type outcome struct {
	// Err is the processing error, if any. A non-empty RetryReason means the
	// job should be failed (retried or dead-lettered) instead of acked.
	Err          error
	NoOp         bool
	NoOpReason   string
	Moves        int
	RetryReason  string
	RetryDetails json.RawMessage
}

type executorOptions struct {
	Store     core.OutputStore
	Snapshots core.SnapshotReader
	Spec      model.PolicySpec
	Fallback  FallbackConfig
	Validator *validator.Validate
	Logger    *slog.Logger
}

// executor runs the per-job pipeline: decode, load snapshot, optimize,
// escalate through the fallback cascade, persist.
type executor struct {
	store     core.OutputStore
	snapshots core.SnapshotReader
	spec      model.PolicySpec
	fallback  FallbackConfig
	validate  *validator.Validate
	logger    *slog.Logger
}

func newExecutor(opts executorOptions) (*executor, error) {
	if opts.Validator == nil {
		return nil, errors.New("validator is required")
	}
	return &executor{
		store:     opts.Store,
		snapshots: opts.Snapshots,
		spec:      opts.Spec,
		fallback:  opts.Fallback.withDefaults(),
		validate:  opts.Validator,
		logger:    opts.Logger,
	}, nil
}

// Execute processes one claimed job. Validation failures and engine errors
// are terminal: a failure run stub is persisted and the caller acks. Only
// snapshot reads and persistence go through the queue retry path.
func (e *executor) Execute(ctx context.Context, job model.Job) outcome {
	var payload model.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return e.terminalFail(ctx, nil, fmt.Errorf("decode payload: %w", err))
	}
	if err := e.validate.Struct(payload); err != nil {
		return e.terminalFail(ctx, nil, fmt.Errorf("validate payload: %w", err))
	}

	spec, err := engine.SpecForVersion(e.spec, payload.PolicyVersion)
	if err != nil {
		return e.terminalFail(ctx, &payload, err)
	}
	specSHA, err := engine.SpecSHA256(spec)
	if err != nil {
		return e.terminalFail(ctx, &payload, err)
	}

	run := model.PolicyRun{
		SystemID:         payload.SystemID,
		PolicyVersion:    payload.PolicyVersion,
		PolicySpecSHA256: specSHA,
		SV:               payload.SV,
		DecisionBucketTS: time.Unix(payload.DecisionBucketTS, 0).UTC(),
		HorizonSteps:     payload.HorizonSteps,
	}

	input, quality, err := e.loadInput(ctx, payload, spec)
	if err != nil {
		return retryOutcome(retryReasonSnapshotRead, err)
	}
	run.InputQuality = quality

	if quality == model.InputQualityBlocked {
		return e.persistNoOp(ctx, run, input.Stations, spec)
	}

	result, err := engine.Run(input)
	if err != nil {
		return e.terminalFail(ctx, &payload, err)
	}

	moves := result.Moves
	if len(moves) == 0 && e.fallback.Enabled && eligibleCount(input.Stations, spec) > 1 {
		if fb := runFallbackCascade(input, e.fallback, e.logger); fb != nil {
			moves = fb
		}
	}

	if len(moves) == 0 {
		return e.persistNoOp(ctx, run, input.Stations, spec)
	}

	run.Status = model.RunStatusSuccess
	return e.persist(ctx, run, movesToRows(moves))
}

// loadInput resolves the snapshot bucket and loads stations and edges.
// Missing snapshots and empty station sets are not errors: they surface as
// blocked input quality and a legitimate no-op run.
func (e *executor) loadInput(ctx context.Context, payload model.JobPayload, spec model.PolicySpec) (engine.Input, string, error) {
	input := engine.Input{
		SystemID:         payload.SystemID,
		DecisionBucketTS: payload.DecisionBucketTS,
		Spec:             spec,
	}

	bucket, err := e.snapshots.ResolveBucket(ctx, payload.SystemID, time.Unix(payload.DecisionBucketTS, 0).UTC())
	if err != nil {
		if errors.Is(err, data.ErrNoSnapshot) {
			e.logger.WarnContext(ctx, "no snapshot at or before decision bucket",
				"system_id", payload.SystemID,
				"decision_bucket_ts", payload.DecisionBucketTS,
			)
			return input, model.InputQualityBlocked, nil
		}
		return input, "", fmt.Errorf("resolve snapshot bucket: %w", err)
	}

	stations, err := e.snapshots.GetStationsAt(ctx, payload.SystemID, bucket)
	if err != nil {
		return input, "", fmt.Errorf("load stations: %w", err)
	}
	input.Stations = stations
	if len(stations) == 0 {
		return input, model.InputQualityBlocked, nil
	}

	edges, err := e.snapshots.GetNeighborEdges(ctx, payload.SystemID)
	if err != nil {
		return input, "", fmt.Errorf("load neighbor edges: %w", err)
	}

	quality := model.InputQualityOK
	if len(edges) == 0 {
		// Degraded-input fallback: the engine must never see an empty
		// neighborhood, so synthesize wrap-around ring edges between the
		// stations as loaded.
		edges = synthesizeRingEdges(stations, spec.Neighborhood.MaxNeighbors)
		quality = model.InputQualityDegraded
		e.logger.WarnContext(ctx, "no stored neighbor edges, synthesized ring topology",
			"system_id", payload.SystemID,
			"stations", len(stations),
			"edges", len(edges),
		)
	}
	input.Edges = edges

	return input, quality, nil
}

// persistNoOp writes a successful no-op run with its inferred reason.
func (e *executor) persistNoOp(ctx context.Context, run model.PolicyRun, stations []model.Station, spec model.PolicySpec) outcome {
	reason := engine.InferNoOpReason(stations, spec)
	run.Status = model.RunStatusSuccess
	run.NoOp = true
	run.NoOpReason = &reason
	return e.persist(ctx, run, nil)
}

// persist writes the run and its moves. A provisional failure stub lands
// first so a crash between the two writes leaves an honest record; the final
// write replaces it in place on the same natural key.
func (e *executor) persist(ctx context.Context, run model.PolicyRun, moves []model.PolicyMove) outcome {
	stub := run
	stub.Status = model.RunStatusFail
	stubReason := "persisting_moves"
	stub.ErrorReason = &stubReason
	stub.NoOp = false
	stub.NoOpReason = nil

	if _, err := e.store.UpsertRun(ctx, &stub); err != nil {
		return retryOutcome(retryReasonPersist, fmt.Errorf("upsert provisional run: %w", err))
	}

	if _, err := e.store.PersistResult(ctx, data.PersistParams{Run: run, Moves: moves}); err != nil {
		return retryOutcome(retryReasonPersist, fmt.Errorf("persist run result: %w", err))
	}

	e.logger.InfoContext(ctx, "persisted run",
		"system_id", run.SystemID,
		"policy_version", run.PolicyVersion,
		"moves", len(moves),
		"no_op", run.NoOp,
	)
	out := outcome{NoOp: run.NoOp, Moves: len(moves)}
	if run.NoOpReason != nil {
		out.NoOpReason = *run.NoOpReason
	}
	return out
}

// terminalFail handles errors with no retry value: a failure run stub is
// written best-effort and the job is acked by the caller.
func (e *executor) terminalFail(ctx context.Context, payload *model.JobPayload, cause error) outcome {
	e.logger.ErrorContext(ctx, "terminal job failure", "error", cause)

	if payload != nil {
		reason := truncate(cause.Error(), maxErrorReasonLen)
		// Bind the stub to the requested version where possible so the
		// coordinator reports it under the identity callers ask about.
		spec, err := engine.SpecForVersion(e.spec, payload.PolicyVersion)
		if err != nil {
			spec = e.spec
		}
		specSHA, err := engine.SpecSHA256(spec)
		if err == nil {
			stub := model.PolicyRun{
				SystemID:         payload.SystemID,
				PolicyVersion:    payload.PolicyVersion,
				PolicySpecSHA256: specSHA,
				SV:               payload.SV,
				DecisionBucketTS: time.Unix(payload.DecisionBucketTS, 0).UTC(),
				HorizonSteps:     payload.HorizonSteps,
				InputQuality:     model.InputQualityBlocked,
				Status:           model.RunStatusFail,
				ErrorReason:      &reason,
			}
			if _, err := e.store.UpsertRun(ctx, &stub); err != nil {
				e.logger.ErrorContext(ctx, "failed to persist failure stub", "error", err)
			}
		}
	}

	return outcome{Err: cause}
}

func retryOutcome(reason string, cause error) outcome {
	details, _ := json.Marshal(map[string]string{"error": truncate(cause.Error(), maxErrorReasonLen)})
	return outcome{Err: cause, RetryReason: reason, RetryDetails: details}
}

// synthesizeRingEdges connects each station to its k nearest-by-index
// neighbors with wrap-around, at a fixed synthetic spacing per index step.
func synthesizeRingEdges(stations []model.Station, k int) []model.NeighborEdge {
	const syntheticSpacingM = 250.0

	n := len(stations)
	if n < 2 {
		return nil
	}
	if k <= 0 {
		k = 2
	}
	if k > n-1 {
		k = n - 1
	}

	edges := make([]model.NeighborEdge, 0, n*k*2)
	for i, from := range stations {
		for offset := 1; offset <= k; offset++ {
			ahead := stations[(i+offset)%n]
			behind := stations[((i-offset)%n+n)%n]
			dist := syntheticSpacingM * float64(offset)
			edges = append(edges,
				model.NeighborEdge{FromStationKey: from.StationKey, ToStationKey: ahead.StationKey, DistM: dist, Rank: offset})
			if behind.StationKey != ahead.StationKey {
				edges = append(edges,
					model.NeighborEdge{FromStationKey: from.StationKey, ToStationKey: behind.StationKey, DistM: dist, Rank: offset})
			}
		}
	}
	return edges
}

// eligibleCount counts stations that pass the capacity and quality gates.
func eligibleCount(stations []model.Station, spec model.PolicySpec) int {
	count := 0
	for _, s := range stations {
		if s.Capacity >= spec.MissingData.MinCapacityForPolicy && spec.QualityAllowed(s.BucketQuality) {
			count++
		}
	}
	return count
}

func movesToRows(moves []engine.Move) []model.PolicyMove {
	rows := make([]model.PolicyMove, 0, len(moves))
	for i, m := range moves {
		rows = append(rows, model.PolicyMove{
			MoveRank:       i + 1,
			FromStationKey: m.FromStationKey,
			ToStationKey:   m.ToStationKey,
			BikesMoved:     m.BikesMoved,
			DistM:          m.DistM,
			ReasonCodes:    m.ReasonCodes,
		})
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
