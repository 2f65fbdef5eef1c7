package policyworker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
	"github.com/urbanflow/rebal/internal/mocks"
	"github.com/urbanflow/rebal/internal/testutil"
)

type executorFixture struct {
	store     *mocks.MockOutputStore
	snapshots *mocks.MockSnapshotReader
	exec      *executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &executorFixture{
		store:     mocks.NewMockOutputStore(ctrl),
		snapshots: mocks.NewMockSnapshotReader(ctrl),
	}

	exec, err := newExecutor(executorOptions{
		Store:     f.store,
		Snapshots: f.snapshots,
		Spec:      fallbackSpec(),
		Fallback:  FallbackConfig{Enabled: true},
		Validator: validator.New(),
		Logger:    testutil.DiscardLogger(),
	})
	require.NoError(t, err)
	f.exec = exec
	return f
}

func testJob(t *testing.T, payload model.JobPayload) model.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return model.Job{
		ID:          "7e6f0a1c-9f0f-4e6e-a2e7-1f4a0d0c9b10",
		Type:        model.JobTypePolicyRunV1,
		Payload:     raw,
		Attempts:    1,
		MaxAttempts: 10,
	}
}

func testPayload() model.JobPayload {
	return model.JobPayload{
		SystemID:         "metro-bike",
		SV:               "sv-abc123",
		DecisionBucketTS: 1756500000,
		HorizonSteps:     12,
		PolicyVersion:    "rebal.greedy.v1",
	}
}

func TestExecuteSuccessPersistsRunAndMoves(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	bucket := time.Unix(payload.DecisionBucketTS, 0).UTC()

	f.snapshots.EXPECT().
		ResolveBucket(gomock.Any(), payload.SystemID, bucket).
		Return(bucket, nil)
	f.snapshots.EXPECT().
		GetStationsAt(gomock.Any(), payload.SystemID, bucket).
		Return([]model.Station{
			fallbackStation("d-1", 10, 10),
			fallbackStation("r-1", 10, 0),
		}, nil)
	f.snapshots.EXPECT().
		GetNeighborEdges(gomock.Any(), payload.SystemID).
		Return([]model.NeighborEdge{
			{FromStationKey: "d-1", ToStationKey: "r-1", DistM: 100, Rank: 1},
		}, nil)

	// Provisional stub first, then the transactional result write.
	f.store.EXPECT().
		UpsertRun(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, run *model.PolicyRun) (string, error) {
			assert.Equal(t, model.RunStatusFail, run.Status)
			require.NotNil(t, run.ErrorReason)
			assert.Equal(t, "persisting_moves", *run.ErrorReason)
			return "run-1", nil
		})
	f.store.EXPECT().
		PersistResult(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params data.PersistParams) (string, error) {
			assert.Equal(t, model.RunStatusSuccess, params.Run.Status)
			assert.Equal(t, model.InputQualityOK, params.Run.InputQuality)
			assert.False(t, params.Run.NoOp)
			require.Len(t, params.Moves, 1)
			assert.Equal(t, 1, params.Moves[0].MoveRank)
			assert.Equal(t, "d-1", params.Moves[0].FromStationKey)
			assert.Equal(t, "r-1", params.Moves[0].ToStationKey)
			return "run-1", nil
		})

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.NoError(t, out.Err)
	assert.Empty(t, out.RetryReason)
	assert.False(t, out.NoOp)
}

func TestExecuteMalformedPayloadIsTerminal(t *testing.T) {
	f := newExecutorFixture(t)
	job := model.Job{ID: "job-1", Type: model.JobTypePolicyRunV1, Payload: []byte("{not json")}

	out := f.exec.Execute(context.Background(), job)
	require.Error(t, out.Err)
	assert.Empty(t, out.RetryReason, "malformed payloads must not be retried")
}

func TestExecuteMissingFieldsIsTerminal(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	payload.SV = ""

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.Error(t, out.Err)
	assert.Empty(t, out.RetryReason)
}

func TestExecuteUnsupportedPolicyVersionWritesFailStub(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	payload.PolicyVersion = "rebal.quantum.v9"

	f.store.EXPECT().
		UpsertRun(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, run *model.PolicyRun) (string, error) {
			assert.Equal(t, model.RunStatusFail, run.Status)
			require.NotNil(t, run.ErrorReason)
			assert.Contains(t, *run.ErrorReason, "unsupported policy version")
			return "run-1", nil
		})

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.Error(t, out.Err)
	assert.Empty(t, out.RetryReason)
}

func TestExecuteNoSnapshotPersistsBlockedNoOp(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	bucket := time.Unix(payload.DecisionBucketTS, 0).UTC()

	f.snapshots.EXPECT().
		ResolveBucket(gomock.Any(), payload.SystemID, bucket).
		Return(time.Time{}, data.ErrNoSnapshot)

	f.store.EXPECT().
		UpsertRun(gomock.Any(), gomock.Any()).
		Return("run-1", nil)
	f.store.EXPECT().
		PersistResult(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params data.PersistParams) (string, error) {
			assert.Equal(t, model.RunStatusSuccess, params.Run.Status)
			assert.Equal(t, model.InputQualityBlocked, params.Run.InputQuality)
			assert.True(t, params.Run.NoOp)
			require.NotNil(t, params.Run.NoOpReason)
			assert.Empty(t, params.Moves)
			return "run-1", nil
		})

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.NoError(t, out.Err)
	assert.True(t, out.NoOp)
}

func TestExecuteSnapshotReadErrorIsRetried(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	bucket := time.Unix(payload.DecisionBucketTS, 0).UTC()

	f.snapshots.EXPECT().
		ResolveBucket(gomock.Any(), payload.SystemID, bucket).
		Return(time.Time{}, errors.New("connection refused"))

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.Error(t, out.Err)
	assert.Equal(t, retryReasonSnapshotRead, out.RetryReason)
	assert.NotEmpty(t, out.RetryDetails)
}

func TestExecutePersistFailureIsRetried(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	bucket := time.Unix(payload.DecisionBucketTS, 0).UTC()

	f.snapshots.EXPECT().
		ResolveBucket(gomock.Any(), payload.SystemID, bucket).
		Return(bucket, nil)
	f.snapshots.EXPECT().
		GetStationsAt(gomock.Any(), payload.SystemID, bucket).
		Return([]model.Station{
			fallbackStation("d-1", 10, 10),
			fallbackStation("r-1", 10, 0),
		}, nil)
	f.snapshots.EXPECT().
		GetNeighborEdges(gomock.Any(), payload.SystemID).
		Return([]model.NeighborEdge{
			{FromStationKey: "d-1", ToStationKey: "r-1", DistM: 100, Rank: 1},
		}, nil)
	f.store.EXPECT().
		UpsertRun(gomock.Any(), gomock.Any()).
		Return("", errors.New("deadlock detected"))

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.Error(t, out.Err)
	assert.Equal(t, retryReasonPersist, out.RetryReason)
}

func TestExecuteSynthesizesRingWhenNoEdges(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	bucket := time.Unix(payload.DecisionBucketTS, 0).UTC()

	f.snapshots.EXPECT().
		ResolveBucket(gomock.Any(), payload.SystemID, bucket).
		Return(bucket, nil)
	f.snapshots.EXPECT().
		GetStationsAt(gomock.Any(), payload.SystemID, bucket).
		Return([]model.Station{
			fallbackStation("d-1", 10, 10),
			fallbackStation("r-1", 10, 0),
		}, nil)
	f.snapshots.EXPECT().
		GetNeighborEdges(gomock.Any(), payload.SystemID).
		Return(nil, nil)

	f.store.EXPECT().
		UpsertRun(gomock.Any(), gomock.Any()).
		Return("run-1", nil)
	f.store.EXPECT().
		PersistResult(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params data.PersistParams) (string, error) {
			assert.Equal(t, model.InputQualityDegraded, params.Run.InputQuality)
			require.NotEmpty(t, params.Moves)
			return "run-1", nil
		})

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.NoError(t, out.Err)
}

func TestExecuteEmptyStationsPersistsBlockedNoOp(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	bucket := time.Unix(payload.DecisionBucketTS, 0).UTC()

	f.snapshots.EXPECT().
		ResolveBucket(gomock.Any(), payload.SystemID, bucket).
		Return(bucket, nil)
	f.snapshots.EXPECT().
		GetStationsAt(gomock.Any(), payload.SystemID, bucket).
		Return(nil, nil)

	f.store.EXPECT().
		UpsertRun(gomock.Any(), gomock.Any()).
		Return("run-1", nil)
	f.store.EXPECT().
		PersistResult(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params data.PersistParams) (string, error) {
			assert.Equal(t, model.InputQualityBlocked, params.Run.InputQuality)
			assert.True(t, params.Run.NoOp)
			return "run-1", nil
		})

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.NoError(t, out.Err)
	assert.True(t, out.NoOp)
}

func TestExecuteFallbackTagsMoves(t *testing.T) {
	f := newExecutorFixture(t)
	payload := testPayload()
	bucket := time.Unix(payload.DecisionBucketTS, 0).UTC()

	// Inside the primary band but not perfectly balanced: only the cascade's
	// loosened band produces a move.
	f.snapshots.EXPECT().
		ResolveBucket(gomock.Any(), payload.SystemID, bucket).
		Return(bucket, nil)
	f.snapshots.EXPECT().
		GetStationsAt(gomock.Any(), payload.SystemID, bucket).
		Return([]model.Station{
			fallbackStation("d-1", 10, 6),
			fallbackStation("r-1", 10, 4),
		}, nil)
	f.snapshots.EXPECT().
		GetNeighborEdges(gomock.Any(), payload.SystemID).
		Return([]model.NeighborEdge{
			{FromStationKey: "d-1", ToStationKey: "r-1", DistM: 100, Rank: 1},
		}, nil)

	f.store.EXPECT().
		UpsertRun(gomock.Any(), gomock.Any()).
		Return("run-1", nil)
	f.store.EXPECT().
		PersistResult(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, params data.PersistParams) (string, error) {
			require.NotEmpty(t, params.Moves)
			assert.Contains(t, params.Moves[0].ReasonCodes, ReasonFallbackLoosenedBand)
			return "run-1", nil
		})

	out := f.exec.Execute(context.Background(), testJob(t, payload))
	require.NoError(t, out.Err)
	assert.False(t, out.NoOp)
}
