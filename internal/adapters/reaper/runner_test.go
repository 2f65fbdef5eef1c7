package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanflow/rebal/internal/testutil"
)

// fakePruner satisfies both pruning ports. Batches are drained one entry per
// call, then zero, the way the repos report batch exhaustion.
type fakePruner struct {
	dlqBatches []int64
	runBatches []int64
	dlqErr     error
	runErr     error

	dlqCalls    int
	runCalls    int
	lastDLQCut  time.Time
	lastRunsCut time.Time
}

func (f *fakePruner) PruneDLQ(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	f.dlqCalls++
	f.lastDLQCut = cutoff
	if f.dlqErr != nil {
		return 0, f.dlqErr
	}
	if f.dlqCalls <= len(f.dlqBatches) {
		return f.dlqBatches[f.dlqCalls-1], nil
	}
	return 0, nil
}

func (f *fakePruner) PruneRuns(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	f.runCalls++
	f.lastRunsCut = cutoff
	if f.runErr != nil {
		return 0, f.runErr
	}
	if f.runCalls <= len(f.runBatches) {
		return f.runBatches[f.runCalls-1], nil
	}
	return 0, nil
}

func newTestRunner(t *testing.T, pruner *fakePruner) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerOptions{
		Queue:  pruner,
		Runs:   pruner,
		Logger: testutil.DiscardLogger(),
		now:    testutil.FixedTimeFunc(testutil.TestTime()),
	})
	require.NoError(t, err)
	return runner
}

func TestNewRunnerRequiresPruners(t *testing.T) {
	pruner := &fakePruner{}

	_, err := NewRunner(RunnerOptions{Runs: pruner})
	assert.Error(t, err)

	_, err = NewRunner(RunnerOptions{Queue: pruner})
	assert.Error(t, err)
}

func TestNewRunnerAppliesDefaults(t *testing.T) {
	runner := newTestRunner(t, &fakePruner{})

	assert.Equal(t, DefaultInterval, runner.interval)
	assert.Equal(t, DefaultDLQRetention, runner.dlqRetention)
	assert.Equal(t, DefaultRunRetention, runner.runRetention)
	assert.Equal(t, DefaultBatchSize, runner.batchSize)
}

func TestSweepPrunesBothTargetsWithRetentionCutoffs(t *testing.T) {
	pruner := &fakePruner{dlqBatches: []int64{3}, runBatches: []int64{7}}
	runner := newTestRunner(t, pruner)

	require.NoError(t, runner.Sweep(context.Background()))

	assert.Equal(t, testutil.TestTime().Add(-DefaultDLQRetention), pruner.lastDLQCut)
	assert.Equal(t, testutil.TestTime().Add(-DefaultRunRetention), pruner.lastRunsCut)
}

func TestSweepDrainsBacklogInBatches(t *testing.T) {
	pruner := &fakePruner{dlqBatches: []int64{500, 500, 12}}
	runner := newTestRunner(t, pruner)

	require.NoError(t, runner.Sweep(context.Background()))

	// Three full-or-partial batches plus the empty terminator.
	assert.Equal(t, 4, pruner.dlqCalls)
}

func TestSweepContinuesPastFailedTarget(t *testing.T) {
	pruner := &fakePruner{dlqErr: errors.New("deadlock detected"), runBatches: []int64{2}}
	runner := newTestRunner(t, pruner)

	err := runner.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prune dlq")

	// The runs target was still swept.
	assert.Positive(t, pruner.runCalls)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	pruner := &fakePruner{}
	runner, err := NewRunner(RunnerOptions{
		Queue:    pruner,
		Runs:     pruner,
		Interval: 10 * time.Millisecond,
		Logger:   testutil.DiscardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, runner.Run(ctx))
	assert.Positive(t, pruner.dlqCalls)
}
