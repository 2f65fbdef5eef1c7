package data_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
	"github.com/urbanflow/rebal/internal/testutil"
)

func newQueueRepo(db *sql.DB, tp data.TimeProvider) *data.QueueRepo {
	return data.NewQueueRepo(db, data.QueueRepoConfig{
		RepoConfig: data.RepoConfig{
			Logger:       testutil.DiscardLogger(),
			TimeProvider: tp,
		},
	})
}

func TestEnqueueDedupeInvariant(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newQueueRepo(db, nil)
		req := testutil.NewEnqueueRequest().WithRunKey(testutil.RunKey()).Build()

		first, err := repo.Enqueue(ctx, req)
		require.NoError(t, err)
		assert.False(t, first.Deduped)
		assert.NotEmpty(t, first.JobID)

		second, err := repo.Enqueue(ctx, req)
		require.NoError(t, err)
		assert.True(t, second.Deduped)
		assert.Empty(t, second.JobID)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Visible)
	})
}

func TestEnqueueWithoutDedupeKeyAllowsDuplicates(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newQueueRepo(db, nil)
		req := testutil.NewEnqueueRequest().Build()

		for range 2 {
			result, err := repo.Enqueue(ctx, req)
			require.NoError(t, err)
			assert.False(t, result.Deduped)
		}

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Visible)
	})
}

func TestClaimLeasesAndIncrementsAttempts(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newQueueRepo(db, nil)

		_, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().Build())
		require.NoError(t, err)

		jobs, err := repo.Claim(ctx, data.ClaimParams{
			Type:              model.JobTypePolicyRunV1,
			Limit:             5,
			VisibilityTimeout: time.Minute,
		})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, 1, jobs[0].Attempts)
		assert.True(t, jobs[0].VisibleAt.After(time.Now().UTC().Add(30*time.Second)))

		// The lease hides the job from subsequent claims.
		again, err := repo.Claim(ctx, data.ClaimParams{
			Type:              model.JobTypePolicyRunV1,
			Limit:             5,
			VisibilityTimeout: time.Minute,
		})
		require.NoError(t, err)
		assert.Empty(t, again)
	})
}

func TestClaimZeroVisibilityFallsBackToLeaseDefault(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := data.NewFixedTimeProvider(testutil.TestTime())
		repo := newQueueRepo(db, tp)

		_, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().Build())
		require.NoError(t, err)

		// A zero timeout must not grant an already-expired lease: the repo's
		// lease policy substitutes its default.
		first, err := repo.Claim(ctx, data.ClaimParams{Limit: 1})
		require.NoError(t, err)
		require.Len(t, first, 1)
		assert.WithinDuration(t, testutil.TestTime().Add(time.Minute), first[0].VisibleAt, time.Second)

		again, err := repo.Claim(ctx, data.ClaimParams{Limit: 1})
		require.NoError(t, err)
		assert.Empty(t, again)

		tp.AddTime(2 * time.Minute)
		second, err := repo.Claim(ctx, data.ClaimParams{Limit: 1})
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].ID, second[0].ID)
	})
}

func TestClaimExpiredLeaseIsReclaimable(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := data.NewFixedTimeProvider(testutil.TestTime())
		repo := newQueueRepo(db, tp)

		_, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().Build())
		require.NoError(t, err)

		first, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
		require.NoError(t, err)
		require.Len(t, first, 1)

		// Crash simulation: the worker never acks. Past the lease the job is
		// claimable again, with a higher attempt count.
		tp.AddTime(2 * time.Minute)
		second, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].ID, second[0].ID)
		assert.Equal(t, 2, second[0].Attempts)
	})
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newQueueRepo(db, nil)

		_, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().Build())
		require.NoError(t, err)

		claimed := make(chan int, 2)
		runner := testutil.NewConcurrentTestRunner(t, db)
		errs := runner.RunConcurrent(
			func() error {
				jobs, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
				claimed <- len(jobs)
				return err
			},
			func() error {
				jobs, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
				claimed <- len(jobs)
				return err
			},
		)
		runner.AssertNoErrors(errs)

		total := <-claimed + <-claimed
		assert.Equal(t, 1, total, "exactly one claimer receives the job")
	})
}

func TestAckIsIdempotent(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newQueueRepo(db, nil)

		result, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().Build())
		require.NoError(t, err)

		require.NoError(t, repo.Ack(ctx, result.JobID))
		require.NoError(t, repo.Ack(ctx, result.JobID))

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Visible+stats.Leased)
	})
}

func TestFailRequeuesWithBackoff(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := data.NewFixedTimeProvider(testutil.TestTime())
		repo := newQueueRepo(db, tp)

		_, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().Build())
		require.NoError(t, err)

		jobs, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		result, err := repo.Fail(ctx, data.FailParams{JobID: jobs[0].ID, ReasonCode: "snapshot_read_error"})
		require.NoError(t, err)
		assert.False(t, result.MovedToDLQ)

		// Backoff for attempt 1 is 2s: invisible at +1s, visible at +3s.
		tp.AddTime(time.Second)
		invisible, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
		require.NoError(t, err)
		assert.Empty(t, invisible)

		tp.AddTime(2 * time.Second)
		visible, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
		require.NoError(t, err)
		assert.Len(t, visible, 1)
	})
}

func TestFailEscalatesToDLQAfterMaxAttempts(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := data.NewFixedTimeProvider(testutil.TestTime())
		repo := newQueueRepo(db, tp)

		key := testutil.RunKey()
		req := testutil.NewEnqueueRequest().WithRunKey(key).WithMaxAttempts(2).Build()
		enq, err := repo.Enqueue(ctx, req)
		require.NoError(t, err)

		for attempt := 1; attempt <= 2; attempt++ {
			tp.AddTime(10 * time.Minute)
			jobs, claimErr := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
			require.NoError(t, claimErr)
			require.Len(t, jobs, 1, "attempt %d", attempt)

			result, failErr := repo.Fail(ctx, data.FailParams{
				JobID:      jobs[0].ID,
				ReasonCode: "persist_error",
				Details:    json.RawMessage(`{"error":"deadlock detected"}`),
			})
			require.NoError(t, failErr)
			assert.Equal(t, attempt == 2, result.MovedToDLQ, "attempt %d", attempt)
		}

		// Job row is gone; the DLQ record preserves the original payload.
		_, err = repo.FindLiveByDedupeKey(ctx, model.JobTypePolicyRunV1, key.DedupeKey())
		assert.ErrorIs(t, err, data.ErrJobNotFound)

		records, err := repo.ListDLQ(ctx, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, enq.JobID, records[0].JobID)
		assert.Equal(t, "persist_error", records[0].ReasonCode)
		assert.JSONEq(t, string(req.Payload), string(records[0].Payload))
		assert.Equal(t, 2, records[0].Attempts)
	})
}

func TestFailUnknownJob(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newQueueRepo(db, nil)
		_, err := repo.Fail(context.Background(), data.FailParams{
			JobID:      "7e6f0a1c-9f0f-4e6e-a2e7-1f4a0d0c9b10",
			ReasonCode: "x",
		})
		assert.ErrorIs(t, err, data.ErrJobNotFound)
	})
}

func TestRequeueFromDLQ(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := data.NewFixedTimeProvider(testutil.TestTime())
		repo := newQueueRepo(db, tp)

		key := testutil.RunKey()
		_, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().WithRunKey(key).WithMaxAttempts(1).Build())
		require.NoError(t, err)

		jobs, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		result, err := repo.Fail(ctx, data.FailParams{JobID: jobs[0].ID, ReasonCode: "persist_error"})
		require.NoError(t, err)
		require.True(t, result.MovedToDLQ)

		records, err := repo.ListDLQ(ctx, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)

		newJobID, err := repo.RequeueFromDLQ(ctx, records[0].DlqID)
		require.NoError(t, err)
		assert.NotEmpty(t, newJobID)

		live, err := repo.FindLiveByDedupeKey(ctx, model.JobTypePolicyRunV1, key.DedupeKey())
		require.NoError(t, err)
		assert.Equal(t, newJobID, live.ID)
		assert.Zero(t, live.Attempts, "requeue resets the attempt counter")

		remaining, err := repo.ListDLQ(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})
}

func TestDeleteByDedupeKey(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newQueueRepo(db, nil)
		key := testutil.RunKey()

		_, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().WithRunKey(key).Build())
		require.NoError(t, err)

		deleted, err := repo.DeleteByDedupeKey(ctx, model.JobTypePolicyRunV1, key.DedupeKey())
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)

		deleted, err = repo.DeleteByDedupeKey(ctx, model.JobTypePolicyRunV1, key.DedupeKey())
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}

func TestPruneDLQ(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		tp := data.NewFixedTimeProvider(testutil.TestTime())
		repo := newQueueRepo(db, tp)

		_, err := repo.Enqueue(ctx, testutil.NewEnqueueRequest().WithMaxAttempts(1).Build())
		require.NoError(t, err)
		jobs, err := repo.Claim(ctx, data.ClaimParams{Limit: 1, VisibilityTimeout: time.Minute})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		_, err = repo.Fail(ctx, data.FailParams{JobID: jobs[0].ID, ReasonCode: "persist_error"})
		require.NoError(t, err)

		// Not old enough yet.
		pruned, err := repo.PruneDLQ(ctx, tp.Now().Add(-time.Hour), 100)
		require.NoError(t, err)
		assert.Zero(t, pruned)

		pruned, err = repo.PruneDLQ(ctx, tp.Now().Add(time.Hour), 100)
		require.NoError(t, err)
		assert.EqualValues(t, 1, pruned)
	})
}
