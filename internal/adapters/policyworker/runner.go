// Package policyworker claims queued rebalancing jobs, executes the
// optimization engine against station snapshots, and persists the results.
package policyworker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/urbanflow/rebal/internal/core"
	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
	"github.com/urbanflow/rebal/internal/observability/metrics"
	"github.com/urbanflow/rebal/internal/observability/statsd"
)

// Defaults applied by NewRunner when options are zero.
const (
	DefaultConcurrency       = 2
	DefaultClaimLimit        = 5
	DefaultPollInterval      = 2 * time.Second
	DefaultVisibilityTimeout = 60 * time.Second
	DefaultErrorBackoff      = 5 * time.Second
)

// RunnerOptions configures the policy worker runner.
type RunnerOptions struct {
	Queue     core.TaskQueue      // Required: durable work queue
	Store     core.OutputStore    // Required: run/move persistence
	Snapshots core.SnapshotReader // Required: station feed reader
	Spec      model.PolicySpec    // Required: sanitized effective policy spec

	Fallback FallbackConfig // Fallback cascade configuration

	Concurrency       int           // worker goroutines; defaults to 2
	ClaimLimit        int           // jobs per claim; defaults to 5
	PollInterval      time.Duration // sleep when the queue is empty; defaults to 2s
	VisibilityTimeout time.Duration // claim lease duration; defaults to 60s
	ErrorBackoff      time.Duration // sleep after a transient store failure; defaults to 5s

	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: job lifecycle metrics
}

// Runner polls the queue and processes rebalancing jobs until stopped. Any
// number of runner processes may share one queue; claim leasing keeps them
// from executing the same job concurrently.
type Runner struct {
	executor *executor
	queue    core.TaskQueue
	logger   *slog.Logger
	metrics  statsd.Sink

	workers      int
	claimLimit   int
	pollInterval time.Duration
	visibility   time.Duration
	errorBackoff time.Duration
}

// NewRunner creates a policy worker runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("TaskQueue is required")
	}
	if opts.Store == nil {
		return nil, errors.New("OutputStore is required")
	}
	if opts.Snapshots == nil {
		return nil, errors.New("SnapshotReader is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "policy_worker")

	exec, err := newExecutor(executorOptions{
		Store:     opts.Store,
		Snapshots: opts.Snapshots,
		Spec:      opts.Spec,
		Fallback:  opts.Fallback,
		Validator: validator.New(),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &Runner{
		executor:     exec,
		queue:        opts.Queue,
		logger:       logger,
		metrics:      opts.Metrics,
		workers:      defaultInt(opts.Concurrency, DefaultConcurrency),
		claimLimit:   defaultInt(opts.ClaimLimit, DefaultClaimLimit),
		pollInterval: defaultDuration(opts.PollInterval, DefaultPollInterval),
		visibility:   defaultDuration(opts.VisibilityTimeout, DefaultVisibilityTimeout),
		errorBackoff: defaultDuration(opts.ErrorBackoff, DefaultErrorBackoff),
	}, nil
}

// Run starts the worker goroutines and blocks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting policy worker",
		"workers", r.workers,
		"claim_limit", r.claimLimit,
		"visibility_timeout", r.visibility,
	)

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.workerLoop(gctx) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// workerLoop claims and processes jobs until the context ends. Transient
// claim failures are retried after a backoff sleep, never dropped.
func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		jobs, err := r.queue.Claim(ctx, data.ClaimParams{
			Type:              model.JobTypePolicyRunV1,
			Limit:             r.claimLimit,
			VisibilityTimeout: r.visibility,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			r.logger.ErrorContext(ctx, "claim failed", "error", err)
			if !r.sleep(ctx, r.errorBackoff) {
				break
			}
			continue
		}

		if len(jobs) == 0 {
			if !r.sleep(ctx, r.pollInterval) {
				break
			}
			continue
		}

		for _, job := range jobs {
			r.processJob(ctx, job)
		}
	}
	return ctx.Err()
}

// processJob runs one claimed job end to end. A job never blocks the queue:
// every outcome except a failed persistence write ends in an ack, and
// persistence failures go through the queue's retry/DLQ path.
func (r *Runner) processJob(ctx context.Context, job model.Job) {
	logger := r.logger.With("job_id", job.ID, "attempt", job.Attempts)
	logger.InfoContext(ctx, "processing rebalancing job")

	start := time.Now()
	outcome := r.executor.Execute(ctx, job)

	if outcome.RetryReason != "" {
		result, err := r.queue.Fail(ctx, data.FailParams{
			JobID:      job.ID,
			ReasonCode: outcome.RetryReason,
			Details:    outcome.RetryDetails,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to record job failure", "error", err)
		} else if result.MovedToDLQ {
			logger.WarnContext(ctx, "job exhausted retries, moved to dlq",
				"reason", outcome.RetryReason)
		}
		r.emitRunMetric(job, "failed", metrics.ResultError, time.Since(start), outcome)
		return
	}

	if err := r.queue.Ack(ctx, job.ID); err != nil {
		logger.ErrorContext(ctx, "failed to ack job", "error", err)
	}

	result := metrics.ResultSuccess
	switch {
	case outcome.Err != nil:
		result = metrics.ResultError
		logger.WarnContext(ctx, "job completed with failure run",
			"error", outcome.Err)
	case outcome.NoOp:
		result = metrics.ResultNoop
	}
	r.emitRunMetric(job, "completed", result, time.Since(start), outcome)
}

func (r *Runner) emitRunMetric(job model.Job, transition, result string, elapsed time.Duration, out outcome) {
	metrics.EmitRunLifecycle(r.metrics, metrics.RunMetric{
		JobType:    string(job.Type),
		Transition: transition,
		Result:     result,
		NoOpReason: out.NoOpReason,
		Moves:      out.Moves,
		Duration:   elapsed,
		Err:        out.Err,
	})
}

// sleep waits for d or context cancellation, reporting whether the loop
// should keep running.
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func defaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
