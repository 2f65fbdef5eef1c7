// Package reaper runs the periodic retention sweep: dead-letter records and
// persisted runs older than their retention windows are deleted in batches.
package reaper

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urbanflow/rebal/internal/core"
	"github.com/urbanflow/rebal/internal/observability/metrics"
	"github.com/urbanflow/rebal/internal/observability/statsd"
)

// Defaults applied by NewRunner when options are zero.
const (
	DefaultInterval     = time.Hour
	DefaultDLQRetention = 14 * 24 * time.Hour
	DefaultRunRetention = 30 * 24 * time.Hour
	DefaultBatchSize    = 500
)

// RunnerOptions configures the retention reaper.
type RunnerOptions struct {
	Queue core.DLQPruner // Required: dead-letter pruning
	Runs  core.RunPruner // Required: run pruning

	Interval     time.Duration // sweep cadence; defaults to 1h
	DLQRetention time.Duration // DLQ record age limit; defaults to 14d
	RunRetention time.Duration // run age limit; defaults to 30d
	BatchSize    int           // rows per delete batch; defaults to 500

	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: sweep metrics

	// now overrides the clock in tests.
	now func() time.Time
}

// Runner performs retention sweeps at a fixed interval until stopped.
type Runner struct {
	queue   core.DLQPruner
	runs    core.RunPruner
	logger  *slog.Logger
	metrics statsd.Sink

	interval     time.Duration
	dlqRetention time.Duration
	runRetention time.Duration
	batchSize    int
	now          func() time.Time
}

// NewRunner creates a retention reaper with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("DLQPruner is required")
	}
	if opts.Runs == nil {
		return nil, errors.New("RunPruner is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	return &Runner{
		queue:        opts.Queue,
		runs:         opts.Runs,
		logger:       logger.With("component", "reaper"),
		metrics:      opts.Metrics,
		interval:     defaultDuration(opts.Interval, DefaultInterval),
		dlqRetention: defaultDuration(opts.DLQRetention, DefaultDLQRetention),
		runRetention: defaultDuration(opts.RunRetention, DefaultRunRetention),
		batchSize:    defaultInt(opts.BatchSize, DefaultBatchSize),
		now:          now,
	}, nil
}

// Run sweeps immediately, then on every tick, until the context is cancelled.
// Sweep errors are logged and the loop keeps going.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper",
		"interval", r.interval,
		"dlq_retention", r.dlqRetention,
		"run_retention", r.runRetention,
	)

	// Jitter the first sweep so restarted replicas do not all hit the
	// database at once.
	if !r.waitWithJitter(ctx) {
		return nil
	}

	if err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one retention pass over both stores. Each target is swept even
// when the other fails; the joined error is returned.
func (r *Runner) Sweep(ctx context.Context) error {
	now := r.now().UTC()
	var errs []error

	if err := r.sweepTarget(ctx, "dlq", func(ctx context.Context) (int64, error) {
		return r.pruneLoop(ctx, func(ctx context.Context) (int64, error) {
			return r.queue.PruneDLQ(ctx, now.Add(-r.dlqRetention), r.batchSize)
		})
	}); err != nil {
		errs = append(errs, fmt.Errorf("prune dlq: %w", err))
	}

	if err := r.sweepTarget(ctx, "runs", func(ctx context.Context) (int64, error) {
		return r.pruneLoop(ctx, func(ctx context.Context) (int64, error) {
			return r.runs.PruneRuns(ctx, now.Add(-r.runRetention), r.batchSize)
		})
	}); err != nil {
		errs = append(errs, fmt.Errorf("prune runs: %w", err))
	}

	return errors.Join(errs...)
}

func (r *Runner) sweepTarget(ctx context.Context, target string, fn func(context.Context) (int64, error)) error {
	start := time.Now()
	deleted, err := fn(ctx)

	metrics.EmitRetentionSweep(r.metrics, metrics.RetentionMetric{
		Target:  target,
		Deleted: deleted,
		Elapsed: time.Since(start),
		Err:     err,
	})

	if err != nil {
		return err
	}
	if deleted > 0 {
		r.logger.InfoContext(ctx, "retention sweep pruned rows",
			"target", target, "deleted", deleted)
	}
	return nil
}

// pruneLoop repeats a batched delete until it comes back empty, so a large
// backlog is drained without one huge statement.
func (r *Runner) pruneLoop(ctx context.Context, fn func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := fn(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// waitWithJitter sleeps up to 10% of the interval, reporting whether the loop
// should keep running.
func (r *Runner) waitWithJitter(ctx context.Context) bool {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return ctx.Err() == nil
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ctx.Err() == nil
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-ctx.Done():
		return false
	case <-time.After(jitter):
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
