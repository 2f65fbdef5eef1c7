package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/urbanflow/rebal/config"
	"github.com/urbanflow/rebal/internal/adapters/policyworker"
	"github.com/urbanflow/rebal/internal/adapters/reaper"
	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/job"
	"github.com/urbanflow/rebal/internal/observability/statsd"
	"github.com/urbanflow/rebal/internal/service"
)

// Container holds the wired application dependencies shared by every service
// mode and by the admin CLI.
type Container struct {
	Config *config.AppConfig
	Logger *slog.Logger

	Queue     *data.QueueRepo
	Runs      *data.RunRepo
	Snapshots *data.SnapshotRepo
	RunCache  *data.RunCache

	Coordinator *service.Coordinator
	MetricsSink *statsd.Client
}

// ContainerDeps groups the connections a Container is built from.
type ContainerDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient *redis.Client // optional; nil disables the run cache
	Logger      *slog.Logger
}

// BuildContainer wires repositories, observability, and the coordinator.
func BuildContainer(deps ContainerDeps) (*Container, error) {
	if deps.Config == nil {
		return nil, errors.New("app config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database connection is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metricsSink := buildMetricsSink(logger, deps.Config.Observability)

	lease, err := job.NewLeasePolicy(deps.Config.Worker.VisibilityTimeout)
	if err != nil {
		return nil, fmt.Errorf("build lease policy: %w", err)
	}
	queue := data.NewQueueRepo(deps.DB, data.QueueRepoConfig{
		RepoConfig: data.RepoConfig{Logger: logger},
		Lease:      lease,
	})
	runs := data.NewRunRepo(deps.DB, data.RepoConfig{Logger: logger})
	snapshots := data.NewSnapshotRepo(deps.DB, data.RepoConfig{Logger: logger})

	var runCache *data.RunCache
	if deps.RedisClient != nil && deps.Config.Cache.Enabled {
		runCache = data.NewRunCache(deps.RedisClient, deps.Config.Cache.RunTTL)
	}

	coordOpts := service.CoordinatorOptions{
		Queue:       queue,
		Store:       runs,
		Snapshots:   snapshots,
		Spec:        deps.Config.Policy.EffectiveSpec(),
		MaxAttempts: deps.Config.Worker.MaxAttempts,
		Logger:      logger,
	}
	if runCache != nil {
		coordOpts.Cache = runCache
	}
	coordinator, err := service.NewCoordinator(coordOpts)
	if err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}

	return &Container{
		Config:      deps.Config,
		Logger:      logger,
		Queue:       queue,
		Runs:        runs,
		Snapshots:   snapshots,
		RunCache:    runCache,
		Coordinator: coordinator,
		MetricsSink: metricsSink,
	}, nil
}

// buildMetricsSink configures the statsd client, or nil when disabled.
func buildMetricsSink(logger *slog.Logger, cfg config.ObservabilityConfig) *statsd.Client {
	if !cfg.Metrics.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// metricsSink returns the container sink as the statsd interface, keeping the
// nil-pointer-in-interface trap out of the adapters.
func (c *Container) metricsSink() statsd.Sink {
	if c.MetricsSink == nil {
		return nil
	}
	return c.MetricsSink
}

// NewPolicyWorker builds the policy worker runner from the container.
func (c *Container) NewPolicyWorker() (*policyworker.Runner, error) {
	return policyworker.NewRunner(policyworker.RunnerOptions{
		Queue:     c.Queue,
		Store:     c.Runs,
		Snapshots: c.Snapshots,
		Spec:      c.Config.Policy.EffectiveSpec(),
		Fallback: policyworker.FallbackConfig{
			Enabled:              c.Config.Fallback.Enabled,
			LoosenedAlpha:        c.Config.Fallback.LoosenedAlpha,
			LoosenedBeta:         c.Config.Fallback.LoosenedBeta,
			BudgetMultiplier:     c.Config.Fallback.BudgetMultiplier,
			BudgetFloor:          c.Config.Fallback.BudgetFloor,
			PreviewMoveBikes:     c.Config.Fallback.PreviewMoveBikes,
			UnconstrainedMoveCap: c.Config.Fallback.UnconstrainedMoveCap,
		},
		Concurrency:       c.Config.Worker.Concurrency,
		ClaimLimit:        c.Config.Worker.ClaimLimit,
		PollInterval:      c.Config.Worker.PollInterval,
		VisibilityTimeout: c.Config.Worker.VisibilityTimeout,
		Logger:            c.Logger.With("worker_id", uuid.NewString()),
		Metrics:           c.metricsSink(),
	})
}

// NewReaper builds the retention reaper from the container.
func (c *Container) NewReaper() (*reaper.Runner, error) {
	return reaper.NewRunner(reaper.RunnerOptions{
		Queue:        c.Queue,
		Runs:         c.Runs,
		Interval:     c.Config.Reaper.Interval,
		DLQRetention: c.Config.Reaper.DLQRetention,
		RunRetention: c.Config.Reaper.RunRetention,
		BatchSize:    c.Config.Reaper.BatchSize,
		Logger:       c.Logger,
		Metrics:      c.metricsSink(),
	})
}

// RunServices starts the enabled services and blocks until a shutdown signal
// arrives or a service fails. Graceful shutdown is a context cancellation:
// every runner drains and returns nil on cancel.
func RunServices(ctx context.Context, c *Container) error {
	enabled, err := c.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeWorker] {
		worker, err := c.NewPolicyWorker()
		if err != nil {
			return fmt.Errorf("build policy worker: %w", err)
		}
		group.Go(func() error { return worker.Run(gctx) })
	}

	if enabled[config.ServiceModeReaper] {
		sweeper, err := c.NewReaper()
		if err != nil {
			return fmt.Errorf("build reaper: %w", err)
		}
		group.Go(func() error { return sweeper.Run(gctx) })
	}

	c.Logger.InfoContext(ctx, "services started", "services", GetEnabledServices(c.Config))

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	c.Logger.Info("services stopped")
	return nil
}
