package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the policy worker that executes queued runs.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the retention reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains policy worker service configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines claiming jobs.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// ClaimLimit is the number of jobs leased per claim round.
	ClaimLimit int `env:"WORKER_CLAIM_LIMIT" envDefault:"5"`

	// PollInterval is how long a worker sleeps when the queue is empty.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`

	// VisibilityTimeout is the claim lease duration. A crashed worker's
	// jobs become claimable again after this long.
	VisibilityTimeout time.Duration `env:"WORKER_VISIBILITY_TIMEOUT" envDefault:"60s"`

	// MaxAttempts is the per-job retry budget before dead-lettering.
	MaxAttempts int `env:"WORKER_MAX_ATTEMPTS" envDefault:"10"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.ClaimLimit < 1 {
		w.ClaimLimit = 1
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 2 * time.Second
	}
	if w.VisibilityTimeout < time.Second {
		w.VisibilityTimeout = time.Second
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
}

// FallbackConfig contains the zero-move fallback cascade configuration.
// The cascade only runs when the primary strategy recommends nothing for a
// system with more than one eligible station.
type FallbackConfig struct {
	// Enabled turns the whole cascade on or off.
	Enabled bool `env:"POLICY_FALLBACK_ENABLED" envDefault:"true"`

	// LoosenedAlpha and LoosenedBeta are the near-half band fractions the
	// first tier reruns the engine with.
	LoosenedAlpha float64 `env:"POLICY_FALLBACK_LOOSENED_ALPHA" envDefault:"0.49"`
	LoosenedBeta  float64 `env:"POLICY_FALLBACK_LOOSENED_BETA"  envDefault:"0.51"`

	// BudgetMultiplier and BudgetFloor enlarge the effort budgets for the
	// loosened rerun.
	BudgetMultiplier int `env:"POLICY_FALLBACK_BUDGET_MULTIPLIER" envDefault:"4"`
	BudgetFloor      int `env:"POLICY_FALLBACK_BUDGET_FLOOR"      envDefault:"24"`

	// PreviewMoveBikes is the fixed size of a forced-preview move.
	PreviewMoveBikes int `env:"POLICY_FALLBACK_PREVIEW_MOVE_BIKES" envDefault:"2"`

	// UnconstrainedMoveCap bounds a single unconstrained-tier move.
	UnconstrainedMoveCap int `env:"POLICY_FALLBACK_UNCONSTRAINED_MOVE_CAP" envDefault:"4"`
}

// ReaperConfig contains retention reaper service configuration.
type ReaperConfig struct {
	// Interval is the sweep cadence.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1h"`

	// DLQRetention is how long dead-lettered jobs are kept.
	DLQRetention time.Duration `env:"REAPER_DLQ_RETENTION" envDefault:"336h"` // 14 days

	// RunRetention is how long persisted runs are kept.
	RunRetention time.Duration `env:"REAPER_RUN_RETENTION" envDefault:"720h"` // 30 days

	// BatchSize is the number of rows deleted per batch.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Minute {
		r.Interval = time.Minute
	}
	if r.DLQRetention < time.Hour {
		r.DLQRetention = time.Hour
	}
	if r.RunRetention < time.Hour {
		r.RunRetention = time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
}
