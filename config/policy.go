package config

import "github.com/urbanflow/rebal/internal/domain/model"

// Hard safety caps applied by Sanitize regardless of what the environment
// asks for. A misconfigured deployment must never be able to recommend
// unbounded truck work.
const (
	MaxBikeMoveBudgetPerStep = 200
	MaxStationsTouched       = 100
	MaxMovesPerRun           = 200
	MaxNeighbors             = 16
)

// PolicyConfig contains the rebalancing policy knobs. Its EffectiveSpec is
// canonically hashed into every run identity, so changing any of these values
// produces new runs rather than overwriting old ones.
type PolicyConfig struct {
	// Alpha and Beta are the target band fractions: a station should hold
	// between ceil(alpha*capacity) and floor(beta*capacity) bikes.
	Alpha float64 `env:"POLICY_TARGET_ALPHA" envDefault:"0.2"`
	Beta  float64 `env:"POLICY_TARGET_BETA"  envDefault:"0.8"`

	// Effort budgets per run.
	BikeMoveBudgetPerStep int `env:"POLICY_BIKE_MOVE_BUDGET_PER_STEP" envDefault:"60"`
	MaxStationsTouched    int `env:"POLICY_MAX_STATIONS_TOUCHED"      envDefault:"80"`
	MaxMoves              int `env:"POLICY_MAX_MOVES"                 envDefault:"120"`

	// Neighborhood limits on the candidate edge set.
	MaxNeighbors int     `env:"POLICY_MAX_NEIGHBORS" envDefault:"8"`
	EpsilonM     float64 `env:"POLICY_EPSILON_M"     envDefault:"1"`

	// Constraint switches.
	RespectCapacityBounds bool `env:"POLICY_RESPECT_CAPACITY_BOUNDS" envDefault:"true"`
	ForbidDonatingBelowL  bool `env:"POLICY_FORBID_DONATING_BELOW_L" envDefault:"true"`
	ForbidReceivingAboveU bool `env:"POLICY_FORBID_RECEIVING_ABOVE_U" envDefault:"true"`

	// Missing data handling.
	MinCapacityForPolicy int      `env:"POLICY_MIN_CAPACITY"            envDefault:"4"`
	BucketQualityAllowed []string `env:"POLICY_BUCKET_QUALITY_ALLOWED" envDefault:"ok,degraded"`
}

// Sanitize applies guardrails to policy configuration values.
func (p *PolicyConfig) Sanitize() {
	if p.Alpha < 0 {
		p.Alpha = 0
	}
	if p.Beta > 1 {
		p.Beta = 1
	}
	if p.Alpha >= p.Beta {
		p.Alpha, p.Beta = 0.2, 0.8
	}

	p.BikeMoveBudgetPerStep = clampInt(p.BikeMoveBudgetPerStep, 0, MaxBikeMoveBudgetPerStep)
	p.MaxStationsTouched = clampInt(p.MaxStationsTouched, 0, MaxStationsTouched)
	p.MaxMoves = clampInt(p.MaxMoves, 0, MaxMovesPerRun)
	p.MaxNeighbors = clampInt(p.MaxNeighbors, 1, MaxNeighbors)

	if p.EpsilonM < 0 {
		p.EpsilonM = 0
	}
	if p.MinCapacityForPolicy < 1 {
		p.MinCapacityForPolicy = 1
	}
	if len(p.BucketQualityAllowed) == 0 {
		p.BucketQualityAllowed = []string{"ok", "degraded"}
	}
}

// EffectiveSpec builds the base policy spec shared by every run. The version
// and scoring rule stay empty here: they are bound per request from the
// requested policy version, so the same deployment serves both strategies.
func (p PolicyConfig) EffectiveSpec() model.PolicySpec {
	return model.PolicySpec{
		Targets: model.PolicyTargets{
			Alpha: p.Alpha,
			Beta:  p.Beta,
		},
		Effort: model.PolicyEffort{
			BikeMoveBudgetPerStep: p.BikeMoveBudgetPerStep,
			MaxStationsTouched:    p.MaxStationsTouched,
			MaxMoves:              p.MaxMoves,
		},
		Neighborhood: model.PolicyNeighborhood{
			MaxNeighbors: p.MaxNeighbors,
			EpsilonM:     p.EpsilonM,
		},
		Constraints: model.PolicyConstraints{
			RespectCapacityBounds: p.RespectCapacityBounds,
			ForbidDonatingBelowL:  p.ForbidDonatingBelowL,
			ForbidReceivingAboveU: p.ForbidReceivingAboveU,
		},
		MissingData: model.PolicyMissingData{
			MinCapacityForPolicy: p.MinCapacityForPolicy,
			BucketQualityAllowed: p.BucketQualityAllowed,
		},
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
