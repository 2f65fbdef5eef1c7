package policyworker

import (
	"log/slog"
	"sort"

	"github.com/urbanflow/rebal/config"
	"github.com/urbanflow/rebal/internal/domain/model"
	"github.com/urbanflow/rebal/internal/engine"
)

// UnknownDistM marks a fallback pairing with no stored edge between the two
// stations. A negative distance means "not measured", never "adjacent".
const UnknownDistM = -1

// Reason codes appended to moves produced by a fallback tier.
const (
	ReasonFallbackLoosenedBand  = "fallback_loosened_band"
	ReasonFallbackForcedPreview = "fallback_forced_preview"
	ReasonFallbackUnconstrained = "fallback_unconstrained"
)

// FallbackConfig controls the cascade applied when the primary run produces
// zero moves. When disabled, a legitimate no-op is always reported faithfully.
type FallbackConfig struct {
	Enabled bool

	// Tier 1: rerun with a near-degenerate band and enlarged budgets.
	LoosenedAlpha    float64
	LoosenedBeta     float64
	BudgetMultiplier int
	BudgetFloor      int

	// Tier 2: fixed bikes per forced preview move.
	PreviewMoveBikes int

	// Tier 3: per-move cap for the unconstrained matcher.
	UnconstrainedMoveCap int
}

func (c FallbackConfig) withDefaults() FallbackConfig {
	if c.LoosenedAlpha <= 0 {
		c.LoosenedAlpha = 0.49
	}
	if c.LoosenedBeta <= 0 {
		c.LoosenedBeta = 0.51
	}
	if c.BudgetMultiplier <= 0 {
		c.BudgetMultiplier = 4
	}
	if c.BudgetFloor <= 0 {
		c.BudgetFloor = 24
	}
	if c.PreviewMoveBikes <= 0 {
		c.PreviewMoveBikes = 2
	}
	if c.UnconstrainedMoveCap <= 0 {
		c.UnconstrainedMoveCap = 4
	}
	return c
}

// fallbackStage is one pure cascade step: it either produces moves from the
// input or declines by returning nil. Stages never mutate the input.
type fallbackStage struct {
	name    string
	reason  string
	attempt func(in engine.Input, cfg FallbackConfig) []engine.Move
}

func fallbackStages() []fallbackStage {
	return []fallbackStage{
		{name: "loosened_band", reason: ReasonFallbackLoosenedBand, attempt: attemptLoosenedBand},
		{name: "forced_preview", reason: ReasonFallbackForcedPreview, attempt: attemptForcedPreview},
		{name: "unconstrained", reason: ReasonFallbackUnconstrained, attempt: attemptUnconstrained},
	}
}

// runFallbackCascade walks the stages in order and returns the first
// non-empty result, with each move tagged by the tier that produced it.
// Returns nil when every tier declines.
func runFallbackCascade(in engine.Input, cfg FallbackConfig, logger *slog.Logger) []engine.Move {
	for _, stage := range fallbackStages() {
		moves := stage.attempt(in, cfg)
		if len(moves) == 0 {
			continue
		}
		for i := range moves {
			moves[i].ReasonCodes = append(moves[i].ReasonCodes, stage.reason)
		}
		if logger != nil {
			logger.Warn("fallback tier produced moves",
				"tier", stage.name,
				"system_id", in.SystemID,
				"moves", len(moves),
			)
		}
		return moves
	}
	return nil
}

// attemptLoosenedBand reruns the engine with a near-degenerate band so that
// almost any imbalance registers as need or excess, and with enlarged
// budgets so small transferable amounts are not budgeted away.
func attemptLoosenedBand(in engine.Input, cfg FallbackConfig) []engine.Move {
	spec := in.Spec
	spec.Targets.Alpha = cfg.LoosenedAlpha
	spec.Targets.Beta = cfg.LoosenedBeta
	spec.Effort.BikeMoveBudgetPerStep = enlarge(spec.Effort.BikeMoveBudgetPerStep, cfg, config.MaxBikeMoveBudgetPerStep)
	spec.Effort.MaxMoves = enlarge(spec.Effort.MaxMoves, cfg, config.MaxMovesPerRun)
	spec.Effort.MaxStationsTouched = enlarge(spec.Effort.MaxStationsTouched, cfg, config.MaxStationsTouched)

	loosened := in
	loosened.Spec = spec

	result, err := engine.Run(loosened)
	if err != nil {
		return nil
	}
	return result.Moves
}

// attemptForcedPreview ignores target bands entirely and pairs the fullest
// stations as donors against the emptiest as receivers, a fixed amount per
// pair. The output is a preview of plausible transfers, not a band repair.
func attemptForcedPreview(in engine.Input, cfg FallbackConfig) []engine.Move {
	stations := eligibleStations(in.Stations, in.Spec)
	if len(stations) < 2 {
		return nil
	}

	byFillDesc := make([]model.Station, len(stations))
	copy(byFillDesc, stations)
	sort.Slice(byFillDesc, func(i, j int) bool {
		fi, fj := fillRatio(byFillDesc[i]), fillRatio(byFillDesc[j])
		if fi != fj {
			return fi > fj
		}
		return byFillDesc[i].StationKey < byFillDesc[j].StationKey
	})

	dist := edgeDistances(in.Edges)

	var moves []engine.Move
	for i, j := 0, len(byFillDesc)-1; i < j; i, j = i+1, j-1 {
		donor, receiver := byFillDesc[i], byFillDesc[j]
		if fillRatio(donor) <= fillRatio(receiver) {
			break
		}
		bikes := minInt3(cfg.PreviewMoveBikes, donor.Bikes, receiver.Capacity-receiver.Bikes)
		if bikes <= 0 {
			continue
		}
		moves = append(moves, engine.Move{
			FromStationKey: donor.StationKey,
			ToStationKey:   receiver.StationKey,
			BikesMoved:     bikes,
			DistM:          pairDistance(dist, donor.StationKey, receiver.StationKey),
		})
	}
	return moves
}

// attemptUnconstrained matches stations above half capacity against stations
// below it, largest imbalance first, with a fixed per-move cap.
func attemptUnconstrained(in engine.Input, cfg FallbackConfig) []engine.Move {
	stations := eligibleStations(in.Stations, in.Spec)

	type imbalance struct {
		station model.Station
		amount  int
	}
	var donors, receivers []imbalance
	for _, s := range stations {
		mid := s.Capacity / 2
		switch {
		case s.Bikes > mid:
			donors = append(donors, imbalance{station: s, amount: s.Bikes - mid})
		case s.Bikes < mid:
			receivers = append(receivers, imbalance{station: s, amount: mid - s.Bikes})
		}
	}
	byAmountDesc := func(list []imbalance) func(i, j int) bool {
		return func(i, j int) bool {
			if list[i].amount != list[j].amount {
				return list[i].amount > list[j].amount
			}
			return list[i].station.StationKey < list[j].station.StationKey
		}
	}
	sort.Slice(donors, byAmountDesc(donors))
	sort.Slice(receivers, byAmountDesc(receivers))

	dist := edgeDistances(in.Edges)

	var moves []engine.Move
	for i, j := 0, 0; i < len(donors) && j < len(receivers); {
		bikes := minInt3(cfg.UnconstrainedMoveCap, donors[i].amount, receivers[j].amount)
		if bikes <= 0 {
			break
		}
		moves = append(moves, engine.Move{
			FromStationKey: donors[i].station.StationKey,
			ToStationKey:   receivers[j].station.StationKey,
			BikesMoved:     bikes,
			DistM:          pairDistance(dist, donors[i].station.StationKey, receivers[j].station.StationKey),
		})
		donors[i].amount -= bikes
		receivers[j].amount -= bikes
		if donors[i].amount == 0 {
			i++
		}
		if receivers[j].amount == 0 {
			j++
		}
	}
	return moves
}

type edgeKey struct {
	from, to string
}

func edgeDistances(edges []model.NeighborEdge) map[edgeKey]float64 {
	dist := make(map[edgeKey]float64, 2*len(edges))
	for _, e := range edges {
		dist[edgeKey{e.FromStationKey, e.ToStationKey}] = e.DistM
	}
	// Distance is symmetric even when the stored ranking is not: a missing
	// reverse edge borrows the forward distance.
	for _, e := range edges {
		k := edgeKey{e.ToStationKey, e.FromStationKey}
		if _, ok := dist[k]; !ok {
			dist[k] = e.DistM
		}
	}
	return dist
}

func pairDistance(dist map[edgeKey]float64, from, to string) float64 {
	if d, ok := dist[edgeKey{from, to}]; ok {
		return d
	}
	return UnknownDistM
}

func eligibleStations(stations []model.Station, spec model.PolicySpec) []model.Station {
	out := make([]model.Station, 0, len(stations))
	for _, s := range stations {
		if s.Capacity >= spec.MissingData.MinCapacityForPolicy && spec.QualityAllowed(s.BucketQuality) {
			out = append(out, s)
		}
	}
	return out
}

func fillRatio(s model.Station) float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return float64(s.Bikes) / float64(s.Capacity)
}

// enlarge multiplies a budget and keeps it above the floor, but never past
// the hard cap that bounds the primary spec. A fallback tier widens the
// search; it does not get to move more metal than any sanctioned run could.
func enlarge(v int, cfg FallbackConfig, limit int) int {
	enlarged := v * cfg.BudgetMultiplier
	if enlarged < cfg.BudgetFloor {
		enlarged = cfg.BudgetFloor
	}
	if enlarged > limit {
		enlarged = limit
	}
	return enlarged
}

func minInt3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
