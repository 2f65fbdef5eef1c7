// Package engine computes rebalancing moves for a station snapshot. It is a
// pure function of its input: no clock, no randomness, no I/O, so identical
// input always produces byte-identical output.
package engine

import (
	"fmt"
	"sort"

	"github.com/urbanflow/rebal/internal/domain/model"
)

// Move is one recommended bike transfer, in execution order.
type Move struct {
	FromStationKey string   `json:"from_station_key"`
	ToStationKey   string   `json:"to_station_key"`
	BikesMoved     int      `json:"bikes_moved"`
	DistM          float64  `json:"dist_m"`
	ReasonCodes    []string `json:"reason_codes"`
}

// StationTouch records the before/after fill of every station that appears
// in at least one move.
type StationTouch struct {
	StationKey  string `json:"station_key"`
	BikesBefore int    `json:"bikes_before"`
	BikesAfter  int    `json:"bikes_after"`
	Lower       int    `json:"lower"`
	Upper       int    `json:"upper"`
}

// Summary aggregates a run result.
type Summary struct {
	BikesMovedTotal int  `json:"bikes_moved_total"`
	StationsTouched int  `json:"stations_touched"`
	NoOp            bool `json:"no_op"`
}

// Input is everything a run depends on.
type Input struct {
	SystemID         string
	DecisionBucketTS int64
	Stations         []model.Station
	Edges            []model.NeighborEdge
	Spec             model.PolicySpec
}

// Result is the full output of one engine execution.
type Result struct {
	PolicyVersion    string             `json:"policy_version"`
	PolicySpecSHA256 string             `json:"policy_spec_sha256"`
	SystemID         string             `json:"system_id"`
	DecisionBucketTS int64              `json:"decision_bucket_ts"`
	Effort           model.PolicyEffort `json:"effort"`
	Moves            []Move             `json:"moves"`
	StationsTouched  []StationTouch     `json:"stations_touched"`
	Summary          Summary            `json:"summary"`
}

// planner is one strategy implementation behind the Strategy tag.
type planner interface {
	Kind() Strategy
	Plan(states map[string]*stationState, edges []model.NeighborEdge, spec model.PolicySpec) []Move
}

func plannerFor(s Strategy) (planner, error) {
	switch s {
	case StrategyGreedyV1:
		return greedyPlanner{}, nil
	case StrategyGlobalV1:
		return globalPlanner{}, nil
	default:
		return nil, fmt.Errorf("no planner for strategy %q", s)
	}
}

// Run executes the strategy selected by the spec's policy version over the
// snapshot and returns the planned moves with their effort accounting.
func Run(in Input) (*Result, error) {
	strategy, err := ParseStrategy(in.Spec.Version)
	if err != nil {
		return nil, err
	}
	p, err := plannerFor(strategy)
	if err != nil {
		return nil, err
	}
	sha, err := SpecSHA256(in.Spec)
	if err != nil {
		return nil, err
	}

	states := buildStates(in.Stations, in.Spec)
	before := make(map[string]int, len(states))
	for key, st := range states {
		before[key] = st.bikes
	}

	moves := p.Plan(states, in.Edges, in.Spec)

	touchedKeys := make(map[string]bool)
	total := 0
	for _, m := range moves {
		touchedKeys[m.FromStationKey] = true
		touchedKeys[m.ToStationKey] = true
		total += m.BikesMoved
	}

	touches := make([]StationTouch, 0, len(touchedKeys))
	for key := range touchedKeys {
		st := states[key]
		touches = append(touches, StationTouch{
			StationKey:  key,
			BikesBefore: before[key],
			BikesAfter:  st.bikes,
			Lower:       st.lower,
			Upper:       st.upper,
		})
	}
	sort.Slice(touches, func(i, j int) bool { return touches[i].StationKey < touches[j].StationKey })

	return &Result{
		PolicyVersion:    in.Spec.Version,
		PolicySpecSHA256: sha,
		SystemID:         in.SystemID,
		DecisionBucketTS: in.DecisionBucketTS,
		Effort:           in.Spec.Effort,
		Moves:            moves,
		StationsTouched:  touches,
		Summary: Summary{
			BikesMovedTotal: total,
			StationsTouched: len(touches),
			NoOp:            len(moves) == 0,
		},
	}, nil
}

// InferNoOpReason explains a genuinely empty final result. It is only
// meaningful when no fallback tier produced moves either. The scan covers
// every station in the snapshot, eligible or not: an imbalance that only
// ineligible stations carry still means the system had deficits, and the
// honest reason the run did nothing is a blocked neighborhood, not a
// balanced fleet.
func InferNoOpReason(stations []model.Station, spec model.PolicySpec) string {
	if spec.Effort.BikeMoveBudgetPerStep <= 0 || spec.Effort.MaxMoves <= 0 {
		return model.NoOpReasonBudgetZero
	}
	deficits := 0
	surpluses := 0
	for _, st := range stations {
		lower, upper := bandBounds(st.Capacity, spec.Targets)
		if st.Bikes < lower {
			deficits++
		}
		if st.Bikes > upper {
			surpluses++
		}
	}
	switch {
	case deficits == 0:
		return model.NoOpReasonNoDeficits
	case surpluses == 0:
		return model.NoOpReasonNoSurpluses
	default:
		// Both deficits and surpluses exist but no usable pairing connected
		// them.
		return model.NoOpReasonNeighborhoodBlocked
	}
}
