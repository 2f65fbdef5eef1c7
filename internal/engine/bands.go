package engine

import (
	"math"

	"github.com/urbanflow/rebal/internal/domain/model"
)

// stationState tracks one eligible station while a plan is built. bikes is
// mutated as moves are applied; lower/upper are the fixed band bounds.
type stationState struct {
	key      string
	capacity int
	bikes    int
	lower    int
	upper    int
}

func (s *stationState) need() int {
	if n := s.lower - s.bikes; n > 0 {
		return n
	}
	return 0
}

func (s *stationState) excess() int {
	if e := s.bikes - s.upper; e > 0 {
		return e
	}
	return 0
}

// bandBounds computes L = ceil(alpha*capacity), U = floor(beta*capacity).
func bandBounds(capacity int, targets model.PolicyTargets) (int, int) {
	lower := int(math.Ceil(targets.Alpha * float64(capacity)))
	upper := int(math.Floor(targets.Beta * float64(capacity)))
	return lower, upper
}

// buildStates keeps only stations eligible under the missing-data policy:
// enough capacity and an allowed bucket quality grade.
func buildStates(stations []model.Station, spec model.PolicySpec) map[string]*stationState {
	states := make(map[string]*stationState, len(stations))
	for _, st := range stations {
		if st.Capacity < spec.MissingData.MinCapacityForPolicy {
			continue
		}
		if !spec.QualityAllowed(st.BucketQuality) {
			continue
		}
		lower, upper := bandBounds(st.Capacity, spec.Targets)
		states[st.StationKey] = &stationState{
			key:      st.StationKey,
			capacity: st.Capacity,
			bikes:    st.Bikes,
			lower:    lower,
			upper:    upper,
		}
	}
	return states
}

// candidate is one feasible donation along an edge at the current state.
type candidate struct {
	from         string
	to           string
	distM        float64
	rank         int
	transferable int
}

// buildCandidates evaluates every edge against the current states. A
// candidate exists only while the donor still has excess and the receiver
// still has need, so candidates must be rebuilt after every applied move.
func buildCandidates(states map[string]*stationState, edges []model.NeighborEdge) []candidate {
	var out []candidate
	for _, e := range edges {
		from, ok := states[e.FromStationKey]
		if !ok {
			continue
		}
		to, ok := states[e.ToStationKey]
		if !ok || from == to {
			continue
		}
		transferable := minInt(from.excess(), to.need())
		if transferable <= 0 {
			continue
		}
		out = append(out, candidate{
			from:         from.key,
			to:           to.key,
			distM:        e.DistM,
			rank:         e.Rank,
			transferable: transferable,
		})
	}
	return out
}

// touchCount returns how many distinct stations would be touched after
// executing c on top of the already-touched set.
func touchCount(touched map[string]bool, c candidate) int {
	n := len(touched)
	if !touched[c.from] {
		n++
	}
	if !touched[c.to] {
		n++
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
