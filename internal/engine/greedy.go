package engine

import (
	"math"

	"github.com/urbanflow/rebal/internal/domain/model"
)

// greedyPlanner implements greedy.v1: repeatedly move along the shortest
// feasible edge, preferring larger transfers among edges whose distances are
// within epsilon_m of each other.
type greedyPlanner struct{}

func (greedyPlanner) Kind() Strategy { return StrategyGreedyV1 }

func (greedyPlanner) Plan(states map[string]*stationState, edges []model.NeighborEdge, spec model.PolicySpec) []Move {
	epsilon := spec.Neighborhood.EpsilonM
	budget := spec.Effort.BikeMoveBudgetPerStep
	touched := make(map[string]bool)
	var moves []Move

	for budget > 0 && len(moves) < spec.Effort.MaxMoves {
		cands := buildCandidates(states, edges)
		if len(cands) == 0 {
			break
		}

		best := selectGreedy(cands, epsilon)

		// The stations-touched cap ends the loop once the winning
		// candidate cannot fit under it.
		if touchCount(touched, best) > spec.Effort.MaxStationsTouched {
			break
		}

		qty := minInt(best.transferable, budget)
		if qty <= 0 {
			break
		}

		states[best.from].bikes -= qty
		states[best.to].bikes += qty
		touched[best.from] = true
		touched[best.to] = true
		budget -= qty

		moves = append(moves, Move{
			FromStationKey: best.from,
			ToStationKey:   best.to,
			BikesMoved:     qty,
			DistM:          best.distM,
			ReasonCodes:    []string{ReasonMinDistanceThenMaxTransfer},
		})
	}
	return moves
}

// selectGreedy picks the winning candidate. The epsilon equivalence class is
// anchored to the global minimum distance: only candidates within epsilon of
// the true shortest edge enter the tie set, so a chain of pairwise near-ties
// cannot drift the pick onto an edge more than epsilon above the minimum.
// Inside the tie set, larger transfers win, then lexical (from, to) order.
func selectGreedy(cands []candidate, epsilon float64) candidate {
	minDist := cands[0].distM
	for _, c := range cands[1:] {
		minDist = math.Min(minDist, c.distM)
	}

	var best candidate
	found := false
	for _, c := range cands {
		if c.distM > minDist+epsilon {
			continue
		}
		if !found || greedyTieLess(c, best) {
			best = c
			found = true
		}
	}
	return best
}

// greedyTieLess orders candidates inside one epsilon equivalence class:
// transferable desc, from_key asc, to_key asc.
func greedyTieLess(a, b candidate) bool {
	if a.transferable != b.transferable {
		return a.transferable > b.transferable
	}
	if a.from != b.from {
		return a.from < b.from
	}
	return a.to < b.to
}
