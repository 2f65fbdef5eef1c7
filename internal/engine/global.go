package engine

import (
	"sort"

	"github.com/urbanflow/rebal/internal/domain/model"
)

// globalPlanner implements global.v1: rank every feasible edge by bikes
// moved per meter and take the best that still fits under the
// stations-touched cap. Candidates over the cap are skipped, not fatal,
// which is the behavioral difference from greedy.v1 besides the ranking.
type globalPlanner struct{}

func (globalPlanner) Kind() Strategy { return StrategyGlobalV1 }

func (globalPlanner) Plan(states map[string]*stationState, edges []model.NeighborEdge, spec model.PolicySpec) []Move {
	budget := spec.Effort.BikeMoveBudgetPerStep
	touched := make(map[string]bool)
	var moves []Move

	for budget > 0 && len(moves) < spec.Effort.MaxMoves {
		cands := buildCandidates(states, edges)
		if len(cands) == 0 {
			break
		}
		sort.Slice(cands, func(i, j int) bool {
			return globalLess(cands[i], cands[j])
		})

		var chosen *candidate
		for i := range cands {
			if touchCount(touched, cands[i]) <= spec.Effort.MaxStationsTouched {
				chosen = &cands[i]
				break
			}
		}
		if chosen == nil {
			break
		}

		from := states[chosen.from]
		to := states[chosen.to]
		qty := minInt(minInt(chosen.transferable, budget), minInt(from.excess(), to.need()))
		if qty <= 0 {
			break
		}

		from.bikes -= qty
		to.bikes += qty
		touched[chosen.from] = true
		touched[chosen.to] = true
		budget -= qty

		moves = append(moves, Move{
			FromStationKey: chosen.from,
			ToStationKey:   chosen.to,
			BikesMoved:     qty,
			DistM:          chosen.distM,
			ReasonCodes:    []string{ReasonMaxTransferPerMeter},
		})
	}
	return moves
}

// globalLess orders candidates by efficiency desc, then
// (dist asc, transferable desc, from_key asc, to_key asc).
func globalLess(a, b candidate) bool {
	ea := efficiency(a)
	eb := efficiency(b)
	if ea != eb {
		return ea > eb
	}
	if a.distM != b.distM {
		return a.distM < b.distM
	}
	if a.transferable != b.transferable {
		return a.transferable > b.transferable
	}
	if a.from != b.from {
		return a.from < b.from
	}
	return a.to < b.to
}

func efficiency(c candidate) float64 {
	d := c.distM
	if d < 1 {
		d = 1
	}
	return float64(c.transferable) / d
}
