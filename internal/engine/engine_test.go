package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanflow/rebal/internal/domain/model"
)

func testSpec(version string) model.PolicySpec {
	return model.PolicySpec{
		Version:      version,
		Targets:      model.PolicyTargets{Alpha: 0.2, Beta: 0.8},
		Effort:       model.PolicyEffort{BikeMoveBudgetPerStep: 60, MaxStationsTouched: 80, MaxMoves: 120},
		Neighborhood: model.PolicyNeighborhood{MaxNeighbors: 8, EpsilonM: 1},
		Scoring:      model.PolicyScoring{Rule: ReasonMinDistanceThenMaxTransfer},
		Constraints: model.PolicyConstraints{
			RespectCapacityBounds: true,
			ForbidDonatingBelowL:  true,
			ForbidReceivingAboveU: true,
		},
		MissingData: model.PolicyMissingData{
			MinCapacityForPolicy: 5,
			BucketQualityAllowed: []string{"ok", "degraded"},
		},
	}
}

func station(key string, capacity, bikes int) model.Station {
	return model.Station{
		StationKey:    key,
		Capacity:      capacity,
		Bikes:         bikes,
		Docks:         capacity - bikes,
		BucketQuality: model.BucketQualityOK,
	}
}

func TestRunSingleDonorReceiver(t *testing.T) {
	// capacity 10 with alpha=0.2, beta=0.8 gives L=2, U=8: the full donor
	// has excess 2, the empty receiver has need 2.
	spec := testSpec("rebal.greedy.v1")
	spec.Effort.BikeMoveBudgetPerStep = 4

	res, err := Run(Input{
		SystemID:         "metro-bike",
		DecisionBucketTS: 1756500000,
		Stations:         []model.Station{station("s-a", 10, 10), station("s-b", 10, 0)},
		Edges:            []model.NeighborEdge{{FromStationKey: "s-a", ToStationKey: "s-b", DistM: 100, Rank: 1}},
		Spec:             spec,
	})
	require.NoError(t, err)

	require.Len(t, res.Moves, 1)
	move := res.Moves[0]
	assert.Equal(t, "s-a", move.FromStationKey)
	assert.Equal(t, "s-b", move.ToStationKey)
	assert.Equal(t, 2, move.BikesMoved)
	assert.Equal(t, []string{ReasonMinDistanceThenMaxTransfer}, move.ReasonCodes)

	assert.Equal(t, 2, res.Summary.BikesMovedTotal)
	assert.Equal(t, 2, res.Summary.StationsTouched)
	assert.False(t, res.Summary.NoOp)
	require.Len(t, res.StationsTouched, 2)
	assert.Equal(t, "s-a", res.StationsTouched[0].StationKey)
	assert.Equal(t, 8, res.StationsTouched[0].BikesAfter)
	assert.Equal(t, 2, res.StationsTouched[1].BikesAfter)
}

func TestGreedyTieBreakPrefersLargerTransfer(t *testing.T) {
	// Equal-distance edges: d-z can donate 2, d-a only 1. The larger
	// transferable amount wins even though d-a sorts first lexically.
	spec := testSpec("rebal.greedy.v1")

	res, err := Run(Input{
		SystemID: "metro-bike",
		Stations: []model.Station{
			station("d-a", 10, 9),
			station("d-z", 10, 10),
			station("r-m", 10, 0),
		},
		Edges: []model.NeighborEdge{
			{FromStationKey: "d-a", ToStationKey: "r-m", DistM: 150, Rank: 1},
			{FromStationKey: "d-z", ToStationKey: "r-m", DistM: 150, Rank: 2},
		},
		Spec: spec,
	})
	require.NoError(t, err)

	require.NotEmpty(t, res.Moves)
	assert.Equal(t, "d-z", res.Moves[0].FromStationKey)
	assert.Equal(t, 2, res.Moves[0].BikesMoved)
}

func TestGreedyTieBreakLexicalWhenTransferEqual(t *testing.T) {
	spec := testSpec("rebal.greedy.v1")

	res, err := Run(Input{
		SystemID: "metro-bike",
		Stations: []model.Station{
			station("d-b", 10, 10),
			station("d-a", 10, 10),
			station("r-m", 10, 0),
		},
		Edges: []model.NeighborEdge{
			{FromStationKey: "d-b", ToStationKey: "r-m", DistM: 150, Rank: 1},
			{FromStationKey: "d-a", ToStationKey: "r-m", DistM: 150, Rank: 2},
		},
		Spec: spec,
	})
	require.NoError(t, err)

	require.NotEmpty(t, res.Moves)
	assert.Equal(t, "d-a", res.Moves[0].FromStationKey)
}

func TestGreedyEpsilonTiesAnchoredToMinimumDistance(t *testing.T) {
	// Distances 100, 100.9, 101.8 with epsilon_m=1: each neighbor pair is
	// within epsilon of the next, but 101.8 is not within epsilon of the
	// minimum. The tie set must be {100, 100.9} only, so the farthest edge
	// can never win regardless of its transferable amount.
	// Transferable amounts increase along the chain, so a pairwise scan
	// would hand the win to d-b and then to d-c.
	spec := testSpec("rebal.greedy.v1")

	res, err := Run(Input{
		SystemID: "metro-bike",
		Stations: []model.Station{
			station("d-a", 10, 9),  // excess 1
			station("d-b", 10, 10), // excess 2
			station("d-c", 15, 15), // excess 3, but 1.8 m above the minimum
			station("r-m", 20, 0),
		},
		Edges: []model.NeighborEdge{
			{FromStationKey: "d-a", ToStationKey: "r-m", DistM: 100, Rank: 1},
			{FromStationKey: "d-b", ToStationKey: "r-m", DistM: 100.9, Rank: 2},
			{FromStationKey: "d-c", ToStationKey: "r-m", DistM: 101.8, Rank: 3},
		},
		Spec: spec,
	})
	require.NoError(t, err)

	require.NotEmpty(t, res.Moves)
	first := res.Moves[0]
	assert.NotEqual(t, "d-c", first.FromStationKey)
	// Tie set is {d-a, d-b}; the larger transfer inside it wins.
	assert.Equal(t, "d-b", first.FromStationKey)
	assert.InDelta(t, 100.9, first.DistM, 0.001)
}

func TestGreedyStationsTouchedCapStopsLoop(t *testing.T) {
	// One donor with excess for both receivers, but touching a second
	// receiver would exceed the cap of 2 distinct stations.
	spec := testSpec("rebal.greedy.v1")
	spec.Effort.MaxStationsTouched = 2

	res, err := Run(Input{
		SystemID: "metro-bike",
		Stations: []model.Station{
			station("d-a", 20, 20), // L=4, U=16, excess 4
			station("r-a", 10, 0),  // need 2
			station("r-b", 10, 0),  // need 2
		},
		Edges: []model.NeighborEdge{
			{FromStationKey: "d-a", ToStationKey: "r-a", DistM: 100, Rank: 1},
			{FromStationKey: "d-a", ToStationKey: "r-b", DistM: 200, Rank: 2},
		},
		Spec: spec,
	})
	require.NoError(t, err)

	require.Len(t, res.Moves, 1)
	assert.Equal(t, "r-a", res.Moves[0].ToStationKey)
	assert.Equal(t, 2, res.Summary.StationsTouched)
}

func TestGlobalPrefersTransferPerMeter(t *testing.T) {
	// Short edge moves 1 bike over 100m (0.01 bikes/m); the long edge
	// moves 20 over 1000m (0.02 bikes/m). greedy takes the short edge
	// first, global takes the long one.
	stations := []model.Station{
		station("d-near", 10, 9),   // excess 1
		station("d-far", 100, 100), // L=20, U=80, excess 20
		station("r-near", 10, 0),   // need 2
		station("r-far", 100, 0),   // need 20
	}
	edges := []model.NeighborEdge{
		{FromStationKey: "d-near", ToStationKey: "r-near", DistM: 100, Rank: 1},
		{FromStationKey: "d-far", ToStationKey: "r-far", DistM: 1000, Rank: 2},
	}

	greedyRes, err := Run(Input{SystemID: "metro-bike", Stations: stations, Edges: edges, Spec: testSpec("rebal.greedy.v1")})
	require.NoError(t, err)
	globalRes, err := Run(Input{SystemID: "metro-bike", Stations: stations, Edges: edges, Spec: testSpec("rebal.global.v1")})
	require.NoError(t, err)

	require.NotEmpty(t, greedyRes.Moves)
	require.NotEmpty(t, globalRes.Moves)
	assert.Equal(t, "d-near", greedyRes.Moves[0].FromStationKey)
	assert.Equal(t, "d-far", globalRes.Moves[0].FromStationKey)
	assert.Equal(t, []string{ReasonMaxTransferPerMeter}, globalRes.Moves[0].ReasonCodes)
}

func TestGlobalSkipsCandidatesOverStationCap(t *testing.T) {
	spec := testSpec("rebal.global.v1")
	spec.Effort.MaxStationsTouched = 2

	res, err := Run(Input{
		SystemID: "metro-bike",
		Stations: []model.Station{
			station("d-a", 100, 100), // excess 20
			station("r-a", 100, 0),   // need 20
			station("d-b", 10, 10),   // excess 2
			station("r-b", 10, 0),    // need 2
		},
		Edges: []model.NeighborEdge{
			{FromStationKey: "d-a", ToStationKey: "r-a", DistM: 1000, Rank: 1},
			{FromStationKey: "d-b", ToStationKey: "r-b", DistM: 50, Rank: 2},
		},
		Spec: spec,
	})
	require.NoError(t, err)

	// The d-b/r-b pair ranks higher (2/50 = 0.04 bikes/m) and claims the
	// cap; the d-a pair is then skipped on every later pass.
	require.Len(t, res.Moves, 1)
	assert.Equal(t, "d-b", res.Moves[0].FromStationKey)
	assert.Equal(t, 2, res.Summary.StationsTouched)
}

func TestRunDeterministic(t *testing.T) {
	input := Input{
		SystemID:         "metro-bike",
		DecisionBucketTS: 1756500000,
		Stations: []model.Station{
			station("s-01", 20, 19),
			station("s-02", 15, 1),
			station("s-03", 30, 29),
			station("s-04", 12, 2),
			station("s-05", 25, 24),
		},
		Edges: []model.NeighborEdge{
			{FromStationKey: "s-01", ToStationKey: "s-02", DistM: 320, Rank: 1},
			{FromStationKey: "s-03", ToStationKey: "s-02", DistM: 450, Rank: 1},
			{FromStationKey: "s-03", ToStationKey: "s-04", DistM: 210, Rank: 2},
			{FromStationKey: "s-05", ToStationKey: "s-04", DistM: 180, Rank: 1},
			{FromStationKey: "s-05", ToStationKey: "s-02", DistM: 640, Rank: 2},
		},
		Spec: testSpec("rebal.greedy.v1"),
	}

	first, err := Run(input)
	require.NoError(t, err)
	second, err := Run(input)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	firstJSON, err := MarshalCanonical(first)
	require.NoError(t, err)
	secondJSON, err := MarshalCanonical(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestRunRespectsBudgets(t *testing.T) {
	spec := testSpec("rebal.greedy.v1")
	spec.Effort.BikeMoveBudgetPerStep = 5
	spec.Effort.MaxMoves = 2

	res, err := Run(Input{
		SystemID: "metro-bike",
		Stations: []model.Station{
			station("s-01", 40, 40),
			station("s-02", 40, 0),
			station("s-03", 40, 40),
			station("s-04", 40, 0),
		},
		Edges: []model.NeighborEdge{
			{FromStationKey: "s-01", ToStationKey: "s-02", DistM: 100, Rank: 1},
			{FromStationKey: "s-03", ToStationKey: "s-04", DistM: 120, Rank: 1},
			{FromStationKey: "s-01", ToStationKey: "s-04", DistM: 300, Rank: 2},
		},
		Spec: spec,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, res.Summary.BikesMovedTotal, spec.Effort.BikeMoveBudgetPerStep)
	assert.LessOrEqual(t, len(res.Moves), spec.Effort.MaxMoves)
	assert.LessOrEqual(t, res.Summary.StationsTouched, spec.Effort.MaxStationsTouched)
}

func TestRunBandInvariant(t *testing.T) {
	spec := testSpec("rebal.global.v1")
	stations := []model.Station{
		station("s-01", 20, 20),
		station("s-02", 20, 1),
		station("s-03", 10, 10),
		station("s-04", 10, 0),
	}
	res, err := Run(Input{
		SystemID: "metro-bike",
		Stations: stations,
		Edges: []model.NeighborEdge{
			{FromStationKey: "s-01", ToStationKey: "s-02", DistM: 250, Rank: 1},
			{FromStationKey: "s-03", ToStationKey: "s-04", DistM: 90, Rank: 1},
			{FromStationKey: "s-01", ToStationKey: "s-04", DistM: 400, Rank: 2},
			{FromStationKey: "s-03", ToStationKey: "s-02", DistM: 500, Rank: 2},
		},
		Spec: spec,
	})
	require.NoError(t, err)

	// Replay the move sequence: no donor may drop below its L, no
	// receiver may rise above its U, at any intermediate step.
	bikes := make(map[string]int)
	bounds := make(map[string][2]int)
	for _, st := range stations {
		bikes[st.StationKey] = st.Bikes
		lower, upper := bandBounds(st.Capacity, spec.Targets)
		bounds[st.StationKey] = [2]int{lower, upper}
	}
	for _, m := range res.Moves {
		bikes[m.FromStationKey] -= m.BikesMoved
		bikes[m.ToStationKey] += m.BikesMoved
		assert.GreaterOrEqual(t, bikes[m.FromStationKey], bounds[m.FromStationKey][0], "donor below L after move")
		assert.LessOrEqual(t, bikes[m.ToStationKey], bounds[m.ToStationKey][1], "receiver above U after move")
	}
}

func TestRunExcludesIneligibleStations(t *testing.T) {
	spec := testSpec("rebal.greedy.v1")

	tiny := station("s-tiny", 3, 3) // below min capacity
	blocked := station("s-blocked", 10, 10)
	blocked.BucketQuality = model.BucketQualityBlocked

	res, err := Run(Input{
		SystemID: "metro-bike",
		Stations: []model.Station{tiny, blocked, station("r-a", 10, 0)},
		Edges: []model.NeighborEdge{
			{FromStationKey: "s-tiny", ToStationKey: "r-a", DistM: 10, Rank: 1},
			{FromStationKey: "s-blocked", ToStationKey: "r-a", DistM: 20, Rank: 2},
		},
		Spec: spec,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Moves)
	assert.True(t, res.Summary.NoOp)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		version string
		want    Strategy
		wantErr bool
	}{
		{version: "rebal.greedy.v1", want: StrategyGreedyV1},
		{version: "greedy.v1", want: StrategyGreedyV1},
		{version: "metro.global.v2", want: StrategyGlobalV1},
		{version: "rebal.random.v1", wantErr: true},
		{version: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got, err := ParseStrategy(tt.version)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpecForVersionBindsVersionAndScoringRule(t *testing.T) {
	base := testSpec("")
	base.Scoring.Rule = ""

	greedy, err := SpecForVersion(base, "rebal.greedy.v1")
	require.NoError(t, err)
	assert.Equal(t, "rebal.greedy.v1", greedy.Version)
	assert.Equal(t, StrategyGreedyV1.ScoringRule(), greedy.Scoring.Rule)

	global, err := SpecForVersion(base, "rebal.global.v1")
	require.NoError(t, err)
	assert.Equal(t, StrategyGlobalV1.ScoringRule(), global.Scoring.Rule)

	// Same base, different version families must yield distinct digests.
	shaGreedy, err := SpecSHA256(greedy)
	require.NoError(t, err)
	shaGlobal, err := SpecSHA256(global)
	require.NoError(t, err)
	assert.NotEqual(t, shaGreedy, shaGlobal)

	_, err = SpecForVersion(base, "rebal.random.v9")
	assert.Error(t, err)
}

func TestSpecSHA256Stable(t *testing.T) {
	a := testSpec("rebal.greedy.v1")
	b := testSpec("rebal.greedy.v1")

	shaA, err := SpecSHA256(a)
	require.NoError(t, err)
	shaB, err := SpecSHA256(b)
	require.NoError(t, err)
	assert.Equal(t, shaA, shaB)
	assert.Len(t, shaA, 64)

	b.Targets.Alpha = 0.3
	shaC, err := SpecSHA256(b)
	require.NoError(t, err)
	assert.NotEqual(t, shaA, shaC)
}

func TestInferNoOpReason(t *testing.T) {
	spec := testSpec("rebal.greedy.v1")

	zeroBudget := spec
	zeroBudget.Effort.BikeMoveBudgetPerStep = 0
	assert.Equal(t, model.NoOpReasonBudgetZero,
		InferNoOpReason([]model.Station{station("s-a", 10, 10)}, zeroBudget))

	// Everyone inside their band.
	assert.Equal(t, model.NoOpReasonNoDeficits,
		InferNoOpReason([]model.Station{station("s-a", 10, 5), station("s-b", 10, 5)}, spec))

	// A deficit exists but nobody has excess.
	assert.Equal(t, model.NoOpReasonNoSurpluses,
		InferNoOpReason([]model.Station{station("s-a", 10, 0), station("s-b", 10, 5)}, spec))

	// Both sides exist; the neighborhood must have been the blocker.
	assert.Equal(t, model.NoOpReasonNeighborhoodBlocked,
		InferNoOpReason([]model.Station{station("s-a", 10, 0), station("s-b", 10, 10)}, spec))

	// Real imbalance carried entirely by stations below the capacity floor:
	// the fleet is not balanced, so the reason is the blocked pairing, not
	// an absence of deficits.
	assert.Equal(t, model.NoOpReasonNeighborhoodBlocked,
		InferNoOpReason([]model.Station{station("tiny-a", 4, 0), station("tiny-b", 4, 4)}, spec))
}
