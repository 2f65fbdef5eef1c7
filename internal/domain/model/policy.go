package model

// BucketQuality grades one station snapshot bucket.
type BucketQuality string

const (
	BucketQualityOK       BucketQuality = "ok"
	BucketQualityDegraded BucketQuality = "degraded"
	BucketQualityBlocked  BucketQuality = "blocked"
)

// Station is one engine input row: the observed fill state of a dock station
// at a decision bucket.
type Station struct {
	StationKey    string        `json:"station_key"    db:"station_key"`
	Capacity      int           `json:"capacity"       db:"capacity"`
	Bikes         int           `json:"bikes"          db:"bikes_available"`
	Docks         int           `json:"docks"          db:"docks_available"`
	BucketQuality BucketQuality `json:"bucket_quality" db:"bucket_quality"`
}

// NeighborEdge is a directed, pre-ranked candidate donation path between two
// stations.
type NeighborEdge struct {
	FromStationKey string  `json:"from_station_key" db:"station_key"`
	ToStationKey   string  `json:"to_station_key"   db:"neighbor_key"`
	DistM          float64 `json:"dist_m"           db:"dist_m"`
	Rank           int     `json:"rank"             db:"rank"`
}

// PolicyTargets holds the band fractions: a station should hold between
// ceil(alpha*capacity) and floor(beta*capacity) bikes.
type PolicyTargets struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// PolicyEffort bounds how much work a single run may recommend.
type PolicyEffort struct {
	BikeMoveBudgetPerStep int `json:"bike_move_budget_per_step"`
	MaxStationsTouched    int `json:"max_stations_touched"`
	MaxMoves              int `json:"max_moves"`
}

// PolicyNeighborhood limits the candidate edge set.
type PolicyNeighborhood struct {
	MaxNeighbors int     `json:"max_neighbors"`
	EpsilonM     float64 `json:"epsilon_m"`
}

// PolicyScoring names the candidate ranking rule a strategy applies.
type PolicyScoring struct {
	Rule string `json:"rule"`
}

// PolicyConstraints are hard feasibility switches.
type PolicyConstraints struct {
	RespectCapacityBounds bool `json:"respect_capacity_bounds"`
	ForbidDonatingBelowL  bool `json:"forbid_donating_below_L"`
	ForbidReceivingAboveU bool `json:"forbid_receiving_above_U"`
}

// PolicyMissingData controls which input rows are eligible at all.
type PolicyMissingData struct {
	MinCapacityForPolicy int      `json:"min_capacity_for_policy"`
	BucketQualityAllowed []string `json:"bucket_quality_allowed"`
}

// PolicySpec is the immutable effective configuration of one run. Its
// canonical serialization is hashed into policy_spec_sha256, so two runs
// constructed independently from the same configuration share an identity.
type PolicySpec struct {
	Version      string             `json:"version"`
	Targets      PolicyTargets      `json:"targets"`
	Effort       PolicyEffort       `json:"effort"`
	Neighborhood PolicyNeighborhood `json:"neighborhood"`
	Scoring      PolicyScoring      `json:"scoring"`
	Constraints  PolicyConstraints  `json:"constraints"`
	MissingData  PolicyMissingData  `json:"missing_data"`
}

// QualityAllowed reports whether a bucket quality grade may enter the engine.
func (s PolicySpec) QualityAllowed(q BucketQuality) bool {
	for _, allowed := range s.MissingData.BucketQualityAllowed {
		if string(q) == allowed {
			return true
		}
	}
	return false
}
