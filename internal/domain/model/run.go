package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Run status values. Provisional failure stubs use RunStatusFail with an
// error_reason; a later successful pass over the same natural key overwrites
// the stub in place.
const (
	RunStatusSuccess = "success"
	RunStatusFail    = "fail"
)

// Input quality grades recorded on a run.
const (
	InputQualityOK       = "ok"
	InputQualityDegraded = "degraded"
	InputQualityBlocked  = "blocked"
)

// No-op reasons, derived from post-run station states when the final result
// is genuinely empty.
const (
	NoOpReasonBudgetZero          = "budget_zero"
	NoOpReasonNoDeficits          = "no_deficits"
	NoOpReasonNoSurpluses         = "no_surpluses"
	NoOpReasonNeighborhoodBlocked = "neighborhood_blocked"
)

// PolicyRun is the persisted summary of one engine execution. Natural key =
// (system_id, policy_version, policy_spec_sha256, sv, decision_bucket_ts,
// horizon_steps); upserts on that key overwrite only the mutable fields.
type PolicyRun struct {
	RunID            string    `json:"run_id"                 db:"run_id"`
	SystemID         string    `json:"system_id"              db:"system_id"`
	PolicyVersion    string    `json:"policy_version"         db:"policy_version"`
	PolicySpecSHA256 string    `json:"policy_spec_sha256"     db:"policy_spec_sha256"`
	SV               string    `json:"sv"                     db:"sv"`
	DecisionBucketTS time.Time `json:"decision_bucket_ts"     db:"decision_bucket_ts"`
	HorizonSteps     int       `json:"horizon_steps"          db:"horizon_steps"`
	InputQuality     string    `json:"input_quality"          db:"input_quality"`
	Status           string    `json:"status"                 db:"status"`
	NoOp             bool      `json:"no_op"                  db:"no_op"`
	NoOpReason       *string   `json:"no_op_reason,omitempty" db:"no_op_reason"`
	ErrorReason      *string   `json:"error_reason,omitempty" db:"error_reason"`
	CreatedAt        time.Time `json:"created_at"             db:"created_at"`
	MoveCount        int       `json:"move_count"             db:"move_count"`
}

// NaturalKey returns the run identity fields as a RunIdentity.
func (r *PolicyRun) NaturalKey() RunIdentity {
	return RunIdentity{
		SystemID:         r.SystemID,
		PolicyVersion:    r.PolicyVersion,
		PolicySpecSHA256: r.PolicySpecSHA256,
		SV:               r.SV,
		DecisionBucketTS: r.DecisionBucketTS,
		HorizonSteps:     r.HorizonSteps,
	}
}

// RunIdentity is the natural key of a PolicyRun.
type RunIdentity struct {
	SystemID         string
	PolicyVersion    string
	PolicySpecSHA256 string
	SV               string
	DecisionBucketTS time.Time
	HorizonSteps     int
}

// PolicyMove is one ranked recommendation row, owned entirely by its run.
type PolicyMove struct {
	RunID          string   `json:"run_id"           db:"run_id"`
	MoveRank       int      `json:"move_rank"        db:"move_rank"`
	FromStationKey string   `json:"from_station_key" db:"from_station_key"`
	ToStationKey   string   `json:"to_station_key"   db:"to_station_key"`
	BikesMoved     int      `json:"bikes_moved"      db:"bikes_moved"`
	DistM          float64  `json:"dist_m"           db:"dist_m"`
	ReasonCodes    []string `json:"reason_codes"     db:"reason_codes"`
}

// RunKey identifies one logical run request: the join point between the
// coordinator, the queue and the output store.
type RunKey struct {
	SystemID       string `json:"system_id"`
	SV             string `json:"sv"`
	DecisionBucket int64  `json:"decision_bucket_ts"`
	PolicyVersion  string `json:"policy_version"`
	HorizonSteps   int    `json:"horizon_steps"`
}

// Validate checks RunKey fields. Colons are rejected because the dedupe key
// is colon-delimited with no escaping.
func (k RunKey) Validate() error {
	if k.SystemID == "" || k.SV == "" || k.PolicyVersion == "" {
		return errors.New("system_id, sv and policy_version are required")
	}
	for _, field := range []string{k.SystemID, k.SV, k.PolicyVersion} {
		if strings.Contains(field, ":") {
			return fmt.Errorf("run key field %q must not contain ':'", field)
		}
	}
	if k.DecisionBucket < 0 {
		return errors.New("decision_bucket_ts must be >= 0")
	}
	if k.HorizonSteps < 0 {
		return errors.New("horizon_steps must be >= 0")
	}
	return nil
}

// DedupeKey renders the queue dedupe key for this request.
func (k RunKey) DedupeKey() string {
	return fmt.Sprintf("%s:%s:%d:%s:%d",
		k.SystemID, k.SV, k.DecisionBucket, k.PolicyVersion, k.HorizonSteps)
}

// JobPayload is the JSON body of a policy.run_v1 queue item. Missing or
// invalid fields are a permanent parse failure, not a retryable one.
type JobPayload struct {
	SystemID         string `json:"system_id"          validate:"required"`
	SV               string `json:"sv"                 validate:"required"`
	DecisionBucketTS int64  `json:"decision_bucket_ts" validate:"gte=0"`
	HorizonSteps     int    `json:"horizon_steps"      validate:"gte=0"`
	PolicyVersion    string `json:"policy_version"     validate:"required"`
}

// RunKey converts the payload back into its run key.
func (p JobPayload) RunKey() RunKey {
	return RunKey{
		SystemID:       p.SystemID,
		SV:             p.SV,
		DecisionBucket: p.DecisionBucketTS,
		PolicyVersion:  p.PolicyVersion,
		HorizonSteps:   p.HorizonSteps,
	}
}
