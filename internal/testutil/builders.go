package testutil

import (
	"encoding/json"
	"time"

	"github.com/urbanflow/rebal/internal/domain/model"
)

// EnqueueRequestBuilder builds model.EnqueueRequest values for tests.
type EnqueueRequestBuilder struct {
	request model.EnqueueRequest
}

// NewEnqueueRequest creates a builder with sensible defaults.
func NewEnqueueRequest() *EnqueueRequestBuilder {
	return &EnqueueRequestBuilder{
		request: model.EnqueueRequest{
			Type:    model.JobTypePolicyRunV1,
			Payload: json.RawMessage(`{"system_id":"metro-bike","sv":"sv-abc123","decision_bucket_ts":1756500000,"horizon_steps":12,"policy_version":"rebal.greedy.v1"}`),
		},
	}
}

// WithPayload sets the job payload.
func (b *EnqueueRequestBuilder) WithPayload(payload json.RawMessage) *EnqueueRequestBuilder {
	b.request.Payload = payload
	return b
}

// WithPayloadString sets the job payload from a string.
func (b *EnqueueRequestBuilder) WithPayloadString(payload string) *EnqueueRequestBuilder {
	b.request.Payload = json.RawMessage(payload)
	return b
}

// WithDedupeKey sets the dedupe key.
func (b *EnqueueRequestBuilder) WithDedupeKey(key string) *EnqueueRequestBuilder {
	b.request.DedupeKey = &key
	return b
}

// WithRunKey derives both the payload and the dedupe key from a run key.
func (b *EnqueueRequestBuilder) WithRunKey(key model.RunKey) *EnqueueRequestBuilder {
	payload, _ := json.Marshal(model.JobPayload{
		SystemID:         key.SystemID,
		SV:               key.SV,
		DecisionBucketTS: key.DecisionBucket,
		HorizonSteps:     key.HorizonSteps,
		PolicyVersion:    key.PolicyVersion,
	})
	b.request.Payload = payload
	dedupe := key.DedupeKey()
	b.request.DedupeKey = &dedupe
	return b
}

// WithMaxAttempts sets the retry budget.
func (b *EnqueueRequestBuilder) WithMaxAttempts(n int) *EnqueueRequestBuilder {
	b.request.MaxAttempts = n
	return b
}

// Build returns the enqueue request.
func (b *EnqueueRequestBuilder) Build() model.EnqueueRequest {
	return b.request
}

// Station returns a station with docks derived from capacity and bikes.
func Station(key string, capacity, bikes int) model.Station {
	return model.Station{
		StationKey:    key,
		Capacity:      capacity,
		Bikes:         bikes,
		Docks:         capacity - bikes,
		BucketQuality: model.BucketQualityOK,
	}
}

// RunKey returns a valid run key for tests.
func RunKey() model.RunKey {
	return model.RunKey{
		SystemID:       "metro-bike",
		SV:             "sv-abc123",
		DecisionBucket: 1756500000,
		PolicyVersion:  "rebal.greedy.v1",
		HorizonSteps:   12,
	}
}

// PolicyRun returns a minimal successful run for the given identity fields.
func PolicyRun(key model.RunKey, specSHA string) model.PolicyRun {
	return model.PolicyRun{
		SystemID:         key.SystemID,
		PolicyVersion:    key.PolicyVersion,
		PolicySpecSHA256: specSHA,
		SV:               key.SV,
		DecisionBucketTS: time.Unix(key.DecisionBucket, 0).UTC(),
		HorizonSteps:     key.HorizonSteps,
		InputQuality:     model.InputQualityOK,
		Status:           model.RunStatusSuccess,
	}
}
