package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunKeyDedupeKey(t *testing.T) {
	key := RunKey{
		SystemID:       "metro-bike",
		SV:             "sv-abc123",
		DecisionBucket: 1756500000,
		PolicyVersion:  "rebal.greedy.v1",
		HorizonSteps:   12,
	}
	assert.Equal(t, "metro-bike:sv-abc123:1756500000:rebal.greedy.v1:12", key.DedupeKey())
}

func TestRunKeyValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunKey)
		wantErr bool
	}{
		{name: "valid", mutate: func(*RunKey) {}, wantErr: false},
		{name: "missing system", mutate: func(k *RunKey) { k.SystemID = "" }, wantErr: true},
		{name: "missing sv", mutate: func(k *RunKey) { k.SV = "" }, wantErr: true},
		{name: "colon in system", mutate: func(k *RunKey) { k.SystemID = "a:b" }, wantErr: true},
		{name: "negative bucket", mutate: func(k *RunKey) { k.DecisionBucket = -1 }, wantErr: true},
		{name: "negative horizon", mutate: func(k *RunKey) { k.HorizonSteps = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := RunKey{
				SystemID:       "metro-bike",
				SV:             "sv-abc123",
				DecisionBucket: 1756500000,
				PolicyVersion:  "rebal.greedy.v1",
				HorizonSteps:   12,
			}
			tt.mutate(&key)
			err := key.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobPayloadRoundTrip(t *testing.T) {
	key := RunKey{
		SystemID:       "metro-bike",
		SV:             "sv-abc123",
		DecisionBucket: 1756500000,
		PolicyVersion:  "rebal.global.v1",
		HorizonSteps:   6,
	}
	payload := JobPayload{
		SystemID:         key.SystemID,
		SV:               key.SV,
		DecisionBucketTS: key.DecisionBucket,
		HorizonSteps:     key.HorizonSteps,
		PolicyVersion:    key.PolicyVersion,
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded JobPayload
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, key, decoded.RunKey())
}

func TestEnqueueRequestValidate(t *testing.T) {
	blank := "  "
	dedupe := "metro-bike:sv:0:rebal.greedy.v1:0"

	valid := EnqueueRequest{Type: JobTypePolicyRunV1, Payload: json.RawMessage(`{}`), DedupeKey: &dedupe}
	assert.NoError(t, valid.Validate())

	badType := EnqueueRequest{Type: "mystery", Payload: json.RawMessage(`{}`)}
	assert.Error(t, badType.Validate())

	noPayload := EnqueueRequest{Type: JobTypePolicyRunV1}
	assert.Error(t, noPayload.Validate())

	blankKey := EnqueueRequest{Type: JobTypePolicyRunV1, Payload: json.RawMessage(`{}`), DedupeKey: &blank}
	assert.Error(t, blankKey.Validate())
}

func TestJobTypeUnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte(" Policy.Run_v1 ")))
	assert.Equal(t, JobTypePolicyRunV1, jt)

	assert.Error(t, jt.UnmarshalText([]byte("browser")))
}
