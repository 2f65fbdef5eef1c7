package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicyRejectsNonPositive(t *testing.T) {
	_, err := NewLeasePolicy(0)
	assert.ErrorIs(t, err, ErrInvalidVisibility)

	_, err = NewLeasePolicy(-time.Second)
	assert.ErrorIs(t, err, ErrInvalidVisibility)
}

func TestLeasePolicyResolve(t *testing.T) {
	policy, err := NewLeasePolicy(60 * time.Second)
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, policy.Resolve(0))
	assert.Equal(t, 60*time.Second, policy.Resolve(-time.Minute))
	assert.Equal(t, time.Second, policy.Resolve(200*time.Millisecond))
	assert.Equal(t, 2*time.Minute, policy.Resolve(2*time.Minute))
}

func TestDefaultBackoffSchedule(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 1 * time.Second},
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 5, want: 32 * time.Second},
		{attempt: 6, want: 60 * time.Second},  // 64s capped at 60s
		{attempt: 10, want: 60 * time.Second}, // exponent capped at 6
		{attempt: -3, want: 1 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultBackoff.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}
