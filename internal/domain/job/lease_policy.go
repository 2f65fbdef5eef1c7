// Package job holds queue-side policy that is independent of storage:
// how long a claim lease lasts and how retry delays grow.
package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidVisibility indicates the configured visibility timeout is not positive.
var ErrInvalidVisibility = errors.New("visibility timeout must be positive")

// LeasePolicy normalises visibility timeouts for queue claims.
type LeasePolicy struct {
	defaultVisibility time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default
// visibility timeout.
func NewLeasePolicy(defaultVisibility time.Duration) (*LeasePolicy, error) {
	if defaultVisibility <= 0 {
		return nil, ErrInvalidVisibility
	}
	return &LeasePolicy{defaultVisibility: defaultVisibility}, nil
}

// Default returns the configured default visibility timeout.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultVisibility
}

// Resolve returns the visibility timeout to apply for a claim. Non-positive
// requests fall back to the default; sub-second requests are rounded up so a
// lease never expires within the same polling tick it was granted.
func (p *LeasePolicy) Resolve(requested time.Duration) time.Duration {
	if requested <= 0 {
		return p.Default()
	}
	if requested < time.Second {
		return time.Second
	}
	return requested
}

// DefaultLease grants 60-second claim leases.
var DefaultLease = &LeasePolicy{defaultVisibility: 60 * time.Second}

// BackoffPolicy computes the requeue delay after a failed attempt.
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay per attempt, capped at MaxDelay.
// The exponent itself is capped so large attempt counts cannot overflow.
type ExponentialBackoff struct {
	MaxDelay    time.Duration
	MaxExponent int
}

// DefaultBackoff is min(60, 2^min(attempt,6)) seconds.
var DefaultBackoff = ExponentialBackoff{
	MaxDelay:    60 * time.Second,
	MaxExponent: 6,
}

// Delay implements BackoffPolicy.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	exp := attempt
	if b.MaxExponent > 0 && exp > b.MaxExponent {
		exp = b.MaxExponent
	}
	delay := time.Duration(math.Pow(2, float64(exp))) * time.Second
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}
