package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/urbanflow/rebal/internal/domain/model"
)

// Strategy selects one of the interchangeable optimization algorithms.
type Strategy string

const (
	// StrategyGreedyV1 matches edges locally, nearest first.
	StrategyGreedyV1 Strategy = "greedy.v1"
	// StrategyGlobalV1 matches edges globally by bikes-per-meter.
	StrategyGlobalV1 Strategy = "global.v1"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyGreedyV1 || s == StrategyGlobalV1
}

// Reason codes attached to engine moves.
const (
	ReasonMinDistanceThenMaxTransfer = "min_distance_then_max_transfer"
	ReasonMaxTransferPerMeter        = "max_transfer_per_meter"
)

// ParseStrategy infers the strategy family from a policy version string.
// Version strings conventionally embed the family as a dot-separated token,
// e.g. "rebal.greedy.v1" or "metro.global.v2". Unknown families are an error:
// a job carrying one has no retry value.
func ParseStrategy(policyVersion string) (Strategy, error) {
	for _, token := range strings.Split(policyVersion, ".") {
		switch token {
		case "greedy":
			return StrategyGreedyV1, nil
		case "global":
			return StrategyGlobalV1, nil
		}
	}
	return "", fmt.Errorf("unsupported policy version %q", policyVersion)
}

// ScoringRule returns the candidate ranking rule the strategy applies.
func (s Strategy) ScoringRule() string {
	if s == StrategyGlobalV1 {
		return ReasonMaxTransferPerMeter
	}
	return ReasonMinDistanceThenMaxTransfer
}

// SpecForVersion returns a copy of base bound to one policy version: the
// version string and the strategy's scoring rule are filled in. Every
// component that derives a run identity goes through here, so the digest of
// the returned spec is the same no matter who computes it.
func SpecForVersion(base model.PolicySpec, policyVersion string) (model.PolicySpec, error) {
	strategy, err := ParseStrategy(policyVersion)
	if err != nil {
		return model.PolicySpec{}, err
	}
	base.Version = policyVersion
	base.Scoring.Rule = strategy.ScoringRule()
	return base, nil
}

// SpecSHA256 hashes the canonical serialization of a PolicySpec. Identical
// effective configuration always yields the same digest, and therefore the
// same run identity.
func SpecSHA256(spec model.PolicySpec) (string, error) {
	canonical, err := MarshalCanonical(spec)
	if err != nil {
		return "", fmt.Errorf("canonicalize spec: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
