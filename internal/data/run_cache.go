package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/urbanflow/rebal/internal/domain/model"
)

// RunCache is a TTL-bounded Redis cache of completed run summaries, keyed by
// natural run identity. The coordinator consults it before hitting Postgres;
// a missing or unavailable cache is never an error, only a miss.
type RunCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunCache creates a RunCache. A non-positive ttl falls back to one hour.
func NewRunCache(client *redis.Client, ttl time.Duration) *RunCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RunCache{client: client, ttl: ttl}
}

// RunCachePrefix prefixes every cached run summary key. Operational tooling
// scans this namespace to inspect or clear cache entries.
const RunCachePrefix = "rebal:run:"

func runCacheKey(key model.RunIdentity) string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%d:%d",
		RunCachePrefix,
		key.SystemID, key.PolicyVersion, key.PolicySpecSHA256, key.SV,
		key.DecisionBucketTS.UTC().Unix(), key.HorizonSteps)
}

// Get returns the cached run for a natural key, or (nil, nil) on a miss.
func (c *RunCache) Get(ctx context.Context, key model.RunIdentity) (*model.PolicyRun, error) {
	raw, err := c.client.Get(ctx, runCacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run cache get: %w", err)
	}
	var run model.PolicyRun
	if err := json.Unmarshal(raw, &run); err != nil {
		// A corrupt entry is treated as a miss; it will be rewritten.
		return nil, nil
	}
	return &run, nil
}

// Put stores a run summary under its natural key.
func (c *RunCache) Put(ctx context.Context, run *model.PolicyRun) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("run cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, runCacheKey(run.NaturalKey()), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("run cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached summary for a natural key.
func (c *RunCache) Invalidate(ctx context.Context, key model.RunIdentity) error {
	if err := c.client.Del(ctx, runCacheKey(key)).Err(); err != nil {
		return fmt.Errorf("run cache del: %w", err)
	}
	return nil
}
