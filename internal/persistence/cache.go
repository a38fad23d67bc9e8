package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"amas/internal/coldstart"
)

// GlobalStatsTTL is how long the cold-start process-wide type-prior mix
// stays warm in the read-through cache before a refresh is attempted
// (§4.F "process-wide empirical mix loaded from global stats").
const GlobalStatsTTL = time.Hour

// BundleCache is the Redis-backed L2 cache sitting in front of the model
// snapshot store: each periodic snapshot is written here before its
// durable write is queued, so a warm re-fetch avoids the full gorm round
// trip.
type BundleCache struct {
	client *redis.Client
}

func NewBundleCache(addr string) *BundleCache {
	if addr == "" {
		return &BundleCache{}
	}
	return &BundleCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *BundleCache) enabled() bool { return c.client != nil }

func (c *BundleCache) Put(ctx context.Context, userID string, payload []byte) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Set(ctx, bundleCacheKey(userID), payload, 0).Err()
}

func (c *BundleCache) Get(ctx context.Context, userID string) ([]byte, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	v, err := c.client.Get(ctx, bundleCacheKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *BundleCache) Invalidate(ctx context.Context, userID string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, bundleCacheKey(userID)).Err()
}

func bundleCacheKey(userID string) string { return "amas:bundle:" + userID }

// GlobalStatsCache is the read-through cache cold-start's classify phase
// consults for the process-wide empirical user-type prior mix (§4.F).
type GlobalStatsCache struct {
	client *redis.Client
}

func NewGlobalStatsCache(addr string) *GlobalStatsCache {
	if addr == "" {
		return &GlobalStatsCache{}
	}
	return &GlobalStatsCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *GlobalStatsCache) enabled() bool { return c.client != nil }

const globalStatsKey = "amas:coldstart:global_priors"

// Priors returns the cached prior mix, falling back to
// coldstart.DefaultPriors on a cache miss, disabled cache, or read error
// (§4.F "fallback to {0.25, 0.5, 0.25}").
func (c *GlobalStatsCache) Priors(ctx context.Context) map[coldstart.UserType]float64 {
	if !c.enabled() {
		return coldstart.DefaultPriors
	}
	raw, err := c.client.Get(ctx, globalStatsKey).Bytes()
	if err != nil {
		return coldstart.DefaultPriors
	}
	var decoded map[coldstart.UserType]float64
	if err := json.Unmarshal(raw, &decoded); err != nil || len(decoded) == 0 {
		return coldstart.DefaultPriors
	}
	return decoded
}

// SetPriors refreshes the process-wide prior mix with a GlobalStatsTTL
// expiry. Nothing in this module calls it, so Priors serves
// coldstart.DefaultPriors unless something outside writes the key.
func (c *GlobalStatsCache) SetPriors(ctx context.Context, priors map[coldstart.UserType]float64) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(priors)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, globalStatsKey, raw, GlobalStatsTTL).Err()
}
