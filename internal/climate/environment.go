package climate

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/autoroom/autoroom/pkg/redis"
)

// Sample is the latest known environment reading for a room
type Sample struct {
	TemperatureC float64
	HumidityPct  float64
	Timestamp    time.Time
}

// EnvironmentCache holds the most recent environment sample and flags it
// stale once it exceeds the configured age. A stale sample is still served:
// the decision loop keeps working on last-known values and only logs a
// warning.
type EnvironmentCache struct {
	mu         sync.RWMutex
	sample     Sample
	hasSample  bool
	staleAfter time.Duration
}

// NewEnvironmentCache creates an environment cache with the given staleness threshold
func NewEnvironmentCache(staleAfter time.Duration) *EnvironmentCache {
	return &EnvironmentCache{
		staleAfter: staleAfter,
	}
}

// Update stores a new environment sample
func (c *EnvironmentCache) Update(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample = s
	c.hasSample = true
}

// Latest returns the most recent sample, whether it is stale, and whether
// any sample has been seen at all
func (c *EnvironmentCache) Latest() (Sample, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasSample {
		return Sample{}, false, false
	}

	stale := time.Since(c.sample.Timestamp) > c.staleAfter
	return c.sample, stale, true
}

// Seed loads the last stored environment values from the meta hash in
// Redis, so a restarted agent does not start blind while waiting for the
// next sensor publish. Missing or partial data is not an error.
func (c *EnvironmentCache) Seed(ctx context.Context, redisClient redis.Client, location string) bool {
	meta, err := redisClient.HGetAll(ctx, redis.EnvironmentMetaKey(location))
	if err != nil || len(meta) == 0 {
		return false
	}

	sample := Sample{}
	seeded := false

	if v, ok := meta["temperature_c"]; ok {
		if temp, err := strconv.ParseFloat(v, 64); err == nil {
			sample.TemperatureC = temp
			seeded = true
		}
	}
	if v, ok := meta["humidity_pct"]; ok {
		if hum, err := strconv.ParseFloat(v, 64); err == nil {
			sample.HumidityPct = hum
			seeded = true
		}
	}
	if v, ok := meta["lastSampleTime"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			sample.Timestamp = time.UnixMilli(ms)
		}
	}

	if !seeded {
		return false
	}

	c.Update(sample)
	return true
}
