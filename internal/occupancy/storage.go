package occupancy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/autoroom/autoroom/internal/beam"
	"github.com/autoroom/autoroom/pkg/config"
	"github.com/autoroom/autoroom/pkg/redis"
)

const (
	// TTL for occupancy data; Redis holds live shared state, not durable
	// history
	occupancyTTL = 24 * time.Hour

	// Max age for crossing event entries (24 hours in milliseconds)
	maxEventAge = 24 * 60 * 60 * 1000
)

// Storage wraps Redis operations for the beam agent
type Storage struct {
	redis  redis.Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewStorage creates a new storage wrapper
func NewStorage(redisClient redis.Client, cfg *config.Config, logger *slog.Logger) *Storage {
	return &Storage{
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
	}
}

// StoreState writes the live occupancy state hash for a location
func (s *Storage) StoreState(ctx context.Context, location string, st State) error {
	key := redis.OccupancyStateKey(location)

	fields := map[string]string{
		"count":        strconv.Itoa(st.Count),
		"last_updated": st.LastUpdated.UTC().Format(time.RFC3339Nano),
		"calibrated":   strconv.FormatBool(st.Calibrated),
		"underflows":   strconv.Itoa(st.Underflows),
	}

	for field, value := range fields {
		if err := s.redis.HSet(ctx, key, field, value); err != nil {
			return fmt.Errorf("failed to store occupancy state: %w", err)
		}
	}

	if err := s.redis.Expire(ctx, key, occupancyTTL); err != nil {
		s.logger.Warn("Failed to set TTL on occupancy state", "location", location, "error", err)
	}

	return nil
}

// StoreEvent appends a crossing event to the location's history sorted set,
// trimming entries beyond the retention window
func (s *Storage) StoreEvent(ctx context.Context, location string, ev beam.Event) error {
	key := redis.CrossingEventsKey(location)

	record := map[string]interface{}{
		"id":         ev.ID.String(),
		"direction":  string(ev.Direction),
		"confidence": ev.Confidence,
		"timestamp":  ev.Time.UTC().Format(time.RFC3339Nano),
	}

	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal crossing event: %w", err)
	}

	score := float64(ev.Time.UnixMilli())
	if err := s.redis.ZAdd(ctx, key, score, jsonData); err != nil {
		return fmt.Errorf("failed to add crossing event: %w", err)
	}

	// Clean entries older than the retention window
	cutoff := ev.Time.UnixMilli() - maxEventAge
	if err := s.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)); err != nil {
		s.logger.Warn("Failed to clean old crossing events", "location", location, "error", err)
	}

	if err := s.redis.Expire(ctx, key, occupancyTTL); err != nil {
		s.logger.Warn("Failed to set TTL on crossing events", "location", location, "error", err)
	}

	return nil
}

// EventCountInWindow returns how many crossing events fall inside a time
// window; the dashboard uses it for activity summaries
func (s *Storage) EventCountInWindow(ctx context.Context, location string, start, end time.Time) (int, error) {
	key := redis.CrossingEventsKey(location)

	members, err := s.redis.ZRangeByScoreWithScores(ctx, key, float64(start.UnixMilli()), float64(end.UnixMilli()))
	if err != nil {
		s.logger.Warn("Failed to query crossing event window", "location", location, "error", err)
		return 0, err
	}

	return len(members), nil
}
