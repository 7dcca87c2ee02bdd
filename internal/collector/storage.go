package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoroom/autoroom/pkg/redis"
)

const (
	environmentTTL   = 48 * time.Hour
	genericTTL       = 24 * time.Hour
	genericListLimit = 999
	maxSampleAge     = 48 * time.Hour
)

// Storage handles Redis persistence of sensor data
type Storage struct {
	redis  redis.Client
	logger *slog.Logger
}

// NewStorage creates a new storage handler
func NewStorage(redisClient redis.Client, logger *slog.Logger) *Storage {
	return &Storage{
		redis:  redisClient,
		logger: logger,
	}
}

// StoreSensorData stores sensor data in Redis with the appropriate strategy
func (s *Storage) StoreSensorData(ctx context.Context, msg *SensorMessage, processor *Processor) error {
	switch msg.SensorType {
	case "environment":
		return s.storeEnvironmentData(ctx, msg, processor)
	default:
		return s.storeGenericData(ctx, msg, processor)
	}
}

// storeEnvironmentData keeps a time-ordered window of sanitized samples in a
// sorted set plus a meta hash with the latest values for cheap lookup.
func (s *Storage) storeEnvironmentData(ctx context.Context, msg *SensorMessage, processor *Processor) error {
	data := processor.BuildEnvironmentData(msg)

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal environment data: %w", err)
	}

	sensorKey := redis.EnvironmentSensorKey(msg.Location)
	metaKey := redis.EnvironmentMetaKey(msg.Location)
	score := float64(msg.CollectedAt)

	if err := s.redis.ZAdd(ctx, sensorKey, score, string(jsonData)); err != nil {
		return fmt.Errorf("failed to store environment data: %w", err)
	}

	// Trim samples older than the retention window
	cutoff := float64(time.Now().Add(-maxSampleAge).UnixMilli())
	if err := s.redis.ZRemRangeByScore(ctx, sensorKey, "0", fmt.Sprintf("%f", cutoff)); err != nil {
		s.logger.Warn("Failed to trim old environment samples", "key", sensorKey, "error", err)
	}

	if err := s.redis.HSet(ctx, metaKey, "lastSampleTime", msg.CollectedAt); err != nil {
		s.logger.Warn("Failed to update meta hash", "key", metaKey, "error", err)
	}
	if data.TemperatureC != nil {
		if err := s.redis.HSet(ctx, metaKey, "temperature_c", *data.TemperatureC); err != nil {
			s.logger.Warn("Failed to update meta temperature", "key", metaKey, "error", err)
		}
	}
	if data.HumidityPct != nil {
		if err := s.redis.HSet(ctx, metaKey, "humidity_pct", *data.HumidityPct); err != nil {
			s.logger.Warn("Failed to update meta humidity", "key", metaKey, "error", err)
		}
	}

	if err := s.redis.Expire(ctx, sensorKey, environmentTTL); err != nil {
		s.logger.Warn("Failed to set TTL", "key", sensorKey, "error", err)
	}
	if err := s.redis.Expire(ctx, metaKey, environmentTTL); err != nil {
		s.logger.Warn("Failed to set TTL", "key", metaKey, "error", err)
	}

	s.logger.Debug("Stored environment data",
		"location", msg.Location,
		"key", sensorKey)

	return nil
}

// storeGenericData stores non-environment sensor data in a capped list
func (s *Storage) storeGenericData(ctx context.Context, msg *SensorMessage, processor *Processor) error {
	data := processor.BuildGenericData(msg)

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal generic data: %w", err)
	}

	sensorKey := redis.GenericSensorKey(msg.SensorType, msg.Location)
	metaKey := redis.GenericMetaKey(msg.SensorType, msg.Location)

	if err := s.redis.LPush(ctx, sensorKey, string(jsonData)); err != nil {
		return fmt.Errorf("failed to store generic data: %w", err)
	}

	if err := s.redis.LTrim(ctx, sensorKey, 0, genericListLimit); err != nil {
		s.logger.Warn("Failed to trim list", "key", sensorKey, "error", err)
	}

	if err := s.redis.HSet(ctx, metaKey, "lastSampleTime", msg.CollectedAt); err != nil {
		s.logger.Warn("Failed to update meta hash", "key", metaKey, "error", err)
	}

	if err := s.redis.Expire(ctx, sensorKey, genericTTL); err != nil {
		s.logger.Warn("Failed to set TTL", "key", sensorKey, "error", err)
	}
	if err := s.redis.Expire(ctx, metaKey, genericTTL); err != nil {
		s.logger.Warn("Failed to set TTL", "key", metaKey, "error", err)
	}

	s.logger.Debug("Stored generic data",
		"sensor_type", msg.SensorType,
		"location", msg.Location,
		"key", sensorKey)

	return nil
}
