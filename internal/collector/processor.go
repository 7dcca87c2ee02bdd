package collector

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Physical plausibility bounds for incoming environment readings. Values
// outside these are clamped, never rejected: the recommender must keep
// producing output on flaky hardware.
const (
	minPlausibleTempC  = -40.0
	maxPlausibleTempC  = 60.0
	minPlausibleHumPct = 0.0
	maxPlausibleHumPct = 100.0
)

// Processor handles parsing and sanitizing of sensor messages
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a new message processor
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{
		logger: logger,
	}
}

// SensorMessage represents a parsed sensor message with metadata
type SensorMessage struct {
	SensorType    string
	Location      string
	OriginalTopic string
	Data          map[string]interface{}
	Timestamp     time.Time
	CollectedAt   int64 // Unix milliseconds
}

// EnvironmentData represents a sanitized temperature/humidity sample
type EnvironmentData struct {
	Timestamp    string   `json:"timestamp"`
	CollectedAt  int64    `json:"collected_at"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty"`
}

// GenericData represents generic sensor data
type GenericData struct {
	Data          map[string]interface{} `json:"data"`
	OriginalTopic string                 `json:"original_topic"`
	Timestamp     string                 `json:"timestamp"`
	CollectedAt   int64                  `json:"collected_at"`
}

// ParseMessage parses an MQTT message into a structured sensor message.
// Topic pattern: autoroom/raw/{sensor_type}/{location}
func (p *Processor) ParseMessage(topic string, payload []byte) (*SensorMessage, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 {
		p.logger.Warn("Invalid topic format", "topic", topic)
		return nil, fmt.Errorf("invalid topic format: %s (expected at least 4 parts)", topic)
	}

	sensorType := parts[2]
	location := parts[3]

	var rawData map[string]interface{}
	if err := json.Unmarshal(payload, &rawData); err != nil {
		p.logger.Error("Failed to parse JSON payload", "topic", topic, "error", err)
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	// Messages may be wrapped in {"data": {...}}
	data, ok := rawData["data"].(map[string]interface{})
	if !ok {
		data = rawData
	}

	msg := &SensorMessage{
		SensorType:    sensorType,
		Location:      location,
		OriginalTopic: topic,
		Data:          data,
		Timestamp:     time.Now().UTC(),
		CollectedAt:   time.Now().UnixMilli(),
	}

	p.logger.Debug("Parsed sensor message",
		"sensor_type", sensorType,
		"location", location,
		"topic", topic)

	return msg, nil
}

// BuildEnvironmentData converts a sensor message to a sanitized environment
// sample for Redis storage. Out-of-physical-range readings are clamped.
func (p *Processor) BuildEnvironmentData(msg *SensorMessage) *EnvironmentData {
	data := &EnvironmentData{
		Timestamp:   msg.Timestamp.Format(time.RFC3339Nano),
		CollectedAt: msg.CollectedAt,
	}

	if value, ok := msg.Data["temperature_c"].(float64); ok {
		clamped := clamp(value, minPlausibleTempC, maxPlausibleTempC)
		if clamped != value {
			p.logger.Warn("Clamped implausible temperature reading",
				"location", msg.Location,
				"raw", value,
				"clamped", clamped)
		}
		data.TemperatureC = &clamped
	}

	if value, ok := msg.Data["humidity_pct"].(float64); ok {
		clamped := clamp(value, minPlausibleHumPct, maxPlausibleHumPct)
		if clamped != value {
			p.logger.Warn("Clamped implausible humidity reading",
				"location", msg.Location,
				"raw", value,
				"clamped", clamped)
		}
		data.HumidityPct = &clamped
	}

	return data
}

// BuildGenericData converts a sensor message to generic data for Redis storage
func (p *Processor) BuildGenericData(msg *SensorMessage) *GenericData {
	return &GenericData{
		Data:          msg.Data,
		OriginalTopic: msg.OriginalTopic,
		Timestamp:     msg.Timestamp.Format(time.RFC3339Nano),
		CollectedAt:   msg.CollectedAt,
	}
}

// BuildTriggerPayload creates the payload for the trigger message published
// to the processed topic. Environment samples republish the sanitized
// values, not the raw ones.
func (p *Processor) BuildTriggerPayload(msg *SensorMessage) ([]byte, error) {
	var payload map[string]interface{}

	if msg.SensorType == "environment" {
		env := p.BuildEnvironmentData(msg)
		payload = map[string]interface{}{
			"temperature_c": env.TemperatureC,
			"humidity_pct":  env.HumidityPct,
			"timestamp":     env.Timestamp,
			"stored_at":     msg.Timestamp.Format(time.RFC3339Nano),
		}
	} else {
		payload = map[string]interface{}{
			"data":           msg.Data,
			"original_topic": msg.OriginalTopic,
			"stored_at":      msg.Timestamp.Format(time.RFC3339Nano),
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	return data, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
