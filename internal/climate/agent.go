package climate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/autoroom/autoroom/internal/energy"
	"github.com/autoroom/autoroom/internal/occupancy"
	"github.com/autoroom/autoroom/pkg/config"
	"github.com/autoroom/autoroom/pkg/mqtt"
	"github.com/autoroom/autoroom/pkg/redis"
)

const recommendationTTL = 24 * time.Hour

// Agent joins the live occupancy count with environment readings and drives
// the setpoint decision loop for one room. It publishes both the raw
// recommendation and the effective setpoint for the control applier, and
// serves the HTTP API for the dashboard.
type Agent struct {
	mqtt      mqtt.Client
	redis     redis.Client
	cfg       *config.Config
	logger    *slog.Logger
	rules     Rules
	overrides *OverrideManager
	env       *EnvironmentCache
	estimator *energy.Estimator
	events    *occupancy.Storage

	mu               sync.RWMutex
	occupancyState   occupancy.State
	appliedSetpointC float64
	lastResult       *Recommendation

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAgent creates a new climate agent with the given dependencies
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		mqtt:      mqttClient,
		redis:     redisClient,
		cfg:       cfg,
		logger:    logger,
		rules:     RulesFromConfig(cfg),
		overrides: NewOverrideManager(),
		env:       NewEnvironmentCache(cfg.StalenessThreshold()),
		estimator: energy.NewEstimator(cfg),
		events:    occupancy.NewStorage(redisClient, cfg, logger),
		// Until the applier reports back, assume the thermostat idles at
		// the warm end of the range
		appliedSetpointC: cfg.SetpointMaxC,
		stopChan:         make(chan struct{}),
	}
}

// Start starts the climate agent and runs the decision loop until the
// context is cancelled or Stop is called
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting climate agent",
		"service_name", a.cfg.ServiceName,
		"location", a.cfg.Location,
		"mqtt_broker", a.cfg.MQTTAddress())

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	if a.env.Seed(ctx, a.redis, a.cfg.Location) {
		a.logger.Info("Seeded environment cache from Redis", "location", a.cfg.Location)
	}

	location := a.cfg.Location
	if err := a.mqtt.Subscribe(mqtt.OccupancyTopic(location), 1, a.handleOccupancyMessage); err != nil {
		return fmt.Errorf("failed to subscribe to occupancy topic: %w", err)
	}
	if err := a.mqtt.Subscribe(mqtt.ProcessedSensorTopic("environment", location), 0, a.handleEnvironmentMessage); err != nil {
		return fmt.Errorf("failed to subscribe to environment topic: %w", err)
	}
	if err := a.mqtt.Subscribe(mqtt.SetpointAckTopic(location), 1, a.handleSetpointAck); err != nil {
		return fmt.Errorf("failed to subscribe to setpoint ack topic: %w", err)
	}

	a.logger.Info("Climate agent started",
		"decision_interval_sec", a.cfg.DecisionIntervalSec,
		"energy_interval_sec", a.cfg.EnergyIntervalSec)

	decisionTicker := time.NewTicker(time.Duration(a.cfg.DecisionIntervalSec) * time.Second)
	defer decisionTicker.Stop()
	energyTicker := time.NewTicker(time.Duration(a.cfg.EnergyIntervalSec) * time.Second)
	defer energyTicker.Stop()

	// First evaluation straight away rather than one interval in
	a.evaluate(ctx)

	for {
		select {
		case <-decisionTicker.C:
			a.evaluate(ctx)
		case <-energyTicker.C:
			a.updateEnergy(ctx)
		case <-a.stopChan:
			a.logger.Info("Climate agent stopping")
			return nil
		case <-ctx.Done():
			a.logger.Info("Climate agent stopping")
			return nil
		}
	}
}

// Stop gracefully stops the climate agent
func (a *Agent) Stop() error {
	a.logger.Info("Stopping climate agent")

	a.stopOnce.Do(func() { close(a.stopChan) })

	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Climate agent stopped")
	return nil
}

// evaluate runs one pass of the setpoint rule engine and publishes the result
func (a *Agent) evaluate(ctx context.Context) {
	a.mu.RLock()
	occ := a.occupancyState
	applied := a.appliedSetpointC
	a.mu.RUnlock()

	sample, stale, have := a.env.Latest()
	if !have {
		a.logger.Warn("No environment sample yet, recommending on occupancy alone",
			"location", a.cfg.Location)
	} else if stale {
		a.logger.Warn("Environment sample is stale, using last-known values",
			"location", a.cfg.Location,
			"sample_age", time.Since(sample.Timestamp).Round(time.Second).String())
	}

	ov := a.overrides.Get(a.cfg.Location)

	rec := Recommend(a.rules, occ.Count, sample.TemperatureC, sample.HumidityPct, applied, ov, a.logger)
	rec.Details["environment_stale"] = stale || !have
	rec.Details["occupancy_calibrated"] = occ.Calibrated

	a.mu.Lock()
	a.lastResult = rec
	a.mu.Unlock()

	a.logger.Info("Setpoint recommendation",
		"location", a.cfg.Location,
		"setpoint_c", rec.SetpointC,
		"reason", rec.Reason,
		"count", occ.Count)

	if err := a.storeRecommendation(ctx, rec); err != nil {
		a.logger.Error("Failed to store recommendation", "error", err)
	}
	if err := a.publishRecommendation(rec); err != nil {
		a.logger.Error("Failed to publish recommendation", "error", err)
	}
}

// updateEnergy advances the energy integration and persists the estimate
func (a *Agent) updateEnergy(ctx context.Context) {
	a.mu.RLock()
	count := a.occupancyState.Count
	a.mu.RUnlock()

	usage := a.estimator.Update(count, time.Now().UTC())

	data, err := json.Marshal(usage)
	if err != nil {
		a.logger.Error("Failed to marshal energy usage", "error", err)
		return
	}

	if err := a.redis.Set(ctx, redis.EnergyUsageKey(a.cfg.Location), string(data), recommendationTTL); err != nil {
		a.logger.Warn("Failed to store energy usage", "error", err)
	}
}

// storeRecommendation persists the latest recommendation in Redis
func (a *Agent) storeRecommendation(ctx context.Context, rec *Recommendation) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendation: %w", err)
	}

	if err := a.redis.Set(ctx, redis.RecommendationKey(a.cfg.Location), string(data), recommendationTTL); err != nil {
		return fmt.Errorf("failed to store recommendation: %w", err)
	}

	return nil
}

// publishRecommendation publishes the recommendation (retained, for the
// dashboard) and the effective setpoint (QoS 1, for the control applier)
func (a *Agent) publishRecommendation(rec *Recommendation) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendation: %w", err)
	}

	if err := a.mqtt.Publish(mqtt.RecommendationTopic(a.cfg.Location), 1, true, data); err != nil {
		return fmt.Errorf("failed to publish recommendation: %w", err)
	}

	setpoint, err := json.Marshal(map[string]interface{}{
		"setpoint_c": rec.SetpointC,
		"reason":     rec.Reason,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal setpoint: %w", err)
	}

	if err := a.mqtt.Publish(mqtt.SetpointTopic(a.cfg.Location), 1, false, setpoint); err != nil {
		return fmt.Errorf("failed to publish setpoint: %w", err)
	}

	return nil
}

// handleOccupancyMessage updates the cached occupancy state from the
// retained state topic published by the beam agent
func (a *Agent) handleOccupancyMessage(msg mqtt.Message) {
	var state occupancy.State
	if err := json.Unmarshal(msg.Payload(), &state); err != nil {
		a.logger.Error("Failed to parse occupancy message", "topic", msg.Topic(), "error", err)
		return
	}

	a.mu.Lock()
	a.occupancyState = state
	a.mu.Unlock()

	a.logger.Debug("Occupancy state updated",
		"count", state.Count,
		"calibrated", state.Calibrated)
}

// handleEnvironmentMessage updates the environment cache from the
// collector's processed topic
func (a *Agent) handleEnvironmentMessage(msg mqtt.Message) {
	var payload struct {
		TemperatureC *float64 `json:"temperature_c"`
		HumidityPct  *float64 `json:"humidity_pct"`
	}
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		a.logger.Error("Failed to parse environment message", "topic", msg.Topic(), "error", err)
		return
	}

	sample, _, have := a.env.Latest()
	if payload.TemperatureC != nil {
		sample.TemperatureC = *payload.TemperatureC
	}
	if payload.HumidityPct != nil {
		sample.HumidityPct = *payload.HumidityPct
	}
	if payload.TemperatureC == nil && payload.HumidityPct == nil && !have {
		return
	}
	sample.Timestamp = time.Now().UTC()
	a.env.Update(sample)

	a.logger.Debug("Environment sample updated",
		"temperature_c", sample.TemperatureC,
		"humidity_pct", sample.HumidityPct)
}

// handleSetpointAck records the applier's last-applied setpoint, which
// feeds the near-target nudge comparison
func (a *Agent) handleSetpointAck(msg mqtt.Message) {
	var payload struct {
		SetpointC float64 `json:"setpoint_c"`
	}
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		a.logger.Error("Failed to parse setpoint ack", "topic", msg.Topic(), "error", err)
		return
	}

	a.mu.Lock()
	a.appliedSetpointC = payload.SetpointC
	a.mu.Unlock()

	a.logger.Debug("Applied setpoint reported", "setpoint_c", payload.SetpointC)
}

// SetOverride stores a manual override and triggers an immediate re-evaluation
func (a *Agent) SetOverride(ctx context.Context, setpointC float64, durationMinutes int) time.Time {
	if durationMinutes <= 0 {
		durationMinutes = a.cfg.OverrideMinutes
	}
	expiresAt := a.overrides.Set(a.cfg.Location, setpointC, durationMinutes)

	a.logger.Info("Manual override set",
		"location", a.cfg.Location,
		"setpoint_c", setpointC,
		"expires_at", expiresAt.UTC().Format(time.RFC3339))

	a.evaluate(ctx)
	return expiresAt
}

// ClearOverride removes the manual override and triggers a re-evaluation
func (a *Agent) ClearOverride(ctx context.Context) bool {
	cleared := a.overrides.Clear(a.cfg.Location)
	if cleared {
		a.logger.Info("Manual override cleared", "location", a.cfg.Location)
		a.evaluate(ctx)
	}
	return cleared
}

// RequestRecalibration forwards a recalibration command to the beam agent
// over the command topic
func (a *Agent) RequestRecalibration(count int) error {
	if count < 0 {
		return fmt.Errorf("recalibration count must not be negative, got %d", count)
	}

	payload, err := json.Marshal(map[string]int{"count": count})
	if err != nil {
		return fmt.Errorf("failed to marshal recalibration command: %w", err)
	}

	if err := a.mqtt.Publish(mqtt.RecalibrateTopic(a.cfg.Location), 1, false, payload); err != nil {
		return fmt.Errorf("failed to publish recalibration command: %w", err)
	}

	a.logger.Info("Recalibration requested", "location", a.cfg.Location, "count", count)
	return nil
}

// Snapshot returns the agent state served by the HTTP API
func (a *Agent) Snapshot(ctx context.Context) StateSnapshot {
	a.mu.RLock()
	occ := a.occupancyState
	applied := a.appliedSetpointC
	last := a.lastResult
	a.mu.RUnlock()

	sample, stale, have := a.env.Latest()

	snap := StateSnapshot{
		Location:         a.cfg.Location,
		Occupancy:        occ,
		AppliedSetpointC: applied,
		Recommendation:   last,
		Energy:           a.estimator.Snapshot(),
	}

	// Crossing activity over the last hour, for the dashboard's activity
	// summary. Best effort: a Redis hiccup just leaves the count at zero.
	now := time.Now().UTC()
	if n, err := a.events.EventCountInWindow(ctx, a.cfg.Location, now.Add(-time.Hour), now); err == nil {
		snap.CrossingsLastHour = n
	}

	if have {
		snap.Environment = &EnvironmentSnapshot{
			TemperatureC: sample.TemperatureC,
			HumidityPct:  sample.HumidityPct,
			Timestamp:    sample.Timestamp,
			Stale:        stale,
		}
	}

	if expiresAt, active := a.overrides.ExpiresAt(a.cfg.Location); active {
		ov := a.overrides.Get(a.cfg.Location)
		snap.Override = &OverrideSnapshot{
			SetpointC: ov.SetpointC,
			ExpiresAt: expiresAt,
		}
	}

	return snap
}

// StateSnapshot is the read-only view of the agent served over HTTP
type StateSnapshot struct {
	Location          string               `json:"location"`
	Occupancy         occupancy.State      `json:"occupancy"`
	CrossingsLastHour int                  `json:"crossings_last_hour"`
	Environment       *EnvironmentSnapshot `json:"environment,omitempty"`
	AppliedSetpointC  float64              `json:"applied_setpoint_c"`
	Recommendation    *Recommendation      `json:"recommendation,omitempty"`
	Override          *OverrideSnapshot    `json:"override,omitempty"`
	Energy            energy.Usage         `json:"energy"`
}

// EnvironmentSnapshot is the latest environment reading with its staleness flag
type EnvironmentSnapshot struct {
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
	Timestamp    time.Time `json:"timestamp"`
	Stale        bool      `json:"stale"`
}

// OverrideSnapshot is the active manual override, if any
type OverrideSnapshot struct {
	SetpointC float64   `json:"setpoint_c"`
	ExpiresAt time.Time `json:"expires_at"`
}
