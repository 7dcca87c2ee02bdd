package occupancy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoroom/autoroom/internal/beam"
	"github.com/autoroom/autoroom/internal/gpio"
	"github.com/autoroom/autoroom/pkg/config"
	"github.com/autoroom/autoroom/pkg/mqtt"
	"github.com/autoroom/autoroom/pkg/redis"
)

// Agent is the beam agent: it polls the two beam lines on a fixed tick,
// drives the crossing detector and the occupancy counter, and publishes the
// resulting events and state for the rest of the platform.
type Agent struct {
	mqtt     mqtt.Client
	redis    redis.Client
	cfg      *config.Config
	logger   *slog.Logger
	reader   gpio.Reader
	detector *beam.Detector
	counter  *Counter
	storage  *Storage

	// Recalibration commands are funneled into the polling loop so the
	// count reset and detector reset happen between ticks, never inside one
	recalCh  chan int
	stopChan chan struct{}
}

// NewAgent creates a new beam agent with the given dependencies
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, reader gpio.Reader, cfg *config.Config, logger *slog.Logger) *Agent {
	detector := beam.NewDetector(cfg.PairingWindow(), cfg.DebounceHold(), logger)
	counter := NewCounter(cfg.CalibrationCount, logger)
	counter.SetResetHook(detector.Reset)

	return &Agent{
		mqtt:     mqttClient,
		redis:    redisClient,
		cfg:      cfg,
		logger:   logger,
		reader:   reader,
		detector: detector,
		counter:  counter,
		storage:  NewStorage(redisClient, cfg, logger),
		recalCh:  make(chan int, 4),
		stopChan: make(chan struct{}),
	}
}

// Counter exposes the occupancy counter for read-only snapshot access
// (health endpoints, tests).
func (a *Agent) Counter() *Counter {
	return a.counter
}

// Start starts the beam agent and begins polling
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting beam agent",
		"service_name", a.cfg.ServiceName,
		"location", a.cfg.Location,
		"tick_interval_ms", a.cfg.TickIntervalMs,
		"pairing_window_ms", a.cfg.PairingWindowMs,
		"debounce_hold_ms", a.cfg.DebounceHoldMs)

	// Connect to MQTT broker
	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// Verify Redis connection
	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	// Subscribe to operator recalibration commands
	recalTopic := mqtt.RecalibrateTopic(a.cfg.Location)
	if err := a.mqtt.Subscribe(recalTopic, 1, a.handleRecalibrateMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", recalTopic, err)
	}

	// Publish the initial retained state so subscribers see count=0,
	// uncalibrated immediately
	a.publishState(a.counter.Snapshot())

	a.logger.Info("Beam agent started, polling beams")
	a.pollLoop(ctx)

	a.logger.Info("Beam agent stopping")
	return nil
}

// Stop gracefully stops the beam agent
func (a *Agent) Stop() error {
	a.logger.Info("Stopping beam agent")

	close(a.stopChan)

	if err := a.reader.Close(); err != nil {
		a.logger.Error("Error closing beam reader", "error", err)
	}

	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Beam agent stopped")
	return nil
}

// pollLoop is the single writer for detector and counter state.
func (a *Agent) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.tick(ctx)

		case known := <-a.recalCh:
			a.applyRecalibration(ctx, known)

		case <-a.stopChan:
			return

		case <-ctx.Done():
			return
		}
	}
}

// tick reads the beams once and applies whatever the detector resolves.
func (a *Agent) tick(ctx context.Context) {
	aBlocked, bBlocked, err := a.reader.Read()
	if err != nil {
		// Flaky hardware is an expected operating condition; skip the tick
		a.logger.Warn("Beam read failed", "error", err)
		return
	}

	events := a.detector.Process(beam.Sample{
		A:    aBlocked,
		B:    bBlocked,
		Time: time.Now(),
	})

	for _, ev := range events {
		state := a.counter.Apply(ev)

		if err := a.storage.StoreEvent(ctx, a.cfg.Location, ev); err != nil {
			a.logger.Warn("Failed to store crossing event", "error", err)
		}
		a.publishEvent(ev)

		if ev.Direction == beam.Ignored {
			continue
		}

		a.logger.Info("Crossing applied",
			"direction", ev.Direction,
			"count", state.Count,
			"confidence", ev.Confidence)

		if err := a.storage.StoreState(ctx, a.cfg.Location, state); err != nil {
			a.logger.Warn("Failed to store occupancy state", "error", err)
		}
		a.publishState(state)
	}
}

// applyRecalibration resets the count to operator-declared ground truth.
func (a *Agent) applyRecalibration(ctx context.Context, known int) {
	state, err := a.counter.Recalibrate(known)
	if err != nil {
		a.logger.Error("Recalibration rejected", "count", known, "error", err)
		return
	}

	if err := a.storage.StoreState(ctx, a.cfg.Location, state); err != nil {
		a.logger.Warn("Failed to store occupancy state", "error", err)
	}
	a.publishState(state)
}

// handleRecalibrateMessage parses an operator recalibration command.
// Payload: {"count": <non-negative integer>}
func (a *Agent) handleRecalibrateMessage(msg mqtt.Message) {
	var cmd struct {
		Count int `json:"count"`
	}

	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		a.logger.Error("Failed to parse recalibrate command",
			"topic", msg.Topic(),
			"error", err)
		return
	}

	if cmd.Count < 0 {
		a.logger.Error("Rejecting negative recalibration count", "count", cmd.Count)
		return
	}

	a.logger.Info("Recalibration requested", "count", cmd.Count)

	select {
	case a.recalCh <- cmd.Count:
	default:
		a.logger.Warn("Recalibration queue full, dropping command")
	}
}

// publishEvent publishes a crossing event (including Ignored classifications,
// which the dashboard surfaces as sensor noise diagnostics).
func (a *Agent) publishEvent(ev beam.Event) {
	payload, err := json.Marshal(map[string]interface{}{
		"id":         ev.ID.String(),
		"direction":  string(ev.Direction),
		"confidence": ev.Confidence,
		"timestamp":  ev.Time.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		a.logger.Error("Failed to marshal crossing event", "error", err)
		return
	}

	topic := mqtt.CrossingTopic(a.cfg.Location)
	if err := a.mqtt.Publish(topic, 0, false, payload); err != nil {
		a.logger.Error("Failed to publish crossing event", "topic", topic, "error", err)
	}
}

// publishState publishes the occupancy state, retained so late subscribers
// get the current count immediately.
func (a *Agent) publishState(st State) {
	payload, err := json.Marshal(map[string]interface{}{
		"count":        st.Count,
		"calibrated":   st.Calibrated,
		"underflows":   st.Underflows,
		"last_updated": st.LastUpdated.UTC().Format(time.RFC3339Nano),
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		a.logger.Error("Failed to marshal occupancy state", "error", err)
		return
	}

	topic := mqtt.OccupancyTopic(a.cfg.Location)
	if err := a.mqtt.Publish(topic, 1, true, payload); err != nil {
		a.logger.Error("Failed to publish occupancy state", "topic", topic, "error", err)
	}
}
