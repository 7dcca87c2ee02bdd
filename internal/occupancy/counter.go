package occupancy

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autoroom/autoroom/internal/beam"
)

// State is the live occupancy state for a room. Count never goes below zero:
// an exit against an empty room is dropped and counted as an underflow
// diagnostic instead.
type State struct {
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
	Calibrated  bool      `json:"calibrated"`
	Underflows  int       `json:"underflows"`
}

// Counter owns the occupancy state. It assumes a single writer (the beam
// polling loop); concurrent readers get an immutable snapshot through an
// atomic pointer swap, so the presentation side never contends with the hot
// path.
type Counter struct {
	mu sync.Mutex

	state      State
	consistent int // crossing events applied cleanly since start or last underflow

	// calibrateAfter many consistent events mark the count calibrated even
	// without an operator recalibration
	calibrateAfter int

	// resetHook clears the crossing detector's pending state during
	// recalibration, inside the same critical section as the count reset
	resetHook func()

	snapshot atomic.Pointer[State]
	logger   *slog.Logger
}

// NewCounter creates a counter starting at zero, uncalibrated.
func NewCounter(calibrateAfter int, logger *slog.Logger) *Counter {
	c := &Counter{
		calibrateAfter: calibrateAfter,
		logger:         logger,
	}
	c.publishSnapshot()
	return c
}

// SetResetHook registers the function invoked during Recalibrate to clear
// pending detector state.
func (c *Counter) SetResetHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetHook = fn
}

// Apply integrates one crossing event and returns the resulting state.
// Ignored events leave the state untouched.
func (c *Counter) Apply(ev beam.Event) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Direction {
	case beam.Entry:
		c.state.Count++
		c.recordConsistent()
		c.state.LastUpdated = ev.Time

	case beam.Exit:
		if c.state.Count == 0 {
			// Possible missed entry or double exit; surface as a
			// diagnostic and leave the count at zero
			c.state.Underflows++
			c.consistent = 0
			c.logger.Warn("Exit event with empty room, dropping",
				"underflows", c.state.Underflows)
		} else {
			c.state.Count--
			c.recordConsistent()
		}
		c.state.LastUpdated = ev.Time

	case beam.Ignored:
		return c.state
	}

	c.publishSnapshot()
	return c.state
}

// Recalibrate overwrites the count with operator-declared ground truth,
// marks the state calibrated, and clears pending detector state. It shares
// the writer lock with Apply so a crossing can never be lost or
// double-applied across the reset.
func (c *Counter) Recalibrate(known int) (State, error) {
	if known < 0 {
		return State{}, fmt.Errorf("recalibration count must not be negative, got %d", known)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resetHook != nil {
		c.resetHook()
	}

	c.state.Count = known
	c.state.Calibrated = true
	c.state.LastUpdated = time.Now().UTC()
	c.consistent = 0

	c.publishSnapshot()
	c.logger.Info("Occupancy recalibrated", "count", known)

	return c.state, nil
}

// Snapshot returns the latest immutable state copy. Safe from any goroutine.
func (c *Counter) Snapshot() State {
	return *c.snapshot.Load()
}

// recordConsistent advances the implicit calibration streak. Held under mu.
func (c *Counter) recordConsistent() {
	if c.state.Calibrated {
		return
	}
	c.consistent++
	if c.calibrateAfter > 0 && c.consistent >= c.calibrateAfter {
		c.state.Calibrated = true
		c.logger.Info("Occupancy count considered calibrated",
			"consistent_events", c.consistent)
	}
}

// publishSnapshot swaps in a fresh immutable copy for readers. Held under mu
// (or during construction, before the counter is shared).
func (c *Counter) publishSnapshot() {
	st := c.state
	c.snapshot.Store(&st)
}
