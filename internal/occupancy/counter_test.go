package occupancy

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/autoroom/autoroom/internal/beam"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func event(direction beam.Direction, t time.Time) beam.Event {
	return beam.Event{
		ID:         uuid.New(),
		Direction:  direction,
		Time:       t,
		Confidence: 0.9,
	}
}

func TestCounterEntryExit(t *testing.T) {
	c := NewCounter(10, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	st := c.Apply(event(beam.Entry, now))
	if st.Count != 1 {
		t.Errorf("expected count 1 after entry, got %d", st.Count)
	}

	st = c.Apply(event(beam.Entry, now.Add(time.Second)))
	if st.Count != 2 {
		t.Errorf("expected count 2 after second entry, got %d", st.Count)
	}

	st = c.Apply(event(beam.Exit, now.Add(2*time.Second)))
	if st.Count != 1 {
		t.Errorf("expected count 1 after exit, got %d", st.Count)
	}

	if st.LastUpdated != now.Add(2*time.Second) {
		t.Errorf("expected last_updated to follow the event time, got %v", st.LastUpdated)
	}
}

func TestCounterNeverNegative(t *testing.T) {
	c := NewCounter(10, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Exits against an empty room clamp at zero and raise the underflow
	// diagnostic instead of going negative
	for i := 0; i < 3; i++ {
		st := c.Apply(event(beam.Exit, now.Add(time.Duration(i)*time.Second)))
		if st.Count != 0 {
			t.Errorf("exit %d: expected count 0, got %d", i, st.Count)
		}
	}

	st := c.Snapshot()
	if st.Underflows != 3 {
		t.Errorf("expected 3 underflow diagnostics, got %d", st.Underflows)
	}
}

func TestCounterIgnoredNoChange(t *testing.T) {
	c := NewCounter(10, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Apply(event(beam.Entry, now))
	before := c.Snapshot()

	st := c.Apply(event(beam.Ignored, now.Add(time.Second)))
	if st.Count != before.Count {
		t.Errorf("ignored event changed count: %d -> %d", before.Count, st.Count)
	}
	if st.LastUpdated != before.LastUpdated {
		t.Error("ignored event should not touch last_updated")
	}
}

func TestCounterRecalibrate(t *testing.T) {
	c := NewCounter(10, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Apply(event(beam.Entry, now))
	c.Apply(event(beam.Entry, now.Add(time.Second)))

	resetCalled := false
	c.SetResetHook(func() { resetCalled = true })

	st, err := c.Recalibrate(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Count != 0 {
		t.Errorf("expected count 0 after recalibration, got %d", st.Count)
	}
	if !st.Calibrated {
		t.Error("expected calibrated=true after recalibration")
	}
	if !resetCalled {
		t.Error("expected the detector reset hook to run during recalibration")
	}
}

func TestCounterRecalibrateRejectsNegative(t *testing.T) {
	c := NewCounter(10, testLogger())

	if _, err := c.Recalibrate(-1); err == nil {
		t.Error("expected error for negative recalibration count")
	}
}

func TestCounterImplicitCalibration(t *testing.T) {
	c := NewCounter(3, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Apply(event(beam.Entry, now))
	c.Apply(event(beam.Entry, now.Add(time.Second)))
	if c.Snapshot().Calibrated {
		t.Error("should not be calibrated after 2 consistent events")
	}

	c.Apply(event(beam.Exit, now.Add(2*time.Second)))
	if !c.Snapshot().Calibrated {
		t.Error("expected calibrated after 3 consistent events")
	}
}

func TestCounterUnderflowResetsConsistencyStreak(t *testing.T) {
	c := NewCounter(3, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Apply(event(beam.Entry, now))
	c.Apply(event(beam.Exit, now.Add(time.Second)))
	// Underflow breaks the streak
	c.Apply(event(beam.Exit, now.Add(2*time.Second)))
	c.Apply(event(beam.Entry, now.Add(3*time.Second)))

	if c.Snapshot().Calibrated {
		t.Error("underflow should have reset the calibration streak")
	}
}

func TestCounterSnapshotIsolation(t *testing.T) {
	c := NewCounter(10, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	before := c.Snapshot()
	c.Apply(event(beam.Entry, now))
	after := c.Snapshot()

	if before.Count != 0 {
		t.Errorf("earlier snapshot mutated: %d", before.Count)
	}
	if after.Count != 1 {
		t.Errorf("expected fresh snapshot count 1, got %d", after.Count)
	}
}
