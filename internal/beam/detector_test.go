package beam

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

const (
	testWindow = 300 * time.Millisecond
	testHold   = 20 * time.Millisecond
	testTick   = 10 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// step describes the beam states at a millisecond offset from the base time.
type step struct {
	atMs int
	a    bool
	b    bool
}

// feed replays steps as samples on a 10ms grid, holding the most recent
// states between steps, and returns all emitted events.
func feed(d *Detector, steps []step, untilMs int) []Event {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var events []Event
	a, b := false, false
	next := 0

	for ms := 0; ms <= untilMs; ms += int(testTick.Milliseconds()) {
		for next < len(steps) && steps[next].atMs <= ms {
			a = steps[next].a
			b = steps[next].b
			next++
		}
		events = append(events, d.Process(Sample{
			A:    a,
			B:    b,
			Time: base.Add(time.Duration(ms) * time.Millisecond),
		})...)
	}

	return events
}

func countDirections(events []Event) (entries, exits, ignored int) {
	for _, ev := range events {
		switch ev.Direction {
		case Entry:
			entries++
		case Exit:
			exits++
		case Ignored:
			ignored++
		}
	}
	return
}

func TestDetectorEntry(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())

	// Beam A interrupted first, beam B 80ms later: one person walking in
	events := feed(d, []step{
		{atMs: 0, a: true, b: false},
		{atMs: 80, a: true, b: true},
		{atMs: 160, a: false, b: false},
	}, 800)

	entries, exits, ignored := countDirections(events)
	if entries != 1 {
		t.Errorf("expected exactly 1 entry, got %d", entries)
	}
	if exits != 0 {
		t.Errorf("expected 0 exits, got %d", exits)
	}
	if ignored != 0 {
		t.Errorf("expected 0 ignored, got %d", ignored)
	}
}

func TestDetectorExit(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())

	// Beam B interrupted first: one person walking out
	events := feed(d, []step{
		{atMs: 0, a: false, b: true},
		{atMs: 80, a: true, b: true},
		{atMs: 160, a: false, b: false},
	}, 800)

	entries, exits, ignored := countDirections(events)
	if exits != 1 {
		t.Errorf("expected exactly 1 exit, got %d", exits)
	}
	if entries != 0 {
		t.Errorf("expected 0 entries, got %d", entries)
	}
	if ignored != 0 {
		t.Errorf("expected 0 ignored, got %d", ignored)
	}
}

func TestDetectorEventMetadata(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())

	events := feed(d, []step{
		{atMs: 0, a: true, b: false},
		{atMs: 80, a: true, b: true},
	}, 200)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected a non-zero event ID")
	}
	if ev.Confidence <= 0.5 || ev.Confidence > 1.0 {
		t.Errorf("expected confidence in (0.5, 1.0], got %f", ev.Confidence)
	}
}

func TestDetectorUnpairedTimeout(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())

	// A single beam interruption with no partner is noise
	events := feed(d, []step{
		{atMs: 0, a: true, b: false},
		{atMs: 60, a: false, b: false},
	}, 800)

	entries, exits, ignored := countDirections(events)
	if entries != 0 || exits != 0 {
		t.Errorf("expected no crossings, got %d entries %d exits", entries, exits)
	}
	if ignored != 1 {
		t.Errorf("expected exactly 1 ignored event, got %d", ignored)
	}
}

func TestDetectorSameBeamRestartsTimer(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())

	// Two interruptions of beam A within the window, beam B never trips:
	// the pending timer restarts and exactly one Ignored results
	events := feed(d, []step{
		{atMs: 0, a: true, b: false},
		{atMs: 60, a: false, b: false},
		{atMs: 150, a: true, b: false},
		{atMs: 210, a: false, b: false},
	}, 1000)

	entries, exits, ignored := countDirections(events)
	if entries != 0 || exits != 0 {
		t.Errorf("expected no crossings, got %d entries %d exits", entries, exits)
	}
	if ignored != 1 {
		t.Errorf("expected exactly 1 ignored event, got %d", ignored)
	}
}

func TestDetectorSimultaneousBlockIgnored(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())

	// Both beams interrupted in the same tick: direction is ambiguous
	events := feed(d, []step{
		{atMs: 0, a: true, b: true},
		{atMs: 100, a: false, b: false},
	}, 800)

	entries, exits, ignored := countDirections(events)
	if entries != 0 || exits != 0 {
		t.Errorf("expected no crossings, got %d entries %d exits", entries, exits)
	}
	if ignored != 1 {
		t.Errorf("expected exactly 1 ignored event, got %d", ignored)
	}
}

func TestDetectorDebounceFiltersFlicker(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// A one-tick blip on beam A never holds for the debounce duration
	samples := []Sample{
		{A: false, B: false, Time: base},
		{A: true, B: false, Time: base.Add(10 * time.Millisecond)},
		{A: false, B: false, Time: base.Add(20 * time.Millisecond)},
		{A: false, B: false, Time: base.Add(30 * time.Millisecond)},
	}

	var events []Event
	for _, s := range samples {
		events = append(events, d.Process(s)...)
	}

	// Run well past the window to prove nothing was armed
	for ms := 40; ms <= 500; ms += 10 {
		events = append(events, d.Process(Sample{Time: base.Add(time.Duration(ms) * time.Millisecond)})...)
	}

	if len(events) != 0 {
		t.Errorf("expected flicker to be filtered, got %d events", len(events))
	}
}

func TestDetectorOutOfOrderSampleDropped(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.Process(Sample{Time: base.Add(100 * time.Millisecond)})
	events := d.Process(Sample{A: true, Time: base.Add(50 * time.Millisecond)})

	if len(events) != 0 {
		t.Errorf("expected no events from dropped sample, got %d", len(events))
	}
	if d.DroppedSamples() != 1 {
		t.Errorf("expected 1 dropped sample, got %d", d.DroppedSamples())
	}
}

func TestDetectorBeyondWindowNotPaired(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())

	// Second beam trips well outside the pairing window: two separate
	// noise events, no crossing
	events := feed(d, []step{
		{atMs: 0, a: true, b: false},
		{atMs: 60, a: false, b: false},
		{atMs: 400, a: false, b: true},
		{atMs: 460, a: false, b: false},
	}, 1200)

	entries, exits, ignored := countDirections(events)
	if entries != 0 || exits != 0 {
		t.Errorf("expected no crossings, got %d entries %d exits", entries, exits)
	}
	if ignored != 2 {
		t.Errorf("expected 2 ignored events, got %d", ignored)
	}
}

func TestDetectorResetClearsPendingArm(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Arm beam A
	for ms := 0; ms <= 40; ms += 10 {
		d.Process(Sample{A: true, Time: base.Add(time.Duration(ms) * time.Millisecond)})
	}

	d.Reset()

	// Beam B tripping right after the reset must not resolve an Entry from
	// the stale arm
	var events []Event
	for ms := 50; ms <= 120; ms += 10 {
		events = append(events, d.Process(Sample{A: true, B: true, Time: base.Add(time.Duration(ms) * time.Millisecond)})...)
	}

	entries, _, _ := countDirections(events)
	if entries != 0 {
		t.Errorf("expected no entry after reset, got %d", entries)
	}
}

func TestDetectorBackToBackCrossings(t *testing.T) {
	d := NewDetector(testWindow, testHold, testLogger())

	// Two people entering one after the other
	events := feed(d, []step{
		{atMs: 0, a: true, b: false},
		{atMs: 80, a: true, b: true},
		{atMs: 160, a: false, b: false},
		{atMs: 600, a: true, b: false},
		{atMs: 680, a: true, b: true},
		{atMs: 760, a: false, b: false},
	}, 1500)

	entries, exits, ignored := countDirections(events)
	if entries != 2 {
		t.Errorf("expected 2 entries, got %d", entries)
	}
	if exits != 0 || ignored != 0 {
		t.Errorf("expected clean crossings, got %d exits %d ignored", exits, ignored)
	}
}
