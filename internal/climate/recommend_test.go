package climate

import (
	"log/slog"
	"os"
	"testing"

	"github.com/autoroom/autoroom/pkg/config"
)

func testRules() Rules {
	return RulesFromConfig(config.NewConfig())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRecommendEmptyRoom(t *testing.T) {
	rec := Recommend(testRules(), 0, 25, 50, 27, Override{}, testLogger())

	if rec.SetpointC != 27 {
		t.Errorf("setpoint = %.1f, want 27", rec.SetpointC)
	}
	if rec.Reason != ReasonEmpty {
		t.Errorf("reason = %q, want %q", rec.Reason, ReasonEmpty)
	}
}

func TestRecommendSingleOccupant(t *testing.T) {
	rec := Recommend(testRules(), 1, 25, 50, 27, Override{}, testLogger())

	if rec.SetpointC != 25 {
		t.Errorf("setpoint = %.1f, want 25", rec.SetpointC)
	}
	if rec.Reason != ReasonOccupied {
		t.Errorf("reason = %q, want %q", rec.Reason, ReasonOccupied)
	}
}

func TestRecommendHumidityAdjustment(t *testing.T) {
	rec := Recommend(testRules(), 1, 25, 65, 27, Override{}, testLogger())

	if rec.SetpointC != 24.5 {
		t.Errorf("setpoint = %.1f, want 24.5", rec.SetpointC)
	}
	if rec.Reason != ReasonHumidityAdjusted {
		t.Errorf("reason = %q, want %q", rec.Reason, ReasonHumidityAdjusted)
	}
}

func TestRecommendHumidityAtThresholdNoAdjustment(t *testing.T) {
	// The adjustment fires strictly above the threshold
	rec := Recommend(testRules(), 1, 25, 60, 27, Override{}, testLogger())

	if rec.SetpointC != 25 {
		t.Errorf("setpoint = %.1f, want 25", rec.SetpointC)
	}
	if rec.Reason != ReasonOccupied {
		t.Errorf("reason = %q, want %q", rec.Reason, ReasonOccupied)
	}
}

func TestRecommendNearTargetNudge(t *testing.T) {
	rules := testRules()

	// Three occupants: base = 25 - penalty(3)
	base := 25.0 - rules.Penalty(3)

	// Applied setpoint already at the computed base
	rec := Recommend(rules, 3, 25, 50, base, Override{}, testLogger())

	if rec.SetpointC != base+1 {
		t.Errorf("setpoint = %.2f, want %.2f", rec.SetpointC, base+1)
	}
	if rec.Reason != ReasonNearTargetNudge {
		t.Errorf("reason = %q, want %q", rec.Reason, ReasonNearTargetNudge)
	}
}

func TestRecommendNudgeAfterHumidityWinsReason(t *testing.T) {
	// Both the humidity rule and the nudge fire; the nudge is last to
	// materially change the value
	rec := Recommend(testRules(), 1, 25, 65, 24.5, Override{}, testLogger())

	if rec.SetpointC != 25.5 {
		t.Errorf("setpoint = %.1f, want 25.5", rec.SetpointC)
	}
	if rec.Reason != ReasonNearTargetNudge {
		t.Errorf("reason = %q, want %q", rec.Reason, ReasonNearTargetNudge)
	}
}

func TestRecommendOverrideWins(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		tempC    float64
		humidity float64
		current  float64
	}{
		{"empty room", 0, 25, 50, 27},
		{"crowded humid room", 6, 32, 90, 20},
		{"nonsense inputs", -5, 150, -20, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Recommend(testRules(), tt.count, tt.tempC, tt.humidity, tt.current,
				Override{Active: true, SetpointC: 22}, testLogger())

			if rec.SetpointC != 22 {
				t.Errorf("setpoint = %.1f, want exactly 22", rec.SetpointC)
			}
			if rec.Reason != ReasonOverride {
				t.Errorf("reason = %q, want %q", rec.Reason, ReasonOverride)
			}
		})
	}
}

func TestRecommendOverrideClampedToBounds(t *testing.T) {
	rules := testRules()

	rec := Recommend(rules, 1, 25, 50, 25, Override{Active: true, SetpointC: 35}, testLogger())
	if rec.SetpointC != rules.SetpointMaxC {
		t.Errorf("setpoint = %.1f, want clamped to %.1f", rec.SetpointC, rules.SetpointMaxC)
	}

	rec = Recommend(rules, 1, 25, 50, 25, Override{Active: true, SetpointC: 5}, testLogger())
	if rec.SetpointC != rules.SetpointMinC {
		t.Errorf("setpoint = %.1f, want clamped to %.1f", rec.SetpointC, rules.SetpointMinC)
	}
}

func TestRecommendAlwaysWithinBounds(t *testing.T) {
	rules := testRules()

	counts := []int{-3, 0, 1, 2, 5, 20, 100}
	temps := []float64{-100, 0, 25, 45, 200}
	humidities := []float64{-10, 0, 50, 61, 100, 400}
	currents := []float64{-50, 0, 18, 22.5, 27, 60}

	for _, count := range counts {
		for _, temp := range temps {
			for _, humidity := range humidities {
				for _, current := range currents {
					rec := Recommend(rules, count, temp, humidity, current, Override{}, testLogger())
					if rec.SetpointC < rules.SetpointMinC || rec.SetpointC > rules.SetpointMaxC {
						t.Fatalf("setpoint %.2f out of [%.1f, %.1f] for count=%d temp=%.1f humidity=%.1f current=%.1f",
							rec.SetpointC, rules.SetpointMinC, rules.SetpointMaxC,
							count, temp, humidity, current)
					}
				}
			}
		}
	}
}

func TestRecommendNegativeCountSanitized(t *testing.T) {
	rec := Recommend(testRules(), -3, 25, 50, 20, Override{}, testLogger())

	if rec.SetpointC != 27 {
		t.Errorf("setpoint = %.1f, want 27 (treated as empty)", rec.SetpointC)
	}
	if rec.Reason != ReasonEmpty {
		t.Errorf("reason = %q, want %q", rec.Reason, ReasonEmpty)
	}
}

func TestRecommendNudgeNoOpAtCeilingKeepsReason(t *testing.T) {
	// Empty room at the clamp ceiling: the nudge condition holds but cannot
	// move the value, so the reason stays Empty
	rec := Recommend(testRules(), 0, 25, 50, 27, Override{}, testLogger())

	if rec.Reason != ReasonEmpty {
		t.Errorf("reason = %q, want %q", rec.Reason, ReasonEmpty)
	}
}

func TestPenaltyCurve(t *testing.T) {
	rules := testRules()

	tests := []struct {
		count int
		want  float64
	}{
		{0, 0},
		{1, 0},
		{2, 1.15},
		{3, 1.30},
		{9, 2.20},
		{50, 2.20}, // last entry repeats for larger groups
	}

	for _, tt := range tests {
		if got := rules.Penalty(tt.count); got != tt.want {
			t.Errorf("Penalty(%d) = %.2f, want %.2f", tt.count, got, tt.want)
		}
	}
}

func TestPenaltyDiminishingReturns(t *testing.T) {
	rules := testRules()

	// Each additional occupant must never cool more than the previous step.
	// The table entries are float literals, so successive differences carry
	// rounding noise; compare with a tolerance rather than exactly.
	const tolerance = 1e-9
	prevStep := rules.Penalty(2)
	for count := 3; count < 15; count++ {
		step := rules.Penalty(count) - rules.Penalty(count-1)
		if step > prevStep+tolerance {
			t.Errorf("penalty step at count %d grew: %.17f > %.17f", count, step, prevStep)
		}
		prevStep = step
	}
}
