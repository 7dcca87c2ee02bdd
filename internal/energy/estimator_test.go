package energy

import (
	"math"
	"testing"
	"time"

	"github.com/autoroom/autoroom/pkg/config"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEstimatorIntegration(t *testing.T) {
	est := NewEstimator(config.NewConfig())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Two people walk in: load starts, nothing accumulated yet
	usage := est.Update(2, t0)
	if !almostEqual(usage.CurrentKW, 0.4) {
		t.Errorf("CurrentKW = %.3f, want 0.4", usage.CurrentKW)
	}
	if !almostEqual(usage.EnergyKWh, 0) {
		t.Errorf("EnergyKWh = %.3f, want 0", usage.EnergyKWh)
	}

	// Half an hour later: 0.4 kW over 0.5 h = 0.2 kWh
	usage = est.Update(2, t0.Add(30*time.Minute))
	if !almostEqual(usage.EnergyKWh, 0.2) {
		t.Errorf("EnergyKWh = %.3f, want 0.2", usage.EnergyKWh)
	}
	if !almostEqual(usage.CostUSD, 0.2*0.12) {
		t.Errorf("CostUSD = %.4f, want %.4f", usage.CostUSD, 0.2*0.12)
	}

	// A third person arrives; another half hour at the old load first
	usage = est.Update(3, t0.Add(60*time.Minute))
	if !almostEqual(usage.EnergyKWh, 0.4) {
		t.Errorf("EnergyKWh = %.3f, want 0.4", usage.EnergyKWh)
	}
	if !almostEqual(usage.CurrentKW, 0.6) {
		t.Errorf("CurrentKW = %.3f, want 0.6", usage.CurrentKW)
	}
}

func TestEstimatorResetsWhenEmpty(t *testing.T) {
	est := NewEstimator(config.NewConfig())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	est.Update(1, t0)
	est.Update(1, t0.Add(time.Hour))

	usage := est.Update(0, t0.Add(2*time.Hour))
	if usage.CurrentKW != 0 {
		t.Errorf("CurrentKW = %.3f, want 0 after room empties", usage.CurrentKW)
	}
	if usage.EnergyKWh != 0 {
		t.Errorf("EnergyKWh = %.3f, want session reset to 0", usage.EnergyKWh)
	}
	if usage.SessionRun {
		t.Error("session should not be running in an empty room")
	}

	// A new session starts from zero
	usage = est.Update(2, t0.Add(3*time.Hour))
	if usage.EnergyKWh != 0 {
		t.Errorf("EnergyKWh = %.3f, want 0 at session start", usage.EnergyKWh)
	}
}

func TestEstimatorNegativeCountTreatedAsEmpty(t *testing.T) {
	est := NewEstimator(config.NewConfig())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	usage := est.Update(-4, t0)
	if usage.CurrentKW != 0 || usage.Occupants != 0 {
		t.Errorf("negative count should sanitize to empty, got kW=%.3f occupants=%d",
			usage.CurrentKW, usage.Occupants)
	}
}

func TestSlabCost(t *testing.T) {
	slabs := config.DefaultTariffSlabs()

	tests := []struct {
		name string
		kwh  float64
		want float64
	}{
		{"zero", 0, 0},
		{"within free slab", 50, 0},
		{"into second slab", 150, 50 * 2.35},
		{"through third slab", 900, 100*2.35 + 600*6.5 + 100*10.5},
		{"into unbounded slab", 1200, 100*2.35 + 600*6.5 + 200*10.5 + 200*12.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := slabCost(tt.kwh, slabs); !almostEqual(got, tt.want) {
				t.Errorf("slabCost(%.0f) = %.2f, want %.2f", tt.kwh, got, tt.want)
			}
		})
	}
}

func TestSlabCostNoSlabs(t *testing.T) {
	if got := slabCost(500, nil); got != 0 {
		t.Errorf("slabCost with no slabs = %.2f, want 0", got)
	}
}
