package energy

import (
	"sync"
	"time"

	"github.com/autoroom/autoroom/pkg/config"
)

// Usage is a snapshot of the estimated energy consumption of the room
type Usage struct {
	CurrentKW  float64   `json:"current_kw"`
	EnergyKWh  float64   `json:"energy_kwh"`
	CostUSD    float64   `json:"cost_usd"`
	CostINR    float64   `json:"cost_inr"`
	Occupants  int       `json:"occupants"`
	UpdatedAt  time.Time `json:"updated_at"`
	SessionRun bool      `json:"session_running"`
}

// Estimator models the climate load as a per-person draw and integrates it
// into kWh over wall-clock time. The accumulated session resets when the
// room empties, mirroring an AC that switches off with the last person out.
//
// Costs are reported two ways: a flat USD rate and a slabbed INR tariff,
// both driven by configuration.
type Estimator struct {
	mu sync.Mutex

	perPersonKW float64
	usdRate     float64
	slabs       []config.TariffSlab

	currentKW  float64
	energyKWh  float64
	occupants  int
	lastUpdate time.Time
	running    bool
}

// NewEstimator creates an estimator from agent configuration
func NewEstimator(cfg *config.Config) *Estimator {
	return &Estimator{
		perPersonKW: cfg.PerPersonLoadKW,
		usdRate:     cfg.USDRatePerKWh,
		slabs:       cfg.TariffSlabs,
	}
}

// Update advances the integration to now with the previous load, then
// switches to the load implied by the given occupant count. An empty room
// ends the session and resets the accumulated energy.
func (e *Estimator) Update(count int, now time.Time) Usage {
	e.mu.Lock()
	defer e.mu.Unlock()

	if count < 0 {
		count = 0
	}

	if e.running && !e.lastUpdate.IsZero() && now.After(e.lastUpdate) {
		elapsed := now.Sub(e.lastUpdate).Hours()
		e.energyKWh += e.currentKW * elapsed
	}

	if count == 0 {
		e.currentKW = 0
		e.energyKWh = 0
		e.running = false
	} else {
		e.currentKW = e.perPersonKW * float64(count)
		e.running = true
	}

	e.occupants = count
	e.lastUpdate = now

	return e.usageLocked()
}

// Snapshot returns the current usage without advancing the integration
func (e *Estimator) Snapshot() Usage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usageLocked()
}

func (e *Estimator) usageLocked() Usage {
	return Usage{
		CurrentKW:  e.currentKW,
		EnergyKWh:  e.energyKWh,
		CostUSD:    e.energyKWh * e.usdRate,
		CostINR:    slabCost(e.energyKWh, e.slabs),
		Occupants:  e.occupants,
		UpdatedAt:  e.lastUpdate,
		SessionRun: e.running,
	}
}

// slabCost prices kWh against a stepped tariff. Each slab covers UpToKWh
// of consumption at its rate; a slab with UpToKWh <= 0 is unbounded and
// terminates the walk.
func slabCost(kwh float64, slabs []config.TariffSlab) float64 {
	if kwh <= 0 {
		return 0
	}

	cost := 0.0
	remaining := kwh

	for _, slab := range slabs {
		if remaining <= 0 {
			break
		}

		if slab.UpToKWh <= 0 {
			cost += remaining * slab.RatePerKWh
			remaining = 0
			break
		}

		portion := remaining
		if portion > slab.UpToKWh {
			portion = slab.UpToKWh
		}
		cost += portion * slab.RatePerKWh
		remaining -= portion
	}

	// Consumption beyond the last bounded slab is priced at the final rate
	if remaining > 0 && len(slabs) > 0 {
		cost += remaining * slabs[len(slabs)-1].RatePerKWh
	}

	return cost
}
