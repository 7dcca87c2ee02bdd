package climate

import (
	"log/slog"

	"github.com/autoroom/autoroom/pkg/config"
)

// Reason tags which rule produced the recommended setpoint
type Reason string

const (
	ReasonEmpty            Reason = "empty"
	ReasonOccupied         Reason = "occupied"
	ReasonHumidityAdjusted Reason = "humidity_adjusted"
	ReasonNearTargetNudge  Reason = "near_target_nudge"
	ReasonOverride         Reason = "override"
)

// Override represents a manual setpoint override. When active it takes
// unconditional precedence over the computed recommendation.
type Override struct {
	Active    bool
	SetpointC float64
}

// Recommendation represents a setpoint decision with reasoning
type Recommendation struct {
	SetpointC float64                `json:"setpoint_c"`
	Reason    Reason                 `json:"reason"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Rules holds the operator-tunable parameters of the setpoint rule engine
type Rules struct {
	SetpointMinC         float64
	SetpointMaxC         float64
	HumidityThresholdPct float64
	NearTargetEpsilonC   float64

	// Extra cooling below the single-occupant base, indexed by count-2.
	// The last entry repeats for larger groups.
	PenaltyTableC []float64

	EmptyBaseC    float64
	OccupiedBaseC float64
}

// RulesFromConfig builds the rule parameters from agent configuration
func RulesFromConfig(cfg *config.Config) Rules {
	return Rules{
		SetpointMinC:         cfg.SetpointMinC,
		SetpointMaxC:         cfg.SetpointMaxC,
		HumidityThresholdPct: cfg.HumidityThresholdPct,
		NearTargetEpsilonC:   cfg.NearTargetEpsilonC,
		PenaltyTableC:        cfg.PenaltyTableC,
		EmptyBaseC:           27.0,
		OccupiedBaseC:        25.0,
	}
}

// Penalty returns the extra cooling applied for the given occupant count.
// Counts below two carry no penalty.
func (r Rules) Penalty(count int) float64 {
	if count < 2 || len(r.PenaltyTableC) == 0 {
		return 0
	}
	idx := count - 2
	if idx >= len(r.PenaltyTableC) {
		idx = len(r.PenaltyTableC) - 1
	}
	return r.PenaltyTableC[idx]
}

func (r Rules) clamp(v float64) float64 {
	if v < r.SetpointMinC {
		return r.SetpointMinC
	}
	if v > r.SetpointMaxC {
		return r.SetpointMaxC
	}
	return v
}

// Physical plausibility bounds for input sanitization. Out-of-range inputs
// are clamped, never rejected: the loop must always produce a setpoint.
const (
	minInputTempC  = -40.0
	maxInputTempC  = 60.0
	minInputHumPct = 0.0
	maxInputHumPct = 100.0
)

// Recommend implements the setpoint rule engine. It is a pure function of
// its inputs, deterministic, and safe to call concurrently at any rate.
//
// Rule order: manual override wins outright; otherwise the occupancy count
// picks a base setpoint (empty rooms relax toward warm, crowded rooms earn
// a diminishing per-person cooling penalty), high humidity lowers it half a
// degree, and if the currently applied setpoint already sits within epsilon
// of the target the value is nudged one degree warmer so the load is not
// chattered for negligible gain. The result is always inside the clamp
// bounds.
func Recommend(
	rules Rules,
	count int,
	temperatureC float64,
	humidityPct float64,
	currentSetpointC float64,
	override Override,
	logger *slog.Logger,
) *Recommendation {
	// Rule 1: Manual override always wins
	if override.Active {
		setpoint := rules.clamp(override.SetpointC)
		logger.Debug("Rule 1: Manual override active",
			"setpoint_c", setpoint)
		return &Recommendation{
			SetpointC: setpoint,
			Reason:    ReasonOverride,
			Details: map[string]interface{}{
				"rule":        1,
				"description": "Manual override active",
			},
		}
	}

	// Sanitize inputs before applying rules
	if count < 0 {
		count = 0
	}
	temperatureC = clampFloat(temperatureC, minInputTempC, maxInputTempC)
	humidityPct = clampFloat(humidityPct, minInputHumPct, maxInputHumPct)
	currentSetpointC = rules.clamp(currentSetpointC)

	// Rule 2: Base setpoint by occupancy
	var base float64
	var reason Reason
	var penalty float64
	if count == 0 {
		base = rules.EmptyBaseC
		reason = ReasonEmpty
	} else {
		penalty = rules.Penalty(count)
		base = rules.OccupiedBaseC - penalty
		reason = ReasonOccupied
	}

	// Rule 3: Humidity adjustment. The reason only moves on when the rule
	// materially changed the clamped value.
	humidityAdjusted := false
	if humidityPct > rules.HumidityThresholdPct {
		before := rules.clamp(base)
		base -= 0.5
		if rules.clamp(base) != before {
			humidityAdjusted = true
			reason = ReasonHumidityAdjusted
		}
	}

	// Rule 4: Clamp to the allowed setpoint range
	base = rules.clamp(base)

	// Rule 5: Near-target nudge. If the applied setpoint is already within
	// epsilon of the target, move one degree warmer rather than chattering
	// the load for a negligible gain. At the clamp ceiling the nudge is a
	// no-op and does not claim the reason.
	nudged := false
	if absFloat(currentSetpointC-base) <= rules.NearTargetEpsilonC {
		nudgedValue := rules.clamp(base + 1.0)
		if nudgedValue != base {
			base = nudgedValue
			nudged = true
			reason = ReasonNearTargetNudge
		}
	}

	logger.Debug("Setpoint recommendation computed",
		"count", count,
		"temperature_c", temperatureC,
		"humidity_pct", humidityPct,
		"current_setpoint_c", currentSetpointC,
		"setpoint_c", base,
		"reason", reason)

	return &Recommendation{
		SetpointC: base,
		Reason:    reason,
		Details: map[string]interface{}{
			"count":              count,
			"temperature_c":      temperatureC,
			"humidity_pct":       humidityPct,
			"current_setpoint_c": currentSetpointC,
			"penalty_c":          penalty,
			"humidity_adjusted":  humidityAdjusted,
			"near_target_nudge":  nudged,
		},
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
