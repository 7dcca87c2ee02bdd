package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the operator-tunable tables that ship in a YAML file so
// comfort/savings calibration never requires a rebuild. Zero values mean
// "keep the current setting".
type Tuning struct {
	PenaltyTableC        []float64    `yaml:"penalty_table_c"`
	HumidityThresholdPct float64      `yaml:"humidity_threshold_pct"`
	NearTargetEpsilonC   float64      `yaml:"near_target_epsilon_c"`
	SetpointMinC         float64      `yaml:"setpoint_min_c"`
	SetpointMaxC         float64      `yaml:"setpoint_max_c"`
	PerPersonLoadKW      float64      `yaml:"per_person_load_kw"`
	USDRatePerKWh        float64      `yaml:"usd_rate_per_kwh"`
	TariffSlabs          []TariffSlab `yaml:"tariff_slabs"`
}

// LoadTuning reads the configured tuning file, if any, and merges it into the
// config. A missing TuningFile setting is not an error; a present but
// unreadable or malformed file is.
func (c *Config) LoadTuning() error {
	if c.TuningFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.TuningFile)
	if err != nil {
		return fmt.Errorf("failed to read tuning file: %w", err)
	}

	return c.applyTuning(data)
}

func (c *Config) applyTuning(data []byte) error {
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("failed to parse tuning YAML: %w", err)
	}

	if len(t.PenaltyTableC) > 0 {
		c.PenaltyTableC = t.PenaltyTableC
	}
	if t.HumidityThresholdPct > 0 {
		c.HumidityThresholdPct = t.HumidityThresholdPct
	}
	if t.NearTargetEpsilonC > 0 {
		c.NearTargetEpsilonC = t.NearTargetEpsilonC
	}
	if t.SetpointMinC > 0 {
		c.SetpointMinC = t.SetpointMinC
	}
	if t.SetpointMaxC > 0 {
		c.SetpointMaxC = t.SetpointMaxC
	}
	if t.PerPersonLoadKW > 0 {
		c.PerPersonLoadKW = t.PerPersonLoadKW
	}
	if t.USDRatePerKWh > 0 {
		c.USDRatePerKWh = t.USDRatePerKWh
	}
	if len(t.TariffSlabs) > 0 {
		c.TariffSlabs = t.TariffSlabs
	}

	return nil
}
