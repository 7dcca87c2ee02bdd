package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config holds the configuration for an AutoRoom agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string

	// Room identity: a single agent instance serves one room
	Location string

	// Beam hardware configuration (BCM line offsets)
	GPIOChip string
	BeamAPin int
	BeamBPin int

	// Crossing detection timing
	TickIntervalMs   int // beam polling tick, must be well below the pairing window
	PairingWindowMs  int // max gap between the two beams for one crossing (W)
	DebounceHoldMs   int // min hold time before a beam transition is accepted (H)
	CalibrationCount int // consistent crossings before the count is considered calibrated

	// Collector configuration
	SensorTopics     []string
	MaxSensorHistory int

	// Climate agent configuration
	DecisionIntervalSec   int
	OverrideMinutes       int
	StalenessThresholdSec int
	APIPort               int

	// Setpoint rule tuning
	HumidityThresholdPct float64
	SetpointMinC         float64
	SetpointMaxC         float64
	NearTargetEpsilonC   float64
	PenaltyTableC        []float64 // extra cooling below 25°C indexed by count-2; last entry repeats

	// Energy estimation
	EnergyIntervalSec int
	PerPersonLoadKW   float64
	USDRatePerKWh     float64
	TariffSlabs       []TariffSlab

	// Optional YAML tuning file for the operator-tunable tables
	TuningFile string
}

// TariffSlab describes one step of the slabbed electricity tariff.
type TariffSlab struct {
	UpToKWh    float64 `yaml:"up_to_kwh"`    // slab width in kWh, <= 0 means unbounded
	RatePerKWh float64 `yaml:"rate_per_kwh"` // cost per kWh within this slab
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:    "localhost",
		MQTTPort:      1883,
		MQTTUser:      "",
		MQTTPassword:  "",
		MQTTClientID:  "",
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,
		ServiceName:   "autoroom-agent",
		HealthPort:    8080,
		LogLevel:      "info",
		Location:      "room",
		// Beam defaults match the reference RPi 3B+ wiring
		GPIOChip: "gpiochip0",
		BeamAPin: 18,
		BeamBPin: 15,
		// Timing defaults: 20ms debounce hold, 300ms pairing window
		TickIntervalMs:   10,
		PairingWindowMs:  300,
		DebounceHoldMs:   20,
		CalibrationCount: 10,
		// Collector defaults
		SensorTopics:     []string{"autoroom/raw/environment/+"},
		MaxSensorHistory: 1000,
		// Climate agent defaults
		DecisionIntervalSec:   10,
		OverrideMinutes:       30,
		StalenessThresholdSec: 120,
		APIPort:               3002,
		// Setpoint rule defaults
		HumidityThresholdPct: 60.0,
		SetpointMinC:         18.0,
		SetpointMaxC:         27.0,
		NearTargetEpsilonC:   0.5,
		PenaltyTableC:        DefaultPenaltyTable(),
		// Energy defaults
		EnergyIntervalSec: 1,
		PerPersonLoadKW:   0.2,
		USDRatePerKWh:     0.12,
		TariffSlabs:       DefaultTariffSlabs(),
		TuningFile:        "",
	}
}

// DefaultPenaltyTable returns the default per-occupant cooling penalty below
// the single-occupant 25°C base. Index 0 applies at two occupants; the curve
// grows by 0.15°C per additional person and saturates at 2.2°C so crowded
// rooms do not drive the setpoint unrealistically cold.
func DefaultPenaltyTable() []float64 {
	return []float64{1.15, 1.30, 1.45, 1.60, 1.75, 1.90, 2.05, 2.20}
}

// DefaultTariffSlabs returns the slabbed tariff used by the energy estimator
// when no tuning file overrides it. Rates follow a Tamil Nadu bi-monthly
// billing inspired progression (INR per kWh).
func DefaultTariffSlabs() []TariffSlab {
	return []TariffSlab{
		{UpToKWh: 100, RatePerKWh: 0.0},
		{UpToKWh: 100, RatePerKWh: 2.35},
		{UpToKWh: 600, RatePerKWh: 6.5},
		{UpToKWh: 200, RatePerKWh: 10.5},
		{UpToKWh: 0, RatePerKWh: 12.0},
	}
}

// LoadFromEnv loads configuration from environment variables with AUTOROOM_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v := os.Getenv("AUTOROOM_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("AUTOROOM_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("AUTOROOM_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := os.Getenv("AUTOROOM_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("AUTOROOM_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := os.Getenv("AUTOROOM_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("AUTOROOM_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("AUTOROOM_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("AUTOROOM_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Service configuration
	if v := os.Getenv("AUTOROOM_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("AUTOROOM_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("AUTOROOM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AUTOROOM_LOCATION"); v != "" {
		c.Location = v
	}

	// Beam hardware configuration
	if v := os.Getenv("AUTOROOM_GPIO_CHIP"); v != "" {
		c.GPIOChip = v
	}
	if v := os.Getenv("AUTOROOM_BEAM_A_PIN"); v != "" {
		if pin, err := strconv.Atoi(v); err == nil {
			c.BeamAPin = pin
		}
	}
	if v := os.Getenv("AUTOROOM_BEAM_B_PIN"); v != "" {
		if pin, err := strconv.Atoi(v); err == nil {
			c.BeamBPin = pin
		}
	}

	// Crossing detection timing
	if v := os.Getenv("AUTOROOM_TICK_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.TickIntervalMs = ms
		}
	}
	if v := os.Getenv("AUTOROOM_PAIRING_WINDOW_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.PairingWindowMs = ms
		}
	}
	if v := os.Getenv("AUTOROOM_DEBOUNCE_HOLD_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.DebounceHoldMs = ms
		}
	}
	if v := os.Getenv("AUTOROOM_CALIBRATION_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CalibrationCount = n
		}
	}

	// Collector configuration
	if v := os.Getenv("AUTOROOM_MAX_SENSOR_HISTORY"); v != "" {
		if max, err := strconv.Atoi(v); err == nil {
			c.MaxSensorHistory = max
		}
	}

	// Climate agent configuration
	if v := os.Getenv("AUTOROOM_DECISION_INTERVAL_SEC"); v != "" {
		if interval, err := strconv.Atoi(v); err == nil {
			c.DecisionIntervalSec = interval
		}
	}
	if v := os.Getenv("AUTOROOM_OVERRIDE_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil {
			c.OverrideMinutes = minutes
		}
	}
	if v := os.Getenv("AUTOROOM_STALENESS_THRESHOLD_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			c.StalenessThresholdSec = sec
		}
	}
	if v := os.Getenv("AUTOROOM_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.APIPort = port
		}
	}

	// Setpoint rule tuning
	if v := os.Getenv("AUTOROOM_HUMIDITY_THRESHOLD_PCT"); v != "" {
		if pct, err := strconv.ParseFloat(v, 64); err == nil {
			c.HumidityThresholdPct = pct
		}
	}
	if v := os.Getenv("AUTOROOM_NEAR_TARGET_EPSILON_C"); v != "" {
		if eps, err := strconv.ParseFloat(v, 64); err == nil {
			c.NearTargetEpsilonC = eps
		}
	}

	// Energy estimation
	if v := os.Getenv("AUTOROOM_ENERGY_INTERVAL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			c.EnergyIntervalSec = sec
		}
	}

	if v := os.Getenv("AUTOROOM_TUNING_FILE"); v != "" {
		c.TuningFile = v
	}
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	// MQTT flags
	pflag.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	pflag.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	pflag.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	pflag.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	pflag.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	pflag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	pflag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	pflag.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	pflag.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Service flags
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	pflag.StringVar(&c.Location, "location", c.Location, "Room location name served by this agent")

	// Beam hardware flags
	pflag.StringVar(&c.GPIOChip, "gpio-chip", c.GPIOChip, "GPIO character device name")
	pflag.IntVar(&c.BeamAPin, "beam-a-pin", c.BeamAPin, "BCM line offset for beam A (door-outer)")
	pflag.IntVar(&c.BeamBPin, "beam-b-pin", c.BeamBPin, "BCM line offset for beam B (door-inner)")

	// Crossing detection flags
	pflag.IntVar(&c.TickIntervalMs, "tick-interval-ms", c.TickIntervalMs, "Beam polling tick interval (ms)")
	pflag.IntVar(&c.PairingWindowMs, "pairing-window-ms", c.PairingWindowMs, "Max gap between beam blockings for one crossing (ms)")
	pflag.IntVar(&c.DebounceHoldMs, "debounce-hold-ms", c.DebounceHoldMs, "Min hold time before a beam transition is accepted (ms)")
	pflag.IntVar(&c.CalibrationCount, "calibration-count", c.CalibrationCount, "Consistent crossings before the count is considered calibrated")

	// Collector flags
	pflag.IntVar(&c.MaxSensorHistory, "max-sensor-history", c.MaxSensorHistory, "Maximum sensor history entries")

	// Climate agent flags
	pflag.IntVar(&c.DecisionIntervalSec, "decision-interval", c.DecisionIntervalSec, "Setpoint decision loop interval in seconds")
	pflag.IntVar(&c.OverrideMinutes, "override-minutes", c.OverrideMinutes, "Manual override duration in minutes")
	pflag.IntVar(&c.StalenessThresholdSec, "staleness-threshold", c.StalenessThresholdSec, "Age after which environment samples are flagged stale (seconds)")
	pflag.IntVar(&c.APIPort, "api-port", c.APIPort, "HTTP API port")

	// Setpoint rule flags
	pflag.Float64Var(&c.HumidityThresholdPct, "humidity-threshold", c.HumidityThresholdPct, "Relative humidity above which the setpoint is lowered (%)")
	pflag.Float64Var(&c.NearTargetEpsilonC, "near-target-epsilon", c.NearTargetEpsilonC, "Setpoint distance considered already-at-target (°C)")

	// Energy flags
	pflag.IntVar(&c.EnergyIntervalSec, "energy-interval", c.EnergyIntervalSec, "Energy estimation interval in seconds")

	pflag.StringVar(&c.TuningFile, "tuning-file", c.TuningFile, "YAML tuning file for penalty table and tariff slabs")

	pflag.Parse()
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.Location == "" {
		return fmt.Errorf("Location is required")
	}

	// The sampler has to resolve the minimum physical crossing time, so the
	// tick must sit well inside the pairing window
	if c.TickIntervalMs <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.DebounceHoldMs < 0 {
		return fmt.Errorf("debounce hold time must not be negative")
	}
	if c.PairingWindowMs <= c.DebounceHoldMs {
		return fmt.Errorf("pairing window (%dms) must exceed debounce hold time (%dms)", c.PairingWindowMs, c.DebounceHoldMs)
	}
	if c.TickIntervalMs >= c.PairingWindowMs {
		return fmt.Errorf("tick interval (%dms) must be below the pairing window (%dms)", c.TickIntervalMs, c.PairingWindowMs)
	}
	if c.BeamAPin == c.BeamBPin {
		return fmt.Errorf("beam A and beam B must use distinct GPIO lines")
	}

	if c.SetpointMinC >= c.SetpointMaxC {
		return fmt.Errorf("setpoint clamp bounds invalid: min %.1f >= max %.1f", c.SetpointMinC, c.SetpointMaxC)
	}
	if c.NearTargetEpsilonC < 0 {
		return fmt.Errorf("near-target epsilon must not be negative")
	}
	for i, p := range c.PenaltyTableC {
		if p < 0 {
			return fmt.Errorf("penalty table entry %d must not be negative", i)
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// TickInterval returns the beam polling interval as a duration
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// PairingWindow returns the beam pairing window as a duration
func (c *Config) PairingWindow() time.Duration {
	return time.Duration(c.PairingWindowMs) * time.Millisecond
}

// DebounceHold returns the debounce hold time as a duration
func (c *Config) DebounceHold() time.Duration {
	return time.Duration(c.DebounceHoldMs) * time.Millisecond
}

// StalenessThreshold returns the environment staleness threshold as a duration
func (c *Config) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessThresholdSec) * time.Second
}
