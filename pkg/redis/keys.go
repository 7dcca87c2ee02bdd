package redis

import "fmt"

// Key construction helpers for the AutoRoom shared state schema

// EnvironmentSensorKey returns the key for environment sample history (sorted set)
// Pattern: sensor:environment:{location}
func EnvironmentSensorKey(location string) string {
	return fmt.Sprintf("sensor:environment:%s", location)
}

// EnvironmentMetaKey returns the key for environment sensor metadata (hash)
// Pattern: meta:environment:{location}
func EnvironmentMetaKey(location string) string {
	return fmt.Sprintf("meta:environment:%s", location)
}

// OccupancyStateKey returns the key for the live occupancy state (hash)
// Pattern: occupancy:state:{location}
func OccupancyStateKey(location string) string {
	return fmt.Sprintf("occupancy:state:%s", location)
}

// CrossingEventsKey returns the key for crossing event history (sorted set)
// Pattern: occupancy:events:{location}
func CrossingEventsKey(location string) string {
	return fmt.Sprintf("occupancy:events:%s", location)
}

// RecommendationKey returns the key for the latest setpoint recommendation
// Pattern: climate:recommendation:{location}
func RecommendationKey(location string) string {
	return fmt.Sprintf("climate:recommendation:%s", location)
}

// EnergyUsageKey returns the key for the live energy usage estimate (hash)
// Pattern: energy:usage:{location}
func EnergyUsageKey(location string) string {
	return fmt.Sprintf("energy:usage:%s", location)
}

// GenericSensorKey returns the key for generic sensor data (list)
// Pattern: sensor:{sensor_type}:{location}
func GenericSensorKey(sensorType, location string) string {
	return fmt.Sprintf("sensor:%s:%s", sensorType, location)
}

// GenericMetaKey returns the key for generic sensor metadata (hash)
// Pattern: meta:{sensor_type}:{location}
func GenericMetaKey(sensorType, location string) string {
	return fmt.Sprintf("meta:%s:%s", sensorType, location)
}
