package mqtt

import "fmt"

// Topic constants for the AutoRoom bus
const (
	// Raw sensor data topics (input)
	TopicRawSensors = "autoroom/raw/+/+"
	TopicRawEnv     = "autoroom/raw/environment/+"

	// Processed sensor topics (output of the collector)
	TopicSensorBase = "autoroom/sensor"
	TopicSensorEnv  = "autoroom/sensor/environment/+"

	// Occupancy state (retained) and crossing events
	TopicOccupancyAll = "autoroom/occupancy/+"
	TopicCrossingAll  = "autoroom/event/crossing/+"

	// Climate outputs
	TopicRecommendationAll = "autoroom/climate/recommendation/+"
	TopicSetpointAll       = "autoroom/control/setpoint/+"
	TopicSetpointAckAll    = "autoroom/control/applied/+"

	// Operator commands
	TopicRecalibrateAll = "autoroom/command/recalibrate/+"
)

// RawSensorTopic constructs a raw sensor topic for a specific sensor type and location
// Pattern: autoroom/raw/{sensor_type}/{location}
func RawSensorTopic(sensorType, location string) string {
	return fmt.Sprintf("autoroom/raw/%s/%s", sensorType, location)
}

// ProcessedSensorTopic constructs a processed sensor topic for a specific sensor type and location
// Pattern: autoroom/sensor/{sensor_type}/{location}
// This is the output topic after the collector stores data in Redis
func ProcessedSensorTopic(sensorType, location string) string {
	return fmt.Sprintf("autoroom/sensor/%s/%s", sensorType, location)
}

// OccupancyTopic returns the retained occupancy state topic for a location
func OccupancyTopic(location string) string {
	return fmt.Sprintf("autoroom/occupancy/%s", location)
}

// CrossingTopic returns the crossing event topic for a location
func CrossingTopic(location string) string {
	return fmt.Sprintf("autoroom/event/crossing/%s", location)
}

// RecommendationTopic returns the setpoint recommendation topic for a location
func RecommendationTopic(location string) string {
	return fmt.Sprintf("autoroom/climate/recommendation/%s", location)
}

// SetpointTopic returns the effective setpoint topic consumed by the control applier
func SetpointTopic(location string) string {
	return fmt.Sprintf("autoroom/control/setpoint/%s", location)
}

// SetpointAckTopic returns the topic on which the applier reports its last-applied setpoint
func SetpointAckTopic(location string) string {
	return fmt.Sprintf("autoroom/control/applied/%s", location)
}

// RecalibrateTopic returns the operator recalibration command topic for a location
func RecalibrateTopic(location string) string {
	return fmt.Sprintf("autoroom/command/recalibrate/%s", location)
}
