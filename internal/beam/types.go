// Package beam converts the two raw beam signals into directional crossing
// events. The detector is pure state machine code: no GPIO, MQTT, or clock
// access, with time always injected through the samples.
package beam

import (
	"time"

	"github.com/google/uuid"
)

// Direction classifies a resolved beam pairing.
type Direction string

const (
	// Entry means beam A (door-outer) was interrupted before beam B.
	Entry Direction = "entry"
	// Exit means beam B (door-inner) was interrupted before beam A.
	Exit Direction = "exit"
	// Ignored marks an unpaired or ambiguous interruption, treated as noise.
	Ignored Direction = "ignored"
)

// Sample is one polled reading of both beams. Blocked = true means the beam
// is currently interrupted.
type Sample struct {
	A    bool
	B    bool
	Time time.Time
}

// Event is a classified crossing produced by the detector and consumed once
// by the occupancy counter.
type Event struct {
	ID         uuid.UUID
	Direction  Direction
	Time       time.Time
	Confidence float64 // 1.0 for an instant pairing, decaying toward 0.5 at the window edge; 0 for Ignored
}

// channel tracks debounce and pairing state for a single beam.
type channel struct {
	// Current debounced blocked state
	stable bool
	// Candidate state during the debounce hold
	pending      bool
	pendingValid bool
	pendingSince time.Time
	// Armed means the beam went blocked and is waiting for its partner
	armed   bool
	armedAt time.Time
}
