package beam

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Detector pairs debounced beam interruptions into directional crossings.
//
// Each beam runs a small debounce machine: a state change is accepted only
// after it has held for the configured hold time. An accepted idle→blocked
// transition arms the beam; if the partner beam arms within the pairing
// window the two resolve into an Entry (A first) or Exit (B first), otherwise
// the arm times out as Ignored noise.
type Detector struct {
	window time.Duration // max gap between the two beams for one crossing
	hold   time.Duration // min time a beam state must persist to be accepted

	a channel
	b channel

	lastSample time.Time
	dropped    int

	logger *slog.Logger
}

// NewDetector creates a crossing detector. The pairing window must exceed the
// debounce hold time; the caller's config validation enforces that.
func NewDetector(window, hold time.Duration, logger *slog.Logger) *Detector {
	return &Detector{
		window: window,
		hold:   hold,
		logger: logger,
	}
}

// Process consumes one beam sample and returns any crossing events it
// resolves. Bad input never fails hard: out-of-order samples are dropped and
// logged, noise surfaces as Ignored events.
func (d *Detector) Process(s Sample) []Event {
	if s.Time.Before(d.lastSample) {
		d.dropped++
		d.logger.Warn("Dropping out-of-order beam sample",
			"sample_time", s.Time,
			"last_time", d.lastSample)
		return nil
	}
	d.lastSample = s.Time

	aBlocked := d.debounce(&d.a, s.A, s.Time)
	bBlocked := d.debounce(&d.b, s.B, s.Time)

	var events []Event

	switch {
	case aBlocked && bBlocked:
		// Both beams accepted as blocked in the same tick: direction is
		// ambiguous, never guessed
		d.logger.Debug("Simultaneous beam interruption, ignoring", "time", s.Time)
		d.a.armed = false
		d.b.armed = false
		events = append(events, ignoredEvent(s.Time))

	case aBlocked:
		events = append(events, d.resolve(&d.a, &d.b, Exit, s.Time)...)

	case bBlocked:
		events = append(events, d.resolve(&d.b, &d.a, Entry, s.Time)...)
	}

	// Expire arms whose partner never showed up
	events = append(events, d.expire(&d.a, "A", s.Time)...)
	events = append(events, d.expire(&d.b, "B", s.Time)...)

	return events
}

// resolve handles an accepted idle→blocked transition on tripped. If the
// partner beam is armed within the window the crossing resolves with the
// given direction (the direction implied by partner-first ordering);
// otherwise tripped arms, restarting its timer if it was already armed.
func (d *Detector) resolve(tripped, partner *channel, partnerFirst Direction, now time.Time) []Event {
	if partner.armed {
		gap := now.Sub(partner.armedAt)
		if gap <= d.window {
			partner.armed = false
			tripped.armed = false
			if gap <= 0 {
				// Equal timestamps across samples: still ambiguous
				return []Event{ignoredEvent(now)}
			}
			d.logger.Debug("Crossing resolved",
				"direction", partnerFirst,
				"gap_ms", gap.Milliseconds())
			return []Event{{
				ID:         uuid.New(),
				Direction:  partnerFirst,
				Time:       now,
				Confidence: pairingConfidence(gap, d.window),
			}}
		}
		// Partner armed too long ago; the expire pass below emits its
		// Ignored event, and this interruption starts a fresh arm
	}

	// Re-blocking an already armed beam restarts the timer without
	// double-counting
	tripped.armed = true
	tripped.armedAt = now
	return nil
}

// expire emits an Ignored event for an armed beam whose window elapsed.
func (d *Detector) expire(ch *channel, name string, now time.Time) []Event {
	if !ch.armed || now.Sub(ch.armedAt) <= d.window {
		return nil
	}
	ch.armed = false
	d.logger.Debug("Beam arm expired without partner", "beam", name)
	return []Event{ignoredEvent(now)}
}

// debounce advances one beam's hold machine and reports whether an
// idle→blocked transition was accepted on this sample.
func (d *Detector) debounce(ch *channel, blocked bool, now time.Time) bool {
	if blocked == ch.stable {
		// Back at the stable state, discard any pending flicker
		ch.pendingValid = false
		return false
	}

	if !ch.pendingValid || ch.pending != blocked {
		ch.pending = blocked
		ch.pendingValid = true
		ch.pendingSince = now
		// Accept immediately when no hold time is configured
		if d.hold > 0 {
			return false
		}
	}

	if now.Sub(ch.pendingSince) < d.hold {
		return false
	}

	ch.stable = blocked
	ch.pendingValid = false
	return blocked
}

// Reset clears all pending debounce and pairing state. Called under the
// counter's recalibration lock so a half-seen crossing cannot straddle an
// operator reset.
func (d *Detector) Reset() {
	d.a.pendingValid = false
	d.a.armed = false
	d.b.pendingValid = false
	d.b.armed = false
}

// DroppedSamples returns how many malformed samples have been discarded.
func (d *Detector) DroppedSamples() int {
	return d.dropped
}

func pairingConfidence(gap, window time.Duration) float64 {
	return 1.0 - 0.5*float64(gap)/float64(window)
}

func ignoredEvent(t time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Direction:  Ignored,
		Time:       t,
		Confidence: 0,
	}
}
