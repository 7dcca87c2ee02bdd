package climate

import (
	"sync"
	"time"
)

type override struct {
	setpointC float64
	expiresAt time.Time
}

// OverrideManager manages manual setpoint overrides per location
type OverrideManager struct {
	mu        sync.RWMutex
	overrides map[string]override
}

// NewOverrideManager creates a new override manager
func NewOverrideManager() *OverrideManager {
	return &OverrideManager{
		overrides: make(map[string]override),
	}
}

// Set stores a manual setpoint override for a location
func (om *OverrideManager) Set(location string, setpointC float64, durationMinutes int) time.Time {
	om.mu.Lock()
	defer om.mu.Unlock()

	expiresAt := time.Now().Add(time.Duration(durationMinutes) * time.Minute)
	om.overrides[location] = override{setpointC: setpointC, expiresAt: expiresAt}

	return expiresAt
}

// Get returns the override state for a location. Expired overrides are
// cleaned up and reported as inactive.
func (om *OverrideManager) Get(location string) Override {
	om.mu.Lock()
	defer om.mu.Unlock()

	ov, exists := om.overrides[location]
	if !exists {
		return Override{}
	}

	if time.Now().After(ov.expiresAt) {
		delete(om.overrides, location)
		return Override{}
	}

	return Override{Active: true, SetpointC: ov.setpointC}
}

// ExpiresAt returns the expiry time of an active override, or false when
// no override is active for the location
func (om *OverrideManager) ExpiresAt(location string) (time.Time, bool) {
	om.mu.RLock()
	defer om.mu.RUnlock()

	ov, exists := om.overrides[location]
	if !exists || time.Now().After(ov.expiresAt) {
		return time.Time{}, false
	}
	return ov.expiresAt, true
}

// Clear removes a manual override for a location
func (om *OverrideManager) Clear(location string) bool {
	om.mu.Lock()
	defer om.mu.Unlock()

	_, exists := om.overrides[location]
	if exists {
		delete(om.overrides, location)
		return true
	}

	return false
}

// CleanupExpired removes all expired overrides
func (om *OverrideManager) CleanupExpired() int {
	om.mu.Lock()
	defer om.mu.Unlock()

	now := time.Now()
	cleaned := 0

	for location, ov := range om.overrides {
		if now.After(ov.expiresAt) {
			delete(om.overrides, location)
			cleaned++
		}
	}

	return cleaned
}
