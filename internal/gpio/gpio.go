// Package gpio provides beam input reading with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the logical states of the two beam sensors.
type Reader interface {
	// Read returns whether beam A and beam B are currently interrupted.
	// The beam lines are wired active-low: a low line means the beam is
	// blocked, and Read already folds that inversion in.
	Read() (aBlocked, bBlocked bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// Default line offsets (BCM numbering) for the reference RPi 3B+ wiring.
const (
	DefaultPinA = 18 // beam A, door-outer laser/LDR pair
	DefaultPinB = 15 // beam B, door-inner laser/LDR pair
)
