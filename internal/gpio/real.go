//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the beam lines from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	aLine *gpiocdev.Line
	bLine *gpiocdev.Line
}

// NewRealReader opens the named GPIO chip and requests the two beam lines as
// pulled-up inputs. The LDR modules pull the line low while their beam is
// interrupted.
func NewRealReader(chipName string, pinA, pinB int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	aLine, err := chip.RequestLine(pinA, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request beam A pin %d: %w", pinA, err)
	}

	bLine, err := chip.RequestLine(pinB, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		aLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request beam B pin %d: %w", pinB, err)
	}

	return &RealReader{
		chip:  chip,
		aLine: aLine,
		bLine: bLine,
	}, nil
}

// Read returns whether the beams are interrupted.
// Inverts the raw lines: low (0) = blocked, high (1) = clear.
func (r *RealReader) Read() (bool, bool, error) {
	aRaw, err := r.aLine.Value()
	if err != nil {
		return false, false, fmt.Errorf("read beam A: %w", err)
	}

	bRaw, err := r.bLine.Value()
	if err != nil {
		return false, false, fmt.Errorf("read beam B: %w", err)
	}

	return aRaw == 0, bRaw == 0, nil
}

// Close releases the beam lines and the chip.
func (r *RealReader) Close() error {
	var errs []error

	if r.aLine != nil {
		if err := r.aLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close beam A line: %w", err))
		}
	}
	if r.bLine != nil {
		if err := r.bLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close beam B line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
