package display

import (
	"sync"

	"github.com/maximewewer/gps-clock/internal/clock"
)

// Driver shifts packed chains into the hardware
type Driver interface {
	// Send shifts the control chain and latches it, then shifts the on/off
	// chain and latches it
	Send(control, leds []uint32) error
	Close() error
}

// Display renders clock times through a Driver
type Display struct {
	driver      Driver
	calibration Calibration

	mu   sync.Mutex
	last [Chips]uint32
	ctl  uint32
}

// New creates a display
func New(driver Driver, cal Calibration) *Display {
	return &Display{driver: driver, calibration: cal}
}

// Render implements clock.Renderer
func (d *Display) Render(lt clock.LocalTime) error {
	f := Render(lt.Calendar)
	ctl := ControlWord(lt.Settings.Brightness, d.calibration)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.driver.Send(ControlChain(ctl), f.Words()); err != nil {
		return err
	}
	d.last = f.words
	d.ctl = ctl
	return nil
}

// Last returns the most recently sent on/off words and control word
func (d *Display) Last() ([]uint32, uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint32, Chips)
	copy(out, d.last[:])
	return out, d.ctl
}

// Close releases the driver
func (d *Display) Close() error {
	return d.driver.Close()
}

// NullDriver discards frames. Used when no display is attached.
type NullDriver struct{}

// Send does nothing
func (NullDriver) Send(control, leds []uint32) error { return nil }

// Close does nothing
func (NullDriver) Close() error { return nil }
