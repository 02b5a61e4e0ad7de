package display

import (
	"fmt"
	"time"

	"github.com/maximewewer/gps-clock/pkg/logger"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIConfig selects the SPI port and latch pin
type SPIConfig struct {
	Port     string // e.g. "/dev/spidev0.0" or "" for the first port
	SpeedHz  int64
	LatchPin string // e.g. "GPIO25"
}

// latchPulse is well above the TLC5952 minimum latch width
const latchPulse = time.Microsecond

// SPIDriver shifts chains over SPI and pulses a GPIO latch line
type SPIDriver struct {
	port  spi.PortCloser
	conn  spi.Conn
	latch gpio.PinIO
}

// OpenSPI initializes the host drivers and opens the port
func OpenSPI(cfg SPIConfig) (*SPIDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("display: host init: %w", err)
	}

	p, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("display: open spi %q: %w", cfg.Port, err)
	}
	speed := cfg.SpeedHz
	if speed <= 0 {
		speed = 1_000_000
	}
	c, err := p.Connect(physic.Frequency(speed)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("display: connect spi: %w", err)
	}

	latch := gpioreg.ByName(cfg.LatchPin)
	if latch == nil {
		_ = p.Close()
		return nil, fmt.Errorf("display: latch pin %q not found", cfg.LatchPin)
	}
	if err := latch.Out(gpio.Low); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("display: latch pin: %w", err)
	}

	logger.Infof("display", "SPI display on %s at %d Hz, latch %s", cfg.Port, speed, cfg.LatchPin)
	return &SPIDriver{port: p, conn: c, latch: latch}, nil
}

// Send implements Driver
func (d *SPIDriver) Send(control, leds []uint32) error {
	if err := d.conn.Tx(Pack(control), nil); err != nil {
		return fmt.Errorf("display: control chain: %w", err)
	}
	if err := d.pulse(); err != nil {
		return err
	}
	if err := d.conn.Tx(Pack(leds), nil); err != nil {
		return fmt.Errorf("display: led chain: %w", err)
	}
	return d.pulse()
}

func (d *SPIDriver) pulse() error {
	if err := d.latch.Out(gpio.High); err != nil {
		return fmt.Errorf("display: latch: %w", err)
	}
	time.Sleep(latchPulse)
	return d.latch.Out(gpio.Low)
}

// Close releases the port
func (d *SPIDriver) Close() error {
	_ = d.latch.Out(gpio.Low)
	return d.port.Close()
}
