//go:build linux

package pps

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maximewewer/gps-clock/internal/hwclock"
	"github.com/maximewewer/gps-clock/pkg/logger"
	"github.com/warthog618/go-gpiocdev"
)

// GPIOSource requests edge events on a GPIO line. Event timestamps come
// from CLOCK_MONOTONIC, the same base as hwclock.Monotonic.
type GPIOSource struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenGPIO requests the configured line and feeds its edges into capture
func OpenGPIO(cfg SourceConfig, capture *Capture) (*GPIOSource, error) {
	if cfg.Line == "" {
		return nil, fmt.Errorf("pps: no gpio line configured")
	}
	consumer := cfg.Consumer
	if consumer == "" {
		consumer = "gps-clock-pps"
	}

	edge := gpiocdev.WithRisingEdge
	if cfg.FallingEdge {
		edge = gpiocdev.WithFallingEdge
	}

	handler := func(evt gpiocdev.LineEvent) {
		capture.OnEdge(hwclock.FromDuration(evt.Timestamp))
	}

	for _, chipPath := range chipCandidates(cfg.Chip) {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := resolveLine(chip, cfg.Line)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset,
			edge,
			gpiocdev.WithEventHandler(handler),
			gpiocdev.WithConsumer(consumer),
		)
		if err != nil {
			_ = chip.Close()
			continue
		}
		logger.SafeInfo("pps", "GPIO edge source ready", map[string]interface{}{
			"chip":    chipPath,
			"line":    cfg.Line,
			"offset":  offset,
			"falling": cfg.FallingEdge,
		})
		return &GPIOSource{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("pps: gpio line %q not found (or busy)", cfg.Line)
}

// Close releases the line and the chip
func (s *GPIOSource) Close() error {
	if s == nil || s.line == nil {
		return nil
	}
	err := s.line.Close()
	s.line = nil
	if s.chip != nil {
		_ = s.chip.Close()
		s.chip = nil
	}
	return err
}

func chipCandidates(chip string) []string {
	if chip != "" {
		if !strings.HasPrefix(chip, "/") {
			chip = filepath.Join("/dev", chip)
		}
		return []string{chip}
	}
	var out []string
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			out = append(out, filepath.Join("/dev", e.Name()))
		}
	}
	return out
}

func resolveLine(chip *gpiocdev.Chip, line string) (int, error) {
	if offset, err := strconv.Atoi(line); err == nil {
		if offset < 0 || offset >= chip.Lines() {
			return 0, fmt.Errorf("pps: offset %d out of range", offset)
		}
		return offset, nil
	}
	return chip.FindLine(line)
}
