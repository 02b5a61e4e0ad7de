//go:build !linux

package pps

// GPIOSource is unavailable outside Linux
type GPIOSource struct{}

// OpenGPIO always fails on this platform
func OpenGPIO(cfg SourceConfig, capture *Capture) (*GPIOSource, error) {
	return nil, ErrUnsupported
}

// Close is a no-op
func (s *GPIOSource) Close() error {
	return nil
}
