//go:build !linux

package transport

import (
	"errors"
	"fmt"
)

var errSerialUnsupported = errors.New("serial ports are only supported on linux")

// Serial is unavailable on this platform.
type Serial struct{}

// OpenSerial always fails on this platform.
func OpenSerial(device string, baud int) (*Serial, error) {
	return nil, fmt.Errorf("open serial %s: %w", device, errSerialUnsupported)
}

// Device returns an empty string.
func (s *Serial) Device() string { return "" }

// ReadAvailable always fails on this platform.
func (s *Serial) ReadAvailable(p []byte) (int, error) { return 0, errSerialUnsupported }

// Close is a no-op.
func (s *Serial) Close() error { return nil }
