//go:build !linux

package gpio

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(chipName string, inputPins, outputPins []int) (*RealBoard, error) {
	return nil, errUnsupported
}

// ReadLevel is not implemented on non-Linux platforms.
func (b *RealBoard) ReadLevel(pin int) (bool, error) {
	return false, errUnsupported
}

// WriteLevel is not implemented on non-Linux platforms.
func (b *RealBoard) WriteLevel(pin int, high bool) error {
	return errUnsupported
}

// Drain is a no-op on non-Linux platforms.
func (b *RealBoard) Drain() {}

// WaitForLevel is not implemented on non-Linux platforms.
func (b *RealBoard) WaitForLevel(ctx context.Context, pins []int, high bool) (uint64, error) {
	return 0, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (b *RealBoard) Close() error {
	return nil
}
