package telemetry

import (
	"errors"
	"fmt"
)

// ErrDuplicateDevice is returned by Add when the device id is already tracked.
var ErrDuplicateDevice = errors.New("device already registered")

// Registry owns every device buffer of a session. Devices are never removed.
type Registry struct {
	buffers map[string]*Buffer
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		buffers: make(map[string]*Buffer),
	}
}

// Find returns the buffer for deviceID, or false when the device was never registered.
func (r *Registry) Find(deviceID string) (*Buffer, bool) {
	b, ok := r.buffers[deviceID]
	return b, ok
}

// Add registers a buffer created by the caller.
func (r *Registry) Add(b *Buffer) error {
	if _, exists := r.buffers[b.DeviceID()]; exists {
		return fmt.Errorf("add %q: %w", b.DeviceID(), ErrDuplicateDevice)
	}
	r.buffers[b.DeviceID()] = b
	r.order = append(r.order, b.DeviceID())
	return nil
}

// Count returns the number of tracked devices.
func (r *Registry) Count() int {
	return len(r.order)
}

// IDs returns the tracked device ids in the order they were first observed.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}
