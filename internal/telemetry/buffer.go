package telemetry

import "CapIot.quakeboard/internal/models"

// DefaultCapacity is the number of samples kept per device.
const DefaultCapacity = 50

// Buffer is a fixed-capacity rolling window of samples for one device.
type Buffer struct {
	deviceID   string
	capacity   int
	times      []models.Timestamp
	intensity  []*float64
	magnitudes []*float64
}

// NewBuffer creates an empty buffer. A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(deviceID string, capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		deviceID:   deviceID,
		capacity:   capacity,
		times:      make([]models.Timestamp, 0, capacity+1),
		intensity:  make([]*float64, 0, capacity+1),
		magnitudes: make([]*float64, 0, capacity+1),
	}
}

// DeviceID returns the id the buffer was created for.
func (b *Buffer) DeviceID() string {
	return b.deviceID
}

// Capacity returns the maximum number of samples kept.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Len returns the number of samples currently held.
func (b *Buffer) Len() int {
	return len(b.times)
}

// Append records one sample. Absent readings are nil. The time value is not
// validated. If the buffer grows past its capacity the oldest sample is
// dropped from every sequence.
func (b *Buffer) Append(time models.Timestamp, intensity, magnitude *float64) {
	b.times = append(b.times, time)
	b.intensity = append(b.intensity, clone(intensity))
	b.magnitudes = append(b.magnitudes, clone(magnitude))

	if len(b.times) > b.capacity {
		b.times = evict(b.times)
		b.intensity = evict(b.intensity)
		b.magnitudes = evict(b.magnitudes)
	}
}

// Times returns a copy of the sample times, oldest first.
func (b *Buffer) Times() []models.Timestamp {
	return append([]models.Timestamp(nil), b.times...)
}

// Intensities returns a copy of the MMI readings, oldest first.
func (b *Buffer) Intensities() []*float64 {
	return copyReadings(b.intensity)
}

// Magnitudes returns a copy of the Richter magnitude readings, oldest first.
func (b *Buffer) Magnitudes() []*float64 {
	return copyReadings(b.magnitudes)
}

// Series snapshots the buffer for the renderer.
func (b *Buffer) Series() models.Series {
	return models.Series{
		DeviceID:         b.deviceID,
		Times:            b.Times(),
		MMI:              b.Intensities(),
		RichterMagnitude: b.Magnitudes(),
	}
}

// evict shifts s down by one in place so the backing array never grows.
func evict[T any](s []T) []T {
	n := copy(s, s[1:])
	var zero T
	s[n] = zero
	return s[:n]
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyReadings(s []*float64) []*float64 {
	out := make([]*float64, len(s))
	for i, v := range s {
		out[i] = clone(v)
	}
	return out
}
