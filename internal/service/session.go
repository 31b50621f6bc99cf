package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"CapIot.quakeboard/internal/models"
	"CapIot.quakeboard/internal/telemetry"
)

// ErrUnknownDevice is returned when a selection names a device that was never observed.
var ErrUnknownDevice = errors.New("unknown device")

// Display receives the updates a dashboard renders.
type Display interface {
	// DeviceAdded is called once per newly observed device with the new device count.
	DeviceAdded(deviceID string, count int)
	// DeviceSelected is called when the default selection changes.
	DeviceSelected(deviceID string)
	// Refresh is called with the latest series of a device after it changed.
	Refresh(series models.Series)
}

// Session owns the device registry and routes inbound telemetry into it.
//
// All mutation happens on the goroutine running Run (or the caller of Consume
// in tests); readers from other goroutines are served under a read lock.
type Session struct {
	mu       sync.RWMutex
	registry *telemetry.Registry
	capacity int
	selected string

	display Display
	queue   chan models.Message
	log     *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithCapacity sets the per-device buffer capacity.
func WithCapacity(n int) Option {
	return func(s *Session) {
		s.capacity = n
	}
}

// WithQueueSize sets how many messages Enqueue can hold before blocking.
func WithQueueSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queue = make(chan models.Message, n)
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// NewSession creates a session rendering to display. A nil display discards updates.
func NewSession(display Display, opts ...Option) *Session {
	s := &Session{
		registry: telemetry.NewRegistry(),
		capacity: telemetry.DefaultCapacity,
		display:  display,
		queue:    make(chan models.Message, 256),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.display == nil {
		s.display = nopDisplay{}
	}
	s.log = s.log.With("component", "session")
	return s
}

// SetDisplay replaces the display. It must be called before Run.
func (s *Session) SetDisplay(display Display) {
	if display == nil {
		display = nopDisplay{}
	}
	s.display = display
}

// Enqueue hands a message to the Run loop. It blocks until the message is
// queued or ctx is done.
func (s *Session) Enqueue(ctx context.Context, msg models.Message) error {
	select {
	case s.queue <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue message from %q: %w", msg.DeviceID, ctx.Err())
	}
}

// Run consumes queued messages until ctx is done.
func (s *Session) Run(ctx context.Context) {
	s.log.Info("session started", "capacity", s.capacity)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("session stopped", "devices", s.Devices().Count)
			return
		case msg := <-s.queue:
			s.Consume(msg)
		}
	}
}

// Consume routes one message: invalid messages are dropped, known devices get
// the sample appended, unknown devices are registered first. The display is
// refreshed only when a sample was recorded.
func (s *Session) Consume(msg models.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("message handling failed", "device_id", msg.DeviceID, "panic", r)
		}
	}()

	if msg.DeviceID == "" || msg.MessageDate.IsZero() || !msg.HasReading() {
		s.log.Debug("dropping incomplete message",
			"device_id", msg.DeviceID,
			"message_date", msg.MessageDate.String())
		return
	}

	series, added, err := s.record(msg)
	if err != nil {
		s.log.Error("failed to record sample", "device_id", msg.DeviceID, "error", err)
		return
	}
	if added != nil {
		s.log.Info("new device observed", "device_id", msg.DeviceID, "devices", added.count)
		s.display.DeviceAdded(msg.DeviceID, added.count)
		if added.selected {
			s.display.DeviceSelected(msg.DeviceID)
		}
	}
	s.display.Refresh(series)
}

// registration describes a device created while recording a sample.
type registration struct {
	count    int
	selected bool
}

// record appends the sample under the write lock, registering the device on
// first sight. The first device ever registered becomes the selection.
func (s *Session) record(msg models.Message) (models.Series, *registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added *registration
	buffer, found := s.registry.Find(msg.DeviceID)
	if !found {
		buffer = telemetry.NewBuffer(msg.DeviceID, s.capacity)
		if err := s.registry.Add(buffer); err != nil {
			return models.Series{}, nil, err
		}
		added = &registration{count: s.registry.Count()}
		if s.selected == "" {
			s.selected = msg.DeviceID
			added.selected = true
		}
	}
	buffer.Append(msg.MessageDate, msg.IotData.MMI, msg.IotData.RichterMagnitude)
	return buffer.Series(), added, nil
}

// Select changes the default selection and returns that device's series.
func (s *Session) Select(deviceID string) (models.Series, error) {
	s.mu.Lock()
	buffer, ok := s.registry.Find(deviceID)
	if !ok {
		s.mu.Unlock()
		return models.Series{}, fmt.Errorf("select %q: %w", deviceID, ErrUnknownDevice)
	}
	s.selected = deviceID
	series := buffer.Series()
	s.mu.Unlock()

	s.display.DeviceSelected(deviceID)
	s.display.Refresh(series)
	return series, nil
}

// Selected returns the series of the selected device, if any.
func (s *Session) Selected() (models.Series, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == "" {
		return models.Series{}, false
	}
	buffer, ok := s.registry.Find(s.selected)
	if !ok {
		return models.Series{}, false
	}
	return buffer.Series(), true
}

// Series returns the series of deviceID.
func (s *Session) Series(deviceID string) (models.Series, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buffer, ok := s.registry.Find(deviceID)
	if !ok {
		return models.Series{}, false
	}
	return buffer.Series(), true
}

// Devices returns the device selector state.
func (s *Session) Devices() models.DeviceList {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.registry.Count()
	return models.DeviceList{
		Count:    count,
		Label:    models.CountLabel(count),
		Devices:  s.registry.IDs(),
		Selected: s.selected,
	}
}

type nopDisplay struct{}

func (nopDisplay) DeviceAdded(string, int) {}
func (nopDisplay) DeviceSelected(string) {}
func (nopDisplay) Refresh(models.Series) {}
