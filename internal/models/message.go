package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Timestamp is the caller-defined MessageDate of a telemetry message.
// It may be a string or a number and is kept verbatim so the renderer
// receives exactly what the device sent.
type Timestamp struct {
	raw json.RawMessage
}

// NewTimestamp returns an RFC 3339 timestamp for t.
func NewTimestamp(t time.Time) Timestamp {
	raw, _ := json.Marshal(t.UTC().Format(time.RFC3339Nano))
	return Timestamp{raw: raw}
}

// RawTimestamp wraps an already encoded JSON value.
func RawTimestamp(raw string) Timestamp {
	return Timestamp{raw: json.RawMessage(raw)}
}

// IsZero reports whether the timestamp is absent: missing, null or "".
func (ts Timestamp) IsZero() bool {
	v := bytes.TrimSpace(ts.raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null")) || bytes.Equal(v, []byte(`""`))
}

// String returns the encoded JSON value.
func (ts Timestamp) String() string {
	return string(ts.raw)
}

// MarshalJSON emits the original value, or null when absent.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(ts.raw)) == 0 {
		return []byte("null"), nil
	}
	return ts.raw, nil
}

// UnmarshalJSON keeps a copy of the raw value.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	ts.raw = append(ts.raw[:0:0], b...)
	return nil
}

// IotData carries the optional readings of a message.
type IotData struct {
	MMI              *float64 `json:"mmi,omitempty"`
	RichterMagnitude *float64 `json:"richterMagnitude,omitempty"`
}

// Message is one inbound telemetry record.
type Message struct {
	DeviceID    string    `json:"DeviceId"`
	MessageDate Timestamp `json:"MessageDate"`
	IotData     IotData   `json:"IotData"`
}

// HasReading reports whether at least one of mmi / richterMagnitude is present.
// A zero reading is a reading.
func (m Message) HasReading() bool {
	return m.IotData.MMI != nil || m.IotData.RichterMagnitude != nil
}

// Float returns a pointer to a copy of v, handy for building IotData literals.
func Float(v float64) *float64 {
	return &v
}
