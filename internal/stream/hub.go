// Package stream pushes dashboard updates to browser viewers over WebSocket.
//
// Every viewer has its own device selection. A viewer that never picked a
// device follows the session's default selection, which starts out as the
// first device ever observed.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"CapIot.quakeboard/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendQueueSize  = 64
)

// Event types sent to viewers.
const (
	EventSnapshot = "snapshot"
	EventDevice   = "device"
	EventSelected = "selected"
	EventSeries   = "series"
	EventError    = "error"
)

// Event is one JSON frame sent to a viewer.
type Event struct {
	Type     string             `json:"type"`
	DeviceID string             `json:"deviceId,omitempty"`
	Count    int                `json:"count,omitempty"`
	Label    string             `json:"label,omitempty"`
	Devices  *models.DeviceList `json:"devices,omitempty"`
	Series   *models.Series     `json:"series,omitempty"`
	Datasets []models.Dataset   `json:"datasets,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Command is a frame received from a viewer.
type Command struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
}

// SeriesSource answers the hub's read queries; the dashboard session implements it.
type SeriesSource interface {
	Devices() models.DeviceList
	Series(deviceID string) (models.Series, bool)
}

type viewer struct {
	id   string
	conn *websocket.Conn
	send chan Event

	// selected is the viewer's explicit choice; empty means follow the default.
	selected string
}

func (v *viewer) current(fallback string) string {
	if v.selected != "" {
		return v.selected
	}
	return fallback
}

// Hub tracks connected viewers and fans dashboard updates out to them.
type Hub struct {
	mu        sync.RWMutex
	viewers   map[string]*viewer
	following string

	source   SeriesSource
	origins  []string
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins restricts which browser origins may open a viewer
// stream. An empty list or "*" allows every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		h.origins = nil
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o == "*" {
				h.origins = nil
				return
			}
			if o != "" {
				h.origins = append(h.origins, o)
			}
		}
	}
}

// NewHub creates a hub reading device data from source.
func NewHub(source SeriesSource, log *slog.Logger, opts ...Option) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		viewers: make(map[string]*viewer),
		source:  source,
		log:     log.With("component", "stream"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, allowed := range h.origins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	h.log.Warn("rejected viewer from disallowed origin", "origin", origin)
	return false
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// ServeHTTP upgrades the request and serves the viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade WebSocket connection", "error", err)
		return
	}

	v := &viewer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Event, sendQueueSize),
	}

	// The snapshot is read while holding the lock so that no DeviceAdded can
	// fall between it and the viewer's registration.
	h.mu.Lock()
	h.viewers[v.id] = v
	devices := h.source.Devices()
	snapshot := Event{Type: EventSnapshot, Devices: &devices, Datasets: models.ChartDatasets}
	if series, ok := h.source.Series(devices.Selected); ok {
		snapshot.DeviceID = devices.Selected
		snapshot.Series = &series
	}
	if h.following == "" {
		h.following = devices.Selected
	}
	v.send <- snapshot
	h.mu.Unlock()

	h.log.Info("viewer connected", "viewer_id", v.id, "remote_addr", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		h.writePump(v)
		close(done)
	}()
	h.readPump(v)
	h.unregister(v)
	<-done

	h.log.Info("viewer disconnected", "viewer_id", v.id)
}

// DeviceAdded announces a newly observed device to every viewer.
func (h *Hub) DeviceAdded(deviceID string, count int) {
	h.broadcast(func(*viewer) (Event, bool) {
		return Event{Type: EventDevice, DeviceID: deviceID, Count: count, Label: models.CountLabel(count)}, true
	})
}

// DeviceSelected moves every viewer without an explicit choice to deviceID.
func (h *Hub) DeviceSelected(deviceID string) {
	h.mu.Lock()
	h.following = deviceID
	h.mu.Unlock()

	h.broadcast(func(v *viewer) (Event, bool) {
		if v.selected != "" {
			return Event{}, false
		}
		return Event{Type: EventSelected, DeviceID: deviceID}, true
	})
}

// Refresh sends series to the viewers currently looking at its device.
func (h *Hub) Refresh(series models.Series) {
	h.broadcast(func(v *viewer) (Event, bool) {
		if v.current(h.following) != series.DeviceID {
			return Event{}, false
		}
		return Event{Type: EventSeries, DeviceID: series.DeviceID, Series: &series}, true
	})
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.viewers {
		_ = v.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		v.conn.Close()
	}
}

// broadcast offers an event to each viewer under the read lock. Sends never
// block: a viewer whose queue is full misses the event.
func (h *Hub) broadcast(build func(*viewer) (Event, bool)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.viewers {
		ev, ok := build(v)
		if !ok {
			continue
		}
		h.offer(v, ev)
	}
}

// offer must be called with h.mu held.
func (h *Hub) offer(v *viewer, ev Event) {
	select {
	case v.send <- ev:
	default:
		h.log.Debug("dropping event for slow viewer", "viewer_id", v.id, "type", ev.Type)
	}
}

func (h *Hub) unregister(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v.id]; ok {
		delete(h.viewers, v.id)
		close(v.send)
	}
}

func (h *Hub) readPump(v *viewer) {
	v.conn.SetReadLimit(maxMessageSize)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Error("WebSocket error", "viewer_id", v.id, "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reply(v, Event{Type: EventError, Error: "invalid command"})
			continue
		}
		h.handleCommand(v, cmd)
	}
}

func (h *Hub) handleCommand(v *viewer, cmd Command) {
	switch cmd.Type {
	case "select":
		series, ok := h.source.Series(cmd.DeviceID)
		if !ok {
			h.reply(v, Event{Type: EventError, DeviceID: cmd.DeviceID, Error: "unknown device"})
			return
		}
		h.mu.Lock()
		v.selected = cmd.DeviceID
		h.mu.Unlock()

		h.reply(v, Event{Type: EventSelected, DeviceID: cmd.DeviceID})
		h.reply(v, Event{Type: EventSeries, DeviceID: cmd.DeviceID, Series: &series})
	default:
		h.reply(v, Event{Type: EventError, Error: "unknown command " + cmd.Type})
	}
}

func (h *Hub) reply(v *viewer, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.viewers[v.id]; ok {
		h.offer(v, ev)
	}
}

func (h *Hub) writePump(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteJSON(ev); err != nil {
				h.log.Error("failed to send event to viewer", "viewer_id", v.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
