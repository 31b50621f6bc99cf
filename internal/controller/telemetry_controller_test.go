package controller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CapIot.quakeboard/internal/models"
	"CapIot.quakeboard/internal/service"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRouter(c *TelemetryController) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/telemetry", c.HandleTelemetry).Methods(http.MethodPost)
	r.HandleFunc("/api/devices", c.HandleDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{deviceID}/series", c.HandleDeviceSeries).Methods(http.MethodGet)
	r.HandleFunc("/api/selection", c.HandleSelection).Methods(http.MethodGet)
	r.HandleFunc("/api/selection", c.HandleSelect).Methods(http.MethodPut)
	return r
}

func seed(t *testing.T, s *service.Session, raw string) {
	t.Helper()
	var msg models.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	s.Consume(msg)
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleTelemetryAcceptsBatch(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	r := newRouter(NewTelemetryController(s, discard))
	rec := do(r, http.MethodPost, "/api/telemetry", `[
		{"DeviceId":"A","MessageDate":"2024-01-01T00:00:00Z","IotData":{"mmi":3}},
		{"DeviceId":"B","MessageDate":"2024-01-01T00:00:01Z","IotData":{"richterMagnitude":4.2}}
	]`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"message":"Telemetry accepted","accepted":2}`, rec.Body.String())

	require.Eventually(t, func() bool { return s.Devices().Count == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, s.Devices().Devices)
}

func TestHandleTelemetryKeepsGoodMessagesOfMixedBatch(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	r := newRouter(NewTelemetryController(s, discard))
	rec := do(r, http.MethodPost, "/api/telemetry", `[
		{"DeviceId":"A","MessageDate":"t1","IotData":{"mmi":3}},
		{"DeviceId":"B","MessageDate":"t1","IotData":{"mmi":"high"}}
	]`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"message":"Telemetry accepted","accepted":1,"skipped":1}`, rec.Body.String())

	require.Eventually(t, func() bool { return s.Devices().Count == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"A"}, s.Devices().Devices)
}

func TestHandleTelemetryRejectsBatchWithoutValidMessages(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	r := newRouter(NewTelemetryController(s, discard))

	rec := do(r, http.MethodPost, "/api/telemetry", `[{"DeviceId":7}]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTelemetryRejectsMalformedJSON(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	r := newRouter(NewTelemetryController(s, discard))

	rec := do(r, http.MethodPost, "/api/telemetry", `{"DeviceId":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeInvalidFormat, apiErr.Code)
}

func TestHandleTelemetryUnavailableWhenRequestCancelled(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard), service.WithQueueSize(1))
	c := NewTelemetryController(s, discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	body := `[{"DeviceId":"A","MessageDate":"t1","IotData":{"mmi":1}},{"DeviceId":"A","MessageDate":"t2","IotData":{"mmi":2}}]`
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry", strings.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	c.HandleTelemetry(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleDevices(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	seed(t, s, `{"DeviceId":"A","MessageDate":"t1","IotData":{"mmi":3}}`)
	r := newRouter(NewTelemetryController(s, discard))

	rec := do(r, http.MethodGet, "/api/devices", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var list models.DeviceList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "1 device", list.Label)
	assert.Equal(t, []string{"A"}, list.Devices)
	assert.Equal(t, "A", list.Selected)
}

func TestHandleDeviceSeries(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	seed(t, s, `{"DeviceId":"A","MessageDate":"t1","IotData":{"mmi":3}}`)
	seed(t, s, `{"DeviceId":"A","MessageDate":"t2","IotData":{"richterMagnitude":2.5}}`)
	r := newRouter(NewTelemetryController(s, discard))

	rec := do(r, http.MethodGet, "/api/devices/A/series", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deviceId":"A","times":["t1","t2"],"mmi":[3,null],"richterMagnitude":[null,2.5]}`, rec.Body.String())
}

func TestHandleDeviceSeriesUnknownDevice(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	r := newRouter(NewTelemetryController(s, discard))

	rec := do(r, http.MethodGet, "/api/devices/nope/series", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, models.ErrorCodeResourceNotFound, apiErr.Code)
}

func TestHandleSelectionBeforeAnyDevice(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	r := newRouter(NewTelemetryController(s, discard))

	rec := do(r, http.MethodGet, "/api/selection", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSelect(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	seed(t, s, `{"DeviceId":"A","MessageDate":"t1","IotData":{"mmi":3}}`)
	seed(t, s, `{"DeviceId":"B","MessageDate":"t1","IotData":{"mmi":7}}`)
	r := newRouter(NewTelemetryController(s, discard))

	rec := do(r, http.MethodPut, "/api/selection", `{"deviceId":"B"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var series models.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Equal(t, "B", series.DeviceID)

	rec = do(r, http.MethodGet, "/api/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Equal(t, "B", series.DeviceID)
}

func TestHandleSelectErrors(t *testing.T) {
	s := service.NewSession(nil, service.WithLogger(discard))
	seed(t, s, `{"DeviceId":"A","MessageDate":"t1","IotData":{"mmi":3}}`)
	r := newRouter(NewTelemetryController(s, discard))

	tests := []struct {
		name   string
		body   string
		status int
		code   models.ErrorCode
	}{
		{"malformed", `{`, http.StatusBadRequest, models.ErrorCodeBadRequest},
		{"missing id", `{}`, http.StatusBadRequest, models.ErrorCodeMissingParameter},
		{"unknown id", `{"deviceId":"Z"}`, http.StatusNotFound, models.ErrorCodeResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, http.MethodPut, "/api/selection", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var apiErr models.APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}

	selected, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "A", selected.DeviceID)
}
