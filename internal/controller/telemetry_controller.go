package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"CapIot.quakeboard/internal/ingest"
	"CapIot.quakeboard/internal/models"
	"CapIot.quakeboard/internal/service"
	"CapIot.quakeboard/internal/utils"
)

const maxTelemetryBody = 1 << 20

// SelectRequest is the body of PUT /api/selection.
type SelectRequest struct {
	DeviceID string `json:"deviceId"`
}

// TelemetryController handles HTTP requests for dashboard telemetry.
type TelemetryController struct {
	session *service.Session
	log     *slog.Logger
}

// NewTelemetryController creates a new TelemetryController.
func NewTelemetryController(session *service.Session, log *slog.Logger) *TelemetryController {
	return &TelemetryController{
		session: session,
		log:     log.With("component", "controller"),
	}
}

// HandleTelemetry accepts one message or an array of messages pushed over HTTP.
// Incomplete messages are accepted here and dropped by the session.
func (c *TelemetryController) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTelemetryBody))
	if err != nil {
		apiErr := models.NewAPIError(models.ErrorCodeBadRequest, fmt.Sprintf("error reading request body: %v", err), nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}
	defer r.Body.Close()

	msgs, err := ingest.Decode(body)
	var skipped *ingest.SkippedError
	if errors.As(err, &skipped) && len(msgs) > 0 {
		c.log.Warn("dropping undecodable messages", "skipped", len(skipped.Errs), "total", skipped.Total, "error", err)
	} else if err != nil {
		apiErr := models.NewAPIError(models.ErrorCodeInvalidFormat, fmt.Sprintf("error unmarshalling JSON: %v", err), nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}

	for i, msg := range msgs {
		if err := c.session.Enqueue(r.Context(), msg); err != nil {
			c.log.Warn("telemetry push interrupted", "accepted", i, "error", err)
			apiErr := models.NewAPIError(models.ErrorCodeServiceUnavailable, "telemetry queue unavailable", map[string]int{"accepted": i}, http.StatusServiceUnavailable)
			utils.RespondWithError(w, apiErr)
			return
		}
	}

	resp := map[string]any{
		"message":  "Telemetry accepted",
		"accepted": len(msgs),
	}
	if skipped != nil {
		resp["skipped"] = len(skipped.Errs)
	}
	utils.RespondWithJSON(w, http.StatusAccepted, resp)
}

// HandleDevices lists the tracked devices in first-observed order.
func (c *TelemetryController) HandleDevices(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, c.session.Devices())
}

// HandleDeviceSeries returns the rolling series of one device.
func (c *TelemetryController) HandleDeviceSeries(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceID"]

	series, ok := c.session.Series(deviceID)
	if !ok {
		apiErr := models.NewAPIError(models.ErrorCodeResourceNotFound, fmt.Sprintf("device %q not found", deviceID), nil, http.StatusNotFound)
		utils.RespondWithError(w, apiErr)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, series)
}

// HandleSelection returns the series of the selected device.
func (c *TelemetryController) HandleSelection(w http.ResponseWriter, r *http.Request) {
	series, ok := c.session.Selected()
	if !ok {
		apiErr := models.NewAPIError(models.ErrorCodeNotFound, "no device selected yet", nil, http.StatusNotFound)
		utils.RespondWithError(w, apiErr)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, series)
}

// HandleSelect changes the selected device.
func (c *TelemetryController) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTelemetryBody)).Decode(&req); err != nil {
		apiErr := models.NewAPIError(models.ErrorCodeBadRequest, "Invalid request payload", nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}
	defer r.Body.Close()

	if req.DeviceID == "" {
		apiErr := models.NewAPIError(models.ErrorCodeMissingParameter, "deviceId is required", nil, http.StatusBadRequest)
		utils.RespondWithError(w, apiErr)
		return
	}

	series, err := c.session.Select(req.DeviceID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownDevice) {
			apiErr := models.NewAPIError(models.ErrorCodeResourceNotFound, fmt.Sprintf("device %q not found", req.DeviceID), nil, http.StatusNotFound)
			utils.RespondWithError(w, apiErr)
			return
		}
		apiErr := models.NewAPIError(models.ErrorCodeInternalServerError, fmt.Sprintf("Error selecting device: %v", err), nil, http.StatusInternalServerError)
		utils.RespondWithError(w, apiErr)
		return
	}
	c.log.Info("selection changed", "device_id", req.DeviceID)
	utils.RespondWithJSON(w, http.StatusOK, series)
}
