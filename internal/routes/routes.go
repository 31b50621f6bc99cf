package routes

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"CapIot.quakeboard/internal/controller"
	"CapIot.quakeboard/internal/models"
	"CapIot.quakeboard/internal/utils"
)

// NewRouter registers all application routes. viewers serves the WebSocket
// stream and static serves the dashboard page; either may be nil.
func NewRouter(c *controller.TelemetryController, viewers, static http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// Health check (GET only)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.HandleFunc("/telemetry", c.HandleTelemetry).Methods(http.MethodPost)
	api.HandleFunc("/devices", c.HandleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceID}/series", c.HandleDeviceSeries).Methods(http.MethodGet)
	api.HandleFunc("/selection", c.HandleSelection).Methods(http.MethodGet)
	api.HandleFunc("/selection", c.HandleSelect).Methods(http.MethodPut)

	if viewers != nil {
		router.Handle("/ws", viewers).Methods(http.MethodGet)
	}
	if static != nil {
		router.PathPrefix("/").Handler(static).Methods(http.MethodGet, http.MethodHead)
	}
	return router
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	apiErr := models.NewAPIError(models.ErrorCodeMethodNotAllowed, "Method not allowed", nil, http.StatusMethodNotAllowed)
	utils.RespondWithError(w, apiErr)
}
