package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/xelth-com/eckclockgo/internal/repository"
	"github.com/xelth-com/eckclockgo/internal/terminal"
	"github.com/xelth-com/eckclockgo/internal/timeclock"
)

const (
	maxRequestBody   = 64 << 10
	defaultLogsLimit = 20
	maxLogsLimit     = 200
)

// runSync handles POST /api/timeclock/sync
func (r *Router) runSync(w http.ResponseWriter, req *http.Request) {
	var body timeclock.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := r.runner.Run(req.Context(), body)
	if err == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	status := syncErrorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("❌ Sync %s on %s: %v", body.Action, body.DeviceID, err)
	}
	if resp != nil {
		respondJSON(w, status, resp)
		return
	}
	respondJSON(w, status, &timeclock.Response{Success: false, Error: err.Error()})
}

func syncErrorStatus(err error) int {
	switch {
	case errors.Is(err, timeclock.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, timeclock.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, timeclock.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, timeclock.ErrDeviceNotConfigured):
		return http.StatusUnprocessableEntity
	case terminal.IsConnectivity(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// companyDevice resolves {id} and ?company_id= to a device the company owns.
// It writes the error response itself and reports false on failure.
func (r *Router) companyDevice(w http.ResponseWriter, req *http.Request) (uuid.UUID, bool) {
	deviceID, err := uuid.Parse(mux.Vars(req)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid device id")
		return uuid.Nil, false
	}
	companyID, err := uuid.Parse(req.URL.Query().Get("company_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "company_id query parameter must be a UUID")
		return uuid.Nil, false
	}

	if _, err := r.store.GetDevice(req.Context(), deviceID, companyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Device not found")
			return uuid.Nil, false
		}
		log.Printf("❌ Load device %s: %v", deviceID, err)
		respondError(w, http.StatusInternalServerError, "Failed to load device")
		return uuid.Nil, false
	}
	return deviceID, true
}

// listSyncLogs handles GET /api/timeclock/devices/{id}/sync-logs?company_id=X&limit=N
func (r *Router) listSyncLogs(w http.ResponseWriter, req *http.Request) {
	deviceID, ok := r.companyDevice(w, req)
	if !ok {
		return
	}

	limit := defaultLogsLimit
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogsLimit)
	}

	logs, err := r.store.ListSyncLogs(req.Context(), deviceID, limit)
	if err != nil {
		log.Printf("❌ List sync logs for %s: %v", deviceID, err)
		respondError(w, http.StatusInternalServerError, "Failed to load sync logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// listDeviceUsers handles GET /api/timeclock/devices/{id}/users?company_id=X
func (r *Router) listDeviceUsers(w http.ResponseWriter, req *http.Request) {
	deviceID, ok := r.companyDevice(w, req)
	if !ok {
		return
	}

	users, err := r.store.ListDeviceUsers(req.Context(), deviceID)
	if err != nil {
		log.Printf("❌ List device users for %s: %v", deviceID, err)
		respondError(w, http.StatusInternalServerError, "Failed to load device users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}
