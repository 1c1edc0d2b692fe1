package handler

import (
	"net/http"
	"time"

	"github.com/gogogo1024/screengate/services/authz/internal/policy"
)

type modeRequest struct {
	DeviceID string `json:"device_id"`
	Mode     string `json:"mode"`
}

// SetDeviceMode POST /v1/devices/mode
func (h *Handler) SetDeviceMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errDeviceRequired)
		return
	}
	if err := h.store.SetMode(req.DeviceID, policy.Mode(req.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

type lockedTypesRequest struct {
	DeviceID string   `json:"device_id"`
	Types    []string `json:"types"`
}

// SetLockedTypes POST /v1/devices/locked-types
// An empty types list unlocks the device.
func (h *Handler) SetLockedTypes(w http.ResponseWriter, r *http.Request) {
	var req lockedTypesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errDeviceRequired)
		return
	}
	if err := h.store.SetLockedTypes(req.DeviceID, req.Types); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

type grantRequest struct {
	DeviceID   string `json:"device_id"`
	OperatorID string `json:"operator_id"`
	ValidFrom  string `json:"valid_from,omitempty"` // RFC3339
	ValidTo    string `json:"valid_to,omitempty"`   // RFC3339; empty => permanent
	Restrict   bool   `json:"restrict,omitempty"`
}

// Grant POST /v1/grants
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errDeviceRequired)
		return
	}
	if !isUUID(req.OperatorID) {
		writeError(w, http.StatusBadRequest, errOperatorUUID)
		return
	}

	validFrom := h.now()
	if req.ValidFrom != "" {
		t, err := time.Parse(time.RFC3339Nano, req.ValidFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "valid_from must be RFC3339")
			return
		}
		validFrom = t
	}
	var validTo *time.Time
	if req.ValidTo != "" {
		t, err := time.Parse(time.RFC3339Nano, req.ValidTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "valid_to must be RFC3339")
			return
		}
		validTo = &t
	}

	if req.Restrict {
		if err := h.store.SetMode(req.DeviceID, policy.ModeRestricted); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := h.store.Grant(req.DeviceID, req.OperatorID, validFrom, validTo); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

type revokeRequest struct {
	DeviceID   string `json:"device_id"`
	OperatorID string `json:"operator_id"`
}

// Revoke POST /v1/grants/revoke
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errDeviceRequired)
		return
	}
	if !isUUID(req.OperatorID) {
		writeError(w, http.StatusBadRequest, errOperatorUUID)
		return
	}
	if err := h.store.Revoke(req.DeviceID, req.OperatorID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}
