package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/services"
)

// UpgradeHandler exposes the current account's device upgrade states
type UpgradeHandler struct {
	store *services.UpgradeStore
}

// NewUpgradeHandler creates a new UpgradeHandler
func NewUpgradeHandler(store *services.UpgradeStore) *UpgradeHandler {
	return &UpgradeHandler{store: store}
}

// ListUpgrades returns every upgrade state in insertion order
// @Summary List upgrade states
// @Tags upgrades
// @Produce json
// @Success 200 {object} models.UpgradeStateListResponse
// @Failure 409 {object} models.ErrorResponse "No active account"
// @Security ApiKeyAuth
// @Router /api/upgrades [get]
func (h *UpgradeHandler) ListUpgrades(w http.ResponseWriter, r *http.Request) {
	states, err := h.store.List(r.Context())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.UpgradeStateListResponse{States: states, Count: len(states)})
}

// ListStale returns devices stuck in upgrading past the timeout
func (h *UpgradeHandler) ListStale(w http.ResponseWriter, r *http.Request) {
	states, err := h.store.StaleUpgrades(r.Context(), time.Now().UTC())
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.UpgradeStateListResponse{States: states, Count: len(states)})
}

// GetUpgrade returns one device's upgrade state
// @Summary Get upgrade state
// @Tags upgrades
// @Param deviceHid path string true "Device HID"
// @Success 200 {object} models.DeviceUpgradeState
// @Failure 404 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/upgrades/{deviceHid} [get]
func (h *UpgradeHandler) GetUpgrade(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.Get(r.Context(), chi.URLParam(r, "deviceHid"))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if state == nil {
		respondError(w, http.StatusNotFound, "Upgrade state not found")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// PutUpgrade replaces or creates a device's upgrade state
// @Summary Upsert upgrade state
// @Tags upgrades
// @Accept json
// @Produce json
// @Param deviceHid path string true "Device HID"
// @Param request body models.DeviceUpgradeState true "Whole record"
// @Success 200 {object} models.UpsertResponse "Updated"
// @Success 201 {object} models.UpsertResponse "Inserted"
// @Failure 422 {object} models.ErrorResponse "Invalid transition"
// @Security ApiKeyAuth
// @Router /api/upgrades/{deviceHid} [put]
func (h *UpgradeHandler) PutUpgrade(w http.ResponseWriter, r *http.Request) {
	deviceHid := chi.URLParam(r, "deviceHid")

	var state models.DeviceUpgradeState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if state.DeviceHid != "" && state.DeviceHid != deviceHid {
		respondError(w, http.StatusBadRequest, "deviceHid in body does not match path")
		return
	}
	state.DeviceHid = deviceHid

	result, err := h.store.Upsert(r.Context(), &state)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	status := http.StatusOK
	if result == models.Inserted {
		status = http.StatusCreated
	}
	respondJSON(w, status, models.UpsertResponse{Result: result, State: &state})
}

// DeleteUpgrade removes a device's upgrade state
func (h *UpgradeHandler) DeleteUpgrade(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Delete(r.Context(), chi.URLParam(r, "deviceHid"))
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.RemovedResponse{Removed: removed})
}

// CancelUpgrade flags a running upgrade as canceled
func (h *UpgradeHandler) CancelUpgrade(w http.ResponseWriter, r *http.Request) {
	deviceHid := chi.URLParam(r, "deviceHid")

	canceled, err := h.store.Cancel(r.Context(), deviceHid)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if !canceled {
		respondError(w, http.StatusNotFound, "Upgrade state not found")
		return
	}

	state, err := h.store.Get(r.Context(), deviceHid)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}
