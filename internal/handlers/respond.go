package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/observability"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

// respondStoreError maps a store error to its HTTP status
func respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		observability.WithContext(r.Context()).
			WithField("path", r.URL.Path).
			WithError(err).
			Error("Request failed")
	}
	if status == http.StatusServiceUnavailable {
		respondError(w, status, models.ErrPersistence.Message)
		return
	}
	respondError(w, status, err.Error())
}

func statusForError(err error) int {
	var storeErr models.StoreError
	switch {
	case errors.Is(err, models.ErrPersistence):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrNoActiveAccount):
		return http.StatusConflict
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrCancelTerminal):
		return http.StatusUnprocessableEntity
	case errors.As(err, &storeErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
