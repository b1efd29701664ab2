package handlers

import (
	"net/http"
	"time"

	"github.com/fotastore/server/internal/models"
	"github.com/fotastore/server/internal/services"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	scope *services.AccountScope
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(scope *services.AccountScope) *HealthHandler {
	return &HealthHandler{scope: scope}
}

// HealthCheck returns the server health status
// @Summary Health check
// @Description Returns the server status and whether an account is current
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse "Server is healthy"
// @Router /api/health [get]
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		ActiveAccount: h.scope.Current() != nil,
	})
}
