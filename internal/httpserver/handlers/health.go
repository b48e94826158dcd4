package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/relicta-tech/installkit/internal/httpserver/dto"
)

var startTime = time.Now()

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   h.version,
		GoVersion: runtime.Version(),
		Sessions:  h.sessions.Len(),
	})
}
