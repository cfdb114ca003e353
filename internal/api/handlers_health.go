// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/setlist/internal/models"
)

// HealthLive handles liveness check requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// HealthReady handles readiness check requests (Kubernetes-style).
// Returns 200 OK only if the database answers. The upstream circuit state is
// reported but never fails readiness; an open circuit degrades search
// results instead.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.deps.DB != nil && h.deps.DB.Ping(r.Context()) == nil

	data := map[string]interface{}{
		"database_connected": dbConnected,
		"ready_to_serve":     dbConnected,
		"uptime":             time.Since(h.startTime).Seconds(),
	}
	if h.deps.Search != nil {
		data["upstream_circuit"] = h.deps.Search.CircuitState()
	}
	if h.deps.Refresher != nil {
		data["concert_refresh_running"] = h.deps.Refresher.Running()
	}

	resp := &models.APIResponse{
		Status:   "ready",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now()},
	}
	statusCode := http.StatusOK
	if !dbConnected {
		statusCode = http.StatusServiceUnavailable
		resp.Status = "not_ready"
		resp.Error = &models.APIError{Code: codeNotReady, Message: "Database is not reachable"}
	}
	respondJSON(w, statusCode, resp)
}
