package climate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// APIServer serves the dashboard-facing HTTP API: read-only state, manual
// override set/clear, and recalibration
type APIServer struct {
	agent  *Agent
	logger *slog.Logger
}

// NewAPIServer creates the HTTP API for a climate agent
func NewAPIServer(agent *Agent, logger *slog.Logger) *APIServer {
	return &APIServer{
		agent:  agent,
		logger: logger,
	}
}

// Handler returns the API route mux
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("PUT /api/override", s.handleSetOverride)
	mux.HandleFunc("DELETE /api/override", s.handleClearOverride)
	mux.HandleFunc("POST /api/recalibrate", s.handleRecalibrate)
	return mux
}

func (s *APIServer) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agent.Snapshot(r.Context()))
}

func (s *APIServer) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SetpointC       *float64 `json:"setpoint_c"`
		DurationMinutes int      `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.SetpointC == nil {
		s.writeError(w, http.StatusBadRequest, "setpoint_c is required")
		return
	}

	expiresAt := s.agent.SetOverride(r.Context(), *req.SetpointC, req.DurationMinutes)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "override_set",
		"setpoint_c": *req.SetpointC,
		"expires_at": expiresAt.UTC(),
	})
}

func (s *APIServer) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	if !s.agent.ClearOverride(r.Context()) {
		s.writeError(w, http.StatusNotFound, "no active override")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "override_cleared"})
}

func (s *APIServer) handleRecalibrate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count *int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Count == nil {
		s.writeError(w, http.StatusBadRequest, "count is required")
		return
	}

	if err := s.agent.RequestRecalibration(*req.Count); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "recalibration_requested",
		"count":  *req.Count,
	})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode API response", "error", err)
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
