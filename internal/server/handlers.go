package server

import (
	"encoding/json"
	"net/http"

	"mqtt-query-bridge/internal/query"
	"mqtt-query-bridge/internal/store"
)

// handleMessage writes the latest payload verbatim, or "no messages".
// ?topic= narrows the query to one topic.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/message" && r.URL.Path != "/message/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	topic := r.URL.Query().Get("topic")

	var msg store.Message
	var ok bool
	if topic != "" {
		msg, ok = s.query.LatestMessageFor(topic)
	} else {
		msg, ok = s.query.LatestMessage()
	}

	if !ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(query.NoMessages))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Message-Topic", msg.Topic)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(msg.Payload); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// HealthResponse represents the liveness probe response.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// ReadyResponse represents the readiness probe response.
type ReadyResponse struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// handleReady returns 200 only while a broker session is live.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.status == nil || !s.status.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status:  "not_ready",
			Details: "broker not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.stats == nil {
		http.Error(w, "stats not available", http.StatusNotFound)
		return
	}

	data, err := s.stats.GetStatsJSON()
	if err != nil {
		s.logger.Error("failed to encode stats", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
