package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	databases := make(map[string]string)
	for name, db := range s.container.Databases() {
		if db == nil {
			continue
		}
		if err := db.QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Str("database", name).Msg("Health check failed")
			databases[name] = "unreachable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		databases[name] = "ok"
	}

	response := map[string]interface{}{
		"status":    status,
		"version":   "1.0.0",
		"service":   "meridian",
		"databases": databases,
	}

	s.writeJSON(w, code, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
