package http

import (
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"github.com/teens-space/progress-hub/internal/interface/http/handlers"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports the composite status. Degraded still answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if status.Version == "" {
		status.Version = s.config.Version
	}
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady answers 200 once postgres is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSONError(w, r, http.StatusServiceUnavailable, CodeUnavailable, status.Message)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": status.Status})
}

// handleLive answers 200 while the process serves requests.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": handlers.StatusOK,
		"uptime": s.Uptime().Round(time.Second).String(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

// handleTelegramWebhook handles POST /webhook/telegram/{token}. Command
// failures are logged and still acknowledged with 200.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.WebhookHandler == nil {
		unavailable(w, r)
		return
	}

	token := r.PathValue("token")
	if s.config.WebhookToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.WebhookToken)) != 1 {
		writeJSONError(w, r, http.StatusNotFound, CodeNotFound, "not found")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, CodeValidation, "cannot read body")
		return
	}

	if err := s.deps.WebhookHandler.HandleTelegramUpdate(r.Context(), payload); err != nil {
		requestLogger(r).Warn("telegram update failed", logger.Err(err))
	}
	w.WriteHeader(http.StatusOK)
}
