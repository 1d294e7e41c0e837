package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/adwatch/internal/interfaces"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/adwatch/internal/services/auth"
	"github.com/ternarybob/adwatch/internal/services/registry"
	"github.com/ternarybob/arbor"
)

// AuthHandler exposes the authorization worker: progress, full
// re-authorization, and cancelling an in-flight interactive login.
type AuthHandler struct {
	registry *registry.Service
	worker   *auth.Worker
	storage  interfaces.CredentialStorage
	logger   arbor.ILogger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(registry *registry.Service, worker *auth.Worker, storage interfaces.CredentialStorage, logger arbor.ILogger) *AuthHandler {
	return &AuthHandler{
		registry: registry,
		worker:   worker,
		storage:  storage,
		logger:   logger,
	}
}

// ReauthorizeHandler handles POST /api/auth/reauthorize - pushes every
// registered account back through the authorization queue.
func (h *AuthHandler) ReauthorizeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	count := h.registry.ReauthorizeAll(r.Context())
	h.logger.Info().Int("accounts", count).Msg("Full re-authorization requested")

	WriteStarted(w, "Re-authorization started")
}

// CancelHandler handles POST /api/auth/cancel - aborts an in-flight
// interactive login. Queued accounts keep their status for a retry.
func (h *AuthHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.worker.CancelLogin()
	WriteSuccess(w, "Login cancellation requested")
}

// ProgressHandler handles GET /api/auth/progress
func (h *AuthHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.worker.Progress())
}

// AgentStatusHandler handles GET /api/auth/agent - reports the shared agent
// credential's last-known status without probing the platform.
func (h *AuthHandler) AgentStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	agent, err := h.storage.GetAgent(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteJSON(w, http.StatusOK, map[string]interface{}{
				"status":     models.CredentialStatusUnknown,
				"has_cookie": false,
			})
			return
		}
		h.logger.Error().Err(err).Msg("Failed to load agent credential")
		WriteError(w, http.StatusInternalServerError, "Failed to load agent credential")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":          agent.Status,
		"has_cookie":      !agent.Cookies.Empty(),
		"last_checked_at": agent.LastCheckedAt,
	})
}
