package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/adwatch/internal/common"
	"github.com/ternarybob/adwatch/internal/interfaces"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/adwatch/internal/services/auth"
	"github.com/ternarybob/adwatch/internal/services/registry"
	"github.com/ternarybob/arbor"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	registry  *registry.Service
	worker    *auth.Worker
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
	startedAt time.Time
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(registry *registry.Service, worker *auth.Worker, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		registry:  registry,
		worker:    worker,
		scheduler: scheduler,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	accounts := h.registry.ListAccounts()
	byStatus := map[models.AccountStatus]int{}
	for _, a := range accounts {
		byStatus[a.Status]++
	}

	status := map[string]interface{}{
		"version":    common.GetVersion(),
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"accounts":   len(accounts),
		"by_status":  byStatus,
		"authorizing": h.worker.IsDraining(),
		"progress":   h.worker.Progress(),
	}
	if h.scheduler != nil {
		status["jobs"] = h.scheduler.JobStatus()
	}

	WriteJSON(w, http.StatusOK, status)
}
