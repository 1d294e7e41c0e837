package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/adwatch/internal/services/registry"
	"github.com/ternarybob/arbor"
)

// AccountHandler handles HTTP requests for monitored-account management.
type AccountHandler struct {
	registry *registry.Service
	logger   arbor.ILogger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(registry *registry.Service, logger arbor.ILogger) *AccountHandler {
	return &AccountHandler{
		registry: registry,
		logger:   logger,
	}
}

type addAccountRequest struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

// ListAccountsHandler handles GET /api/accounts
func (h *AccountHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	accounts := h.registry.ListAccounts()
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// AddAccountHandler handles POST /api/accounts
func (h *AccountHandler) AddAccountHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	account, err := h.registry.AddAccount(r.Context(), strings.TrimSpace(req.AccountID), req.DisplayName)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", req.AccountID).Msg("Failed to add account")
		WriteError(w, http.StatusInternalServerError, "Failed to add account")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": account.AccountID,
		"status":     account.Status(),
	})
}

// DeleteAccountHandler handles DELETE /api/accounts/{id}
func (h *AccountHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDFromPath(r.URL.Path)
	if accountID == "" {
		WriteError(w, http.StatusBadRequest, "Account ID is required")
		return
	}

	removed, err := h.registry.RemoveAccount(r.Context(), accountID)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to remove account")
		WriteError(w, http.StatusInternalServerError, "Failed to remove account")
		return
	}
	if !removed {
		WriteError(w, http.StatusNotFound, "Account not found")
		return
	}

	WriteSuccess(w, "Account removed")
}

// GetMetricsHandler handles GET /api/accounts/{id}/metrics
func (h *AccountHandler) GetMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	accountID := accountIDFromPath(r.URL.Path)
	if accountID == "" {
		WriteError(w, http.StatusBadRequest, "Account ID is required")
		return
	}

	account, err := h.registry.GetMetrics(r.Context(), accountID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Account not found")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":    account.AccountID,
		"display_name":  account.DisplayName,
		"status":        account.Status(),
		"live_items":    emptyIfNil(account.LiveItems),
		"ended_items":   emptyIfNil(account.EndedItems),
		"last_fetch_at": account.LastFetchAt,
	})
}

// accountIDFromPath extracts the account ID from /api/accounts/{id} and
// /api/accounts/{id}/metrics paths.
func accountIDFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/accounts/")
	if rest == path {
		return ""
	}
	rest = strings.TrimSuffix(rest, "/metrics")
	return strings.Trim(rest, "/")
}

func emptyIfNil(items []models.Snapshot) []models.Snapshot {
	if items == nil {
		return []models.Snapshot{}
	}
	return items
}
