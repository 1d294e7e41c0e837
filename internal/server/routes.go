package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Account management
	mux.HandleFunc("/api/accounts", s.handleAccountsRoute)  // GET (list), POST (add)
	mux.HandleFunc("/api/accounts/", s.handleAccountRoutes) // DELETE /{id}, GET /{id}/metrics

	// API routes - Authorization
	mux.HandleFunc("/api/auth/reauthorize", s.app.AuthHandler.ReauthorizeHandler) // POST - re-authorize all accounts
	mux.HandleFunc("/api/auth/cancel", s.app.AuthHandler.CancelHandler)           // POST - cancel in-flight login
	mux.HandleFunc("/api/auth/progress", s.app.AuthHandler.ProgressHandler)       // GET - batch progress
	mux.HandleFunc("/api/auth/agent", s.app.AuthHandler.AgentStatusHandler)       // GET - agent credential status

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - application status

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleAccountsRoute routes /api/accounts requests (list and add)
func (s *Server) handleAccountsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.AccountHandler.ListAccountsHandler(w, r)
	case "POST":
		s.app.AccountHandler.AddAccountHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAccountRoutes routes /api/accounts/{id} and /api/accounts/{id}/metrics
func (s *Server) handleAccountRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if r.Method == "GET" && strings.HasSuffix(path, "/metrics") {
		s.app.AccountHandler.GetMetricsHandler(w, r)
		return
	}

	if r.Method == "DELETE" && len(path) > len("/api/accounts/") {
		s.app.AccountHandler.DeleteAccountHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not found", http.StatusNotFound)
}
