// Package v1 provides the REST API handlers for the sync daemon.
package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/skylarkhq/skylark-sync/internal/providers"
	"github.com/skylarkhq/skylark-sync/internal/status"
	syncpkg "github.com/skylarkhq/skylark-sync/internal/sync"
	"github.com/skylarkhq/skylark-sync/internal/sync/state"
)

// AccountStatusResponse is one account's sync status in API responses
type AccountStatusResponse struct {
	Account providers.AccountID   `json:"account"`
	Status  *status.AccountStatus `json:"status"`
}

// SyncStatusResponse is the process-wide sync overview
type SyncStatusResponse struct {
	Flags    state.Flags             `json:"flags"`
	Accounts []AccountStatusResponse `json:"accounts"`
}

// AcceptedResponse acknowledges an asynchronous operation
type AcceptedResponse struct {
	Status  string              `json:"status"`
	Account providers.AccountID `json:"account,omitempty"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the sync API routes with dependency injection
type Routes struct {
	orchestrator *syncpkg.Orchestrator
	state        state.AccountStateService
}

// NewRoutes creates a new Routes instance over the given orchestrator
// and state service
func NewRoutes(orchestrator *syncpkg.Orchestrator, stateSvc state.AccountStateService) *Routes {
	return &Routes{
		orchestrator: orchestrator,
		state:        stateSvc,
	}
}

// Router creates the router for the sync API
func Router(orchestrator *syncpkg.Orchestrator, stateSvc state.AccountStateService) http.Handler {
	routes := NewRoutes(orchestrator, stateSvc)

	r := chi.NewRouter()

	r.Get("/status", routes.getSyncStatus)
	r.Delete("/", routes.resetAll)

	r.Route("/accounts/{account}", func(r chi.Router) {
		r.Get("/", routes.getAccountStatus)
		r.Post("/", routes.startSync)
		r.Post("/manual", routes.manualSync)
		r.Delete("/", routes.resetAccount)
	})

	return r
}

// getSyncStatus handles GET /api/v1/sync/status
func (rr *Routes) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := rr.state.ListStatuses(r.Context())
	if err != nil {
		slog.Error("Failed to list sync statuses", "error", err)
		rr.writeErrorResponse(w, "Failed to list sync statuses", http.StatusInternalServerError)
		return
	}

	response := SyncStatusResponse{
		Flags:    rr.state.Flags(),
		Accounts: make([]AccountStatusResponse, 0, len(statuses)),
	}
	for _, account := range state.SortedAccounts(statuses) {
		response.Accounts = append(response.Accounts, AccountStatusResponse{
			Account: account,
			Status:  statuses[account],
		})
	}

	rr.writeJSONResponse(w, response)
}

// getAccountStatus handles GET /api/v1/sync/accounts/{account}
func (rr *Routes) getAccountStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := rr.accountParam(w, r)
	if !ok {
		return
	}

	st, err := rr.state.GetStatus(r.Context(), account)
	if err != nil {
		slog.Error("Failed to read sync status", "account", account, "error", err)
		rr.writeErrorResponse(w, "Failed to read sync status", http.StatusInternalServerError)
		return
	}
	if st == nil {
		rr.writeErrorResponse(w, "Unknown account", http.StatusNotFound)
		return
	}

	rr.writeJSONResponse(w, AccountStatusResponse{Account: account, Status: st})
}

// startSync handles POST /api/v1/sync/accounts/{account}. The sync
// runs asynchronously; its outcome is observed through the status
// endpoints.
func (rr *Routes) startSync(w http.ResponseWriter, r *http.Request) {
	account, ok := rr.accountParam(w, r)
	if !ok {
		return
	}

	rr.orchestrator.StartSyncIfNeeded(r.Context(), account)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(AcceptedResponse{Status: "accepted", Account: account}); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// manualSync handles POST /api/v1/sync/accounts/{account}/manual. It
// blocks until the forced sync completes, like the pull-to-refresh
// gesture it stands in for.
func (rr *Routes) manualSync(w http.ResponseWriter, r *http.Request) {
	account, ok := rr.accountParam(w, r)
	if !ok {
		return
	}

	done := make(chan error, 1)
	rr.orchestrator.ManualSync(r.Context(), account, func(err error) { done <- err })

	select {
	case err := <-done:
		switch {
		case errors.Is(err, syncpkg.ErrSyncInProgress):
			rr.writeErrorResponse(w, "Sync already in progress", http.StatusConflict)
		case errors.Is(err, syncpkg.ErrNetworkUnavailable):
			rr.writeErrorResponse(w, "Network unavailable", http.StatusServiceUnavailable)
		case err != nil:
			rr.writeErrorResponse(w, "Manual sync failed: "+err.Error(), http.StatusBadGateway)
		default:
			st, serr := rr.state.GetStatus(r.Context(), account)
			if serr != nil {
				rr.writeErrorResponse(w, "Failed to read sync status", http.StatusInternalServerError)
				return
			}
			rr.writeJSONResponse(w, AccountStatusResponse{Account: account, Status: st})
		}
	case <-r.Context().Done():
		// Client went away; the sync keeps running
	}
}

// resetAccount handles DELETE /api/v1/sync/accounts/{account}
func (rr *Routes) resetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := rr.accountParam(w, r)
	if !ok {
		return
	}

	if err := rr.orchestrator.ResetAccount(r.Context(), account); err != nil {
		slog.Error("Failed to reset account", "account", account, "error", err)
		rr.writeErrorResponse(w, "Failed to reset account", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, AcceptedResponse{Status: "reset", Account: account})
}

// resetAll handles DELETE /api/v1/sync
func (rr *Routes) resetAll(w http.ResponseWriter, r *http.Request) {
	if err := rr.orchestrator.Reset(r.Context()); err != nil {
		slog.Error("Failed to reset sync state", "error", err)
		rr.writeErrorResponse(w, "Failed to reset sync state", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, AcceptedResponse{Status: "reset"})
}

// accountParam extracts and validates the account path parameter
func (rr *Routes) accountParam(w http.ResponseWriter, r *http.Request) (providers.AccountID, bool) {
	raw := chi.URLParam(r, "account")
	decoded, err := url.PathUnescape(raw)
	if err != nil || decoded == "" {
		rr.writeErrorResponse(w, "Invalid account identifier", http.StatusBadRequest)
		return "", false
	}
	return providers.AccountID(decoded), true
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
