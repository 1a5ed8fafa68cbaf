package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cct-network/carbond/internal/domain"
	"github.com/cct-network/carbond/internal/ledger"
	"github.com/cct-network/carbond/internal/oracle"
)

// ─── Settlement API ─────────────────────────────────────────────────────────
// REST endpoints for the dashboard and CLI:
//
// POST /api/settlements/project      — redeem an offset project
// POST /api/settlements/period       — annual close for a company-year
// GET  /api/accounts/{address}       — balance, debt, transfer eligibility
// GET  /api/accounts/{address}/events    — audit journal
// GET  /api/accounts/{address}/emissions — emission history
// GET  /api/accounts/{address}/projects  — available offset projects
// POST /api/transfers                — credit transfer between accounts

// EventSource reads the persisted audit journal.
type EventSource interface {
	EventsForAccount(account string, limit int) ([]domain.LedgerEvent, error)
}

// SettlementAPI holds the core services behind the HTTP surface.
type SettlementAPI struct {
	Oracle *oracle.Oracle
	Ledger *ledger.Ledger
	Events EventSource // nil when running without persistence
}

type projectSettlementRequest struct {
	Address   string `json:"address"`
	ProjectID string `json:"projectId"`
}

// HandleProjectSettlement triggers a project reconciliation.
// POST /api/settlements/project
func (s *SettlementAPI) HandleProjectSettlement(w http.ResponseWriter, r *http.Request) {
	var req projectSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Address == "" || req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "address and projectId are required")
		return
	}

	res, err := s.Oracle.SettleProject(r.Context(), req.Address, req.ProjectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type periodSettlementRequest struct {
	Address string `json:"address"`
	Year    int    `json:"year"`
}

// HandlePeriodSettlement triggers a company-year reconciliation.
// POST /api/settlements/period
func (s *SettlementAPI) HandlePeriodSettlement(w http.ResponseWriter, r *http.Request) {
	var req periodSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Address == "" || req.Year == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "address and year are required")
		return
	}

	res, err := s.Oracle.SettlePeriod(r.Context(), req.Address, req.Year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAccountStatus returns an account's position.
// GET /api/accounts/{address}
func (s *SettlementAPI) HandleAccountStatus(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	account := s.Ledger.AccountStatus(address)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":      account.Address,
		"balance":      account.Balance,
		"debt":         account.Debt,
		"can_transfer": account.CanTransfer(),
	})
}

// HandleAccountEvents returns the account's audit journal, newest first.
// GET /api/accounts/{address}/events
func (s *SettlementAPI) HandleAccountEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "no_journal", "audit journal not enabled")
		return
	}

	events, err := s.Events.EventsForAccount(chi.URLParam(r, "address"), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// HandleEmissionHistory returns all published emission records.
// GET /api/accounts/{address}/emissions
func (s *SettlementAPI) HandleEmissionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.Oracle.EmissionHistory(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type entry struct {
		Year   int    `json:"year"`
		Limit  uint64 `json:"limit"`
		Actual uint64 `json:"actual"`
		Delta  int64  `json:"delta"`
		Status string `json:"status"`
	}
	out := make([]entry, 0, len(history))
	for _, rec := range history {
		out = append(out, entry{
			Year:   rec.Year,
			Limit:  rec.Limit,
			Actual: rec.Actual,
			Delta:  rec.Delta(),
			Status: rec.Status(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history":     out,
		"total_years": len(out),
	})
}

// HandleAvailableProjects returns the company's unused offset projects.
// GET /api/accounts/{address}/projects
func (s *SettlementAPI) HandleAvailableProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.Oracle.AvailableProjects(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

type transferRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

// HandleTransfer moves credits between accounts.
// POST /api/transfers
func (s *SettlementAPI) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	ev, err := s.Ledger.Transfer(req.Sender, req.Recipient, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"new_sender_balance": ev.NewBalance,
	})
}

// ─── Error Mapping ──────────────────────────────────────────────────────────

// errorKind maps a domain error to its wire kind and HTTP status.
func errorKind(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrInvalidWallet):
		return "invalid_wallet", http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidProject):
		return "invalid_project", http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorizedProject):
		return "unauthorized_project", http.StatusForbidden
	case errors.Is(err, domain.ErrProjectUsed):
		return "project_used", http.StatusConflict
	case errors.Is(err, domain.ErrNoEmissionData):
		return "no_emission_data", http.StatusNotFound
	case errors.Is(err, domain.ErrRegistryUnavailable):
		return "registry_unavailable", http.StatusBadGateway
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized", http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidAccount):
		return "invalid_account", http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyDelta):
		return "empty_delta", http.StatusBadRequest
	case errors.Is(err, domain.ErrDebtOutstanding):
		return "debt_outstanding", http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance", http.StatusConflict
	case errors.Is(err, domain.ErrProjectAlreadyUsed):
		return "project_already_used", http.StatusConflict
	default:
		return "internal", http.StatusInternalServerError
	}
}

// writeDomainError renders a domain error, attaching available projects when
// the failure carries them so the caller can self-correct.
func writeDomainError(w http.ResponseWriter, err error) {
	kind, status := errorKind(err)

	body := map[string]interface{}{
		"kind":    kind,
		"message": err.Error(),
	}
	var verr *domain.ProjectValidationError
	if errors.As(err, &verr) && len(verr.Available) > 0 {
		body["available_projects"] = verr.Available
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    kind,
			"message": msg,
		},
	})
}
