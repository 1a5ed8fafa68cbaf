package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Ledger errors
	ErrUnauthorized        = errors.New("caller is not the oracle")
	ErrInvalidAccount      = errors.New("invalid account address")
	ErrEmptyDelta          = errors.New("delta amount cannot be zero")
	ErrProjectAlreadyUsed  = errors.New("project already minted on ledger")
	ErrDebtOutstanding     = errors.New("transfer blocked by outstanding debt")
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")

	// Oracle validation errors (pre-ledger)
	ErrInvalidWallet       = errors.New("wallet address is not registered")
	ErrInvalidProject      = errors.New("project not found")
	ErrUnauthorizedProject = errors.New("project not owned by this company")
	ErrProjectUsed         = errors.New("project already used")
	ErrNoEmissionData      = errors.New("no emission data for company-year")

	// Registry errors
	ErrRegistryUnavailable = errors.New("registry unavailable")
)

// ProjectValidationError wraps a project-settlement validation failure and
// carries the caller's other available (unused) projects as guidance.
type ProjectValidationError struct {
	Err       error
	ProjectID string
	Available []Project
}

func (e *ProjectValidationError) Error() string {
	return e.Err.Error() + ": " + e.ProjectID
}

func (e *ProjectValidationError) Unwrap() error { return e.Err }
