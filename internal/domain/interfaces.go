package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the oracle depends on them.

// AccountRegistry resolves a wallet address to a registered company identity.
type AccountRegistry interface {
	// Lookup returns the company behind the address, or ErrInvalidWallet.
	Lookup(ctx context.Context, address string) (CompanyInfo, error)
}

// EmissionRegistry provides published emission data and per-type limits.
type EmissionRegistry interface {
	// Lookup returns the emission record for a company-year, or
	// ErrNoEmissionData. Records returned by the upstream provider already
	// carry the limit for the company's type; Limit may be zero when the
	// provider omits it, in which case callers fall back to LimitFor.
	Lookup(ctx context.Context, address string, year int) (EmissionRecord, error)

	// History returns all published emission records for a company.
	History(ctx context.Context, address string) ([]EmissionRecord, error)

	// LimitFor returns the annual emission limit for a company type.
	LimitFor(ctx context.Context, companyType string) (uint64, error)
}

// ProjectRegistry provides the offset-project catalog. MarkUsed is the only
// mutating call and is best-effort: the ledger's own used-set is authoritative.
type ProjectRegistry interface {
	// Lookup returns the project, or ErrInvalidProject.
	Lookup(ctx context.Context, projectID string) (Project, error)

	// ListAvailable returns the company's unused projects.
	ListAvailable(ctx context.Context, companyID string) ([]Project, error)

	// MarkUsed flips the project's used flag in the external registry.
	MarkUsed(ctx context.Context, projectID string) error
}
