// Package oracle implements the settlement oracle — the only component
// permitted to call the ledger's mutating entrypoints. It translates
// external, loosely-validated registry data into one well-formed ledger
// call per reconciliation.
//
// The oracle:
//  1. Resolves the company identity behind a wallet address
//  2. Pulls project or emission data from the registries
//  3. Computes a settlement delta and logs it verbatim for audit
//  4. Submits the delta to the ledger
//  5. On a project mint, marks the project used in the registry (best-effort)
//
// Registry failures abort a flow before any ledger call; ledger failures are
// surfaced verbatim and never retried automatically. Re-invoking a flow is
// safe: the project path is idempotent through the ledger's used-set, and
// the period path recomputes from current source data each time.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cct-network/carbond/internal/domain"
	"github.com/cct-network/carbond/internal/infra/observability"
	"github.com/cct-network/carbond/internal/ledger"
)

// Deps are the oracle's collaborators.
type Deps struct {
	Ledger    *ledger.Ledger
	Accounts  domain.AccountRegistry
	Emissions domain.EmissionRegistry
	Projects  domain.ProjectRegistry
	Tracer    *observability.Tracer
}

// Oracle orchestrates project and period settlement.
type Oracle struct {
	identity  string
	ledger    *ledger.Ledger
	accounts  domain.AccountRegistry
	emissions domain.EmissionRegistry
	projects  domain.ProjectRegistry
	tracer    *observability.Tracer
}

// New creates a settlement oracle acting under the given ledger identity.
func New(identity string, deps Deps) *Oracle {
	return &Oracle{
		identity:  identity,
		ledger:    deps.Ledger,
		accounts:  deps.Accounts,
		emissions: deps.Emissions,
		projects:  deps.Projects,
		tracer:    deps.Tracer,
	}
}

// ─── Project Settlement ─────────────────────────────────────────────────────

// ProjectSettlement is the outcome of one project reconciliation.
type ProjectSettlement struct {
	Status      string `json:"status"` // "minted" or "already_used"
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
	Account     string `json:"account"`
	Company     string `json:"company,omitempty"`
	Credited    uint64 `json:"credited"`
	Balance     uint64 `json:"balance"`
}

// SettleProject validates project P against ownership and usage rules, then
// mints its offset amount for the account. A ledger-reported duplicate mint
// resolves as an idempotent no-op, not an error.
func (o *Oracle) SettleProject(ctx context.Context, address, projectID string) (*ProjectSettlement, error) {
	start := time.Now()
	span := o.tracer.StartSpan(ctx, "settle_project", map[string]string{
		"account": address, "project": projectID,
	})

	res, err := o.settleProject(ctx, address, projectID)
	o.tracer.EndSpan(span, err)
	observability.SettlementDuration.WithLabelValues("project").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.Settlements.WithLabelValues("project", "error").Inc()
		return nil, err
	}
	observability.Settlements.WithLabelValues("project", res.Status).Inc()
	return res, nil
}

func (o *Oracle) settleProject(ctx context.Context, address, projectID string) (*ProjectSettlement, error) {
	company, err := o.accounts.Lookup(ctx, address)
	if err != nil {
		return nil, err
	}

	project, err := o.projects.Lookup(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidProject) {
			return nil, o.validationError(ctx, domain.ErrInvalidProject, projectID, company.CompanyID)
		}
		return nil, err
	}

	if project.CompanyID != company.CompanyID {
		return nil, o.validationError(ctx, domain.ErrUnauthorizedProject, projectID, company.CompanyID)
	}
	if project.Used {
		return nil, o.validationError(ctx, domain.ErrProjectUsed, projectID, company.CompanyID)
	}

	delta := domain.SettlementDelta{
		Account:    address,
		Kind:       domain.DeltaCredit,
		Magnitude:  project.OffsetTons,
		Provenance: project.ID,
	}
	log.Printf("[oracle] project settlement %s company=%s", delta, company.CompanyID)

	result := &ProjectSettlement{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Account:     address,
		Company:     company.Name,
	}

	_, err = o.ledger.MintForProject(o.identity, address, project.OffsetTons, project.ID)
	switch {
	case errors.Is(err, domain.ErrProjectAlreadyUsed):
		// The ledger's used-set caught a race the registry missed. A retry
		// must not double-credit, so this resolves as success-no-op.
		log.Printf("[oracle] project %s already minted, treating as no-op", project.ID)
		result.Status = "already_used"
		result.Balance = o.ledger.BalanceOf(address)
		return result, nil
	case err != nil:
		return nil, err
	}

	result.Status = "minted"
	result.Credited = project.OffsetTons
	result.Balance = o.ledger.BalanceOf(address)

	// Best-effort: the ledger already prevents a re-mint, so a registry
	// failure here only needs manual repair, never a rollback.
	if err := o.projects.MarkUsed(ctx, project.ID); err != nil {
		observability.MarkUsedFailures.Inc()
		log.Printf("[oracle] WARN: mark project %s used failed, registry needs manual repair: %v", project.ID, err)
	}

	return result, nil
}

// validationError attaches the company's other available projects so the
// caller can self-correct.
func (o *Oracle) validationError(ctx context.Context, sentinel error, projectID, companyID string) error {
	verr := &domain.ProjectValidationError{Err: sentinel, ProjectID: projectID}
	available, err := o.projects.ListAvailable(ctx, companyID)
	if err != nil {
		log.Printf("[oracle] list available projects for %s: %v", companyID, err)
	} else {
		verr.Available = available
	}
	return verr
}

// ─── Period Settlement ──────────────────────────────────────────────────────

// PeriodAction is what the period settlement did to the ledger.
type PeriodAction string

const (
	ActionCredited PeriodAction = "Credited"
	ActionDebited  PeriodAction = "Debited"
	ActionNoChange PeriodAction = "NoChange"
)

// PeriodSettlement is the outcome of one company-year reconciliation.
type PeriodSettlement struct {
	Status      string       `json:"status"` // surplus, deficit or neutral
	Action      PeriodAction `json:"action"`
	Magnitude   uint64       `json:"magnitude"`
	Year        int          `json:"year"`
	Limit       uint64       `json:"limit"`
	Actual      uint64       `json:"actual"`
	DebtCleared uint64       `json:"debt_cleared,omitempty"`
	Balance     uint64       `json:"balance"`
	Debt        uint64       `json:"debt"`
}

// SettlePeriod reconciles a company's actual emission for a year against its
// limit. A surplus first clears any outstanding debt as an explicit,
// separately-logged step, then credits the remainder; a deficit increases
// debt. The two-step surplus form produces the same final state as a single
// debt-first credit — it exists for the audit trail.
func (o *Oracle) SettlePeriod(ctx context.Context, address string, year int) (*PeriodSettlement, error) {
	start := time.Now()
	span := o.tracer.StartSpan(ctx, "settle_period", map[string]string{
		"account": address, "year": fmt.Sprint(year),
	})

	res, err := o.settlePeriod(ctx, address, year)
	o.tracer.EndSpan(span, err)
	observability.SettlementDuration.WithLabelValues("period").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.Settlements.WithLabelValues("period", "error").Inc()
		return nil, err
	}
	observability.Settlements.WithLabelValues("period", res.Status).Inc()
	return res, nil
}

func (o *Oracle) settlePeriod(ctx context.Context, address string, year int) (*PeriodSettlement, error) {
	company, err := o.accounts.Lookup(ctx, address)
	if err != nil {
		return nil, err
	}

	rec, err := o.emissions.Lookup(ctx, address, year)
	if err != nil {
		return nil, err
	}

	limit := rec.Limit
	if limit == 0 {
		// Provider omitted the embedded limit, resolve from company type.
		limit, err = o.emissions.LimitFor(ctx, company.Type)
		if err != nil {
			return nil, err
		}
		rec.Limit = limit
	}

	delta := rec.Delta()
	provenance := domain.PeriodProvenance(company.CompanyID, year)

	result := &PeriodSettlement{
		Status: rec.Status(),
		Year:   year,
		Limit:  limit,
		Actual: rec.Actual,
	}

	switch {
	case delta > 0:
		// Clear prior debt as its own settlement step, logged distinctly.
		if debt := o.ledger.DebtOf(address); debt > 0 {
			clearance := domain.SettlementDelta{
				Account: address, Kind: domain.DeltaCredit,
				Magnitude: debt, Provenance: provenance + ":debt-clear",
			}
			log.Printf("[oracle] period settlement %s", clearance)
			if _, err := o.ledger.ApplyDelta(o.identity, address, int64(debt), clearance.Provenance); err != nil {
				return nil, err
			}
			result.DebtCleared = debt
		}

		credit := domain.SettlementDelta{
			Account: address, Kind: domain.DeltaCredit,
			Magnitude: uint64(delta), Provenance: provenance,
		}
		log.Printf("[oracle] period settlement %s", credit)
		if _, err := o.ledger.ApplyDelta(o.identity, address, delta, provenance); err != nil {
			return nil, err
		}
		result.Action = ActionCredited
		result.Magnitude = uint64(delta)

	case delta < 0:
		debit := domain.SettlementDelta{
			Account: address, Kind: domain.DeltaDebit,
			Magnitude: uint64(-delta), Provenance: provenance,
		}
		log.Printf("[oracle] period settlement %s", debit)
		if _, err := o.ledger.ApplyDelta(o.identity, address, delta, provenance); err != nil {
			return nil, err
		}
		result.Action = ActionDebited
		result.Magnitude = uint64(-delta)

	default:
		log.Printf("[oracle] period settlement no-op account=%s year=%d limit=%d actual=%d",
			address, year, limit, rec.Actual)
		result.Action = ActionNoChange
	}

	position := o.ledger.AccountStatus(address)
	result.Balance = position.Balance
	result.Debt = position.Debt
	return result, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// AvailableProjects lists the unused projects of the company behind address.
func (o *Oracle) AvailableProjects(ctx context.Context, address string) ([]domain.Project, error) {
	company, err := o.accounts.Lookup(ctx, address)
	if err != nil {
		return nil, err
	}
	return o.projects.ListAvailable(ctx, company.CompanyID)
}

// EmissionHistory returns all published emission records for the company
// behind address, with limits resolved where the provider omitted them.
func (o *Oracle) EmissionHistory(ctx context.Context, address string) ([]domain.EmissionRecord, error) {
	company, err := o.accounts.Lookup(ctx, address)
	if err != nil {
		return nil, err
	}

	records, err := o.emissions.History(ctx, address)
	if err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].Limit == 0 {
			limit, err := o.emissions.LimitFor(ctx, company.Type)
			if err != nil {
				return nil, err
			}
			records[i].Limit = limit
		}
	}
	return records, nil
}
