// Package registry provides read adapters for the three external carbon
// registries (account, emission, project) plus the single best-effort
// mutating call that marks a project used.
//
// The upstream provider speaks loose JSON with optional fields; every
// response here is mapped to an explicit domain result or a sentinel error
// so that each failure path stays exhaustive and testable. HTTP 404 maps to
// the matching not-found error, everything transport-level to
// ErrRegistryUnavailable (transient, safe to retry — no mutation occurred).
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cct-network/carbond/internal/domain"
	"github.com/cct-network/carbond/internal/infra/observability"
)

// Client is the shared transport to the registry provider API. The three
// registry views (Accounts, Emissions, Projects) satisfy the corresponding
// domain interfaces.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a registry client for the provider at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Accounts returns the account-registry view.
func (c *Client) Accounts() domain.AccountRegistry { return &AccountClient{c} }

// Emissions returns the emission-registry view.
func (c *Client) Emissions() domain.EmissionRegistry { return &EmissionClient{c} }

// Projects returns the project-registry view.
func (c *Client) Projects() domain.ProjectRegistry { return &ProjectClient{c} }

// AccountClient implements domain.AccountRegistry.
type AccountClient struct{ c *Client }

// EmissionClient implements domain.EmissionRegistry.
type EmissionClient struct{ c *Client }

// ProjectClient implements domain.ProjectRegistry.
type ProjectClient struct{ c *Client }

// ─── Wire Types ─────────────────────────────────────────────────────────────

type walletResponse struct {
	Address   string `json:"address"`
	CompanyID string `json:"companyId"`
	Type      string `json:"type"`
	Name      string `json:"name"`
}

type emissionResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Company struct {
			CompanyID string `json:"companyId"`
		} `json:"company"`
		Emission emissionEntry   `json:"emission"`
		History  []emissionEntry `json:"emissionHistory"`
	} `json:"data"`
}

type emissionEntry struct {
	Year        int    `json:"year"`
	Limit       uint64 `json:"limit"`
	Actual      uint64 `json:"actual"`
	LastUpdated string `json:"lastUpdated"`
}

type projectResponse struct {
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	Name       string `json:"projectName"`
	OffsetTons uint64 `json:"offsetTon"`
	Used       bool   `json:"used"`
	UsedAt     string `json:"usedAt"`
}

type limitResponse struct {
	Type  string `json:"type"`
	Limit uint64 `json:"limit"`
}

// ─── Account Registry ───────────────────────────────────────────────────────

// Lookup resolves a wallet address to its registered company.
func (a *AccountClient) Lookup(ctx context.Context, address string) (domain.CompanyInfo, error) {
	c := a.c
	var w walletResponse
	err := c.get(ctx, "account", "/api/wallet/"+url.PathEscape(address), domain.ErrInvalidWallet, &w)
	if err != nil {
		return domain.CompanyInfo{}, err
	}
	return domain.CompanyInfo{
		Address:   w.Address,
		CompanyID: w.CompanyID,
		Type:      w.Type,
		Name:      w.Name,
	}, nil
}

// ─── Emission Registry ──────────────────────────────────────────────────────

// Lookup resolves the emission record for a company-year.
func (e *EmissionClient) Lookup(ctx context.Context, address string, year int) (domain.EmissionRecord, error) {
	c := e.c
	var resp emissionResponse
	path := fmt.Sprintf("/api/emissions/%s/%d", url.PathEscape(address), year)
	if err := c.get(ctx, "emission", path, domain.ErrNoEmissionData, &resp); err != nil {
		return domain.EmissionRecord{}, err
	}
	return toRecord(resp.Data.Company.CompanyID, resp.Data.Emission), nil
}

// History returns all published emission records for a company.
func (e *EmissionClient) History(ctx context.Context, address string) ([]domain.EmissionRecord, error) {
	c := e.c
	var resp emissionResponse
	path := "/api/emissions/" + url.PathEscape(address)
	if err := c.get(ctx, "emission", path, domain.ErrInvalidWallet, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.EmissionRecord, 0, len(resp.Data.History))
	for _, e := range resp.Data.History {
		out = append(out, toRecord(resp.Data.Company.CompanyID, e))
	}
	return out, nil
}

// LimitFor returns the annual emission limit for a company type.
func (e *EmissionClient) LimitFor(ctx context.Context, companyType string) (uint64, error) {
	c := e.c
	var resp limitResponse
	path := "/api/emission-limits/" + url.PathEscape(companyType)
	if err := c.get(ctx, "emission", path, domain.ErrNoEmissionData, &resp); err != nil {
		return 0, err
	}
	return resp.Limit, nil
}

func toRecord(companyID string, e emissionEntry) domain.EmissionRecord {
	rec := domain.EmissionRecord{
		CompanyID: companyID,
		Year:      e.Year,
		Actual:    e.Actual,
		Limit:     e.Limit,
	}
	rec.LastUpdated = parseProviderTime(e.LastUpdated)
	return rec
}

// ─── Project Registry ───────────────────────────────────────────────────────

// Lookup resolves a project by id.
func (p *ProjectClient) Lookup(ctx context.Context, projectID string) (domain.Project, error) {
	c := p.c
	var list []projectResponse
	path := "/api/carbon-offset-projects?projectId=" + url.QueryEscape(projectID)
	if err := c.get(ctx, "project", path, domain.ErrInvalidProject, &list); err != nil {
		return domain.Project{}, err
	}
	if len(list) == 0 {
		return domain.Project{}, domain.ErrInvalidProject
	}
	return toProject(list[0]), nil
}

// ListAvailable returns a company's unused projects.
func (p *ProjectClient) ListAvailable(ctx context.Context, companyID string) ([]domain.Project, error) {
	c := p.c
	var list []projectResponse
	path := "/api/carbon-offset-projects?available=true&companyId=" + url.QueryEscape(companyID)
	if err := c.get(ctx, "project", path, domain.ErrInvalidProject, &list); err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(list))
	for _, pr := range list {
		out = append(out, toProject(pr))
	}
	return out, nil
}

// MarkUsed flips a project's used flag in the external registry. The caller
// treats failures as best-effort; the ledger's used-set stays authoritative.
func (p *ProjectClient) MarkUsed(ctx context.Context, projectID string) error {
	c := p.c
	path := "/api/carbon-offset-projects/" + url.PathEscape(projectID) + "/use"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.RegistryRequests.WithLabelValues("project", "error").Inc()
		return fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		observability.RegistryRequests.WithLabelValues("project", "not_found").Inc()
		return domain.ErrInvalidProject
	case resp.StatusCode >= 300:
		observability.RegistryRequests.WithLabelValues("project", "error").Inc()
		return fmt.Errorf("%w: mark used returned %d", domain.ErrRegistryUnavailable, resp.StatusCode)
	}
	observability.RegistryRequests.WithLabelValues("project", "ok").Inc()
	return nil
}

func toProject(p projectResponse) domain.Project {
	return domain.Project{
		ID:         p.ID,
		CompanyID:  p.CompanyID,
		Name:       p.Name,
		OffsetTons: p.OffsetTons,
		Used:       p.Used,
		UsedAt:     parseProviderTime(p.UsedAt),
	}
}

// ─── Internals ──────────────────────────────────────────────────────────────

// get performs a GET and decodes the body. HTTP 404 maps to notFound, any
// transport or server failure to ErrRegistryUnavailable.
func (c *Client) get(ctx context.Context, registry, path string, notFound error, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.RegistryRequests.WithLabelValues(registry, "error").Inc()
		return fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		observability.RegistryRequests.WithLabelValues(registry, "not_found").Inc()
		return notFound
	case resp.StatusCode >= 300:
		observability.RegistryRequests.WithLabelValues(registry, "error").Inc()
		return fmt.Errorf("%w: %s returned %d", domain.ErrRegistryUnavailable, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		observability.RegistryRequests.WithLabelValues(registry, "error").Inc()
		return fmt.Errorf("%w: decode %s: %v", domain.ErrRegistryUnavailable, path, err)
	}
	observability.RegistryRequests.WithLabelValues(registry, "ok").Inc()
	return nil
}

// parseProviderTime accepts the provider's mixed timestamp formats
// (RFC3339 or bare dates); anything else reads as zero.
func parseProviderTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
