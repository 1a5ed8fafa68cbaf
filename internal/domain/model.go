// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"fmt"
	"time"
)

// ─── Account Types ──────────────────────────────────────────────────────────

// Account is a company's carbon position on the ledger.
// Balance and Debt are kept as separate unsigned quantities: a company can
// never show a negative balance, and debt is never folded into balance
// arithmetic directly.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"` // earned credits, whole tons CO2
	Debt    uint64 `json:"debt"`    // outstanding deficit magnitude, whole tons CO2
}

// CanTransfer reports whether the account may send credits.
// A company with any outstanding debt cannot transfer, regardless of balance.
func (a Account) CanTransfer() bool {
	return a.Debt == 0 && a.Balance > 0
}

// CompanyInfo is a registered company identity as resolved from the
// Account Registry.
type CompanyInfo struct {
	Address   string `json:"address"`
	CompanyID string `json:"companyId"`
	Type      string `json:"type"` // company type, determines the emission limit
	Name      string `json:"name"`
}

// ─── Project Types ──────────────────────────────────────────────────────────

// Project is a one-time-redeemable carbon offset project from the
// Project Registry. The Used flag is monotonic: false → true at most once.
type Project struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"companyId"`
	Name       string    `json:"projectName"`
	OffsetTons uint64    `json:"offsetTon"`
	Used       bool      `json:"used"`
	UsedAt     time.Time `json:"usedAt,omitzero"`
}

// ─── Emission Types ─────────────────────────────────────────────────────────

// EmissionRecord is the published actual emission for a company-year,
// paired with the limit derived from the company's type. Immutable once
// published; a later update with a newer LastUpdated supersedes it.
type EmissionRecord struct {
	CompanyID   string    `json:"companyId"`
	Year        int       `json:"year"`
	Actual      uint64    `json:"actual"` // tons CO2
	Limit       uint64    `json:"limit"`  // tons CO2, from company type
	LastUpdated time.Time `json:"lastUpdated"`
}

// Delta returns limit - actual: positive is a surplus, negative a deficit.
func (e EmissionRecord) Delta() int64 {
	return int64(e.Limit) - int64(e.Actual)
}

// Status classifies the record as "surplus", "deficit" or "neutral".
func (e EmissionRecord) Status() string {
	switch d := e.Delta(); {
	case d > 0:
		return "surplus"
	case d < 0:
		return "deficit"
	default:
		return "neutral"
	}
}

// ─── Settlement Types ───────────────────────────────────────────────────────

// DeltaKind is the direction of a settlement delta.
type DeltaKind string

const (
	DeltaCredit DeltaKind = "CREDIT"
	DeltaDebit  DeltaKind = "DEBIT"
)

// SettlementDelta is the computed result of one reconciliation pass.
// It is ephemeral — never persisted — but its literal value is logged
// before the ledger call for auditability.
type SettlementDelta struct {
	Account    string    `json:"account"`
	Kind       DeltaKind `json:"kind"`
	Magnitude  uint64    `json:"magnitude"`
	Provenance string    `json:"provenance"` // project id, or emission:<companyId>:<year>
}

// Signed returns the delta as a signed amount (credits positive).
func (d SettlementDelta) Signed() int64 {
	if d.Kind == DeltaDebit {
		return -int64(d.Magnitude)
	}
	return int64(d.Magnitude)
}

// String renders the delta for the audit log.
func (d SettlementDelta) String() string {
	return fmt.Sprintf("delta{account=%s kind=%s magnitude=%d provenance=%s}",
		d.Account, d.Kind, d.Magnitude, d.Provenance)
}

// PeriodProvenance builds the provenance tag for a period settlement.
func PeriodProvenance(companyID string, year int) string {
	return fmt.Sprintf("emission:%s:%d", companyID, year)
}

// ─── Ledger Event Types ─────────────────────────────────────────────────────

// EventKind is the business reason for a ledger state transition.
type EventKind string

const (
	EventCredit   EventKind = "CREDIT"
	EventDebit    EventKind = "DEBIT"
	EventMint     EventKind = "MINT"
	EventTransfer EventKind = "TRANSFER"
)

// LedgerEvent is the auditable record of a single ledger mutation.
// One event is emitted per state transition; transfers emit one event
// on the sender with the recipient in Counterparty.
type LedgerEvent struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Kind         EventKind `json:"kind"`
	Account      string    `json:"account"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       int64     `json:"amount"` // signed, credits positive
	OldBalance   uint64    `json:"old_balance"`
	OldDebt      uint64    `json:"old_debt"`
	NewBalance   uint64    `json:"new_balance"`
	NewDebt      uint64    `json:"new_debt"`
	Provenance   string    `json:"provenance,omitempty"`
}
