package domain

import (
	"errors"
	"testing"
)

func TestAccountCanTransfer(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		want    bool
	}{
		{"clean account with balance", Account{Balance: 50}, true},
		{"zero balance", Account{}, false},
		{"debt blocks transfer", Account{Balance: 50, Debt: 1}, false},
		{"debt with zero balance", Account{Debt: 20}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.CanTransfer(); got != tt.want {
				t.Errorf("CanTransfer() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmissionRecordDelta(t *testing.T) {
	tests := []struct {
		limit, actual uint64
		delta         int64
		status        string
	}{
		{100, 80, 20, "surplus"},
		{100, 160, -60, "deficit"},
		{150, 150, 0, "neutral"},
	}

	for _, tt := range tests {
		rec := EmissionRecord{Limit: tt.limit, Actual: tt.actual}
		if got := rec.Delta(); got != tt.delta {
			t.Errorf("Delta(%d, %d) = %d, want %d", tt.limit, tt.actual, got, tt.delta)
		}
		if got := rec.Status(); got != tt.status {
			t.Errorf("Status(%d, %d) = %q, want %q", tt.limit, tt.actual, got, tt.status)
		}
	}
}

func TestSettlementDeltaSigned(t *testing.T) {
	credit := SettlementDelta{Kind: DeltaCredit, Magnitude: 50}
	if credit.Signed() != 50 {
		t.Errorf("credit Signed() = %d, want 50", credit.Signed())
	}
	debit := SettlementDelta{Kind: DeltaDebit, Magnitude: 60}
	if debit.Signed() != -60 {
		t.Errorf("debit Signed() = %d, want -60", debit.Signed())
	}
}

func TestPeriodProvenance(t *testing.T) {
	if got := PeriodProvenance("comp1", 2024); got != "emission:comp1:2024" {
		t.Errorf("PeriodProvenance = %q", got)
	}
}

func TestProjectValidationErrorUnwrap(t *testing.T) {
	verr := &ProjectValidationError{
		Err:       ErrUnauthorizedProject,
		ProjectID: "proj5",
		Available: []Project{{ID: "proj1"}},
	}
	if !errors.Is(verr, ErrUnauthorizedProject) {
		t.Error("expected errors.Is to match ErrUnauthorizedProject")
	}
	var target *ProjectValidationError
	if !errors.As(error(verr), &target) {
		t.Fatal("expected errors.As to match")
	}
	if len(target.Available) != 1 || target.Available[0].ID != "proj1" {
		t.Errorf("available projects not carried: %+v", target.Available)
	}
}
