package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/cct-network/carbond/internal/domain"
	"github.com/cct-network/carbond/internal/infra/sqlite"
)

const (
	oracle = "oracle-1"
	acct   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	acct2  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(oracle, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func mustApply(t *testing.T, l *Ledger, amount int64) domain.LedgerEvent {
	t.Helper()
	ev, err := l.ApplyDelta(oracle, acct, amount, "test")
	if err != nil {
		t.Fatalf("ApplyDelta(%d): %v", amount, err)
	}
	return ev
}

func assertPosition(t *testing.T, l *Ledger, address string, balance, debt uint64) {
	t.Helper()
	if got := l.BalanceOf(address); got != balance {
		t.Errorf("BalanceOf(%s) = %d, want %d", address, got, balance)
	}
	if got := l.DebtOf(address); got != debt {
		t.Errorf("DebtOf(%s) = %d, want %d", address, got, debt)
	}
}

// ─── Delta Arithmetic ───────────────────────────────────────────────────────

func TestApplyDeltaSequence(t *testing.T) {
	l := newTestLedger(t)

	mustApply(t, l, 100)
	assertPosition(t, l, acct, 100, 0)

	mustApply(t, l, -30)
	assertPosition(t, l, acct, 100, 30)

	// Credit offsets debt before touching balance.
	mustApply(t, l, 10)
	assertPosition(t, l, acct, 100, 20)
}

func TestApplyDeltaDebtFirstOffset(t *testing.T) {
	tests := []struct {
		name              string
		debt              uint64
		credit            int64
		wantBal, wantDebt uint64
	}{
		{"credit smaller than debt", 50, 20, 0, 30},
		{"credit equals debt", 50, 50, 0, 0},
		{"credit exceeds debt", 50, 80, 30, 0},
		{"no debt", 0, 40, 40, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t)
			if tt.debt > 0 {
				mustApply(t, l, -int64(tt.debt))
			}
			mustApply(t, l, tt.credit)
			assertPosition(t, l, acct, tt.wantBal, tt.wantDebt)
		})
	}
}

func TestApplyDeltaEventFields(t *testing.T) {
	l := newTestLedger(t)
	mustApply(t, l, -30)

	ev := mustApply(t, l, 10)
	if ev.Kind != domain.EventCredit {
		t.Errorf("event kind = %s, want CREDIT", ev.Kind)
	}
	if ev.OldDebt != 30 || ev.NewDebt != 20 || ev.OldBalance != 0 || ev.NewBalance != 0 {
		t.Errorf("event state transition wrong: %+v", ev)
	}
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Errorf("event missing id or timestamp: %+v", ev)
	}
}

func TestApplyDeltaValidation(t *testing.T) {
	l := newTestLedger(t)

	tests := []struct {
		name    string
		caller  string
		account string
		amount  int64
		wantErr error
	}{
		{"non-oracle caller", "intruder", acct, 10, domain.ErrUnauthorized},
		{"empty account", oracle, "", 10, domain.ErrInvalidAccount},
		{"zero address", oracle, "0x0000000000000000000000000000000000000000", 10, domain.ErrInvalidAccount},
		{"zero amount", oracle, acct, 0, domain.ErrEmptyDelta},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.ApplyDelta(tt.caller, tt.account, tt.amount, ""); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Rejected calls leave all state unchanged.
	assertPosition(t, l, acct, 0, 0)
}

// ─── Project Mints ──────────────────────────────────────────────────────────

func TestMintForProject(t *testing.T) {
	l := newTestLedger(t)

	ev, err := l.MintForProject(oracle, acct, 50, "proj1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if ev.Kind != domain.EventMint || ev.Provenance != "proj1" {
		t.Errorf("event = %+v", ev)
	}
	assertPosition(t, l, acct, 50, 0)
	if !l.IsProjectUsed("proj1") {
		t.Error("proj1 should be recorded as used")
	}

	// Repeat mint is rejected and changes nothing.
	if _, err := l.MintForProject(oracle, acct, 50, "proj1"); !errors.Is(err, domain.ErrProjectAlreadyUsed) {
		t.Errorf("repeat mint err = %v, want ErrProjectAlreadyUsed", err)
	}
	assertPosition(t, l, acct, 50, 0)
}

func TestMintForProjectOffsetsDebt(t *testing.T) {
	l := newTestLedger(t)
	mustApply(t, l, -20)

	if _, err := l.MintForProject(oracle, acct, 50, "proj1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	assertPosition(t, l, acct, 30, 0)
}

func TestMintForProjectValidation(t *testing.T) {
	l := newTestLedger(t)

	if _, err := l.MintForProject("intruder", acct, 50, "proj1"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := l.MintForProject(oracle, acct, 0, "proj1"); !errors.Is(err, domain.ErrEmptyDelta) {
		t.Errorf("err = %v, want ErrEmptyDelta", err)
	}
	if _, err := l.MintForProject(oracle, acct, 50, ""); !errors.Is(err, domain.ErrInvalidProject) {
		t.Errorf("err = %v, want ErrInvalidProject", err)
	}
	if l.IsProjectUsed("proj1") {
		t.Error("rejected mint must not reserve the project")
	}
}

func TestConcurrentMintExactlyOnce(t *testing.T) {
	l := newTestLedger(t)

	const attempts = 32
	var wg sync.WaitGroup
	var successes, dups int
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.MintForProject(oracle, acct, 50, "proj1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrProjectAlreadyUsed):
				dups++
			default:
				t.Errorf("unexpected mint error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || dups != attempts-1 {
		t.Errorf("successes = %d, dups = %d, want 1 and %d", successes, dups, attempts-1)
	}
	assertPosition(t, l, acct, 50, 0)
}

// ─── Transfers ──────────────────────────────────────────────────────────────

func TestTransferGate(t *testing.T) {
	l := newTestLedger(t)

	// debt=20, balance=5
	mustApply(t, l, -20)
	mustApply(t, l, 25)
	assertPosition(t, l, acct, 5, 0)
	mustApply(t, l, -20)

	if _, err := l.Transfer(acct, acct2, 3); !errors.Is(err, domain.ErrDebtOutstanding) {
		t.Fatalf("transfer with debt err = %v, want ErrDebtOutstanding", err)
	}
	assertPosition(t, l, acct, 5, 20)
	assertPosition(t, l, acct2, 0, 0)

	// Clearing the debt unlocks the transfer.
	mustApply(t, l, 20)
	ev, err := l.Transfer(acct, acct2, 3)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ev.Counterparty != acct2 || ev.Amount != -3 {
		t.Errorf("transfer event = %+v", ev)
	}
	assertPosition(t, l, acct, 2, 0)
	assertPosition(t, l, acct2, 3, 0)
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := newTestLedger(t)
	mustApply(t, l, 10)

	if _, err := l.Transfer(acct, acct2, 11); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
	assertPosition(t, l, acct, 10, 0)
	assertPosition(t, l, acct2, 0, 0)
}

func TestTransferValidation(t *testing.T) {
	l := newTestLedger(t)
	mustApply(t, l, 10)

	if _, err := l.Transfer(acct, acct, 1); !errors.Is(err, domain.ErrInvalidAccount) {
		t.Errorf("self transfer err = %v, want ErrInvalidAccount", err)
	}
	if _, err := l.Transfer(acct, "", 1); !errors.Is(err, domain.ErrInvalidAccount) {
		t.Errorf("empty recipient err = %v, want ErrInvalidAccount", err)
	}
	if _, err := l.Transfer(acct, acct2, 0); !errors.Is(err, domain.ErrEmptyDelta) {
		t.Errorf("zero amount err = %v, want ErrEmptyDelta", err)
	}
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	l := newTestLedger(t)
	mustApply(t, l, 1000)
	if _, err := l.ApplyDelta(oracle, acct2, 1000, "test"); err != nil {
		t.Fatalf("seed acct2: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Transfer(acct, acct2, 1)
		}()
		go func() {
			defer wg.Done()
			l.Transfer(acct2, acct, 1)
		}()
	}
	wg.Wait()

	total := l.BalanceOf(acct) + l.BalanceOf(acct2)
	if total != 2000 {
		t.Errorf("total after concurrent transfers = %d, want 2000", total)
	}
}

// ─── Persistence ────────────────────────────────────────────────────────────

func TestLedgerRecoversFromStore(t *testing.T) {
	dir := t.TempDir()

	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	l, err := New(oracle, db)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if _, err := l.MintForProject(oracle, acct, 50, "proj1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := l.ApplyDelta(oracle, acct, -30, "emission:comp1:2025"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	db.Close()

	db2, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer db2.Close()

	l2, err := New(oracle, db2)
	if err != nil {
		t.Fatalf("recover ledger: %v", err)
	}
	assertPosition(t, l2, acct, 50, 30)
	if !l2.IsProjectUsed("proj1") {
		t.Error("used-project set not recovered")
	}
	if _, err := l2.MintForProject(oracle, acct, 50, "proj1"); !errors.Is(err, domain.ErrProjectAlreadyUsed) {
		t.Errorf("recovered ledger re-mint err = %v, want ErrProjectAlreadyUsed", err)
	}
}
