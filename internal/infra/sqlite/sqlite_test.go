package sqlite

import (
	"testing"
	"time"

	"github.com/cct-network/carbond/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveMutationRoundTrip(t *testing.T) {
	db := openTestDB(t)

	ev := domain.LedgerEvent{
		ID:         "ev1",
		Timestamp:  time.Now().UTC(),
		Kind:       domain.EventMint,
		Account:    "0xabc",
		Amount:     50,
		NewBalance: 50,
		Provenance: "proj1",
	}
	acct := domain.Account{Address: "0xabc", Balance: 50}

	if err := db.SaveMutation([]domain.Account{acct}, ev, "proj1"); err != nil {
		t.Fatalf("save mutation: %v", err)
	}

	accounts, err := db.LoadAccounts()
	if err != nil {
		t.Fatalf("load accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Balance != 50 {
		t.Errorf("accounts = %+v, want one with balance 50", accounts)
	}

	used, err := db.LoadUsedProjects()
	if err != nil {
		t.Fatalf("load used projects: %v", err)
	}
	if used["proj1"] != "0xabc" {
		t.Errorf("used projects = %v, want proj1 → 0xabc", used)
	}

	events, err := db.EventsForAccount("0xabc", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != domain.EventMint || events[0].Provenance != "proj1" {
		t.Errorf("events = %+v", events)
	}
}

func TestSaveMutationUpsertsAccount(t *testing.T) {
	db := openTestDB(t)

	base := domain.LedgerEvent{Timestamp: time.Now().UTC(), Kind: domain.EventCredit, Account: "0xabc"}

	ev1 := base
	ev1.ID = "ev1"
	if err := db.SaveMutation([]domain.Account{{Address: "0xabc", Balance: 100}}, ev1, ""); err != nil {
		t.Fatalf("first mutation: %v", err)
	}

	ev2 := base
	ev2.ID = "ev2"
	if err := db.SaveMutation([]domain.Account{{Address: "0xabc", Balance: 100, Debt: 30}}, ev2, ""); err != nil {
		t.Fatalf("second mutation: %v", err)
	}

	accounts, _ := db.LoadAccounts()
	if len(accounts) != 1 {
		t.Fatalf("expected single account row, got %d", len(accounts))
	}
	if accounts[0].Balance != 100 || accounts[0].Debt != 30 {
		t.Errorf("account = %+v, want balance=100 debt=30", accounts[0])
	}

	n, err := db.EventCount()
	if err != nil {
		t.Fatalf("event count: %v", err)
	}
	if n != 2 {
		t.Errorf("event count = %d, want 2", n)
	}
}

func TestDuplicateUsedProjectRejected(t *testing.T) {
	db := openTestDB(t)

	ev := domain.LedgerEvent{ID: "ev1", Timestamp: time.Now().UTC(), Kind: domain.EventMint, Account: "0xabc"}
	if err := db.SaveMutation(nil, ev, "proj1"); err != nil {
		t.Fatalf("first mint: %v", err)
	}

	ev2 := ev
	ev2.ID = "ev2"
	if err := db.SaveMutation(nil, ev2, "proj1"); err == nil {
		t.Error("expected primary-key violation on duplicate used project")
	}

	// The failed transaction must not leave a partial event behind.
	n, _ := db.EventCount()
	if n != 1 {
		t.Errorf("event count after failed tx = %d, want 1", n)
	}
}
