// Package ledger is the sole authority over carbon account balances and
// debts. Every mutating entrypoint is gated on the configured oracle
// identity, and the arithmetic maintains two invariants by construction:
// balance and debt are never negative, and a positive delta always offsets
// outstanding debt before adding to balance.
//
// The ledger keeps its own used-project set, independent of the external
// Project Registry, so a registry failure can never cause a double mint.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cct-network/carbond/internal/domain"
	"github.com/cct-network/carbond/internal/infra/observability"
)

// zeroAddress mirrors the chain convention for an unset recipient.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// Store persists ledger state transitions. Implementations must make
// SaveMutation all-or-nothing; the in-memory state is only published after
// the store accepts the transition.
type Store interface {
	SaveMutation(accounts []domain.Account, ev domain.LedgerEvent, usedProjectID string) error
	LoadAccounts() ([]domain.Account, error)
	LoadUsedProjects() (map[string]string, error)
}

// Ledger holds per-account balance and debt. Mutation is linearizable per
// account: calls touching the same account serialize on that account's lock,
// calls touching different accounts proceed in parallel.
type Ledger struct {
	oracle string
	store  Store // nil for memory-only operation
	now    func() time.Time

	mu       sync.Mutex // guards the accounts map itself
	accounts map[string]*accountState

	usedMu sync.Mutex
	used   map[string]string // project id → minting account
}

type accountState struct {
	mu sync.Mutex
	domain.Account
}

// New creates a ledger gated on the given oracle identity. If store is
// non-nil, previously persisted accounts and the used-project set are
// reloaded and every mutation is written through before it is published.
func New(oracleID string, store Store) (*Ledger, error) {
	if oracleID == "" {
		return nil, fmt.Errorf("oracle identity must not be empty")
	}

	l := &Ledger{
		oracle:   oracleID,
		store:    store,
		now:      time.Now,
		accounts: make(map[string]*accountState),
		used:     make(map[string]string),
	}

	if store != nil {
		accounts, err := store.LoadAccounts()
		if err != nil {
			return nil, fmt.Errorf("load accounts: %w", err)
		}
		for _, a := range accounts {
			l.accounts[a.Address] = &accountState{Account: a}
		}

		used, err := store.LoadUsedProjects()
		if err != nil {
			return nil, fmt.Errorf("load used projects: %w", err)
		}
		l.used = used
	}

	return l, nil
}

// state returns the live state for an address, creating it on first touch.
// Accounts are created implicitly and never deleted.
func (l *Ledger) state(address string) *accountState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.accounts[address]
	if !ok {
		st = &accountState{Account: domain.Account{Address: address}}
		l.accounts[address] = st
	}
	return st
}

func validAddress(address string) bool {
	return address != "" && address != zeroAddress
}

// ─── Mutating Entrypoints ───────────────────────────────────────────────────

// ApplyDelta applies a signed settlement amount to an account.
//
// A positive amount first offsets any outstanding debt, and only the
// remainder is added to balance, so a company can never show a positive
// balance while still owing a prior-period debt. A negative amount adds its
// magnitude to debt and leaves balance untouched.
func (l *Ledger) ApplyDelta(caller, account string, amount int64, provenance string) (domain.LedgerEvent, error) {
	if caller != l.oracle {
		observability.LedgerRejections.WithLabelValues("unauthorized").Inc()
		return domain.LedgerEvent{}, domain.ErrUnauthorized
	}
	if !validAddress(account) {
		observability.LedgerRejections.WithLabelValues("invalid_account").Inc()
		return domain.LedgerEvent{}, domain.ErrInvalidAccount
	}
	if amount == 0 {
		observability.LedgerRejections.WithLabelValues("empty_delta").Inc()
		return domain.LedgerEvent{}, domain.ErrEmptyDelta
	}

	st := l.state(account)
	st.mu.Lock()
	defer st.mu.Unlock()

	next := applyDelta(st.Account, amount)

	kind := domain.EventCredit
	if amount < 0 {
		kind = domain.EventDebit
	}
	ev := l.newEvent(kind, st.Account, next, amount, provenance)

	if err := l.persist([]domain.Account{next}, ev, ""); err != nil {
		return domain.LedgerEvent{}, err
	}
	st.Account = next

	observability.LedgerMutations.WithLabelValues(string(kind)).Inc()
	if amount > 0 {
		observability.CreditsMinted.Add(float64(amount))
	} else {
		observability.DebtRecorded.Add(float64(-amount))
	}
	return ev, nil
}

// MintForProject credits a project's offset amount exactly once per project
// id. A repeat mint for the same project fails with ErrProjectAlreadyUsed
// and leaves all state unchanged.
func (l *Ledger) MintForProject(caller, account string, amount uint64, projectID string) (domain.LedgerEvent, error) {
	if caller != l.oracle {
		observability.LedgerRejections.WithLabelValues("unauthorized").Inc()
		return domain.LedgerEvent{}, domain.ErrUnauthorized
	}
	if !validAddress(account) {
		observability.LedgerRejections.WithLabelValues("invalid_account").Inc()
		return domain.LedgerEvent{}, domain.ErrInvalidAccount
	}
	if amount == 0 {
		observability.LedgerRejections.WithLabelValues("empty_delta").Inc()
		return domain.LedgerEvent{}, domain.ErrEmptyDelta
	}
	if projectID == "" {
		observability.LedgerRejections.WithLabelValues("invalid_project").Inc()
		return domain.LedgerEvent{}, domain.ErrInvalidProject
	}

	st := l.state(account)
	st.mu.Lock()
	defer st.mu.Unlock()

	// The used-set check and the credit commit under the same critical
	// section: concurrent mints for one project yield exactly one success.
	l.usedMu.Lock()
	defer l.usedMu.Unlock()
	if _, dup := l.used[projectID]; dup {
		observability.LedgerRejections.WithLabelValues("project_already_used").Inc()
		return domain.LedgerEvent{}, domain.ErrProjectAlreadyUsed
	}

	next := applyDelta(st.Account, int64(amount))
	ev := l.newEvent(domain.EventMint, st.Account, next, int64(amount), projectID)

	if err := l.persist([]domain.Account{next}, ev, projectID); err != nil {
		return domain.LedgerEvent{}, err
	}
	l.used[projectID] = account
	st.Account = next

	observability.LedgerMutations.WithLabelValues(string(domain.EventMint)).Inc()
	observability.CreditsMinted.Add(float64(amount))
	return ev, nil
}

// Transfer moves credits between accounts. The sender must carry no debt and
// hold at least amount; both conditions are re-checked under the locks.
func (l *Ledger) Transfer(sender, recipient string, amount uint64) (domain.LedgerEvent, error) {
	if !validAddress(sender) || !validAddress(recipient) || sender == recipient {
		return domain.LedgerEvent{}, domain.ErrInvalidAccount
	}
	if amount == 0 {
		return domain.LedgerEvent{}, domain.ErrEmptyDelta
	}

	from, to := l.state(sender), l.state(recipient)
	lockPair(from, to)
	defer unlockPair(from, to)

	if from.Debt > 0 {
		observability.LedgerRejections.WithLabelValues("debt_outstanding").Inc()
		return domain.LedgerEvent{}, domain.ErrDebtOutstanding
	}
	if amount > from.Balance {
		observability.LedgerRejections.WithLabelValues("insufficient_balance").Inc()
		return domain.LedgerEvent{}, domain.ErrInsufficientBalance
	}

	nextFrom, nextTo := from.Account, to.Account
	nextFrom.Balance -= amount
	nextTo.Balance += amount

	ev := l.newEvent(domain.EventTransfer, from.Account, nextFrom, -int64(amount), "")
	ev.Counterparty = recipient

	if err := l.persist([]domain.Account{nextFrom, nextTo}, ev, ""); err != nil {
		return domain.LedgerEvent{}, err
	}
	from.Account = nextFrom
	to.Account = nextTo

	observability.LedgerMutations.WithLabelValues(string(domain.EventTransfer)).Inc()
	return ev, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// AccountStatus returns a snapshot of an account's position. Unknown
// accounts read as zero without being created.
func (l *Ledger) AccountStatus(address string) domain.Account {
	l.mu.Lock()
	st, ok := l.accounts[address]
	l.mu.Unlock()
	if !ok {
		return domain.Account{Address: address}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.Account
}

// BalanceOf returns the account's credit balance.
func (l *Ledger) BalanceOf(address string) uint64 { return l.AccountStatus(address).Balance }

// DebtOf returns the account's outstanding debt.
func (l *Ledger) DebtOf(address string) uint64 { return l.AccountStatus(address).Debt }

// CanTransfer reports whether the account may send credits.
func (l *Ledger) CanTransfer(address string) bool { return l.AccountStatus(address).CanTransfer() }

// IsProjectUsed reports whether the ledger has recorded a mint for the project.
func (l *Ledger) IsProjectUsed(projectID string) bool {
	l.usedMu.Lock()
	defer l.usedMu.Unlock()
	_, ok := l.used[projectID]
	return ok
}

// ─── Internals ──────────────────────────────────────────────────────────────

// applyDelta computes the debt-first state transition. Non-negativity holds
// by construction: the offset never exceeds either the debt or the credit.
func applyDelta(a domain.Account, amount int64) domain.Account {
	if amount < 0 {
		a.Debt += uint64(-amount)
		return a
	}
	credit := uint64(amount)
	offset := min(credit, a.Debt)
	a.Debt -= offset
	a.Balance += credit - offset
	return a
}

func (l *Ledger) newEvent(kind domain.EventKind, old, next domain.Account, amount int64, provenance string) domain.LedgerEvent {
	return domain.LedgerEvent{
		ID:         uuid.NewString(),
		Timestamp:  l.now().UTC(),
		Kind:       kind,
		Account:    old.Address,
		Amount:     amount,
		OldBalance: old.Balance,
		OldDebt:    old.Debt,
		NewBalance: next.Balance,
		NewDebt:    next.Debt,
		Provenance: provenance,
	}
}

func (l *Ledger) persist(accounts []domain.Account, ev domain.LedgerEvent, usedProjectID string) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SaveMutation(accounts, ev, usedProjectID); err != nil {
		return fmt.Errorf("persist ledger mutation: %w", err)
	}
	return nil
}

// lockPair acquires two account locks in a stable order to avoid deadlock.
func lockPair(a, b *accountState) {
	states := []*accountState{a, b}
	sort.Slice(states, func(i, j int) bool { return states[i].Address < states[j].Address })
	states[0].mu.Lock()
	states[1].mu.Lock()
}

func unlockPair(a, b *accountState) {
	a.mu.Unlock()
	b.mu.Unlock()
}
