package engine

import (
	"sync"

	"atm-app/models"
)

// entry pairs an account with its own mutex so mutations on one account never
// block another. The map itself is guarded separately.
type entry struct {
	mu   sync.Mutex
	acct models.Account
}

// Ledger is the in-memory authoritative collection of accounts. All balance
// changes pass through Update / UpdatePair, which hold the per-account lock
// for the whole operation so no partial update is ever observable.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*entry)}
}

// Restore replaces the ledger contents, used once at startup from the
// persistence adapter.
func (l *Ledger) Restore(accounts []models.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*entry, len(accounts))
	for _, a := range accounts {
		l.entries[a.ID] = &entry{acct: a}
	}
}

// Insert provisions a new account. Fails with ErrDuplicate if the id exists.
func (l *Ledger) Insert(a models.Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[a.ID]; ok {
		return ErrDuplicate
	}
	l.entries[a.ID] = &entry{acct: a}
	return nil
}

// Remove drops an account, used only to roll back a provisioning whose
// storage write failed.
func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// Lookup returns a copy of the account so callers cannot mutate ledger state.
func (l *Ledger) Lookup(id string) (models.Account, error) {
	l.mu.RLock()
	e, ok := l.entries[id]
	l.mu.RUnlock()
	if !ok {
		return models.Account{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

// List returns copies of every account.
func (l *Ledger) List() []models.Account {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]models.Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.acct)
		e.mu.Unlock()
	}
	return out
}

// Len reports the number of accounts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Update runs fn with the account locked. fn receives the authoritative
// account; the engine mutates a copy and writes it back only after the
// persistence adapter accepts the commit.
func (l *Ledger) Update(id string, fn func(a *models.Account) error) error {
	l.mu.RLock()
	e, ok := l.entries[id]
	l.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.acct)
}

// UpdatePair locks two accounts in lexicographic id order (so concurrent
// transfers cannot deadlock) and runs fn with both held.
func (l *Ledger) UpdatePair(id1, id2 string, fn func(a, b *models.Account) error) error {
	l.mu.RLock()
	e1, ok1 := l.entries[id1]
	e2, ok2 := l.entries[id2]
	l.mu.RUnlock()
	if !ok1 || !ok2 {
		return ErrNotFound
	}
	first, second := e1, e2
	if id2 < id1 {
		first, second = e2, e1
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()
	return fn(&e1.acct, &e2.acct)
}
