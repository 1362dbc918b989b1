// Package storage defines the persistence adapter boundary: a keyed
// collection of account records plus an append-only transaction log. Writes
// are synchronous; an operation only reports success after its commit
// returned nil.
package storage

import "atm-app/models"

// Store is the persistence adapter contract.
type Store interface {
	// LoadLedger reads every persisted account at startup.
	LoadLedger() ([]models.Account, error)

	// SaveAccount persists one account record (provisioning, unlock, close).
	SaveAccount(a models.Account) error

	// Commit durably saves the mutated accounts and appends the transaction
	// record as one unit. The engine installs the in-memory change only
	// after Commit returns nil.
	Commit(tx models.Transaction, accounts ...models.Account) error

	// Append adds one record to the transaction log without touching any
	// account (rejected attempts, inquiries, login audit).
	Append(tx models.Transaction) error

	// Transactions returns the log in append order, filtered to one account
	// when accountID is non-empty.
	Transactions(accountID string) ([]models.Transaction, error)

	// Close releases file handles or connections.
	Close() error
}
