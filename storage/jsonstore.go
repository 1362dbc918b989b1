package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"atm-app/models"
)

const (
	accountsFile = "accounts.json"
	logFile      = "transactions.log"
)

// meta travels with every snapshot so the format can be migrated later.
type meta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// persistAccount is the serialized form of an account. The PIN hash is kept
// out of models.Account's JSON so it can never leak through an API response;
// here it must be stored.
type persistAccount struct {
	ID              string    `json:"id"`
	PINHash         []byte    `json:"pin_hash"`
	Balance         int64     `json:"balance"`
	DailyWithdrawn  int64     `json:"daily_withdrawn"`
	LastWithdrawDay string    `json:"last_withdraw_day,omitempty"`
	DailyLimit      int64     `json:"daily_limit"`
	PerTxnLimit     int64     `json:"per_txn_limit"`
	Locked          bool      `json:"locked"`
	Closed          bool      `json:"closed"`
	FailedAttempts  int       `json:"failed_attempts"`
	CreatedAt       time.Time `json:"created_at"`
}

type snapshot struct {
	Meta     meta                      `json:"_meta"`
	Accounts map[string]persistAccount `json:"accounts"`
}

// JSONStore persists the ledger as a JSON snapshot plus an append-only
// JSON-lines transaction log. The snapshot is written atomically: a .tmp
// file is written first and then renamed over the live file, so a crash
// mid-write never corrupts the previous state.
type JSONStore struct {
	mu       sync.Mutex
	dir      string
	accounts map[string]persistAccount
	logf     *os.File
}

// OpenJSON opens (or initializes) a data directory.
func OpenJSON(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &JSONStore{dir: dir, accounts: make(map[string]persistAccount)}

	path := filepath.Join(dir, accountsFile)
	if f, err := os.Open(path); err == nil {
		var snap snapshot
		err = json.NewDecoder(f).Decode(&snap)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", accountsFile, err)
		}
		if snap.Accounts != nil {
			s.accounts = snap.Accounts
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	logf, err := os.OpenFile(filepath.Join(dir, logFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s.logf = logf
	return s, nil
}

func toPersist(a models.Account) persistAccount {
	return persistAccount{
		ID:              a.ID,
		PINHash:         a.PINHash,
		Balance:         a.Balance,
		DailyWithdrawn:  a.DailyWithdrawn,
		LastWithdrawDay: a.LastWithdrawDay,
		DailyLimit:      a.DailyLimit,
		PerTxnLimit:     a.PerTxnLimit,
		Locked:          a.Locked,
		Closed:          a.Closed,
		FailedAttempts:  a.FailedAttempts,
		CreatedAt:       a.CreatedAt,
	}
}

func fromPersist(p persistAccount) models.Account {
	return models.Account{
		ID:              p.ID,
		PINHash:         p.PINHash,
		Balance:         p.Balance,
		DailyWithdrawn:  p.DailyWithdrawn,
		LastWithdrawDay: p.LastWithdrawDay,
		DailyLimit:      p.DailyLimit,
		PerTxnLimit:     p.PerTxnLimit,
		Locked:          p.Locked,
		Closed:          p.Closed,
		FailedAttempts:  p.FailedAttempts,
		CreatedAt:       p.CreatedAt,
	}
}

// LoadLedger returns every persisted account.
func (s *JSONStore) LoadLedger() ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Account, 0, len(s.accounts))
	for _, p := range s.accounts {
		out = append(out, fromPersist(p))
	}
	return out, nil
}

// writeSnapshot must be called with s.mu held.
func (s *JSONStore) writeSnapshot() error {
	path := filepath.Join(s.dir, accountsFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	snap := snapshot{
		Meta:     meta{Storage: "json_snapshot", Version: 1, Timestamp: time.Now()},
		Accounts: s.accounts,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// appendLine must be called with s.mu held.
func (s *JSONStore) appendLine(tx models.Transaction) error {
	b, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = s.logf.Write(append(b, '\n'))
	return err
}

// SaveAccount persists one account record.
func (s *JSONStore) SaveAccount(a models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = toPersist(a)
	return s.writeSnapshot()
}

// Commit saves the mutated accounts and appends the transaction record. The
// snapshot is written first; if the log append then fails the caller reports
// failure and keeps its in-memory state, which the next successful commit
// re-synchronizes.
func (s *JSONStore) Commit(tx models.Transaction, accounts ...models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.accounts[a.ID] = toPersist(a)
	}
	if err := s.writeSnapshot(); err != nil {
		return err
	}
	return s.appendLine(tx)
}

// Append adds one audit record without touching accounts.
func (s *JSONStore) Append(tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLine(tx)
}

// Transactions replays the log in append order.
func (s *JSONStore) Transactions(accountID string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.dir, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []models.Transaction
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var tx models.Transaction
		if err := json.Unmarshal(line, &tx); err != nil {
			return nil, fmt.Errorf("corrupt log entry: %w", err)
		}
		if accountID == "" || tx.AccountID == accountID || tx.CounterAccount == accountID {
			out = append(out, tx)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the log file handle.
func (s *JSONStore) Close() error {
	return s.logf.Close()
}
