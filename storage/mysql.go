package storage

import (
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"atm-app/models"
)

const mysqlTimeFormat = "2006-01-02 15:04:05"

// MySQLStore persists the ledger in MySQL. Multi-row commits run inside a
// sql.Tx so an account save and its transaction record land together or not
// at all.
type MySQLStore struct {
	db *sql.DB
}

// OpenMySQL connects, pings and ensures the schema exists.
func OpenMySQL(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	s := &MySQLStore{db: db}
	if err = s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id VARCHAR(32) PRIMARY KEY,
			pin_hash VARBINARY(128) NOT NULL,
			balance BIGINT NOT NULL,
			daily_withdrawn BIGINT NOT NULL,
			last_withdraw_day VARCHAR(10) NOT NULL DEFAULT '',
			daily_limit BIGINT NOT NULL,
			per_txn_limit BIGINT NOT NULL,
			locked TINYINT(1) NOT NULL DEFAULT 0,
			closed TINYINT(1) NOT NULL DEFAULT 0,
			failed_attempts INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(32) PRIMARY KEY,
			account_id VARCHAR(32) NOT NULL,
			type VARCHAR(20) NOT NULL,
			amount BIGINT NOT NULL,
			counter_account VARCHAR(32) NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL,
			resulting_balance BIGINT NOT NULL,
			status VARCHAR(10) NOT NULL,
			reason VARCHAR(255) NOT NULL DEFAULT '',
			INDEX idx_tx_account (account_id)
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// LoadLedger reads every account row.
func (s *MySQLStore) LoadLedger() ([]models.Account, error) {
	rows, err := s.db.Query(`SELECT id, pin_hash, balance, daily_withdrawn, last_withdraw_day,
		daily_limit, per_txn_limit, locked, closed, failed_attempts, created_at FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		var created []byte
		if err := rows.Scan(&a.ID, &a.PINHash, &a.Balance, &a.DailyWithdrawn, &a.LastWithdrawDay,
			&a.DailyLimit, &a.PerTxnLimit, &a.Locked, &a.Closed, &a.FailedAttempts, &created); err != nil {
			return nil, err
		}
		a.CreatedAt, err = time.Parse(mysqlTimeFormat, string(created))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const upsertAccount = `INSERT INTO accounts
	(id, pin_hash, balance, daily_withdrawn, last_withdraw_day, daily_limit, per_txn_limit, locked, closed, failed_attempts, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
	pin_hash = VALUES(pin_hash), balance = VALUES(balance), daily_withdrawn = VALUES(daily_withdrawn),
	last_withdraw_day = VALUES(last_withdraw_day), daily_limit = VALUES(daily_limit),
	per_txn_limit = VALUES(per_txn_limit), locked = VALUES(locked), closed = VALUES(closed),
	failed_attempts = VALUES(failed_attempts)`

const insertTx = `INSERT INTO transactions
	(id, account_id, type, amount, counter_account, timestamp, resulting_balance, status, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func accountArgs(a models.Account) []interface{} {
	return []interface{}{a.ID, a.PINHash, a.Balance, a.DailyWithdrawn, a.LastWithdrawDay,
		a.DailyLimit, a.PerTxnLimit, a.Locked, a.Closed, a.FailedAttempts,
		a.CreatedAt.Format(mysqlTimeFormat)}
}

func txArgs(tx models.Transaction) []interface{} {
	return []interface{}{tx.ID, tx.AccountID, string(tx.Type), tx.Amount, tx.CounterAccount,
		tx.Timestamp.Format(mysqlTimeFormat), tx.ResultingBalance, string(tx.Status), tx.Reason}
}

// SaveAccount upserts one account row.
func (s *MySQLStore) SaveAccount(a models.Account) error {
	_, err := s.db.Exec(upsertAccount, accountArgs(a)...)
	return err
}

// Commit saves the mutated accounts and the transaction record atomically.
func (s *MySQLStore) Commit(tx models.Transaction, accounts ...models.Account) error {
	dbtx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if _, err = dbtx.Exec(upsertAccount, accountArgs(a)...); err != nil {
			dbtx.Rollback()
			return err
		}
	}
	if _, err = dbtx.Exec(insertTx, txArgs(tx)...); err != nil {
		dbtx.Rollback()
		return err
	}
	return dbtx.Commit()
}

// Append inserts one audit record.
func (s *MySQLStore) Append(tx models.Transaction) error {
	_, err := s.db.Exec(insertTx, txArgs(tx)...)
	return err
}

// Transactions returns the log in insertion order.
func (s *MySQLStore) Transactions(accountID string) ([]models.Transaction, error) {
	q := `SELECT id, account_id, type, amount, counter_account, timestamp, resulting_balance, status, reason
		FROM transactions`
	args := []interface{}{}
	if accountID != "" {
		q += ` WHERE account_id = ? OR counter_account = ?`
		args = append(args, accountID, accountID)
	}
	q += ` ORDER BY timestamp, id`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var ts []byte
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Type, &tx.Amount, &tx.CounterAccount,
			&ts, &tx.ResultingBalance, &tx.Status, &tx.Reason); err != nil {
			return nil, err
		}
		tx.Timestamp, err = time.Parse(mysqlTimeFormat, string(ts))
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
