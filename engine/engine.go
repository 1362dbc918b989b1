// Package engine implements the account and transaction engine: credential
// verification, balance mutation with limit enforcement, and durable state
// transitions. Every attempted operation, successful or rejected, produces
// exactly one transaction record. A mutation is installed in the in-memory
// ledger only after the persistence adapter has accepted it, so a reported
// success is always durable.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"atm-app/models"
	"atm-app/security"
	"atm-app/storage"
)

const dayFormat = "2006-01-02"

// Demo account provisioned when the ledger loads empty, so a fresh install
// is immediately usable.
const (
	demoAccountID = "123456"
	demoPIN       = "1234"
	demoBalance   = 100000
)

// Params hold engine policy defaults.
type Params struct {
	DefaultDailyLimit  int64
	DefaultPerTxnLimit int64
	MaxPINAttempts     int
	// Now is injectable so day-rollover behavior is testable.
	Now func() time.Time
}

// Engine orchestrates all operations against the ledger.
type Engine struct {
	ledger *Ledger
	store  storage.Store
	creds  *security.Credentials
	log    *zap.Logger
	p      Params
}

// New loads the ledger from storage, rehydrates account histories from the
// transaction log, and provisions the demo account when storage is empty.
func New(store storage.Store, creds *security.Credentials, logger *zap.Logger, p Params) (*Engine, error) {
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.MaxPINAttempts <= 0 {
		p.MaxPINAttempts = 3
	}

	e := &Engine{
		ledger: NewLedger(),
		store:  store,
		creds:  creds,
		log:    logger,
		p:      p,
	}

	accounts, err := store.LoadLedger()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	txs, err := store.Transactions("")
	if err != nil {
		return nil, fmt.Errorf("load transaction log: %w", err)
	}
	byAccount := make(map[string][]models.Transaction)
	for _, tx := range txs {
		byAccount[tx.AccountID] = append(byAccount[tx.AccountID], tx)
		if tx.CounterAccount != "" {
			byAccount[tx.CounterAccount] = append(byAccount[tx.CounterAccount], tx)
		}
	}
	for i := range accounts {
		accounts[i].History = byAccount[accounts[i].ID]
	}
	e.ledger.Restore(accounts)

	if e.ledger.Len() == 0 {
		if err := e.bootstrap(); err != nil {
			return nil, err
		}
	}
	e.log.Info("ledger loaded", zap.Int("accounts", e.ledger.Len()))
	return e, nil
}

func (e *Engine) bootstrap() error {
	hash, err := security.HashPIN(demoPIN)
	if err != nil {
		return err
	}
	a := models.Account{
		ID:          demoAccountID,
		PINHash:     hash,
		Balance:     demoBalance,
		DailyLimit:  e.p.DefaultDailyLimit,
		PerTxnLimit: e.p.DefaultPerTxnLimit,
		CreatedAt:   e.p.Now(),
	}
	if err := e.store.SaveAccount(a); err != nil {
		return fmt.Errorf("bootstrap: %v: %w", err, ErrPersistence)
	}
	if err := e.ledger.Insert(a); err != nil {
		return err
	}
	e.log.Info("provisioned demo account", zap.String("account", demoAccountID))
	return nil
}

func (e *Engine) newTx(accountID string, typ models.TxType, amount, resulting int64, status models.TxStatus, reason string) models.Transaction {
	return models.Transaction{
		ID:               ulid.Make().String(),
		AccountID:        accountID,
		Type:             typ,
		Amount:           amount,
		Timestamp:        e.p.Now(),
		ResultingBalance: resulting,
		Status:           status,
		Reason:           reason,
	}
}

// reject records a rejected attempt and returns the reason wrapped around
// its sentinel. The audit append is best effort: the record must be
// attempted, but its failure does not mask the domain error.
func (e *Engine) reject(a *models.Account, typ models.TxType, amount int64, counter, reason string, sentinel error) error {
	tx := e.newTx(a.ID, typ, amount, a.Balance, models.TxRejected, reason)
	tx.CounterAccount = counter
	a.History = append(a.History, tx)
	if aerr := e.store.Append(tx); aerr != nil {
		e.log.Warn("audit append failed", zap.String("account", a.ID), zap.Error(aerr))
	}
	return fmt.Errorf("%s: %w", reason, sentinel)
}

// rejectOn is reject for callers that do not already hold the account lock.
// An unknown account surfaces ErrNotFound from the ledger instead.
func (e *Engine) rejectOn(accountID string, typ models.TxType, amount int64, counter, reason string, sentinel error) error {
	return e.ledger.Update(accountID, func(a *models.Account) error {
		return e.reject(a, typ, amount, counter, reason, sentinel)
	})
}

// commit persists the mutated account together with its transaction record
// and installs the change only on success.
func (e *Engine) commit(a *models.Account, updated models.Account, tx models.Transaction) error {
	if err := e.store.Commit(tx, updated); err != nil {
		e.log.Error("commit failed",
			zap.String("account", a.ID), zap.String("type", string(tx.Type)), zap.Error(err))
		return fmt.Errorf("%v: %w", err, ErrPersistence)
	}
	updated.History = append(a.History, tx)
	*a = updated
	return nil
}

// rollover resets the daily withdrawal counter once per new calendar day,
// before any limit evaluation.
func rollover(a *models.Account, today string) {
	if a.LastWithdrawDay != today {
		a.DailyWithdrawn = 0
		a.LastWithdrawDay = today
	}
}

// Authenticate verifies an account PIN and opens a user session. Unknown
// accounts cost a hash comparison and report the same ErrAuth as a bad PIN,
// so authentication timing and errors never leak account existence. Three
// consecutive failures lock the account.
func (e *Engine) Authenticate(id, pin string) (models.Session, error) {
	var sess models.Session
	err := e.ledger.Update(id, func(a *models.Account) error {
		if a.Closed {
			return e.reject(a, models.TxLogin, 0, "", "account closed", ErrAccountClosed)
		}
		if a.Locked {
			return e.reject(a, models.TxLogin, 0, "", "account locked", ErrAccountLocked)
		}
		if !security.VerifyPIN(a.PINHash, pin) {
			updated := *a
			updated.FailedAttempts++
			reason := "incorrect pin"
			if updated.FailedAttempts >= e.p.MaxPINAttempts {
				updated.Locked = true
				reason = "incorrect pin, account locked"
			}
			tx := e.newTx(a.ID, models.TxLogin, 0, a.Balance, models.TxRejected, reason)
			if cerr := e.store.Commit(tx, updated); cerr != nil {
				e.log.Error("commit failed", zap.String("account", a.ID), zap.Error(cerr))
				return fmt.Errorf("%v: %w", cerr, ErrPersistence)
			}
			updated.History = append(a.History, tx)
			*a = updated
			return fmt.Errorf("%s: %w", reason, ErrAuth)
		}
		updated := *a
		updated.FailedAttempts = 0
		tx := e.newTx(a.ID, models.TxLogin, 0, a.Balance, models.TxSuccess, "")
		if err := e.commit(a, updated, tx); err != nil {
			return err
		}
		sess = models.Session{AccountID: a.ID, Role: models.RoleUser}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			security.BurnCompare(pin)
			// The audit record names the real reason; the caller sees the
			// same error text as a wrong PIN so existence cannot be probed.
			tx := e.newTx(id, models.TxLogin, 0, 0, models.TxRejected, "unknown account")
			if aerr := e.store.Append(tx); aerr != nil {
				e.log.Warn("audit append failed", zap.Error(aerr))
			}
			return models.Session{}, fmt.Errorf("incorrect pin: %w", ErrAuth)
		}
		return models.Session{}, err
	}
	return sess, nil
}

// AuthenticateAdmin verifies the administrator PIN and opens an admin session.
func (e *Engine) AuthenticateAdmin(pin string) (models.Session, error) {
	if !e.creds.VerifyAdmin(pin) {
		tx := e.newTx("ADMIN", models.TxLogin, 0, 0, models.TxRejected, "incorrect admin pin")
		if aerr := e.store.Append(tx); aerr != nil {
			e.log.Warn("audit append failed", zap.Error(aerr))
		}
		return models.Session{}, fmt.Errorf("incorrect admin pin: %w", ErrAuth)
	}
	tx := e.newTx("ADMIN", models.TxLogin, 0, 0, models.TxSuccess, "")
	if aerr := e.store.Append(tx); aerr != nil {
		e.log.Warn("audit append failed", zap.Error(aerr))
	}
	return models.Session{Role: models.RoleAdmin}, nil
}

// Deposit credits the session's account. The amount must be positive.
func (e *Engine) Deposit(sess models.Session, amount int64) (models.Transaction, error) {
	var out models.Transaction
	err := e.ledger.Update(sess.AccountID, func(a *models.Account) error {
		if a.Closed {
			return e.reject(a, models.TxDeposit, amount, "", "account closed", ErrAccountClosed)
		}
		if amount <= 0 {
			return e.reject(a, models.TxDeposit, amount, "", "amount must be positive", ErrValidation)
		}
		updated := *a
		updated.Balance += amount
		tx := e.newTx(a.ID, models.TxDeposit, amount, updated.Balance, models.TxSuccess, "")
		if err := e.commit(a, updated, tx); err != nil {
			return err
		}
		out = tx
		return nil
	})
	return out, err
}

// Withdraw debits the session's account. Checks run in a fixed order so the
// reported error is deterministic when several conditions are violated:
// validation, then limits, then funds.
func (e *Engine) Withdraw(sess models.Session, amount int64) (models.Transaction, error) {
	var out models.Transaction
	today := e.p.Now().Format(dayFormat)
	err := e.ledger.Update(sess.AccountID, func(a *models.Account) error {
		if a.Closed {
			return e.reject(a, models.TxWithdrawal, amount, "", "account closed", ErrAccountClosed)
		}
		if amount <= 0 {
			return e.reject(a, models.TxWithdrawal, amount, "", "amount must be positive", ErrValidation)
		}
		rollover(a, today)
		if amount > a.PerTxnLimit {
			return e.reject(a, models.TxWithdrawal, amount, "", "exceeds per-transaction limit", ErrLimitExceeded)
		}
		if a.DailyWithdrawn+amount > a.DailyLimit {
			return e.reject(a, models.TxWithdrawal, amount, "", "exceeds daily withdrawal limit", ErrLimitExceeded)
		}
		if amount > a.Balance {
			return e.reject(a, models.TxWithdrawal, amount, "", "insufficient funds", ErrInsufficientFunds)
		}
		updated := *a
		updated.Balance -= amount
		updated.DailyWithdrawn += amount
		tx := e.newTx(a.ID, models.TxWithdrawal, amount, updated.Balance, models.TxSuccess, "")
		if err := e.commit(a, updated, tx); err != nil {
			return err
		}
		out = tx
		return nil
	})
	return out, err
}

// BalanceInquiry reads the balance and records the inquiry without mutating
// any state.
func (e *Engine) BalanceInquiry(sess models.Session) (int64, models.Transaction, error) {
	var bal int64
	var out models.Transaction
	err := e.ledger.Update(sess.AccountID, func(a *models.Account) error {
		if a.Closed {
			return e.reject(a, models.TxBalanceInquiry, 0, "", "account closed", ErrAccountClosed)
		}
		tx := e.newTx(a.ID, models.TxBalanceInquiry, 0, a.Balance, models.TxSuccess, "")
		if aerr := e.store.Append(tx); aerr != nil {
			e.log.Error("audit append failed", zap.String("account", a.ID), zap.Error(aerr))
			return fmt.Errorf("%v: %w", aerr, ErrPersistence)
		}
		a.History = append(a.History, tx)
		bal = a.Balance
		out = tx
		return nil
	})
	return bal, out, err
}

// Transfer moves funds from the session's account to another. Withdrawal
// limits apply to the source; both balances and the single transaction
// record commit atomically.
func (e *Engine) Transfer(sess models.Session, toID string, amount int64) (models.Transaction, error) {
	from := sess.AccountID
	var out models.Transaction
	if amount <= 0 {
		return out, e.rejectOn(from, models.TxTransfer, amount, toID, "amount must be positive", ErrValidation)
	}
	if toID == from {
		return out, e.rejectOn(from, models.TxTransfer, amount, toID, "cannot transfer to the same account", ErrValidation)
	}
	today := e.p.Now().Format(dayFormat)
	err := e.ledger.UpdatePair(from, toID, func(src, dst *models.Account) error {
		if src.Closed {
			return e.reject(src, models.TxTransfer, amount, toID, "account closed", ErrAccountClosed)
		}
		if dst.Closed {
			return e.reject(src, models.TxTransfer, amount, toID, "destination account closed", ErrAccountClosed)
		}
		rollover(src, today)
		if amount > src.PerTxnLimit {
			return e.reject(src, models.TxTransfer, amount, toID, "exceeds per-transaction limit", ErrLimitExceeded)
		}
		if src.DailyWithdrawn+amount > src.DailyLimit {
			return e.reject(src, models.TxTransfer, amount, toID, "exceeds daily withdrawal limit", ErrLimitExceeded)
		}
		if amount > src.Balance {
			return e.reject(src, models.TxTransfer, amount, toID, "insufficient funds", ErrInsufficientFunds)
		}
		usrc := *src
		usrc.Balance -= amount
		usrc.DailyWithdrawn += amount
		udst := *dst
		udst.Balance += amount
		tx := e.newTx(from, models.TxTransfer, amount, usrc.Balance, models.TxSuccess, "")
		tx.CounterAccount = toID
		if err := e.store.Commit(tx, usrc, udst); err != nil {
			e.log.Error("commit failed", zap.String("account", from), zap.Error(err))
			return fmt.Errorf("%v: %w", err, ErrPersistence)
		}
		usrc.History = append(src.History, tx)
		udst.History = append(dst.History, tx)
		*src = usrc
		*dst = udst
		out = tx
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return out, e.rejectOn(from, models.TxTransfer, amount, toID, "destination account not found", ErrNotFound)
	}
	return out, err
}

// ChangePIN replaces the account PIN after verifying the old one. A wrong
// old PIN leaves the stored hash unchanged.
func (e *Engine) ChangePIN(sess models.Session, oldPin, newPin string) (models.Transaction, error) {
	var out models.Transaction
	err := e.ledger.Update(sess.AccountID, func(a *models.Account) error {
		if a.Closed {
			return e.reject(a, models.TxPinChange, 0, "", "account closed", ErrAccountClosed)
		}
		if !security.VerifyPIN(a.PINHash, oldPin) {
			return e.reject(a, models.TxPinChange, 0, "", "incorrect pin", ErrAuth)
		}
		if !security.ValidPIN(newPin) {
			return e.reject(a, models.TxPinChange, 0, "", "new pin must be exactly 4 digits", ErrValidation)
		}
		hash, err := security.HashPIN(newPin)
		if err != nil {
			return err
		}
		updated := *a
		updated.PINHash = hash
		tx := e.newTx(a.ID, models.TxPinChange, 0, a.Balance, models.TxSuccess, "")
		if err := e.commit(a, updated, tx); err != nil {
			return err
		}
		out = tx
		return nil
	})
	return out, err
}

// ChangeLimits sets the withdrawal caps on an account. Administrator only;
// the per-transaction limit may not exceed the daily limit.
func (e *Engine) ChangeLimits(sess models.Session, id string, newDaily, newPerTxn int64) (models.Transaction, error) {
	var out models.Transaction
	if sess.Role != models.RoleAdmin {
		return out, e.rejectOn(id, models.TxLimitChange, 0, "", "administrator role required", ErrAuth)
	}
	if newDaily < 0 || newPerTxn < 0 {
		return out, e.rejectOn(id, models.TxLimitChange, 0, "", "limits must not be negative", ErrValidation)
	}
	if newPerTxn > newDaily {
		return out, e.rejectOn(id, models.TxLimitChange, 0, "", "per-transaction limit exceeds daily limit", ErrValidation)
	}
	err := e.ledger.Update(id, func(a *models.Account) error {
		updated := *a
		updated.DailyLimit = newDaily
		updated.PerTxnLimit = newPerTxn
		// Lowering the cap below what was already withdrawn today must not
		// leave the counter above the limit.
		if updated.DailyWithdrawn > newDaily {
			updated.DailyWithdrawn = newDaily
		}
		tx := e.newTx(a.ID, models.TxLimitChange, 0, a.Balance, models.TxSuccess, "")
		if err := e.commit(a, updated, tx); err != nil {
			return err
		}
		out = tx
		return nil
	})
	return out, err
}

func validAccountID(id string) bool {
	if len(id) != 6 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CreateAccount provisions a new account. Administrator only.
func (e *Engine) CreateAccount(sess models.Session, id, pin string, opening int64) (models.Account, error) {
	if sess.Role != models.RoleAdmin {
		return models.Account{}, fmt.Errorf("administrator role required: %w", ErrAuth)
	}
	if !validAccountID(id) {
		return models.Account{}, fmt.Errorf("account id must be exactly 6 digits: %w", ErrValidation)
	}
	if !security.ValidPIN(pin) {
		return models.Account{}, fmt.Errorf("pin must be exactly 4 digits: %w", ErrValidation)
	}
	if opening < 0 {
		return models.Account{}, fmt.Errorf("opening balance must not be negative: %w", ErrValidation)
	}
	hash, err := security.HashPIN(pin)
	if err != nil {
		return models.Account{}, err
	}
	a := models.Account{
		ID:          id,
		PINHash:     hash,
		Balance:     opening,
		DailyLimit:  e.p.DefaultDailyLimit,
		PerTxnLimit: e.p.DefaultPerTxnLimit,
		CreatedAt:   e.p.Now(),
	}
	if err := e.ledger.Insert(a); err != nil {
		return models.Account{}, fmt.Errorf("account %s: %w", id, err)
	}
	if err := e.store.SaveAccount(a); err != nil {
		e.ledger.Remove(id)
		e.log.Error("account save failed", zap.String("account", id), zap.Error(err))
		return models.Account{}, fmt.Errorf("%v: %w", err, ErrPersistence)
	}
	e.log.Info("account provisioned", zap.String("account", id))
	return a, nil
}

// UnlockAccount clears the lockout state. Administrator only.
func (e *Engine) UnlockAccount(sess models.Session, id string) error {
	if sess.Role != models.RoleAdmin {
		return fmt.Errorf("administrator role required: %w", ErrAuth)
	}
	return e.ledger.Update(id, func(a *models.Account) error {
		updated := *a
		updated.Locked = false
		updated.FailedAttempts = 0
		if err := e.store.SaveAccount(updated); err != nil {
			return fmt.Errorf("%v: %w", err, ErrPersistence)
		}
		*a = updated
		return nil
	})
}

// CloseAccount flags the account closed; the record and its history remain
// for audit. Administrator only.
func (e *Engine) CloseAccount(sess models.Session, id string) error {
	if sess.Role != models.RoleAdmin {
		return fmt.Errorf("administrator role required: %w", ErrAuth)
	}
	return e.ledger.Update(id, func(a *models.Account) error {
		updated := *a
		updated.Closed = true
		if err := e.store.SaveAccount(updated); err != nil {
			return fmt.Errorf("%v: %w", err, ErrPersistence)
		}
		*a = updated
		return nil
	})
}

// ListAccounts returns every account. Administrator only.
func (e *Engine) ListAccounts(sess models.Session) ([]models.Account, error) {
	if sess.Role != models.RoleAdmin {
		return nil, fmt.Errorf("administrator role required: %w", ErrAuth)
	}
	return e.ledger.List(), nil
}

// History returns the durable transaction log for one account. Users may
// read their own history; administrators may read any.
func (e *Engine) History(sess models.Session, accountID string) ([]models.Transaction, error) {
	if sess.Role != models.RoleAdmin && sess.AccountID != accountID {
		return nil, fmt.Errorf("not your account: %w", ErrAuth)
	}
	txs, err := e.store.Transactions(accountID)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrPersistence)
	}
	return txs, nil
}

// AllTransactions returns the full log. Administrator only.
func (e *Engine) AllTransactions(sess models.Session) ([]models.Transaction, error) {
	if sess.Role != models.RoleAdmin {
		return nil, fmt.Errorf("administrator role required: %w", ErrAuth)
	}
	txs, err := e.store.Transactions("")
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrPersistence)
	}
	return txs, nil
}

// Lookup returns a copy of one account. Administrator only.
func (e *Engine) Lookup(sess models.Session, id string) (models.Account, error) {
	if sess.Role != models.RoleAdmin {
		return models.Account{}, fmt.Errorf("administrator role required: %w", ErrAuth)
	}
	return e.ledger.Lookup(id)
}
