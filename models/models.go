package models

import "time"

// TxType classifies a transaction record.
type TxType string

const (
	TxDeposit        TxType = "DEPOSIT"
	TxWithdrawal     TxType = "WITHDRAWAL"
	TxBalanceInquiry TxType = "BALANCE_INQUIRY"
	TxTransfer       TxType = "TRANSFER"
	TxLimitChange    TxType = "LIMIT_CHANGE"
	TxPinChange      TxType = "PIN_CHANGE"
	TxLogin          TxType = "LOGIN"
)

// TxStatus is the outcome of an attempted operation.
type TxStatus string

const (
	TxSuccess  TxStatus = "SUCCESS"
	TxRejected TxStatus = "REJECTED"
)

// Role tags an authenticated session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account is one ATM account. Balance and limits are integer minor units
// (cents) so arithmetic never drifts. History is maintained in memory and
// mirrored to the transaction log by the persistence adapter.
type Account struct {
	ID              string        `json:"id"`
	PINHash         []byte        `json:"-"`
	Balance         int64         `json:"balance"`
	DailyWithdrawn  int64         `json:"daily_withdrawn"`
	LastWithdrawDay string        `json:"last_withdraw_day,omitempty"`
	DailyLimit      int64         `json:"daily_limit"`
	PerTxnLimit     int64         `json:"per_txn_limit"`
	Locked          bool          `json:"locked"`
	Closed          bool          `json:"closed"`
	FailedAttempts  int           `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	History         []Transaction `json:"-"`
}

// Transaction is an immutable audit record. Every attempted operation,
// successful or rejected, produces exactly one. Amount is zero for
// non-monetary types (inquiry, limit change, pin change, login).
type Transaction struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	Type             TxType    `json:"type"`
	Amount           int64     `json:"amount,omitempty"`
	CounterAccount   string    `json:"counter_account,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	ResultingBalance int64     `json:"resulting_balance"`
	Status           TxStatus  `json:"status"`
	Reason           string    `json:"reason,omitempty"`
}

// Session is the authenticated context for one terminal interaction.
// Admin sessions have no account bound to them.
type Session struct {
	AccountID string `json:"account_id,omitempty"`
	Role      Role   `json:"role"`
}
