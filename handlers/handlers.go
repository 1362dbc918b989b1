// Package handlers is the HTTP boundary over the transaction engine. It
// decodes requests, delegates to the engine, and maps domain errors to
// status codes; no business rules live here.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"atm-app/auth"
	"atm-app/engine"
	"atm-app/models"
	"atm-app/reports"
)

// Handler carries the wired dependencies; there are no package globals.
type Handler struct {
	engine *engine.Engine
	auth   *auth.Manager
	log    *zap.Logger
}

// New builds a Handler.
func New(e *engine.Engine, a *auth.Manager, log *zap.Logger) *Handler {
	return &Handler{engine: e, auth: a, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr reports the specific failure reason; failures are never coerced
// to a generic message.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrValidation), errors.Is(err, engine.ErrDuplicate):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, engine.ErrAccountLocked), errors.Is(err, engine.ErrAccountClosed):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrLimitExceeded), errors.Is(err, engine.ErrInsufficientFunds):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrPersistence):
		status = http.StatusInternalServerError
		h.log.Error("persistence failure", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (models.Session, bool) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "authorization token required", http.StatusUnauthorized)
	}
	return sess, ok
}

// Login authenticates an account PIN and returns a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
		PIN       string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := h.engine.Authenticate(req.AccountID, req.PIN)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	token, err := h.auth.Issue(sess)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "login successful", "token": token})
}

// AdminLogin authenticates the administrator PIN.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := h.engine.AuthenticateAdmin(req.PIN)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	token, err := h.auth.Issue(sess)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "login successful", "token": token})
}

// Deposit credits the session's account.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, err := h.engine.Deposit(sess, req.Amount)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Withdraw debits the session's account.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, err := h.engine.Withdraw(sess, req.Amount)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Balance reads the balance; the inquiry itself is recorded for audit.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	bal, tx, err := h.engine.BalanceInquiry(sess)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": bal, "transaction": tx})
}

// Transfer moves funds to another account.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ToAccount string `json:"to_account"`
		Amount    int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, err := h.engine.Transfer(sess, req.ToAccount, req.Amount)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ChangePIN replaces the account PIN after verifying the old one.
func (h *Handler) ChangePIN(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		OldPIN string `json:"old_pin"`
		NewPIN string `json:"new_pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, err := h.engine.ChangePIN(sess, req.OldPIN, req.NewPIN)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// History returns the session account's transaction log. Administrators may
// pass ?account=ID for any account.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		accountID = sess.AccountID
	}
	txs, err := h.engine.History(sess, accountID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// ListAccounts returns every account. Admin route.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	accounts, err := h.engine.ListAccounts(sess)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// CreateAccount provisions a new account. Admin route.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		AccountID string `json:"account_id"`
		PIN       string `json:"pin"`
		Balance   int64  `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a, err := h.engine.CreateAccount(sess, req.AccountID, req.PIN, req.Balance)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// ChangeLimits sets the withdrawal caps on an account. Admin route.
func (h *Handler) ChangeLimits(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		AccountID   string `json:"account_id"`
		DailyLimit  int64  `json:"daily_limit"`
		PerTxnLimit int64  `json:"per_txn_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tx, err := h.engine.ChangeLimits(sess, req.AccountID, req.DailyLimit, req.PerTxnLimit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Unlock clears an account lockout. Admin route.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		AccountID string `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.UnlockAccount(sess, req.AccountID); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account unlocked"})
}

// CloseAccount flags an account closed. Admin route.
func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		AccountID string `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.CloseAccount(sess, req.AccountID); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account closed"})
}

// Stats aggregates the system summary for the admin panel. Admin route.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	accounts, err := h.engine.ListAccounts(sess)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	txs, err := h.engine.AllTransactions(sess)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports.BuildStats(accounts, txs, time.Now()))
}

// Export streams transactions or accounts as csv, pdf or xlsx. Admin route.
// ?kind=transactions|accounts, ?format=csv|pdf|xlsx, optional ?account=ID.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "transactions"
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	if kind == "accounts" {
		if format != "csv" {
			http.Error(w, fmt.Sprintf("accounts export supports csv only, not %q", format), http.StatusBadRequest)
			return
		}
		accounts, err := h.engine.ListAccounts(sess)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="accounts.csv"`)
		if err := reports.WriteAccountsCSV(w, accounts); err != nil {
			h.log.Error("accounts export failed", zap.Error(err))
		}
		return
	}

	var txs []models.Transaction
	var err error
	if accountID := r.URL.Query().Get("account"); accountID != "" {
		txs, err = h.engine.History(sess, accountID)
	} else {
		txs, err = h.engine.AllTransactions(sess)
	}
	if err != nil {
		h.writeErr(w, err)
		return
	}

	switch format {
	case "pdf":
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.pdf"`)
		err = reports.WriteTransactionsPDF(w, txs)
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.xlsx"`)
		err = reports.WriteTransactionsXLSX(w, txs)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
		err = reports.WriteTransactionsCSV(w, txs)
	default:
		http.Error(w, fmt.Sprintf("unknown export format %q", format), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("export failed", zap.String("format", format), zap.Error(err))
	}
}
