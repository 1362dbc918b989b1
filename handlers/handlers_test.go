package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"atm-app/auth"
	"atm-app/engine"
	"atm-app/security"
	"atm-app/storage"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	store, err := storage.OpenJSON(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	creds, err := security.NewCredentials("0000")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	eng, err := engine.New(store, creds, zap.NewNop(), engine.Params{
		DefaultDailyLimit:  200000,
		DefaultPerTxnLimit: 50000,
		MaxPINAttempts:     3,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	mgr := auth.NewManager("test-secret", time.Hour)
	return Router(New(eng, mgr, zap.NewNop()), mgr)
}

func do(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r http.Handler, path string, body interface{}) string {
	t.Helper()
	w := do(t, r, "POST", path, "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["token"] == "" {
		t.Fatalf("no token in response")
	}
	return resp["token"]
}

func TestLoginDepositBalance(t *testing.T) {
	r := testRouter(t)
	// The demo account is provisioned on first start.
	token := login(t, r, "/login", map[string]string{"account_id": "123456", "pin": "1234"})

	w := do(t, r, "POST", "/api/deposit", token, map[string]int64{"amount": 500})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(t, r, "GET", "/api/balance", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance status=%d", w.Code)
	}
	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Balance != 100500 {
		t.Fatalf("balance=%d want 100500", resp.Balance)
	}
}

func TestLoginRejectsBadPIN(t *testing.T) {
	r := testRouter(t)
	w := do(t, r, "POST", "/login", "", map[string]string{"account_id": "123456", "pin": "9999"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", w.Code)
	}
}

func TestTokenRequired(t *testing.T) {
	r := testRouter(t)
	w := do(t, r, "GET", "/api/balance", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", w.Code)
	}
	w = do(t, r, "GET", "/api/balance", "not-a-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status=%d want 401", w.Code)
	}
}

func TestWithdrawLimitMapsToConflict(t *testing.T) {
	r := testRouter(t)
	token := login(t, r, "/login", map[string]string{"account_id": "123456", "pin": "1234"})

	w := do(t, r, "POST", "/api/withdraw", token, map[string]int64{"amount": 60000})
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d want 409, body=%s", w.Code, w.Body.String())
	}
	// The reason is reported, never a generic message.
	if !strings.Contains(w.Body.String(), "per-transaction limit") {
		t.Fatalf("missing specific reason: %s", w.Body.String())
	}
}

func TestUserCannotReachAdminRoutes(t *testing.T) {
	r := testRouter(t)
	token := login(t, r, "/login", map[string]string{"account_id": "123456", "pin": "1234"})

	w := do(t, r, "GET", "/api/admin/accounts", token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d want 403", w.Code)
	}
}

func TestAdminFlow(t *testing.T) {
	r := testRouter(t)
	token := login(t, r, "/admin/login", map[string]string{"pin": "0000"})

	w := do(t, r, "POST", "/api/admin/accounts", token,
		map[string]interface{}{"account_id": "654321", "pin": "2222", "balance": 1000})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(t, r, "PUT", "/api/admin/limits", token,
		map[string]interface{}{"account_id": "654321", "daily_limit": 400, "per_txn_limit": 200})
	if w.Code != http.StatusOK {
		t.Fatalf("limits status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(t, r, "GET", "/api/admin/accounts", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	var accounts []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&accounts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("accounts=%d want 2 (demo + created)", len(accounts))
	}

	// The tightened per-transaction cap is live.
	userToken := login(t, r, "/login", map[string]string{"account_id": "654321", "pin": "2222"})
	w = do(t, r, "POST", "/api/withdraw", userToken, map[string]int64{"amount": 300})
	if w.Code != http.StatusConflict {
		t.Fatalf("withdraw status=%d want 409", w.Code)
	}

	w = do(t, r, "GET", "/api/admin/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status=%d", w.Code)
	}

	w = do(t, r, "GET", "/api/admin/export?format=csv", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content-type=%q want text/csv", ct)
	}

	w = do(t, r, "GET", "/api/admin/export?kind=accounts", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accounts export status=%d", w.Code)
	}

	// The accounts report has no PDF/XLSX renderer; asking for one is an error.
	w = do(t, r, "GET", "/api/admin/export?kind=accounts&format=pdf", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("accounts pdf export status=%d want 400", w.Code)
	}
}

func TestPinChangeEndpoint(t *testing.T) {
	r := testRouter(t)
	token := login(t, r, "/login", map[string]string{"account_id": "123456", "pin": "1234"})

	w := do(t, r, "POST", "/api/pin", token, map[string]string{"old_pin": "0000", "new_pin": "5678"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong old pin status=%d want 401", w.Code)
	}

	w = do(t, r, "POST", "/api/pin", token, map[string]string{"old_pin": "1234", "new_pin": "5678"})
	if w.Code != http.StatusOK {
		t.Fatalf("pin change status=%d body=%s", w.Code, w.Body.String())
	}

	login(t, r, "/login", map[string]string{"account_id": "123456", "pin": "5678"})
}

func TestHistoryEndpoint(t *testing.T) {
	r := testRouter(t)
	token := login(t, r, "/login", map[string]string{"account_id": "123456", "pin": "1234"})

	do(t, r, "POST", "/api/deposit", token, map[string]int64{"amount": 100})

	w := do(t, r, "GET", "/api/history", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status=%d", w.Code)
	}
	var txs []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&txs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Login + deposit.
	if len(txs) != 2 {
		t.Fatalf("records=%d want 2", len(txs))
	}

	// Users cannot read another account's history.
	w = do(t, r, "GET", "/api/history?account=654321", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("foreign history status=%d want 401", w.Code)
	}
}
