package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"atm-app/models"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	token, err := m.Issue(models.Session{AccountID: "123456", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var got models.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	m.VerifyToken(next).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got.AccountID != "123456" || got.Role != models.RoleUser {
		t.Fatalf("session=%+v", got)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	token, err := NewManager("key-one", time.Hour).Issue(models.Session{Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m := NewManager("key-two", time.Hour)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	m.VerifyToken(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler reached with forged token")
	})).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", w.Code)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)
	token, err := m.Issue(models.Session{AccountID: "123456", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	m.VerifyToken(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler reached with expired token")
	})).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	chain := m.VerifyToken(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	userToken, _ := m.Issue(models.Session{AccountID: "123456", Role: models.RoleUser})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("user role status=%d want 403", w.Code)
	}

	adminToken, _ := m.Issue(models.Session{Role: models.RoleAdmin})
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	chain.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("admin role status=%d want 200", w.Code)
	}
}
