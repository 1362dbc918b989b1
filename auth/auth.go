// Package auth issues and verifies session tokens. A session is a stateless
// JWT carrying the account id and role; nothing is persisted server-side, so
// logout is token discard/expiry.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"atm-app/models"
)

type contextKey string

const sessionKey contextKey = "session"

// Claims bind a session to a signed token.
type Claims struct {
	AccountID string `json:"account_id,omitempty"`
	Role      string `json:"role"`
	jwt.StandardClaims
}

// Manager signs and verifies session tokens.
type Manager struct {
	key []byte
	ttl time.Duration
}

// NewManager builds a Manager from the configured signing secret.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{key: []byte(secret), ttl: ttl}
}

// Issue signs a token for an authenticated session.
func (m *Manager) Issue(sess models.Session) (string, error) {
	claims := &Claims{
		AccountID: sess.AccountID,
		Role:      string(sess.Role),
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(m.ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

// VerifyToken is middleware: it requires a valid Bearer token and stores the
// session in the request context. No operation other than authentication is
// reachable without it.
func (m *Manager) VerifyToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, "authorization token required", http.StatusUnauthorized)
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		if tokenString == "" {
			http.Error(w, "authorization token required", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return m.key, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		sess := models.Session{AccountID: claims.AccountID, Role: models.Role(claims.Role)}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin is middleware gating admin-only routes by role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := FromContext(r.Context())
		if !ok || sess.Role != models.RoleAdmin {
			http.Error(w, "administrator role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FromContext extracts the session stored by VerifyToken.
func FromContext(ctx context.Context) (models.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(models.Session)
	return sess, ok
}
