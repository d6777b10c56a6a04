package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quillsync/internal/repository"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the account id of the signed-in principal alongside the
// registered claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// Manager holds the current session token and answers the two sync
// preconditions: who is signed in, and is the remote reachable. The token
// is persisted to a file so the session survives restarts.
type Manager struct {
	tokenPath string
	secret    []byte
	remote    repository.RemoteStore

	mu     sync.RWMutex
	claims *Claims
}

// NewManager loads any previously persisted token. A missing or invalid
// token file just means no session; it is not an error.
func NewManager(tokenPath, secret string, remote repository.RemoteStore) *Manager {
	m := &Manager{
		tokenPath: tokenPath,
		secret:    []byte(secret),
		remote:    remote,
	}

	if raw, err := os.ReadFile(tokenPath); err == nil {
		if claims, err := m.parse(strings.TrimSpace(string(raw))); err == nil {
			m.claims = claims
		}
	}
	return m
}

// SignIn validates and persists a token, replacing any current session.
func (m *Manager) SignIn(token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.tokenPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to persist session token: %w", err)
	}

	m.mu.Lock()
	m.claims = claims
	m.mu.Unlock()
	return nil
}

// SignOut discards the session and removes the persisted token.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	m.claims = nil
	m.mu.Unlock()

	if err := os.Remove(m.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session token: %w", err)
	}
	return nil
}

// OwnerID returns the signed-in account id, or "" without a session.
func (m *Manager) OwnerID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.claims == nil {
		return ""
	}
	return m.claims.UserID
}

// IsAuthenticated reports whether a non-expired session exists.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.claims == nil || m.claims.UserID == "" {
		return false
	}
	if m.claims.ExpiresAt != nil && m.claims.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// IsConnected reports remote reachability.
func (m *Manager) IsConnected(ctx context.Context) bool {
	return m.remote.Ping(ctx)
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
