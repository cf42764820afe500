// Package session issues and validates the signed browser session cookie
// and tracks revoked session ids so logout takes effect immediately.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tilestock/internal/domain"
)

const CookieName = "tilestock_session"

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrRevoked      = errors.New("session revoked")
)

// newSessionID returns a random 96-bit hex id for revocation tracking.
func newSessionID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type claims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager signs and parses session tokens and consults the registry
// for revocations.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	registry Registry
	secure   bool
}

func NewManager(secret string, ttl time.Duration, registry Registry, secureCookies bool) *Manager {
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	return &Manager{
		secret:   []byte(secret),
		ttl:      ttl,
		registry: registry,
		secure:   secureCookies,
	}
}

// Issue creates a signed token for the user and sets it as the session
// cookie on the response.
func (m *Manager) Issue(w http.ResponseWriter, user domain.User) error {
	sid, err := newSessionID()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Actor validates the session cookie on the request and returns the
// authenticated actor.
func (m *Manager) Actor(r *http.Request) (domain.Actor, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return domain.Actor{}, ErrInvalidToken
	}

	var c claims
	token, err := jwt.ParseWithClaims(cookie.Value, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}

	var userID int64
	if _, err := fmt.Sscanf(c.Subject, "%d", &userID); err != nil || userID == 0 {
		return domain.Actor{}, ErrInvalidToken
	}

	revoked, err := m.registry.IsRevoked(r.Context(), c.SessionID)
	if err == nil && revoked {
		return domain.Actor{}, ErrRevoked
	}

	return domain.Actor{
		UserID:    userID,
		Username:  c.Username,
		Role:      c.Role,
		SessionID: c.SessionID,
	}, nil
}

// Clear revokes the actor's session id and expires the cookie. The cookie
// is cleared even when the registry write fails, so logout always succeeds
// from the browser's point of view.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	if actor.SessionID != "" {
		_ = m.registry.Revoke(r.Context(), actor.SessionID, m.ttl)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
