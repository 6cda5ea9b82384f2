// Package session issues and reads the signed session cookie and its display companion.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/config"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/security"
)

const (
	// CookieName carries the signed user identifier. Never readable by scripts.
	CookieName = "__session"
	// UserInfoCookieName carries display-only {username, role} for the front end.
	UserInfoCookieName = "userInfo"
	// RememberDuration is the lifetime of a "remember me" session.
	RememberDuration = 7 * 24 * time.Hour
)

// UserLookup resolves user rows for session creation.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Manager creates, reads and clears browser sessions.
type Manager struct {
	users  UserLookup
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewManager constructs a Manager from session configuration.
func NewManager(users UserLookup, cfg config.SessionConfig) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		users:  users,
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		secure: cfg.Production(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// userInfo is the JSON shape of the display cookie.
type userInfo struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CreateSession issues both cookies for userID.
// With remember the cookies persist for seven days; otherwise they end with the browser session.
func (m *Manager) CreateSession(ctx context.Context, userID string, remember bool) ([]*http.Cookie, error) {
	user, errFind := m.users.FindByID(ctx, userID)
	if errFind != nil {
		return nil, errFind
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	maxAge := 0
	if remember {
		expiresAt = now.Add(RememberDuration)
		maxAge = int(RememberDuration / time.Second)
	}

	token, errIssue := security.IssueSessionToken(m.secret, user.ID, now, expiresAt)
	if errIssue != nil {
		return nil, fmt.Errorf("session: %w", errIssue)
	}
	info, errMarshal := json.Marshal(userInfo{Username: user.Username, Role: string(user.EffectiveRole())})
	if errMarshal != nil {
		return nil, fmt.Errorf("session: marshal user info: %w", errMarshal)
	}

	return []*http.Cookie{
		m.cookie(CookieName, token, maxAge, true),
		m.cookie(UserInfoCookieName, url.QueryEscape(string(info)), maxAge, false),
	}, nil
}

// CurrentUserID returns the verified user id from the request, if any.
func (m *Manager) CurrentUserID(r *http.Request) (string, bool) {
	if m == nil || r == nil {
		return "", false
	}
	cookie, errCookie := r.Cookie(CookieName)
	if errCookie != nil || cookie.Value == "" {
		return "", false
	}
	userID, errParse := security.ParseSessionToken(m.secret, cookie.Value, m.now())
	if errParse != nil {
		return "", false
	}
	return userID, true
}

// RequireUserID returns the session user id or apperr.ErrAuthenticationRequired.
func (m *Manager) RequireUserID(r *http.Request) (string, error) {
	userID, ok := m.CurrentUserID(r)
	if !ok {
		return "", apperr.ErrAuthenticationRequired
	}
	return userID, nil
}

// DestroySession returns cookies that clear both session cookies.
func (m *Manager) DestroySession() []*http.Cookie {
	return []*http.Cookie{
		m.cookie(CookieName, "", -1, true),
		m.cookie(UserInfoCookieName, "", -1, false),
	}
}

// ParseUserInfo decodes a userInfo cookie value. Only the front end and tests read it.
func ParseUserInfo(raw string) (username, role string, err error) {
	decoded, errUnescape := url.QueryUnescape(raw)
	if errUnescape != nil {
		return "", "", fmt.Errorf("session: unescape user info: %w", errUnescape)
	}
	var info userInfo
	if errUnmarshal := json.Unmarshal([]byte(decoded), &info); errUnmarshal != nil {
		return "", "", fmt.Errorf("session: decode user info: %w", errUnmarshal)
	}
	return info.Username, info.Role, nil
}

func (m *Manager) cookie(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
