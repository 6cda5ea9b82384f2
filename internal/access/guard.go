// Package access resolves the current user from a request and enforces roles and capabilities.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/permissions"
)

// SessionReader extracts the authenticated user id from a request.
type SessionReader interface {
	CurrentUserID(r *http.Request) (string, bool)
}

// UserFinder loads a user row by id.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Guard gates operations on the session user.
type Guard struct {
	sessions SessionReader
	users    UserFinder
}

// NewGuard constructs a Guard.
func NewGuard(sessions SessionReader, users UserFinder) *Guard {
	return &Guard{sessions: sessions, users: users}
}

// RequireUser returns the session user or apperr.ErrAuthenticationRequired.
// A session whose user no longer exists is treated as no session.
func (g *Guard) RequireUser(ctx context.Context, r *http.Request) (*models.User, error) {
	userID, ok := g.sessions.CurrentUserID(r)
	if !ok {
		return nil, apperr.ErrAuthenticationRequired
	}
	user, errFind := g.users.FindByID(ctx, userID)
	if errFind != nil {
		if errors.Is(errFind, apperr.ErrNotFound) {
			return nil, apperr.ErrAuthenticationRequired
		}
		return nil, fmt.Errorf("access: load session user: %w", errFind)
	}
	return user, nil
}

// RequireRole passes when user holds role or is an admin.
func (g *Guard) RequireRole(user *models.User, role models.Role) error {
	if user == nil {
		return apperr.ErrAuthenticationRequired
	}
	current := user.EffectiveRole()
	if current == role || current == models.RoleAdmin {
		return nil
	}
	return apperr.ErrForbidden
}

// RequireCapability passes when the user's role grants capability.
func (g *Guard) RequireCapability(user *models.User, capability permissions.Capability) error {
	if user == nil {
		return apperr.ErrAuthenticationRequired
	}
	if !permissions.UserHas(user, capability) {
		return apperr.ErrForbidden
	}
	return nil
}
