package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions struct {
	userID string
}

func (s stubSessions) CurrentUserID(_ *http.Request) (string, bool) {
	return s.userID, s.userID != ""
}

type stubUsers struct {
	users map[string]*models.User
	err   error
}

func (s stubUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, apperr.ErrNotFound
}

func TestRequireUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	users := stubUsers{users: map[string]*models.User{"u-1": {ID: "u-1", Role: models.RoleUser}}}

	_, err := NewGuard(stubSessions{}, users).RequireUser(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrAuthenticationRequired)

	_, err = NewGuard(stubSessions{userID: "gone"}, users).RequireUser(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrAuthenticationRequired)

	user, err := NewGuard(stubSessions{userID: "u-1"}, users).RequireUser(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	storeErr := errors.New("connection reset")
	_, err = NewGuard(stubSessions{userID: "u-1"}, stubUsers{err: storeErr}).RequireUser(context.Background(), req)
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, apperr.ErrAuthenticationRequired)
}

func TestRequireRole(t *testing.T) {
	g := NewGuard(stubSessions{}, stubUsers{})

	assert.NoError(t, g.RequireRole(&models.User{Role: models.RoleModerator}, models.RoleModerator))
	assert.NoError(t, g.RequireRole(&models.User{Role: models.RoleAdmin}, models.RoleModerator))
	assert.ErrorIs(t, g.RequireRole(&models.User{Role: models.RoleHelper}, models.RoleModerator), apperr.ErrForbidden)
	assert.ErrorIs(t, g.RequireRole(&models.User{Role: "owner"}, models.RoleModerator), apperr.ErrForbidden)
	assert.ErrorIs(t, g.RequireRole(nil, models.RoleUser), apperr.ErrAuthenticationRequired)
}

func TestRequireCapability(t *testing.T) {
	g := NewGuard(stubSessions{}, stubUsers{})

	helper := &models.User{Role: models.RoleHelper}
	assert.NoError(t, g.RequireCapability(helper, permissions.TicketsViewAll))
	assert.ErrorIs(t, g.RequireCapability(helper, permissions.TicketsManage), apperr.ErrForbidden)

	builder := &models.User{Role: models.RoleBuilder}
	assert.ErrorIs(t, g.RequireCapability(builder, permissions.StaffPanel), apperr.ErrForbidden)

	admin := &models.User{Role: models.RoleAdmin}
	for _, capability := range permissions.All() {
		assert.NoError(t, g.RequireCapability(admin, capability), string(capability))
	}
}
