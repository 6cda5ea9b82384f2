package punishments

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/db"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	conn   *gorm.DB
	svc    *Service
	mod    *moderation.Service
	staff  *models.User
	player *models.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, err := db.Open(db.BuildSQLiteDSN(filepath.Join(t.TempDir(), "punishments.db")))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	mk := func(username string, role models.Role) *models.User {
		user := &models.User{
			Username: username,
			Email:    username + "@example.com",
			Password: "x",
			Role:     role,
			Status:   models.UserStatusOffline,
			JoinedAt: time.Now().UTC(),
		}
		require.NoError(t, conn.Create(user).Error)
		return user
	}
	mod := moderation.NewService(conn)
	return fixture{
		conn:   conn,
		svc:    NewService(conn, mod),
		mod:    mod,
		staff:  mk("moderator", models.RoleModerator),
		player: mk("player", models.RoleUser),
	}
}

func (f fixture) status(t *testing.T) models.UserStatus {
	t.Helper()
	var user models.User
	require.NoError(t, f.conn.Where("id = ?", f.player.ID).Take(&user).Error)
	return user.Status
}

func TestIssueBanSetsStatusAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "BAN", TargetUserID: f.player.ID, Reason: "griefing", Duration: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, models.PunishmentBan, p.Type)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, models.UserStatusBanned, f.status(t))

	issued, err := f.mod.ListAuditLogs(ctx, moderation.AuditFilter{Action: models.AuditActionPunishmentIssue})
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, p.ID, issued[0].TargetID)

	statusLogs, err := f.mod.ListAuditLogs(ctx, moderation.AuditFilter{TargetID: f.player.ID})
	require.NoError(t, err)
	require.Len(t, statusLogs, 1)
	assert.Equal(t, "BANNED", statusLogs[0].ToValue)
}

func TestIssueWarnLeavesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "warn", TargetUserID: f.player.ID, Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusOffline, f.status(t))
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "jail"})
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Len(t, verr.Fields, 3)

	_, err = f.svc.Issue(ctx, f.staff, IssueInput{Type: "ban", TargetUserID: f.player.ID, Reason: "x", Duration: MaxDuration + time.Minute})
	verr, ok = apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "duration")

	_, err = f.svc.Issue(ctx, f.staff, IssueInput{Type: "kick", TargetUserID: "missing", Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Issue(ctx, f.staff, IssueInput{Type: "kick", TargetUserID: f.staff.ID, Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	var count int64
	require.NoError(t, f.conn.Model(&models.Punishment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRevokeRestoresStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "mute", TargetUserID: f.player.ID, Reason: "caps"})
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusMuted, f.status(t))

	revoked, err := f.svc.Revoke(ctx, f.staff, p.ID)
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)
	require.NotNil(t, revoked.RevokedByID)
	assert.Equal(t, f.staff.ID, *revoked.RevokedByID)
	assert.Equal(t, models.UserStatusOffline, f.status(t))

	_, err = f.svc.Revoke(ctx, f.staff, p.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Revoke(ctx, f.staff, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRevokeKeepsNewerStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "mute", TargetUserID: f.player.ID, Reason: "caps"})
	require.NoError(t, err)
	_, err = f.mod.SetUserStatus(ctx, f.staff, f.player.ID, models.UserStatusBanned)
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, f.staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusBanned, f.status(t))
}

func TestRevokeKeepsMarkerWhileAnotherBanIsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	permanent, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "ban", TargetUserID: f.player.ID, Reason: "xray"})
	require.NoError(t, err)
	temporary, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "ban", TargetUserID: f.player.ID, Reason: "spam", Duration: time.Hour})
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, f.staff, temporary.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusBanned, f.status(t), "the permanent ban still applies")

	_, err = f.svc.Revoke(ctx, f.staff, permanent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusOffline, f.status(t))
}

func TestRevokeActiveLiftsEveryBan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "ban", TargetUserID: f.player.ID, Reason: "xray"})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, f.staff, IssueInput{Type: "ban", TargetUserID: f.player.ID, Reason: "spam", Duration: time.Hour})
	require.NoError(t, err)
	warn, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "warn", TargetUserID: f.player.ID, Reason: "caps"})
	require.NoError(t, err)

	revoked, err := f.svc.RevokeActive(ctx, f.staff, f.player.ID, models.PunishmentBan)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)
	assert.Equal(t, models.UserStatusOffline, f.status(t))

	active, err := f.svc.List(ctx, Filter{TargetUserID: f.player.ID, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, warn.ID, active[0].ID)

	revoked, err = f.svc.RevokeActive(ctx, f.staff, f.player.ID, models.PunishmentBan)
	require.NoError(t, err)
	assert.Zero(t, revoked)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	warn, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "warn", TargetUserID: f.player.ID, Reason: "spam"})
	require.NoError(t, err)
	ban, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "ban", TargetUserID: f.player.ID, Reason: "xray"})
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, f.staff, warn.ID)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := f.svc.List(ctx, Filter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ban.ID, active[0].ID)
	require.NotNil(t, active[0].TargetUser)
	assert.Equal(t, "player", active[0].TargetUser.Username)

	bans, err := f.svc.List(ctx, Filter{Type: "ban", TargetUserID: f.player.ID})
	require.NoError(t, err)
	assert.Len(t, bans, 1)

	_, err = f.svc.List(ctx, Filter{Type: "jail"})
	_, ok := apperr.AsValidation(err)
	assert.True(t, ok)
}
