package punishments

import (
	"context"
	"testing"
	"time"

	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireDueRestoresOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "mute", TargetUserID: f.player.ID, Reason: "caps", Duration: time.Hour})
	require.NoError(t, err)
	require.Equal(t, models.UserStatusMuted, f.status(t))

	n, err := f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.UserStatusMuted, f.status(t))

	later := time.Now().UTC().Add(2 * time.Hour)
	f.svc.now = func() time.Time { return later }

	n, err = f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.UserStatusOffline, f.status(t))

	logs, err := f.mod.ListAuditLogs(ctx, moderation.AuditFilter{Action: models.AuditActionPunishmentExpire})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, f.staff.ID, logs[0].ActorID)
	assert.Equal(t, "MUTED", logs[0].FromValue)

	n, err = f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireDueKeepsMarkerWhileAnotherIsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "ban", TargetUserID: f.player.ID, Reason: "first", Duration: time.Hour})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, f.staff, IssueInput{Type: "ban", TargetUserID: f.player.ID, Reason: "permanent"})
	require.NoError(t, err)

	later := time.Now().UTC().Add(2 * time.Hour)
	f.svc.now = func() time.Time { return later }

	n, err := f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.UserStatusBanned, f.status(t))
}

func TestExpireDueIgnoresManualStatusChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.staff, IssueInput{Type: "mute", TargetUserID: f.player.ID, Reason: "spam", Duration: time.Minute})
	require.NoError(t, err)
	_, err = f.mod.SetUserStatus(ctx, f.staff, f.player.ID, models.UserStatusBanned)
	require.NoError(t, err)

	later := time.Now().UTC().Add(time.Hour)
	f.svc.now = func() time.Time { return later }

	n, err := f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.UserStatusBanned, f.status(t))
}
