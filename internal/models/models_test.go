package models

import (
	"testing"
	"time"
)

func TestParseRoleUnknownFallsBackToUser(t *testing.T) {
	role, ok := ParseRole("superuser")
	if ok {
		t.Fatalf("expected unknown role to be rejected")
	}
	if role != RoleUser {
		t.Fatalf("expected fallback role user, got %q", role)
	}
	if parsed, okParse := ParseRole(" Moderator "); !okParse || parsed != RoleModerator {
		t.Fatalf("expected moderator, got %q ok=%v", parsed, okParse)
	}
}

func TestParseTicketStatusAcceptsHyphen(t *testing.T) {
	status, ok := ParseTicketStatus("in-progress")
	if !ok || status != TicketStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %q ok=%v", status, ok)
	}
	if _, okBad := ParseTicketStatus("ARCHIVED"); okBad {
		t.Fatalf("expected ARCHIVED to be rejected")
	}
}

func TestUserStatusClassification(t *testing.T) {
	if !UserStatusAway.IsPresence() || UserStatusBanned.IsPresence() {
		t.Fatalf("unexpected presence classification")
	}
	if !UserStatusMuted.IsModerationLock() || UserStatusApproved.IsModerationLock() {
		t.Fatalf("unexpected moderation lock classification")
	}
}

func TestNextInstantIsStrictlyAfterPrevious(t *testing.T) {
	prev := time.Date(2026, 1, 2, 3, 4, 5, 999_000, time.UTC)
	got := NextInstant(prev.Add(-time.Second), prev)
	if !got.After(prev) {
		t.Fatalf("expected %v to be after %v", got, prev)
	}
	later := prev.Add(time.Minute)
	if got := NextInstant(later, prev); !got.Equal(later.Truncate(time.Microsecond)) {
		t.Fatalf("expected later instant to be kept, got %v", got)
	}
}

func TestPunishmentActive(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if !(&Punishment{}).Active(now) {
		t.Fatalf("expected permanent punishment to be active")
	}
	if (&Punishment{ExpiresAt: &past}).Active(now) {
		t.Fatalf("expected expired punishment to be inactive")
	}
	if (&Punishment{ExpiresAt: &future, RevokedAt: &past}).Active(now) {
		t.Fatalf("expected revoked punishment to be inactive")
	}
}
