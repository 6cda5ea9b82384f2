// Package punishments records staff sanctions and keeps account status in step with them.
package punishments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"gorm.io/gorm"
)

// Service issues and revokes punishments.
type Service struct {
	db         *gorm.DB
	moderation *moderation.Service
	now        func() time.Time
}

// NewService constructs a Service. Status changes go through mod so they are audited.
func NewService(conn *gorm.DB, mod *moderation.Service) *Service {
	return &Service{
		db:         conn,
		moderation: mod,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithTx returns a copy of s bound to tx so callers can compose changes in one transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	clone := *s
	clone.db = tx
	return &clone
}

// MaxDuration is the longest timed punishment. Longer sanctions are permanent.
const MaxDuration = 10 * 365 * 24 * time.Hour

// IssueInput is the payload for a new punishment. A zero Duration means permanent.
type IssueInput struct {
	Type         string        `json:"type"`
	TargetUserID string        `json:"target_user_id"`
	Reason       string        `json:"reason"`
	Duration     time.Duration `json:"-"`
}

// Filter narrows List.
type Filter struct {
	Type         string
	TargetUserID string
	ActiveOnly   bool
	Limit        int
}

// Issue records a punishment. Bans and mutes also move the target to BANNED or MUTED.
func (s *Service) Issue(ctx context.Context, actor *models.User, in IssueInput) (*models.Punishment, error) {
	if actor == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	verr := apperr.NewValidationError()
	var punishmentType models.PunishmentType
	if strings.TrimSpace(in.Type) == "" {
		verr.Add("type", "type is required")
	} else if parsed, ok := models.ParsePunishmentType(in.Type); ok {
		punishmentType = parsed
	} else {
		verr.Add("type", "type must be ban, mute, kick or warn")
	}
	targetID := strings.TrimSpace(in.TargetUserID)
	if targetID == "" {
		verr.Add("target_user_id", "target user is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		verr.Add("reason", "reason is required")
	}
	if in.Duration < 0 {
		verr.Add("duration", "duration cannot be negative")
	} else if in.Duration > MaxDuration {
		verr.Add("duration", "duration must be at most 10 years")
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}
	if targetID == actor.ID {
		return nil, fmt.Errorf("%w: staff cannot punish themselves", apperr.ErrForbidden)
	}

	var punishment models.Punishment
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.User
		if errFind := tx.Select("id", "status").Where("id = ?", targetID).Take(&target).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("punishments: load target: %w", errFind)
		}

		now := s.now()
		punishment = models.Punishment{
			Type:         punishmentType,
			TargetUserID: target.ID,
			IssuerID:     actor.ID,
			Reason:       reason,
			CreatedAt:    now,
		}
		if in.Duration > 0 {
			expiresAt := now.Add(in.Duration)
			punishment.ExpiresAt = &expiresAt
		}
		if errCreate := tx.Create(&punishment).Error; errCreate != nil {
			return fmt.Errorf("punishments: create: %w", errCreate)
		}
		if errAudit := moderation.RecordAudit(tx, now, moderation.AuditEntry{
			ActorID:    actor.ID,
			Action:     models.AuditActionPunishmentIssue,
			TargetType: models.AuditTargetPunishment,
			TargetID:   punishment.ID,
			To:         string(punishmentType),
			Metadata:   map[string]any{"target_user_id": target.ID, "reason": reason},
		}); errAudit != nil {
			return errAudit
		}

		if marker, ok := punishmentType.StatusMarker(); ok {
			if _, errStatus := s.moderation.WithTx(tx).SetUserStatus(ctx, actor, target.ID, marker); errStatus != nil {
				return errStatus
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &punishment, nil
}

// List returns punishments newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]models.Punishment, error) {
	q := s.db.WithContext(ctx).
		Model(&models.Punishment{}).
		Preload("TargetUser", selectPublicUser).
		Preload("Issuer", selectPublicUser)
	if raw := strings.TrimSpace(filter.Type); raw != "" {
		punishmentType, ok := models.ParsePunishmentType(raw)
		if !ok {
			verr := apperr.NewValidationError()
			verr.Add("type", "type must be ban, mute, kick or warn")
			return nil, verr
		}
		q = q.Where("type = ?", punishmentType)
	}
	if v := strings.TrimSpace(filter.TargetUserID); v != "" {
		q = q.Where("target_user_id = ?", v)
	}
	if filter.ActiveOnly {
		q = q.Where("revoked_at IS NULL").Where("expires_at IS NULL OR expires_at > ?", s.now())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []models.Punishment
	if errFind := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("punishments: list: %w", errFind)
	}
	return rows, nil
}

// Revoke ends a punishment early. When the target still carries the marker the
// punishment imposed and no other punishment of the same type is active, the
// account returns to OFFLINE.
func (s *Service) Revoke(ctx context.Context, actor *models.User, id string) (*models.Punishment, error) {
	if actor == nil {
		return nil, apperr.ErrAuthenticationRequired
	}

	var punishment models.Punishment
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ?", strings.TrimSpace(id)).Take(&punishment).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("punishments: load: %w", errFind)
		}
		if punishment.RevokedAt != nil {
			return fmt.Errorf("%w: punishment already revoked", apperr.ErrConflict)
		}

		now := s.now()
		res := tx.Model(&models.Punishment{}).
			Where("id = ? AND revoked_at IS NULL", punishment.ID).
			Updates(map[string]any{"revoked_at": now, "revoked_by_id": actor.ID})
		if res.Error != nil {
			return fmt.Errorf("punishments: revoke: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: punishment already revoked", apperr.ErrConflict)
		}
		punishment.RevokedAt = &now
		revokedBy := actor.ID
		punishment.RevokedByID = &revokedBy

		if errAudit := moderation.RecordAudit(tx, now, moderation.AuditEntry{
			ActorID:    actor.ID,
			Action:     models.AuditActionPunishmentRevoke,
			TargetType: models.AuditTargetPunishment,
			TargetID:   punishment.ID,
			From:       string(punishment.Type),
			Metadata:   map[string]any{"target_user_id": punishment.TargetUserID},
		}); errAudit != nil {
			return errAudit
		}

		marker, ok := punishment.Type.StatusMarker()
		if !ok {
			return nil
		}
		var target models.User
		if errFind := tx.Select("id", "status").Where("id = ?", punishment.TargetUserID).Take(&target).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("punishments: load target: %w", errFind)
		}
		if target.Status != marker {
			return nil
		}
		covered, errCovered := otherActive(tx, &punishment, now)
		if errCovered != nil || covered {
			return errCovered
		}
		_, errStatus := s.moderation.WithTx(tx).SetUserStatus(ctx, actor, target.ID, models.UserStatusOffline)
		return errStatus
	})
	if errTx != nil {
		return nil, errTx
	}
	return &punishment, nil
}

// RevokeActive revokes every active punishment of type kind against a user and
// returns how many were lifted.
func (s *Service) RevokeActive(ctx context.Context, actor *models.User, targetUserID string, kind models.PunishmentType) (int, error) {
	if actor == nil {
		return 0, apperr.ErrAuthenticationRequired
	}
	revoked := 0
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if errFind := tx.Model(&models.Punishment{}).
			Where("target_user_id = ? AND type = ?", strings.TrimSpace(targetUserID), kind).
			Where("revoked_at IS NULL").
			Where("expires_at IS NULL OR expires_at > ?", s.now()).
			Order("created_at ASC").
			Pluck("id", &ids).Error; errFind != nil {
			return fmt.Errorf("punishments: find active: %w", errFind)
		}
		scoped := s.WithTx(tx)
		for _, id := range ids {
			if _, errRevoke := scoped.Revoke(ctx, actor, id); errRevoke != nil {
				return errRevoke
			}
			revoked++
		}
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	return revoked, nil
}

func selectPublicUser(q *gorm.DB) *gorm.DB {
	return q.Select("id", "username", "role", "status")
}
