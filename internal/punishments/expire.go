package punishments

import (
	"context"
	"fmt"
	"time"

	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"gorm.io/gorm"
)

// ExpireDue lifts the account marker of bans and mutes whose time ran out.
// A target still under another active punishment of the same type keeps its
// marker. The issuer is recorded as the actor of the restore.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	var due []models.Punishment
	if errFind := s.db.WithContext(ctx).
		Model(&models.Punishment{}).
		Select("punishments.*").
		Joins("JOIN users ON users.id = punishments.target_user_id").
		Where("punishments.revoked_at IS NULL").
		Where("punishments.expires_at IS NOT NULL AND punishments.expires_at <= ?", now).
		Where("(punishments.type = ? AND users.status = ?) OR (punishments.type = ? AND users.status = ?)",
			models.PunishmentBan, models.UserStatusBanned,
			models.PunishmentMute, models.UserStatusMuted).
		Order("punishments.expires_at ASC").
		Find(&due).Error; errFind != nil {
		return 0, fmt.Errorf("punishments: find due: %w", errFind)
	}

	expired := 0
	for i := range due {
		lifted, errExpire := s.expireOne(ctx, &due[i])
		if errExpire != nil {
			return expired, errExpire
		}
		if lifted {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, p *models.Punishment) (bool, error) {
	marker, ok := p.Type.StatusMarker()
	if !ok {
		return false, nil
	}
	now := s.now()
	lifted := false
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		covered, errCovered := otherActive(tx, p, now)
		if errCovered != nil || covered {
			return errCovered
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND status = ?", p.TargetUserID, marker).
			Updates(map[string]any{"status": models.UserStatusOffline, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("punishments: restore status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		lifted = true
		return moderation.RecordAudit(tx, now, moderation.AuditEntry{
			ActorID:    p.IssuerID,
			Action:     models.AuditActionPunishmentExpire,
			TargetType: models.AuditTargetUser,
			TargetID:   p.TargetUserID,
			From:       string(marker),
			To:         string(models.UserStatusOffline),
			Metadata:   map[string]any{"punishment_id": p.ID},
		})
	})
	if errTx != nil {
		return false, errTx
	}
	return lifted, nil
}

// otherActive reports whether the target of p is under another active
// punishment of the same type.
func otherActive(tx *gorm.DB, p *models.Punishment, now time.Time) (bool, error) {
	var count int64
	if errCount := tx.Model(&models.Punishment{}).
		Where("target_user_id = ? AND type = ? AND id <> ?", p.TargetUserID, p.Type, p.ID).
		Where("revoked_at IS NULL").
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("punishments: count active: %w", errCount)
	}
	return count > 0, nil
}
