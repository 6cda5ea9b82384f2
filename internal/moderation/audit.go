package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/qwmc/qwmc-web/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// defaultAuditLimit caps audit listings when no limit is given.
const defaultAuditLimit = 100

// maxAuditLimit is the largest page an audit listing returns.
const maxAuditLimit = 500

// AuditEntry describes one change to record.
type AuditEntry struct {
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	From       string
	To         string
	Metadata   map[string]any
}

// RecordAudit appends an audit row using conn, which is usually a transaction.
func RecordAudit(conn *gorm.DB, at time.Time, entry AuditEntry) error {
	row := models.AuditLog{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		FromValue:  entry.From,
		ToValue:    entry.To,
		CreatedAt:  at,
	}
	if len(entry.Metadata) > 0 {
		payload, errMarshal := json.Marshal(entry.Metadata)
		if errMarshal != nil {
			return fmt.Errorf("moderation: marshal audit metadata: %w", errMarshal)
		}
		row.Metadata = datatypes.JSON(payload)
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		return fmt.Errorf("moderation: record audit: %w", errCreate)
	}
	return nil
}

// AuditFilter narrows ListAuditLogs.
type AuditFilter struct {
	TargetType string
	TargetID   string
	ActorID    string
	Action     string
	Limit      int
}

// ListAuditLogs returns audit rows newest first.
func (s *Service) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if v := strings.TrimSpace(filter.TargetType); v != "" {
		q = q.Where("target_type = ?", v)
	}
	if v := strings.TrimSpace(filter.TargetID); v != "" {
		q = q.Where("target_id = ?", v)
	}
	if v := strings.TrimSpace(filter.ActorID); v != "" {
		q = q.Where("actor_id = ?", v)
	}
	if v := strings.TrimSpace(filter.Action); v != "" {
		q = q.Where("action = ?", v)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	var rows []models.AuditLog
	if errFind := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("moderation: list audit logs: %w", errFind)
	}
	return rows, nil
}
