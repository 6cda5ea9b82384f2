package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/qwmc/qwmc-web/internal/models"
	"gorm.io/gorm"
)

// dbConfigSnapshot is an immutable copy of the settings table.
type dbConfigSnapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var currentDBConfig atomic.Pointer[dbConfigSnapshot]

// StoreDBConfig replaces the in-memory settings snapshot.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	copied := make(map[string]json.RawMessage, len(values))
	for key, value := range values {
		copied[key] = append(json.RawMessage(nil), value...)
	}
	currentDBConfig.Store(&dbConfigSnapshot{updatedAt: updatedAt, values: copied})
}

// DBConfigValue returns the raw JSON value for key from the snapshot.
func DBConfigValue(key string) (json.RawMessage, bool) {
	snap := currentDBConfig.Load()
	if snap == nil {
		return nil, false
	}
	value, ok := snap.values[key]
	return value, ok
}

// DBConfigUpdatedAt returns the newest updated_at seen in the snapshot.
func DBConfigUpdatedAt() time.Time {
	snap := currentDBConfig.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.updatedAt
}

// Refresh rebuilds the in-memory settings snapshot from the DB.
func Refresh(ctx context.Context, conn *gorm.DB) error {
	var rows []models.Setting
	if errFind := conn.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load snapshot: %w", errFind)
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)
		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}

	StoreDBConfig(maxUpdatedAt, values)
	return nil
}

// SiteName returns the configured site name or the default.
func SiteName() string {
	if raw, ok := DBConfigValue(SiteNameKey); ok {
		if name, okParse := ParseString(raw); okParse && name != "" {
			return name
		}
	}
	return DefaultSiteName
}
