package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qwmc/qwmc-web/internal/models"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
	"gorm.io/gorm"
)

// ddl defines an index or DDL statement to apply.
type ddl struct {
	name string // Human-readable name for error reporting.
	sql  string // SQL to execute.
}

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// schemaModels lists every persisted model in dependency order.
func schemaModels() []any {
	return []any{
		&models.User{},
		&models.Ticket{},
		&models.TicketMessage{},
		&models.AuditLog{},
		&models.News{},
		&models.Punishment{},
		&models.Application{},
		&models.Setting{},
	}
}

// migratePostgres applies PostgreSQL-specific schema updates and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schemaModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultSettings(conn); errSeed != nil {
		return errSeed
	}

	_ = conn.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error

	ddls := []ddl{
		{
			name: "idx_users_last_seen_joined_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_users_last_seen_joined_at
				ON users (last_seen DESC NULLS LAST, joined_at DESC)
			`,
		},
		{
			name: "idx_users_username_trgm",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_users_username_trgm
				ON users USING gin (username gin_trgm_ops)
			`,
		},
		{
			name: "idx_tickets_creator_id_updated_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_tickets_creator_id_updated_at
				ON tickets (creator_id, updated_at DESC)
			`,
		},
		{
			name: "idx_tickets_open",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_tickets_open
				ON tickets (updated_at DESC)
				WHERE status IN ('OPEN', 'IN_PROGRESS')
			`,
		},
		{
			name: "idx_punishments_target_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_punishments_target_active
				ON punishments (target_user_id, created_at DESC)
				WHERE revoked_at IS NULL
			`,
		},
		{
			name: "idx_applications_pending",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_applications_pending
				ON applications (created_at DESC)
				WHERE status = 'PENDING'
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
	}
	for _, stmt := range ddls {
		if errExec := conn.Exec(stmt.sql).Error; errExec != nil {
			// pg_trgm may be unavailable to unprivileged roles.
			if stmt.name == "idx_users_username_trgm" {
				continue
			}
			return fmt.Errorf("db: create %s: %w", stmt.name, errExec)
		}
	}
	return nil
}

// migrateSQLite applies SQLite schema updates and indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(schemaModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultSettings(conn); errSeed != nil {
		return errSeed
	}

	ddls := []ddl{
		{
			name: "idx_tickets_creator_id_updated_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_tickets_creator_id_updated_at
				ON tickets (creator_id, updated_at DESC)
			`,
		},
		{
			name: "idx_punishments_target_active",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_punishments_target_active
				ON punishments (target_user_id, created_at DESC)
				WHERE revoked_at IS NULL
			`,
		},
		{
			name: "idx_applications_pending",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_applications_pending
				ON applications (created_at DESC)
				WHERE status = 'PENDING'
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
	}
	for _, stmt := range ddls {
		if errExec := conn.Exec(stmt.sql).Error; errExec != nil {
			return fmt.Errorf("db: create %s: %w", stmt.name, errExec)
		}
	}
	return nil
}

// ensureDefaultSettings seeds runtime settings that code paths read on startup.
func ensureDefaultSettings(conn *gorm.DB) error {
	if errEnsure := ensureSetting(conn, internalsettings.LoginRateLimitKey, internalsettings.DefaultLoginRateLimit); errEnsure != nil {
		return errEnsure
	}
	if errEnsure := ensureSetting(conn, internalsettings.LoginRateWindowSecondsKey, internalsettings.DefaultLoginRateWindowSeconds); errEnsure != nil {
		return errEnsure
	}
	return ensureSetting(conn, internalsettings.RateLimitRedisEnabledKey, false)
}

// ensureSetting ensures a setting exists and defaults when empty.
func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := json.RawMessage(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(string(existing.Value))
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     []byte(rawValue),
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
