package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultSQLitePath is the database file used when no DSN is configured.
const DefaultSQLitePath = "qwmc.db"

// Open connects to the database identified by dsn.
// "file:" DSNs use SQLite; anything else is handed to the PostgreSQL driver.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	var dialector gorm.Dialector
	if IsSQLiteDSN(trimmed) {
		dialector = sqlite.Open(trimmed)
	} else {
		dialector = postgres.Open(trimmed)
	}

	conn, errOpen := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if errOpen != nil {
		return nil, fmt.Errorf("db: open: %w", errOpen)
	}
	return conn, nil
}

// IsSQLiteDSN reports whether dsn addresses a SQLite database.
func IsSQLiteDSN(dsn string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(dsn)), "file:")
}

// BuildSQLiteDSN constructs a SQLite DSN with default pragmas.
func BuildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	if !IsSQLiteDSN(dsn) {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}, "&")
}
