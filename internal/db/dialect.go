package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect identifiers supported by the database layer.
const (
	// DialectPostgres is the PostgreSQL dialect name.
	DialectPostgres = "postgres"
	// DialectSQLite is the SQLite dialect name.
	DialectSQLite = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

// CaseInsensitiveLikeExpr returns a SQL expression for case-insensitive LIKE.
func CaseInsensitiveLikeExpr(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '\\'", column)
	}
	return fmt.Sprintf("%s ILIKE ?", column)
}

// NormalizeLikePattern normalizes a LIKE pattern for the current dialect.
func NormalizeLikePattern(conn *gorm.DB, pattern string) string {
	if IsSQLite(conn) {
		return strings.ToLower(pattern)
	}
	return pattern
}

// ContainsPattern wraps a user search term for a LIKE match, escaping wildcards.
func ContainsPattern(conn *gorm.DB, term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return NormalizeLikePattern(conn, "%"+replacer.Replace(strings.TrimSpace(term))+"%")
}

// NullsLastDesc returns an ORDER BY fragment sorting column descending with NULLs last.
func NullsLastDesc(conn *gorm.DB, column string) string {
	if IsSQLite(conn) {
		// SQLite sorts NULL as the smallest value, so DESC already places it last.
		return fmt.Sprintf("%s DESC", column)
	}
	return fmt.Sprintf("%s DESC NULLS LAST", column)
}
