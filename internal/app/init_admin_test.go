package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/db"
	"github.com/qwmc/qwmc-web/internal/models"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(db.BuildSQLiteDSN(filepath.Join(t.TempDir(), "qwmc-test.db")))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestCreateAdminUserWithConn_PromotesAndSeedsSiteName(t *testing.T) {
	conn := openTestDB(t)

	admin, errCreate := CreateAdminUserWithConn(context.Background(), conn, "Notch", "notch@example.com", "password123", "QWMC Survival")
	if errCreate != nil {
		t.Fatalf("CreateAdminUserWithConn: %v", errCreate)
	}
	if admin.Role != models.RoleAdmin {
		t.Fatalf("expected admin role, got %s", admin.Role)
	}

	var stored models.User
	if errFind := conn.Where("id = ?", admin.ID).Take(&stored).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if stored.Role != models.RoleAdmin {
		t.Fatalf("expected stored admin role, got %s", stored.Role)
	}
	if got := internalsettings.SiteName(); got != "QWMC Survival" {
		t.Fatalf("expected site name to be refreshed, got %q", got)
	}
}

func TestCreateAdminUserWithConn_DuplicateEmailRollsBack(t *testing.T) {
	conn := openTestDB(t)

	if _, errCreate := CreateAdminUserWithConn(context.Background(), conn, "Notch", "notch@example.com", "password123", ""); errCreate != nil {
		t.Fatalf("first create: %v", errCreate)
	}
	_, errCreate := CreateAdminUserWithConn(context.Background(), conn, "Jeb", "notch@example.com", "password123", "")
	if !errors.Is(errCreate, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", errCreate)
	}

	var count int64
	if errCount := conn.Model(&models.User{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}

func TestValidateInitRequest(t *testing.T) {
	req := InitRequest{AdminUsername: " x ", AdminEmail: "bad", AdminPassword: "short"}
	errValidate := validateInitRequest(&req)
	verr, ok := apperr.AsValidation(errValidate)
	if !ok {
		t.Fatalf("expected validation error, got %v", errValidate)
	}
	for _, field := range []string{"admin_username", "admin_email", "admin_password"} {
		if verr.Fields[field] == "" {
			t.Fatalf("expected %s error, got %v", field, verr.Fields)
		}
	}
	if req.SiteName != internalsettings.DefaultSiteName {
		t.Fatalf("expected default site name, got %q", req.SiteName)
	}
}
