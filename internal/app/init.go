package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/session"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InitRequest contains parameters for first-run setup.
type InitRequest struct {
	SiteName      string `json:"site_name"`
	AdminUsername string `json:"admin_username"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool          `json:"initialized"`
	Database    *databaseInfo `json:"database,omitempty"`
}

// validateInitRequest normalizes and validates setup input.
func validateInitRequest(req *InitRequest) error {
	req.SiteName = strings.TrimSpace(req.SiteName)
	if req.SiteName == "" {
		req.SiteName = internalsettings.DefaultSiteName
	}
	req.AdminUsername = strings.TrimSpace(req.AdminUsername)
	req.AdminEmail = account.NormalizeEmail(req.AdminEmail)

	verr := apperr.NewValidationError()
	for field, errCheck := range map[string]error{
		"admin_username": account.ValidateUsername(req.AdminUsername),
		"admin_email":    account.ValidateEmail(req.AdminEmail),
		"admin_password": account.ValidatePassword(req.AdminPassword),
	} {
		if fieldErr, ok := apperr.AsValidation(errCheck); ok {
			for _, message := range fieldErr.Fields {
				verr.Add(field, message)
			}
		}
	}
	return verr.OrNil()
}

// CreateAdminUserWithConn creates the first admin account and seeds the site name.
func CreateAdminUserWithConn(ctx context.Context, conn *gorm.DB, username, email, password, siteName string) (*models.User, error) {
	if conn == nil {
		return nil, fmt.Errorf("open database: nil connection")
	}

	var admin *models.User
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, errCreate := account.NewStore(tx).CreateAccount(ctx, username, email, password)
		if errCreate != nil {
			return errCreate
		}
		if errPromote := tx.Model(&models.User{}).Where("id = ?", created.ID).
			Updates(map[string]any{"role": models.RoleAdmin, "updated_at": time.Now().UTC()}).Error; errPromote != nil {
			return fmt.Errorf("promote admin: %w", errPromote)
		}
		created.Role = models.RoleAdmin
		admin = created
		return upsertSiteNameSetting(tx, siteName)
	})
	if errTx != nil {
		return nil, errTx
	}
	if errRefresh := internalsettings.Refresh(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("refresh settings after init failed")
	}
	return admin, nil
}

// upsertSiteNameSetting stores the SITE_NAME setting in the database.
func upsertSiteNameSetting(conn *gorm.DB, siteName string) error {
	normalized := strings.TrimSpace(siteName)
	if normalized == "" {
		normalized = internalsettings.DefaultSiteName
	}
	payload, errMarshal := json.Marshal(normalized)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal SITE_NAME setting: %w", errMarshal)
	}

	now := time.Now().UTC()
	res := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.SiteNameKey).
		Updates(map[string]any{
			"value":      payload,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("db: update SITE_NAME setting: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	setting := models.Setting{
		Key:       internalsettings.SiteNameKey,
		Value:     payload,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create SITE_NAME setting: %w", errCreate)
	}
	return nil
}

// initController serves first-run setup until an admin exists.
type initController struct {
	conn     *gorm.DB         // Database handle.
	dsn      string           // Configured DSN, described while uninitialized.
	sessions *session.Manager // Signs the new admin in.
	state    atomic.Bool      // Cached initialized flag.
	mu       sync.Mutex       // Serializes setup attempts.
}

func newInitController(conn *gorm.DB, dsn string, sessions *session.Manager) (*initController, error) {
	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return nil, errInit
	}
	ctrl := &initController{conn: conn, dsn: dsn, sessions: sessions}
	ctrl.state.Store(initialized)
	return ctrl, nil
}

func (ctrl *initController) register(engine *gin.Engine) {
	engine.GET("/api/init/status", ctrl.status)
	engine.POST("/api/init/setup", ctrl.setup)
}

func (ctrl *initController) status(c *gin.Context) {
	resp := InitStatusResponse{Initialized: ctrl.state.Load()}
	if !resp.Initialized {
		if info, errInfo := databaseInfoFromDSN(ctrl.dsn); errInfo == nil {
			resp.Database = &info
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (ctrl *initController) setup(c *gin.Context) {
	if ctrl.state.Load() {
		c.JSON(http.StatusConflict, gin.H{"error": "system already initialized"})
		return
	}

	var req InitRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := validateInitRequest(&req); errValidate != nil {
		middleware.RespondError(c, errValidate)
		return
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	ctx := c.Request.Context()
	if ok, errInit := HasAdminInitialized(ctrl.conn.WithContext(ctx)); errInit != nil {
		middleware.RespondError(c, errInit)
		return
	} else if ok {
		ctrl.state.Store(true)
		c.JSON(http.StatusConflict, gin.H{"error": "system already initialized"})
		return
	}

	admin, errAdmin := CreateAdminUserWithConn(ctx, ctrl.conn, req.AdminUsername, req.AdminEmail, req.AdminPassword, req.SiteName)
	if errAdmin != nil {
		middleware.RespondError(c, errAdmin)
		return
	}
	ctrl.state.Store(true)
	log.WithField("user_id", admin.ID).Info("initial admin created")

	cookies, errSession := ctrl.sessions.CreateSession(ctx, admin.ID, false)
	if errSession != nil {
		middleware.RespondError(c, errSession)
		return
	}
	for _, cookie := range cookies {
		http.SetCookie(c.Writer, cookie)
	}
	c.JSON(http.StatusCreated, views.User(admin))
}
