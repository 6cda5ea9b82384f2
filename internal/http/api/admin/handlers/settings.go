package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/models"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
	"gorm.io/gorm"
)

// maskedSettingValue replaces secret values in responses.
const maskedSettingValue = "********"

// settingRule checks a raw JSON value for one known key.
type settingRule func(value json.RawMessage) error

var (
	errMissingValue            = errors.New("value is required")
	errPositiveIntegerValue    = errors.New("value must be a positive integer")
	errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")
	errBooleanValue            = errors.New("value must be a boolean")
	errStringValue             = errors.New("value must be a string")
	errSiteNameValue           = errors.New("value must be a non-empty string")
	errRedisAddrValue          = errors.New("value must be a host:port address")
)

// settingRules lists the keys the application reads. Other keys are stored as given.
var settingRules = map[string]settingRule{
	internalsettings.SiteNameKey:               nonEmptyString(errSiteNameValue),
	internalsettings.LoginRateLimitKey:         nonNegativeInt,
	internalsettings.LoginRateWindowSecondsKey: positiveInt,
	internalsettings.RateLimitRedisEnabledKey:  boolean,
	internalsettings.RateLimitRedisAddrKey:     redisAddr,
	internalsettings.RateLimitRedisPasswordKey: anyString,
	internalsettings.RateLimitRedisDBKey:       nonNegativeInt,
	internalsettings.RateLimitRedisPrefixKey:   anyString,
}

// secretSettingKeys are never echoed back to clients.
var secretSettingKeys = map[string]bool{
	internalsettings.RateLimitRedisPasswordKey: true,
}

func positiveInt(value json.RawMessage) error {
	if _, ok := internalsettings.ParsePositiveInt(value); !ok {
		return errPositiveIntegerValue
	}
	return nil
}

func nonNegativeInt(value json.RawMessage) error {
	if _, ok := internalsettings.ParseNonNegativeInt(value); !ok {
		return errNonNegativeIntegerValue
	}
	return nil
}

func boolean(value json.RawMessage) error {
	if _, ok := internalsettings.ParseBool(value); !ok {
		return errBooleanValue
	}
	return nil
}

func anyString(value json.RawMessage) error {
	if _, ok := internalsettings.ParseString(value); !ok {
		return errStringValue
	}
	return nil
}

func nonEmptyString(errInvalid error) settingRule {
	return func(value json.RawMessage) error {
		if s, ok := internalsettings.ParseString(value); !ok || strings.TrimSpace(s) == "" {
			return errInvalid
		}
		return nil
	}
}

// redisAddr accepts an empty string (Redis unset) or host:port.
func redisAddr(value json.RawMessage) error {
	addr, ok := internalsettings.ParseString(value)
	if !ok {
		return errStringValue
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	if _, _, errSplit := net.SplitHostPort(addr); errSplit != nil {
		return errRedisAddrValue
	}
	return nil
}

func validateSettingValue(key string, value json.RawMessage) error {
	if len(strings.TrimSpace(string(value))) == 0 {
		return errMissingValue
	}
	if rule, ok := settingRules[key]; ok {
		return rule(value)
	}
	if !json.Valid(value) {
		return errMissingValue
	}
	return nil
}

// SettingHandler serves admin CRUD for the settings table. Every write
// reloads the in-process snapshot so the change applies immediately.
type SettingHandler struct {
	db *gorm.DB // Database handle for settings.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// settingRequest is the body of create and update calls. Key is ignored on update.
type settingRequest struct {
	Key   string          `json:"key"`   // Setting key.
	Value json.RawMessage `json:"value"` // JSON value payload.
}

// Create inserts a new key. Existing keys answer 409.
func (h *SettingHandler) Create(c *gin.Context) {
	var body settingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	key := strings.TrimSpace(body.Key)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	ctx := c.Request.Context()
	var count int64
	if errCount := h.db.WithContext(ctx).Model(&models.Setting{}).Where("key = ?", key).Count(&count).Error; errCount != nil {
		middleware.RespondError(c, errCount)
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "key already exists"})
		return
	}

	row := models.Setting{Key: key, Value: []byte(body.Value), UpdatedAt: time.Now().UTC()}
	if errCreate := h.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		middleware.RespondError(c, errCreate)
		return
	}
	if !h.reload(c) {
		return
	}
	c.JSON(http.StatusCreated, settingView(&row))
}

// List returns every setting ordered by key.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		middleware.RespondError(c, errFind)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, settingView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns one setting.
func (h *SettingHandler) Get(c *gin.Context) {
	row, ok := h.find(c, c.Param("key"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, settingView(row))
}

// Update replaces the value of an existing key.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var body settingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	res := h.db.WithContext(ctx).Model(&models.Setting{}).Where("key = ?", key).
		Updates(map[string]any{"value": []byte(body.Value), "updated_at": now})
	if res.Error != nil {
		middleware.RespondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !h.reload(c) {
		return
	}
	c.JSON(http.StatusOK, settingView(&models.Setting{Key: key, Value: []byte(body.Value), UpdatedAt: now}))
}

// Delete removes a key. Readers fall back to built-in defaults.
func (h *SettingHandler) Delete(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	res := h.db.WithContext(c.Request.Context()).Where("key = ?", key).Delete(&models.Setting{})
	if res.Error != nil {
		middleware.RespondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !h.reload(c) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SettingHandler) find(c *gin.Context, rawKey string) (*models.Setting, bool) {
	var row models.Setting
	errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", strings.TrimSpace(rawKey)).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if errFind != nil {
		middleware.RespondError(c, errFind)
		return nil, false
	}
	return &row, true
}

func (h *SettingHandler) reload(c *gin.Context) bool {
	if errRefresh := internalsettings.Refresh(c.Request.Context(), h.db); errRefresh != nil {
		middleware.RespondError(c, errRefresh)
		return false
	}
	return true
}

func settingView(s *models.Setting) gin.H {
	var value any = json.RawMessage(s.Value)
	if secretSettingKeys[s.Key] {
		value = maskedSettingValue
	}
	return gin.H{
		"key":        s.Key,
		"value":      value,
		"updated_at": s.UpdatedAt,
	}
}
