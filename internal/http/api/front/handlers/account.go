package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
)

// AccountHandler serves self-service account endpoints.
type AccountHandler struct {
	users      *account.Store      // Two-factor enrollment.
	moderation *moderation.Service // Presence changes.
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(users *account.Store, mod *moderation.Service) *AccountHandler {
	return &AccountHandler{users: users, moderation: mod}
}

type presenceRequest struct {
	Status string `json:"status"` // ONLINE, AWAY or OFFLINE.
}

// Presence sets the caller's own online status.
func (h *AccountHandler) Presence(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	var body presenceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	updated, errSet := h.moderation.SetPresence(c.Request.Context(), user, models.UserStatus(body.Status))
	if errSet != nil {
		middleware.RespondError(c, errSet)
		return
	}
	c.JSON(http.StatusOK, views.User(updated))
}

// PrepareTOTP starts two-factor enrollment and returns the secret.
func (h *AccountHandler) PrepareTOTP(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	enrollment, errPrepare := h.users.PrepareTOTP(c.Request.Context(), user.ID, internalsettings.SiteName())
	if errPrepare != nil {
		middleware.RespondError(c, errPrepare)
		return
	}
	c.JSON(http.StatusOK, enrollment)
}

type totpCodeRequest struct {
	Code string `json:"code"` // Current authenticator code.
}

// ConfirmTOTP enables two-factor login.
func (h *AccountHandler) ConfirmTOTP(c *gin.Context) {
	h.withCode(c, h.users.ConfirmTOTP)
}

// DisableTOTP turns two-factor login off.
func (h *AccountHandler) DisableTOTP(c *gin.Context) {
	h.withCode(c, h.users.DisableTOTP)
}

func (h *AccountHandler) withCode(c *gin.Context, apply func(ctx context.Context, userID, code string) error) {
	user, _ := middleware.CurrentUser(c)
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errApply := apply(c.Request.Context(), user.ID, strings.TrimSpace(body.Code)); errApply != nil {
		middleware.RespondError(c, errApply)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
