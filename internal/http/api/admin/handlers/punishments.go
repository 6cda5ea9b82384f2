package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/punishments"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
)

// PunishmentHandler handles admin punishment endpoints.
type PunishmentHandler struct {
	punishments *punishments.Service // Punishment records.
}

// NewPunishmentHandler constructs a PunishmentHandler.
func NewPunishmentHandler(svc *punishments.Service) *PunishmentHandler {
	return &PunishmentHandler{punishments: svc}
}

// List returns punishments filtered by type, user_id and active.
func (h *PunishmentHandler) List(c *gin.Context) {
	active, _ := internalsettings.ParseBool([]byte(strings.TrimSpace(c.Query("active"))))
	rows, errList := h.punishments.List(c.Request.Context(), punishments.Filter{
		Type:         c.Query("type"),
		TargetUserID: c.Query("user_id"),
		ActiveOnly:   active,
		Limit:        queryInt(c, "limit"),
	})
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, views.Punishment(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"punishments": out})
}

// maxDurationMinutes bounds duration_minutes before it becomes a time.Duration.
const maxDurationMinutes = int(punishments.MaxDuration / time.Minute)

// issueRequest captures a new punishment.
type issueRequest struct {
	punishments.IssueInput
	DurationMinutes int `json:"duration_minutes"` // Zero means permanent.
}

// Issue records a punishment against a user.
func (h *PunishmentHandler) Issue(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	var body issueRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.DurationMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"duration_minutes": "duration must not be negative"}})
		return
	}
	if body.DurationMinutes > maxDurationMinutes {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"duration_minutes": "duration must be at most 10 years"}})
		return
	}
	input := body.IssueInput
	input.Duration = time.Duration(body.DurationMinutes) * time.Minute
	punishment, errIssue := h.punishments.Issue(c.Request.Context(), actor, input)
	if errIssue != nil {
		middleware.RespondError(c, errIssue)
		return
	}
	c.JSON(http.StatusCreated, views.Punishment(punishment))
}

// Revoke ends a punishment early.
func (h *PunishmentHandler) Revoke(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	punishment, errRevoke := h.punishments.Revoke(c.Request.Context(), actor, strings.TrimSpace(c.Param("id")))
	if errRevoke != nil {
		middleware.RespondError(c, errRevoke)
		return
	}
	c.JSON(http.StatusOK, views.Punishment(punishment))
}
