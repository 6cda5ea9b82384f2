package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/moderation"
)

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	moderation *moderation.Service // Audit reads.
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(mod *moderation.Service) *AuditHandler {
	return &AuditHandler{moderation: mod}
}

// List returns audit rows filtered by target_type, target_id, actor_id and action.
func (h *AuditHandler) List(c *gin.Context) {
	rows, errList := h.moderation.ListAuditLogs(c.Request.Context(), moderation.AuditFilter{
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		ActorID:    c.Query("actor_id"),
		Action:     c.Query("action"),
		Limit:      queryInt(c, "limit"),
	})
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, views.AuditLog(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": out})
}
