package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	adminpermissions "github.com/qwmc/qwmc-web/internal/http/api/admin/permissions"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/permissions"
)

// PermissionHandler lists the admin route table for the staff panel.
type PermissionHandler struct{}

// NewPermissionHandler constructs a PermissionHandler.
func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

// List returns every admin route plus the subset the current user may call.
func (h *PermissionHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	var capabilities []permissions.Capability
	if user != nil {
		capabilities = permissions.For(user.EffectiveRole())
	}
	allowed := adminpermissions.Allowed(capabilities)
	keys := make([]string, 0, len(allowed))
	for _, def := range allowed {
		keys = append(keys, def.Key)
	}
	c.JSON(http.StatusOK, gin.H{
		"permissions":  adminpermissions.Definitions(),
		"allowed":      keys,
		"capabilities": capabilities,
	})
}
