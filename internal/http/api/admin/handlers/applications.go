package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/applications"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
)

// ApplicationHandler serves the staff review queue.
type ApplicationHandler struct {
	applications *applications.Service // Application store.
}

// NewApplicationHandler constructs an ApplicationHandler.
func NewApplicationHandler(svc *applications.Service) *ApplicationHandler {
	return &ApplicationHandler{applications: svc}
}

// List returns applications filtered by type and status.
func (h *ApplicationHandler) List(c *gin.Context) {
	rows, errList := h.applications.List(c.Request.Context(), applications.Filter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
		Limit:  queryInt(c, "limit"),
	})
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": views.Applications(rows)})
}

// Get returns one application with its answers.
func (h *ApplicationHandler) Get(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	application, errGet := h.applications.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")), actor)
	if errGet != nil {
		middleware.RespondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, views.Application(application))
}

// Review approves or rejects a pending application.
func (h *ApplicationHandler) Review(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	var body applications.ReviewInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	application, errReview := h.applications.Review(c.Request.Context(), actor, strings.TrimSpace(c.Param("id")), body)
	if errReview != nil {
		middleware.RespondError(c, errReview)
		return
	}
	c.JSON(http.StatusOK, views.Application(application))
}
