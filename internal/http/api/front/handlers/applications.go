package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/applications"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
)

// ApplicationFrontHandler serves application forms and a member's own submissions.
type ApplicationFrontHandler struct {
	applications *applications.Service // Application store.
}

// NewApplicationFrontHandler constructs an ApplicationFrontHandler.
func NewApplicationFrontHandler(svc *applications.Service) *ApplicationFrontHandler {
	return &ApplicationFrontHandler{applications: svc}
}

// Forms lists the questions of every application type.
func (h *ApplicationFrontHandler) Forms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"forms": applications.Forms()})
}

// Submit files an application of the type named in the path.
func (h *ApplicationFrontHandler) Submit(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	var body applications.SubmitInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	body.Type = c.Param("type")
	application, errSubmit := h.applications.Submit(c.Request.Context(), user, body)
	if errSubmit != nil {
		middleware.RespondError(c, errSubmit)
		return
	}
	c.JSON(http.StatusCreated, views.Application(application))
}

// List returns the caller's applications, newest first.
func (h *ApplicationFrontHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	rows, errList := h.applications.ListForUser(c.Request.Context(), user.ID)
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": views.Applications(rows)})
}

// Get returns one of the caller's applications.
func (h *ApplicationFrontHandler) Get(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	application, errGet := h.applications.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")), user)
	if errGet != nil {
		middleware.RespondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, views.Application(application))
}
