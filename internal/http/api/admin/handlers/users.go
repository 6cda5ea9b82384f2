package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/metrics"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
)

// UserHandler handles admin user endpoints.
type UserHandler struct {
	users      *account.Store      // Account lookups.
	moderation *moderation.Service // Status changes and edits.
	metrics    *metrics.Metrics    // Optional status counters.
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *account.Store, mod *moderation.Service, m *metrics.Metrics) *UserHandler {
	return &UserHandler{users: users, moderation: mod, metrics: m}
}

// List returns users filtered by the search, role and status query parameters.
func (h *UserHandler) List(c *gin.Context) {
	filter := moderation.UserFilter{
		Search: strings.TrimSpace(c.Query("search")),
		Role:   strings.TrimSpace(c.Query("role")),
		Status: strings.TrimSpace(c.Query("status")),
		Limit:  queryInt(c, "limit"),
		Offset: queryInt(c, "offset"),
	}
	rows, errList := h.moderation.ListUsers(c.Request.Context(), filter)
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": views.Users(rows)})
}

// Get returns a single user.
func (h *UserHandler) Get(c *gin.Context) {
	user, errFind := h.users.FindByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if errFind != nil {
		middleware.RespondError(c, errFind)
		return
	}
	c.JSON(http.StatusOK, views.User(user))
}

// Update applies a partial account edit.
func (h *UserHandler) Update(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	var body moderation.UserUpdate
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, errUpdate := h.moderation.UpdateUser(c.Request.Context(), actor, strings.TrimSpace(c.Param("id")), body)
	if errUpdate != nil {
		middleware.RespondError(c, errUpdate)
		return
	}
	if body.Status != nil {
		h.metrics.StatusChange("user", string(user.Status))
	}
	c.JSON(http.StatusOK, views.User(user))
}

// updateStatusRequest captures a status transition.
type updateStatusRequest struct {
	Status string `json:"status"` // Target status.
}

// UpdateStatus moves a user to a new status.
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	var body updateStatusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	user, errUpdate := h.moderation.SetUserStatus(c.Request.Context(), actor, strings.TrimSpace(c.Param("id")), models.UserStatus(body.Status))
	if errUpdate != nil {
		middleware.RespondError(c, errUpdate)
		return
	}
	h.metrics.StatusChange("user", string(user.Status))
	c.JSON(http.StatusOK, views.User(user))
}

// queryInt reads a non-negative integer query parameter, returning 0 when absent or malformed.
func queryInt(c *gin.Context, name string) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0
	}
	value, errParse := strconv.Atoi(raw)
	if errParse != nil || value < 0 {
		return 0
	}
	return value
}
