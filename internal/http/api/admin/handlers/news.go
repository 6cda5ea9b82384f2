package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/news"
)

// NewsHandler handles admin announcement endpoints.
type NewsHandler struct {
	news *news.Service // Announcement store.
}

// NewNewsHandler constructs a NewsHandler.
func NewNewsHandler(svc *news.Service) *NewsHandler {
	return &NewsHandler{news: svc}
}

// List returns every announcement, drafts included.
func (h *NewsHandler) List(c *gin.Context) {
	rows, errList := h.news.List(c.Request.Context(), news.Filter{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Limit:  queryInt(c, "limit"),
	})
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": views.NewsList(rows)})
}

// Create publishes or drafts an announcement.
func (h *NewsHandler) Create(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	var body news.Input
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	item, errCreate := h.news.Create(c.Request.Context(), actor, body)
	if errCreate != nil {
		middleware.RespondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, views.News(item))
}

// Update edits an announcement.
func (h *NewsHandler) Update(c *gin.Context) {
	var body news.Update
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	item, errUpdate := h.news.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), body)
	if errUpdate != nil {
		middleware.RespondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, views.News(item))
}

// Delete removes an announcement.
func (h *NewsHandler) Delete(c *gin.Context) {
	if errDelete := h.news.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); errDelete != nil {
		middleware.RespondError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}
