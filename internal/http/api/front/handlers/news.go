package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/news"
)

const defaultNewsLimit = 20

// NewsFrontHandler serves the public announcement feed.
type NewsFrontHandler struct {
	news *news.Service
}

// NewNewsFrontHandler constructs a NewsFrontHandler.
func NewNewsFrontHandler(svc *news.Service) *NewsFrontHandler {
	return &NewsFrontHandler{news: svc}
}

// List returns what is currently published.
func (h *NewsFrontHandler) List(c *gin.Context) {
	rows, errList := h.news.ListPublished(c.Request.Context(), time.Now().UTC(), defaultNewsLimit)
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"news": views.NewsList(rows)})
}
