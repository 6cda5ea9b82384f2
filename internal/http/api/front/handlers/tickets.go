package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/metrics"
	"github.com/qwmc/qwmc-web/internal/tickets"
)

// TicketFrontHandler serves a member's own support tickets.
type TicketFrontHandler struct {
	tickets *tickets.Service // Ticket store.
	metrics *metrics.Metrics // Optional ticket counters.
}

// NewTicketFrontHandler constructs a TicketFrontHandler.
func NewTicketFrontHandler(svc *tickets.Service, m *metrics.Metrics) *TicketFrontHandler {
	return &TicketFrontHandler{tickets: svc, metrics: m}
}

// Create opens a ticket for the signed-in user.
func (h *TicketFrontHandler) Create(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	var body tickets.CreateTicketInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	body.CreatorID = user.ID
	ticket, errCreate := h.tickets.CreateTicket(c.Request.Context(), body)
	if errCreate != nil {
		middleware.RespondError(c, errCreate)
		return
	}
	h.metrics.TicketCreated()
	c.JSON(http.StatusCreated, views.Ticket(ticket))
}

// List returns the caller's tickets, most recently active first.
func (h *TicketFrontHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	rows, errList := h.tickets.ListTicketsForUser(c.Request.Context(), user.ID)
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": views.TicketSummaries(rows)})
}

// Get returns one ticket with its thread.
func (h *TicketFrontHandler) Get(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	ticket, errGet := h.tickets.GetTicket(c.Request.Context(), strings.TrimSpace(c.Param("id")), user)
	if errGet != nil {
		middleware.RespondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, views.Ticket(ticket))
}

type messageRequest struct {
	Content string `json:"content"` // Message body.
}

// AppendMessage adds a reply to a ticket thread.
func (h *TicketFrontHandler) AppendMessage(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	var body messageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	message, errAppend := h.tickets.AppendMessage(c.Request.Context(), strings.TrimSpace(c.Param("id")), user, body.Content)
	if errAppend != nil {
		middleware.RespondError(c, errAppend)
		return
	}
	h.metrics.TicketMessage()
	c.JSON(http.StatusCreated, views.Message(message))
}
