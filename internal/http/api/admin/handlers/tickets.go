package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/metrics"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"github.com/qwmc/qwmc-web/internal/tickets"
)

// TicketHandler handles staff ticket endpoints.
type TicketHandler struct {
	tickets    *tickets.Service    // Ticket reads.
	moderation *moderation.Service // Status and assignment changes.
	metrics    *metrics.Metrics    // Optional status counters.
}

// NewTicketHandler constructs a TicketHandler.
func NewTicketHandler(svc *tickets.Service, mod *moderation.Service, m *metrics.Metrics) *TicketHandler {
	return &TicketHandler{tickets: svc, moderation: mod, metrics: m}
}

// List returns every ticket filtered by status, category and priority.
func (h *TicketHandler) List(c *gin.Context) {
	rows, errList := h.tickets.ListAllTickets(c.Request.Context(), tickets.ListFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		Limit:    queryInt(c, "limit"),
	})
	if errList != nil {
		middleware.RespondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": views.TicketSummaries(rows)})
}

// Get returns a ticket with its full thread.
func (h *TicketHandler) Get(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	ticket, errGet := h.tickets.GetTicket(c.Request.Context(), strings.TrimSpace(c.Param("id")), actor)
	if errGet != nil {
		middleware.RespondError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, views.Ticket(ticket))
}

// UpdateStatus moves a ticket through its lifecycle.
func (h *TicketHandler) UpdateStatus(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	var body updateStatusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ticket, errUpdate := h.moderation.SetTicketStatus(c.Request.Context(), actor, strings.TrimSpace(c.Param("id")), models.TicketStatus(body.Status))
	if errUpdate != nil {
		middleware.RespondError(c, errUpdate)
		return
	}
	h.metrics.StatusChange("ticket", string(ticket.Status))
	c.JSON(http.StatusOK, views.Ticket(ticket))
}

// assignRequest captures a ticket assignment. An empty assignee clears it.
type assignRequest struct {
	AssigneeID string `json:"assignee_id"` // Staff member to assign.
}

// Assign hands a ticket to a staff member.
func (h *TicketHandler) Assign(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	var body assignRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ticket, errAssign := h.moderation.AssignTicket(c.Request.Context(), actor, strings.TrimSpace(c.Param("id")), body.AssigneeID)
	if errAssign != nil {
		middleware.RespondError(c, errAssign)
		return
	}
	c.JSON(http.StatusOK, views.Ticket(ticket))
}
