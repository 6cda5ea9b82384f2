// Package views shapes models into the JSON bodies shared by the front and admin APIs.
package views

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/tickets"
)

// User is the account view for its owner and staff. It never carries secrets.
func User(u *models.User) gin.H {
	if u == nil {
		return nil
	}
	return gin.H{
		"id":           u.ID,
		"username":     u.Username,
		"email":        u.Email,
		"role":         u.EffectiveRole(),
		"status":       u.Status,
		"last_seen":    u.LastSeen,
		"joined_at":    u.JoinedAt,
		"playtime":     u.Playtime,
		"totp_enabled": u.TOTPEnabled,
		"created_at":   u.CreatedAt,
		"updated_at":   u.UpdatedAt,
	}
}

// Users shapes a slice of accounts.
func Users(rows []models.User) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, User(&rows[i]))
	}
	return out
}

// PublicUser is the display-only view used inside tickets, news and punishments.
func PublicUser(u *models.User) gin.H {
	if u == nil {
		return nil
	}
	return gin.H{
		"id":       u.ID,
		"username": u.Username,
		"role":     u.EffectiveRole(),
	}
}

// Ticket shapes a ticket with its people and, when loaded, its messages.
func Ticket(t *models.Ticket) gin.H {
	out := gin.H{
		"id":             t.ID,
		"title":          t.Title,
		"description":    t.Description,
		"category":       t.Category,
		"priority":       t.Priority,
		"status":         t.Status,
		"creator_id":     t.CreatorID,
		"creator":        PublicUser(t.Creator),
		"assigned_to_id": t.AssignedToID,
		"assigned_to":    PublicUser(t.AssignedTo),
		"created_at":     t.CreatedAt,
		"updated_at":     t.UpdatedAt,
	}
	if t.Messages != nil {
		messages := make([]gin.H, 0, len(t.Messages))
		for i := range t.Messages {
			messages = append(messages, Message(&t.Messages[i]))
		}
		out["messages"] = messages
	}
	return out
}

// TicketSummaries shapes list rows with their message counts.
func TicketSummaries(rows []tickets.Summary) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		item := Ticket(&rows[i].Ticket)
		item["message_count"] = rows[i].MessageCount
		out = append(out, item)
	}
	return out
}

// Message shapes one ticket message.
func Message(m *models.TicketMessage) gin.H {
	return gin.H{
		"id":         m.ID,
		"ticket_id":  m.TicketID,
		"author_id":  m.AuthorID,
		"author":     PublicUser(m.Author),
		"content":    m.Content,
		"created_at": m.CreatedAt,
	}
}

// News shapes an announcement.
func News(n *models.News) gin.H {
	return gin.H{
		"id":            n.ID,
		"title":         n.Title,
		"content":       n.Content,
		"type":          n.Type,
		"status":        n.Status,
		"priority":      n.Priority,
		"scheduled_for": n.ScheduledFor,
		"author":        PublicUser(n.Author),
		"created_at":    n.CreatedAt,
		"updated_at":    n.UpdatedAt,
	}
}

// NewsList shapes a slice of announcements.
func NewsList(rows []models.News) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, News(&rows[i]))
	}
	return out
}

// Punishment shapes a sanction record.
func Punishment(p *models.Punishment) gin.H {
	return gin.H{
		"id":             p.ID,
		"type":           p.Type,
		"target_user_id": p.TargetUserID,
		"target_user":    PublicUser(p.TargetUser),
		"issuer_id":      p.IssuerID,
		"issuer":         PublicUser(p.Issuer),
		"reason":         p.Reason,
		"expires_at":     p.ExpiresAt,
		"revoked_at":     p.RevokedAt,
		"revoked_by_id":  p.RevokedByID,
		"created_at":     p.CreatedAt,
	}
}

// Application shapes a submitted form with its review state.
func Application(a *models.Application) gin.H {
	answers := map[string]string{}
	if len(a.Answers) > 0 {
		if errDecode := json.Unmarshal(a.Answers, &answers); errDecode != nil {
			answers = map[string]string{}
		}
	}
	return gin.H{
		"id":           a.ID,
		"type":         a.Type,
		"applicant_id": a.ApplicantID,
		"applicant":    PublicUser(a.Applicant),
		"answers":      answers,
		"status":       a.Status,
		"reviewer_id":  a.ReviewerID,
		"reviewer":     PublicUser(a.Reviewer),
		"review_note":  a.ReviewNote,
		"reviewed_at":  a.ReviewedAt,
		"created_at":   a.CreatedAt,
		"updated_at":   a.UpdatedAt,
	}
}

// Applications shapes a slice of applications.
func Applications(rows []models.Application) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, Application(&rows[i]))
	}
	return out
}

// AuditLog shapes an audit row.
func AuditLog(a *models.AuditLog) gin.H {
	var metadata any
	if len(a.Metadata) > 0 {
		if errDecode := json.Unmarshal(a.Metadata, &metadata); errDecode != nil {
			metadata = string(a.Metadata)
		}
	}
	return gin.H{
		"id":          a.ID,
		"actor_id":    a.ActorID,
		"action":      a.Action,
		"target_type": a.TargetType,
		"target_id":   a.TargetID,
		"from":        a.FromValue,
		"to":          a.ToValue,
		"metadata":    metadata,
		"created_at":  a.CreatedAt,
	}
}
