// Package tickets implements support tickets and their append-only message threads.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qwmc/qwmc-web/internal/apperr"
	dbutil "github.com/qwmc/qwmc-web/internal/db"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/permissions"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service stores tickets and messages.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs a Service.
func NewService(conn *gorm.DB) *Service {
	return &Service{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

// CreateTicketInput is the payload of the new-ticket form.
type CreateTicketInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	CreatorID   string `json:"-"`
}

// Summary is a ticket row with its message count.
type Summary struct {
	models.Ticket
	MessageCount int64 `json:"message_count"`
}

// ListFilter narrows ListAllTickets.
type ListFilter struct {
	Status   string
	Category string
	Priority string
	Limit    int
}

// CreateTicket opens a ticket. Every missing field is reported at once.
func (s *Service) CreateTicket(ctx context.Context, in CreateTicketInput) (*models.Ticket, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	creatorID := strings.TrimSpace(in.CreatorID)
	if creatorID == "" {
		return nil, apperr.ErrAuthenticationRequired
	}

	verr := apperr.NewValidationError()
	if title == "" {
		verr.Add("title", "title is required")
	}
	if description == "" {
		verr.Add("description", "description is required")
	}
	var (
		category models.TicketCategory
		priority models.TicketPriority
	)
	if strings.TrimSpace(in.Category) == "" {
		verr.Add("category", "category is required")
	} else if parsed, ok := models.ParseTicketCategory(in.Category); ok {
		category = parsed
	} else {
		verr.Add("category", "unknown category")
	}
	if strings.TrimSpace(in.Priority) == "" {
		verr.Add("priority", "priority is required")
	} else if parsed, ok := models.ParseTicketPriority(in.Priority); ok {
		priority = parsed
	} else {
		verr.Add("priority", "unknown priority")
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}

	now := models.NextInstant(s.now(), time.Time{})
	ticket := models.Ticket{
		Title:       title,
		Description: description,
		Category:    category,
		Priority:    priority,
		Status:      models.TicketStatusOpen,
		CreatorID:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&ticket).Error; errCreate != nil {
		return nil, fmt.Errorf("tickets: create ticket: %w", errCreate)
	}
	return &ticket, nil
}

// ListTicketsForUser returns the user's own tickets, most recently active first.
func (s *Service) ListTicketsForUser(ctx context.Context, userID string) ([]Summary, error) {
	q := s.db.WithContext(ctx).Model(&models.Ticket{}).Where("creator_id = ?", strings.TrimSpace(userID))
	return s.listSummaries(ctx, q, false, 0)
}

// ListAllTickets returns every ticket with creator and assignee, most recently active first.
func (s *Service) ListAllTickets(ctx context.Context, filter ListFilter) ([]Summary, error) {
	q := s.db.WithContext(ctx).Model(&models.Ticket{})
	verr := apperr.NewValidationError()
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		if status, ok := models.ParseTicketStatus(raw); ok {
			q = q.Where("status = ?", status)
		} else {
			verr.Add("status", "unknown ticket status")
		}
	}
	if raw := strings.TrimSpace(filter.Category); raw != "" {
		if category, ok := models.ParseTicketCategory(raw); ok {
			q = q.Where("category = ?", category)
		} else {
			verr.Add("category", "unknown category")
		}
	}
	if raw := strings.TrimSpace(filter.Priority); raw != "" {
		if priority, ok := models.ParseTicketPriority(raw); ok {
			q = q.Where("priority = ?", priority)
		} else {
			verr.Add("priority", "unknown priority")
		}
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}
	return s.listSummaries(ctx, q, true, filter.Limit)
}

func (s *Service) listSummaries(ctx context.Context, q *gorm.DB, withPeople bool, limit int) ([]Summary, error) {
	if withPeople {
		q = q.Preload("Creator", selectPublicUser).Preload("AssignedTo", selectPublicUser)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Ticket
	if errFind := q.Order("updated_at DESC").Order("id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("tickets: list tickets: %w", errFind)
	}

	counts, errCount := s.messageCounts(ctx, rows)
	if errCount != nil {
		return nil, errCount
	}
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, Summary{Ticket: row, MessageCount: counts[row.ID]})
	}
	return out, nil
}

// messageCounts returns message counts keyed by ticket id.
func (s *Service) messageCounts(ctx context.Context, rows []models.Ticket) (map[string]int64, error) {
	counts := make(map[string]int64, len(rows))
	if len(rows) == 0 {
		return counts, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	type countRow struct {
		TicketID string
		Total    int64
	}
	var result []countRow
	if errCount := s.db.WithContext(ctx).
		Model(&models.TicketMessage{}).
		Select("ticket_id, COUNT(*) AS total").
		Where("ticket_id IN ?", ids).
		Group("ticket_id").
		Scan(&result).Error; errCount != nil {
		return nil, fmt.Errorf("tickets: count messages: %w", errCount)
	}
	for _, r := range result {
		counts[r.TicketID] = r.Total
	}
	return counts, nil
}

// GetTicket returns the ticket, its people and its messages in ascending order.
// Only the creator and staff with tickets.view_all may read it.
func (s *Service) GetTicket(ctx context.Context, ticketID string, requester *models.User) (*models.Ticket, error) {
	if requester == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	var ticket models.Ticket
	errFind := s.db.WithContext(ctx).
		Preload("Creator", selectPublicUser).
		Preload("AssignedTo", selectPublicUser).
		Preload("Messages", func(q *gorm.DB) *gorm.DB {
			return q.Order("created_at ASC").Order("id ASC")
		}).
		Preload("Messages.Author", selectPublicUser).
		Where("id = ?", strings.TrimSpace(ticketID)).
		Take(&ticket).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("tickets: load ticket: %w", errFind)
	}
	if !canView(&ticket, requester) {
		return nil, apperr.ErrForbidden
	}
	if ticket.Messages == nil {
		ticket.Messages = []models.TicketMessage{}
	}
	return &ticket, nil
}

// AppendMessage adds a message to a visible ticket and bumps its updated_at.
func (s *Service) AppendMessage(ctx context.Context, ticketID string, author *models.User, content string) (*models.TicketMessage, error) {
	if author == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		verr := apperr.NewValidationError()
		verr.Add("content", "message cannot be empty")
		return nil, verr
	}

	var message models.TicketMessage
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ticket models.Ticket
		if errFind := tx.Clauses(lockForUpdate(tx)...).
			Where("id = ?", strings.TrimSpace(ticketID)).
			Take(&ticket).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("tickets: load ticket: %w", errFind)
		}
		if !canView(&ticket, author) {
			return apperr.ErrForbidden
		}

		var last models.TicketMessage
		prev := ticket.UpdatedAt
		if errLast := tx.Select("created_at").
			Where("ticket_id = ?", ticket.ID).
			Order("created_at DESC").
			Take(&last).Error; errLast == nil {
			if last.CreatedAt.After(prev) {
				prev = last.CreatedAt
			}
		} else if !errors.Is(errLast, gorm.ErrRecordNotFound) {
			return fmt.Errorf("tickets: load last message: %w", errLast)
		}

		now := models.NextInstant(s.now(), prev)
		message = models.TicketMessage{
			TicketID:  ticket.ID,
			AuthorID:  author.ID,
			Content:   content,
			CreatedAt: now,
		}
		if errCreate := tx.Create(&message).Error; errCreate != nil {
			return fmt.Errorf("tickets: create message: %w", errCreate)
		}
		if errUpdate := tx.Model(&models.Ticket{}).
			Where("id = ?", ticket.ID).
			Update("updated_at", now).Error; errUpdate != nil {
			return fmt.Errorf("tickets: bump ticket: %w", errUpdate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	message.Author = publicUser(author)
	return &message, nil
}

func canView(ticket *models.Ticket, user *models.User) bool {
	return ticket.CreatorID == user.ID || permissions.UserHas(user, permissions.TicketsViewAll)
}

// lockForUpdate serializes appends per ticket on dialects that support row locks.
func lockForUpdate(tx *gorm.DB) []clause.Expression {
	if dbutil.IsSQLite(tx) {
		return nil
	}
	return []clause.Expression{clause.Locking{Strength: "UPDATE"}}
}

func selectPublicUser(q *gorm.DB) *gorm.DB {
	return q.Select("id", "username", "role", "status")
}

func publicUser(user *models.User) *models.User {
	return &models.User{ID: user.ID, Username: user.Username, Role: user.Role, Status: user.Status}
}
