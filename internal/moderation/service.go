// Package moderation owns status transitions for users and tickets and the audit trail they leave.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/models"
	"gorm.io/gorm"
)

// Service applies audited status changes.
type Service struct {
	db     *gorm.DB
	policy TransitionPolicy
	now    func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithPolicy replaces the default permissive transition policy.
func WithPolicy(policy TransitionPolicy) Option {
	return func(s *Service) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(conn *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:     conn,
		policy: PermissivePolicy{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx returns a copy of s bound to tx so callers can compose changes in one transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	clone := *s
	clone.db = tx
	return &clone
}

// SetUserStatus overwrites a user's status and records the transition.
func (s *Service) SetUserStatus(ctx context.Context, actor *models.User, userID string, status models.UserStatus) (*models.User, error) {
	if actor == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	next, ok := models.ParseUserStatus(string(status))
	if !ok {
		verr := apperr.NewValidationError()
		verr.Add("status", "unknown user status")
		return nil, verr
	}

	var user models.User
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ?", strings.TrimSpace(userID)).Take(&user).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("moderation: load user: %w", errFind)
		}
		if errPolicy := s.policy.AllowUserStatus(actor, &user, next); errPolicy != nil {
			return errPolicy
		}

		now := s.now()
		previous := user.Status
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"status":     next,
			"updated_at": now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("moderation: update user status: %w", errUpdate)
		}
		user.Status = next
		user.UpdatedAt = now

		return RecordAudit(tx, now, AuditEntry{
			ActorID:    actor.ID,
			Action:     models.AuditActionUserStatus,
			TargetType: models.AuditTargetUser,
			TargetID:   user.ID,
			From:       string(previous),
			To:         string(next),
		})
	})
	if errTx != nil {
		return nil, errTx
	}
	user.Password = ""
	return &user, nil
}

// SetTicketStatus overwrites a ticket's status, bumps updated_at and records the transition.
func (s *Service) SetTicketStatus(ctx context.Context, actor *models.User, ticketID string, status models.TicketStatus) (*models.Ticket, error) {
	if actor == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	next, ok := models.ParseTicketStatus(string(status))
	if !ok {
		verr := apperr.NewValidationError()
		verr.Add("status", "unknown ticket status")
		return nil, verr
	}

	var ticket models.Ticket
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := loadTicket(tx, ticketID, &ticket); errFind != nil {
			return errFind
		}
		if errPolicy := s.policy.AllowTicketStatus(actor, &ticket, next); errPolicy != nil {
			return errPolicy
		}

		now := s.now()
		previous := ticket.Status
		if errUpdate := tx.Model(&models.Ticket{}).Where("id = ?", ticket.ID).Updates(map[string]any{
			"status":     next,
			"updated_at": now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("moderation: update ticket status: %w", errUpdate)
		}
		ticket.Status = next
		ticket.UpdatedAt = now

		return RecordAudit(tx, now, AuditEntry{
			ActorID:    actor.ID,
			Action:     models.AuditActionTicketStatus,
			TargetType: models.AuditTargetTicket,
			TargetID:   ticket.ID,
			From:       string(previous),
			To:         string(next),
		})
	})
	if errTx != nil {
		return nil, errTx
	}
	return &ticket, nil
}

// AssignTicket sets or clears (empty assigneeID) the ticket's assigned staff member.
// The assignee must hold a staff role.
func (s *Service) AssignTicket(ctx context.Context, actor *models.User, ticketID, assigneeID string) (*models.Ticket, error) {
	if actor == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	assigneeID = strings.TrimSpace(assigneeID)

	var ticket models.Ticket
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := loadTicket(tx, ticketID, &ticket); errFind != nil {
			return errFind
		}

		var next *string
		if assigneeID != "" {
			var assignee models.User
			if errFind := tx.Select("id", "role").Where("id = ?", assigneeID).Take(&assignee).Error; errFind != nil {
				if errors.Is(errFind, gorm.ErrRecordNotFound) {
					verr := apperr.NewValidationError()
					verr.Add("assignee_id", "assignee does not exist")
					return verr
				}
				return fmt.Errorf("moderation: load assignee: %w", errFind)
			}
			if !isStaff(assignee.EffectiveRole()) {
				verr := apperr.NewValidationError()
				verr.Add("assignee_id", "assignee must be a staff member")
				return verr
			}
			next = &assignee.ID
		}

		now := s.now()
		if errUpdate := tx.Model(&models.Ticket{}).Where("id = ?", ticket.ID).Updates(map[string]any{
			"assigned_to_id": next,
			"updated_at":     now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("moderation: assign ticket: %w", errUpdate)
		}
		previous := ticket.AssignedToID
		ticket.AssignedToID = next
		ticket.UpdatedAt = now

		return RecordAudit(tx, now, AuditEntry{
			ActorID:    actor.ID,
			Action:     models.AuditActionTicketAssign,
			TargetType: models.AuditTargetTicket,
			TargetID:   ticket.ID,
			From:       deref(previous),
			To:         deref(next),
		})
	})
	if errTx != nil {
		return nil, errTx
	}
	return &ticket, nil
}

func loadTicket(tx *gorm.DB, ticketID string, out *models.Ticket) error {
	if errFind := tx.Where("id = ?", strings.TrimSpace(ticketID)).Take(out).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("moderation: load ticket: %w", errFind)
	}
	return nil
}

func isStaff(role models.Role) bool {
	switch role {
	case models.RoleHelper, models.RoleModerator, models.RoleAdmin:
		return true
	}
	return false
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
