package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// TicketCategory classifies support tickets.
type TicketCategory string

// TicketCategory constants.
const (
	TicketCategoryGeneral   TicketCategory = "GENERAL"
	TicketCategoryTechnical TicketCategory = "TECHNICAL"
	TicketCategoryPayment   TicketCategory = "PAYMENT"
	TicketCategoryOther     TicketCategory = "OTHER"
)

// TicketPriority ranks ticket urgency.
type TicketPriority string

// TicketPriority constants.
const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// TicketStatus is the ticket lifecycle marker.
type TicketStatus string

// TicketStatus constants.
const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// ParseTicketCategory normalizes a submitted category.
func ParseTicketCategory(raw string) (TicketCategory, bool) {
	value := TicketCategory(normalizeEnum(raw))
	switch value {
	case TicketCategoryGeneral, TicketCategoryTechnical, TicketCategoryPayment, TicketCategoryOther:
		return value, true
	}
	return "", false
}

// ParseTicketPriority normalizes a submitted priority.
func ParseTicketPriority(raw string) (TicketPriority, bool) {
	value := TicketPriority(normalizeEnum(raw))
	switch value {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return value, true
	}
	return "", false
}

// ParseTicketStatus normalizes a submitted status. "in-progress" is accepted.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	value := TicketStatus(normalizeEnum(raw))
	switch value {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return value, true
	}
	return "", false
}

func normalizeEnum(raw string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), "-", "_")
}

// Ticket is a user-initiated support case.
type Ticket struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Opaque identifier.

	Title       string         `gorm:"type:text;not null"`              // Subject line.
	Description string         `gorm:"type:text;not null"`              // Initial problem description.
	Category    TicketCategory `gorm:"type:text;not null"`              // Ticket category.
	Priority    TicketPriority `gorm:"type:text;not null"`              // Ticket priority.
	Status      TicketStatus   `gorm:"type:text;not null;index"`        // Lifecycle status.
	CreatorID   string         `gorm:"type:varchar(36);not null;index"` // Owning user ID.
	Creator     *User          `gorm:"foreignKey:CreatorID"`            // Owning user.

	AssignedToID *string `gorm:"type:varchar(36);index"`  // Assigned staff member ID.
	AssignedTo   *User   `gorm:"foreignKey:AssignedToID"` // Assigned staff member.

	Messages []TicketMessage `gorm:"foreignKey:TicketID"` // Message thread.

	CreatedAt time.Time `gorm:"not null"`       // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;index"` // Last activity timestamp.
}

// BeforeCreate assigns an identifier when absent.
func (t *Ticket) BeforeCreate(_ *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// TicketMessage is one append-only entry in a ticket thread.
type TicketMessage struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Opaque identifier.

	TicketID string `gorm:"type:varchar(36);not null;index:idx_ticket_messages_ticket_created,priority:1"` // Parent ticket ID.
	AuthorID string `gorm:"type:varchar(36);not null;index"`                                               // Author user ID.
	Author   *User  `gorm:"foreignKey:AuthorID"`                                                           // Author record.
	Content  string `gorm:"type:text;not null"`                                                            // Message body.

	CreatedAt time.Time `gorm:"not null;index:idx_ticket_messages_ticket_created,priority:2"` // Creation timestamp.
}

// BeforeCreate assigns an identifier when absent.
func (m *TicketMessage) BeforeCreate(_ *gorm.DB) error {
	assignID(&m.ID)
	return nil
}
