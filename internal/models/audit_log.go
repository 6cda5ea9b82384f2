package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit actions recorded by staff and self-service operations.
const (
	AuditActionUserStatus        = "user.status"
	AuditActionUserUpdate        = "user.update"
	AuditActionTicketStatus      = "ticket.status"
	AuditActionTicketAssign      = "ticket.assign"
	AuditActionPresence          = "presence"
	AuditActionPunishmentIssue   = "punishment.issue"
	AuditActionPunishmentRevoke  = "punishment.revoke"
	AuditActionPunishmentExpire  = "punishment.expire"
	AuditActionApplicationReview = "application.review"
)

// Audit target types.
const (
	AuditTargetUser        = "user"
	AuditTargetTicket      = "ticket"
	AuditTargetPunishment  = "punishment"
	AuditTargetApplication = "application"
)

// AuditLog records who changed what and when.
type AuditLog struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Opaque identifier.

	ActorID    string `gorm:"type:varchar(36);not null;index"`                                  // Acting user ID.
	Action     string `gorm:"type:varchar(64);not null;index"`                                  // Action name.
	TargetType string `gorm:"type:varchar(32);not null;index:idx_audit_logs_target,priority:1"` // Target entity kind.
	TargetID   string `gorm:"type:varchar(36);not null;index:idx_audit_logs_target,priority:2"` // Target entity ID.
	FromValue  string `gorm:"type:text"`                                                        // Previous value.
	ToValue    string `gorm:"type:text"`                                                        // New value.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Extra structured context.

	CreatedAt time.Time `gorm:"not null;index"` // Event timestamp.
}

// BeforeCreate assigns an identifier when absent.
func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
