package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// PunishmentType is the kind of sanction applied to a player.
type PunishmentType string

// PunishmentType constants.
const (
	PunishmentBan  PunishmentType = "ban"
	PunishmentMute PunishmentType = "mute"
	PunishmentKick PunishmentType = "kick"
	PunishmentWarn PunishmentType = "warn"
)

// ParsePunishmentType normalizes a submitted punishment type.
func ParsePunishmentType(raw string) (PunishmentType, bool) {
	value := PunishmentType(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case PunishmentBan, PunishmentMute, PunishmentKick, PunishmentWarn:
		return value, true
	}
	return "", false
}

// StatusMarker returns the account status a punishment type imposes, if any.
func (p PunishmentType) StatusMarker() (UserStatus, bool) {
	switch p {
	case PunishmentBan:
		return UserStatusBanned, true
	case PunishmentMute:
		return UserStatusMuted, true
	default:
		return "", false
	}
}

// Punishment records a sanction issued by staff.
type Punishment struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Opaque identifier.

	Type         PunishmentType `gorm:"type:text;not null;index"`        // Sanction kind.
	TargetUserID string         `gorm:"type:varchar(36);not null;index"` // Punished user ID.
	TargetUser   *User          `gorm:"foreignKey:TargetUserID"`         // Punished user.
	IssuerID     string         `gorm:"type:varchar(36);not null;index"` // Issuing staff member ID.
	Issuer       *User          `gorm:"foreignKey:IssuerID"`             // Issuing staff member.
	Reason       string         `gorm:"type:text;not null"`              // Free-text reason.

	ExpiresAt   *time.Time `gorm:"index"`            // Expiry, nil for permanent.
	RevokedAt   *time.Time `gorm:"index"`            // Revocation timestamp.
	RevokedByID *string    `gorm:"type:varchar(36)"` // Revoking staff member ID.

	CreatedAt time.Time `gorm:"not null;index"` // Issue timestamp.
}

// BeforeCreate assigns an identifier when absent.
func (p *Punishment) BeforeCreate(_ *gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// Active reports whether the punishment is in force at now.
func (p *Punishment) Active(now time.Time) bool {
	if p == nil || p.RevokedAt != nil {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}
