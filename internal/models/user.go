package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Role is the closed set of account tiers.
type Role string

// Role constants, lowest privilege first.
const (
	RoleUser      Role = "user"
	RoleBuilder   Role = "builder"
	RoleHelper    Role = "helper"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Roles lists every known role in ascending privilege order.
func Roles() []Role {
	return []Role{RoleUser, RoleBuilder, RoleHelper, RoleModerator, RoleAdmin}
}

// ParseRole normalizes a stored or submitted role value.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Roles() {
		if role == known {
			return role, true
		}
	}
	return RoleUser, false
}

// UserStatus is the account lifecycle marker.
type UserStatus string

// UserStatus constants.
const (
	UserStatusOnline   UserStatus = "ONLINE"
	UserStatusOffline  UserStatus = "OFFLINE"
	UserStatusAway     UserStatus = "AWAY"
	UserStatusBanned   UserStatus = "BANNED"
	UserStatusMuted    UserStatus = "MUTED"
	UserStatusDeleted  UserStatus = "DELETED"
	UserStatusPending  UserStatus = "PENDING"
	UserStatusApproved UserStatus = "APPROVED"
	UserStatusRejected UserStatus = "REJECTED"
)

// UserStatuses lists every account status.
func UserStatuses() []UserStatus {
	return []UserStatus{
		UserStatusOnline, UserStatusOffline, UserStatusAway,
		UserStatusBanned, UserStatusMuted, UserStatusDeleted,
		UserStatusPending, UserStatusApproved, UserStatusRejected,
	}
}

// ParseUserStatus normalizes a submitted status value.
func ParseUserStatus(raw string) (UserStatus, bool) {
	status := UserStatus(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range UserStatuses() {
		if status == known {
			return status, true
		}
	}
	return "", false
}

// IsPresence reports whether the status is one a user may set on themselves.
func (s UserStatus) IsPresence() bool {
	return s == UserStatusOnline || s == UserStatusOffline || s == UserStatusAway
}

// IsModerationLock reports whether the status was placed by staff and blocks self presence changes.
func (s UserStatus) IsModerationLock() bool {
	switch s {
	case UserStatusBanned, UserStatusMuted, UserStatusDeleted, UserStatusPending, UserStatusRejected:
		return true
	default:
		return false
	}
}

// User represents a community member account.
type User struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Opaque identifier.

	Username string `gorm:"type:text;not null;uniqueIndex"`    // Unique Minecraft username.
	Email    string `gorm:"type:text;not null;uniqueIndex"`    // Lowercased email address.
	Password string `gorm:"type:text;not null" json:"-"`       // Bcrypt hash.
	Role     Role   `gorm:"type:text;not null;default:'user'"` // Account tier.

	Status   UserStatus `gorm:"type:text;not null;default:'OFFLINE';index"` // Lifecycle marker.
	LastSeen *time.Time `gorm:"index"`                                      // Last activity timestamp.
	JoinedAt time.Time  `gorm:"not null"`                                   // Registration timestamp.
	Playtime int64      `gorm:"not null;default:0"`                         // Minutes played.

	TOTPSecret  string `gorm:"type:text" json:"-"`     // Pending or active TOTP secret.
	TOTPEnabled bool   `gorm:"not null;default:false"` // Whether login requires a TOTP code.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// BeforeCreate assigns an identifier when absent.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

// EffectiveRole returns the parsed role, treating unknown values as the lowest tier.
func (u *User) EffectiveRole() Role {
	if u == nil {
		return RoleUser
	}
	role, _ := ParseRole(string(u.Role))
	return role
}
