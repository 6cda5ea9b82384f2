package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ApplicationType is the form a player submitted.
type ApplicationType string

// ApplicationType constants.
const (
	ApplicationStaff     ApplicationType = "staff"
	ApplicationBuilder   ApplicationType = "builder"
	ApplicationYouTuber  ApplicationType = "youtuber"
	ApplicationBanAppeal ApplicationType = "ban_appeal"
)

// ApplicationTypes lists every application form.
func ApplicationTypes() []ApplicationType {
	return []ApplicationType{ApplicationStaff, ApplicationBuilder, ApplicationYouTuber, ApplicationBanAppeal}
}

// ParseApplicationType normalizes a submitted form name. "ban-appeal" is accepted.
func ParseApplicationType(raw string) (ApplicationType, bool) {
	value := ApplicationType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	for _, known := range ApplicationTypes() {
		if value == known {
			return value, true
		}
	}
	return "", false
}

// ParseApplicationDecision accepts the statuses a review may set.
func ParseApplicationDecision(raw string) (UserStatus, bool) {
	status, ok := ParseUserStatus(raw)
	if !ok || (status != UserStatusApproved && status != UserStatusRejected) {
		return "", false
	}
	return status, true
}

// Application is a submitted staff, builder or creator application, or a ban appeal.
// Status moves from PENDING to APPROVED or REJECTED exactly once.
type Application struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Opaque identifier.

	Type        ApplicationType `gorm:"type:text;not null;index:idx_applications_applicant_type,priority:2"`        // Form name.
	ApplicantID string          `gorm:"type:varchar(36);not null;index:idx_applications_applicant_type,priority:1"` // Submitting user ID.
	Applicant   *User           `gorm:"foreignKey:ApplicantID"`                                                     // Submitting user.
	Answers     datatypes.JSON  `gorm:"type:jsonb"`                                                                 // Field id to answer.
	Status      UserStatus      `gorm:"type:text;not null;index"`                                                   // PENDING, APPROVED or REJECTED.

	ReviewerID *string    `gorm:"type:varchar(36)"`      // Reviewing staff member ID.
	Reviewer   *User      `gorm:"foreignKey:ReviewerID"` // Reviewing staff member.
	ReviewNote string     `gorm:"type:text"`             // Reviewer comment shown to the applicant.
	ReviewedAt *time.Time // Decision timestamp.

	CreatedAt time.Time `gorm:"not null;index"` // Submission timestamp.
	UpdatedAt time.Time `gorm:"not null"`       // Last change timestamp.
}

// BeforeCreate assigns an identifier when absent.
func (a *Application) BeforeCreate(_ *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
