package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// NewsType classifies announcements.
type NewsType string

// NewsType constants.
const (
	NewsTypeGeneral     NewsType = "general"
	NewsTypeEvent       NewsType = "event"
	NewsTypeUpdate      NewsType = "update"
	NewsTypeMaintenance NewsType = "maintenance"
)

// NewsStatus is the publication state of an announcement.
type NewsStatus string

// NewsStatus constants.
const (
	NewsStatusDraft     NewsStatus = "draft"
	NewsStatusPublished NewsStatus = "published"
	NewsStatusScheduled NewsStatus = "scheduled"
)

// ParseNewsType normalizes a submitted news type.
func ParseNewsType(raw string) (NewsType, bool) {
	value := NewsType(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case NewsTypeGeneral, NewsTypeEvent, NewsTypeUpdate, NewsTypeMaintenance:
		return value, true
	}
	return "", false
}

// ParseNewsStatus normalizes a submitted news status.
func ParseNewsStatus(raw string) (NewsStatus, bool) {
	value := NewsStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case NewsStatusDraft, NewsStatusPublished, NewsStatusScheduled:
		return value, true
	}
	return "", false
}

// News is a site announcement.
type News struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Opaque identifier.

	Title        string     `gorm:"type:text;not null"`              // Headline.
	Content      string     `gorm:"type:text;not null"`              // Body text.
	Type         NewsType   `gorm:"type:text;not null;index"`        // Announcement kind.
	Status       NewsStatus `gorm:"type:text;not null;index"`        // Publication state.
	Priority     bool       `gorm:"not null;default:false"`          // Pinned flag.
	ScheduledFor *time.Time `gorm:"index"`                           // Publication time for scheduled items.
	AuthorID     string     `gorm:"type:varchar(36);not null;index"` // Author user ID.
	Author       *User      `gorm:"foreignKey:AuthorID"`             // Author record.

	CreatedAt time.Time `gorm:"not null;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null"`       // Last update timestamp.
}

// TableName returns the news table name.
func (News) TableName() string { return "news" }

// BeforeCreate assigns an identifier when absent.
func (n *News) BeforeCreate(_ *gorm.DB) error {
	assignID(&n.ID)
	return nil
}
