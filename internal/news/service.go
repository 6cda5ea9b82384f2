// Package news manages site announcements.
package news

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

// Service stores announcements.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs a Service.
func NewService(conn *gorm.DB) *Service {
	return &Service{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

// Input is the payload for creating an announcement.
type Input struct {
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Priority     bool       `json:"priority"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// Update carries the fields to change. Nil fields are left untouched.
type Update struct {
	Title        *string    `json:"title"`
	Content      *string    `json:"content"`
	Type         *string    `json:"type"`
	Status       *string    `json:"status"`
	Priority     *bool      `json:"priority"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

// Filter narrows List.
type Filter struct {
	Status string
	Type   string
	Limit  int
}

// Create stores a new announcement authored by author.
func (s *Service) Create(ctx context.Context, author *models.User, in Input) (*models.News, error) {
	if author == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	verr := apperr.NewValidationError()
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" {
		verr.Add("title", "title is required")
	}
	if content == "" {
		verr.Add("content", "content is required")
	}
	newsType := parseType(verr, in.Type)
	status := parseStatus(verr, in.Status)
	if status == models.NewsStatusScheduled && in.ScheduledFor == nil {
		verr.Add("scheduled_for", "scheduled news needs a publication time")
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}

	now := s.now()
	item := models.News{
		Title:        title,
		Content:      content,
		Type:         newsType,
		Status:       status,
		Priority:     in.Priority,
		ScheduledFor: utcPtr(in.ScheduledFor),
		AuthorID:     author.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&item).Error; errCreate != nil {
		return nil, fmt.Errorf("news: create: %w", errCreate)
	}
	item.Author = &models.User{ID: author.ID, Username: author.Username, Role: author.Role}
	return &item, nil
}

// List returns announcements newest first with their author's username and role.
func (s *Service) List(ctx context.Context, filter Filter) ([]models.News, error) {
	q := s.db.WithContext(ctx).Model(&models.News{}).Preload("Author", selectAuthor)
	verr := apperr.NewValidationError()
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		if status, ok := models.ParseNewsStatus(raw); ok {
			q = q.Where("status = ?", status)
		} else {
			verr.Add("status", "unknown news status")
		}
	}
	if raw := strings.TrimSpace(filter.Type); raw != "" {
		if newsType, ok := models.ParseNewsType(raw); ok {
			q = q.Where("type = ?", newsType)
		} else {
			verr.Add("type", "unknown news type")
		}
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []models.News
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("news: list: %w", errFind)
	}
	return rows, nil
}

// ListPublished returns what the public site shows at now: published items and
// scheduled items whose time has come. Pinned items sort first.
func (s *Service) ListPublished(ctx context.Context, now time.Time, limit int) ([]models.News, error) {
	q := s.db.WithContext(ctx).
		Model(&models.News{}).
		Preload("Author", selectAuthor).
		Where("status = ? OR (status = ? AND scheduled_for <= ?)",
			models.NewsStatusPublished, models.NewsStatusScheduled, now.UTC())
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.News
	if errFind := q.Order("priority DESC").Order("created_at DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("news: list published: %w", errFind)
	}
	return rows, nil
}

// Get returns one announcement.
func (s *Service) Get(ctx context.Context, id string) (*models.News, error) {
	var item models.News
	if errFind := s.db.WithContext(ctx).
		Preload("Author", selectAuthor).
		Where("id = ?", strings.TrimSpace(id)).
		Take(&item).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("news: get: %w", errFind)
	}
	return &item, nil
}

// Update changes an announcement.
func (s *Service) Update(ctx context.Context, id string, in Update) (*models.News, error) {
	item, errGet := s.Get(ctx, id)
	if errGet != nil {
		return nil, errGet
	}

	verr := apperr.NewValidationError()
	updates := map[string]any{"updated_at": s.now()}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			verr.Add("title", "title is required")
		}
		updates["title"] = title
	}
	if in.Content != nil {
		content := strings.TrimSpace(*in.Content)
		if content == "" {
			verr.Add("content", "content is required")
		}
		updates["content"] = content
	}
	if in.Type != nil {
		updates["type"] = parseType(verr, *in.Type)
	}
	status := item.Status
	if in.Status != nil {
		status = parseStatus(verr, *in.Status)
		updates["status"] = status
	}
	if in.Priority != nil {
		updates["priority"] = *in.Priority
	}
	scheduledFor := item.ScheduledFor
	if in.ScheduledFor != nil {
		scheduledFor = utcPtr(in.ScheduledFor)
		updates["scheduled_for"] = scheduledFor
	}
	if status == models.NewsStatusScheduled && scheduledFor == nil {
		verr.Add("scheduled_for", "scheduled news needs a publication time")
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}

	if errUpdate := s.db.WithContext(ctx).
		Model(&models.News{}).
		Where("id = ?", item.ID).
		Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("news: update: %w", errUpdate)
	}
	return s.Get(ctx, item.ID)
}

// Delete removes an announcement.
func (s *Service) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Delete(&models.News{})
	if res.Error != nil {
		return fmt.Errorf("news: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func parseType(verr *apperr.ValidationError, raw string) models.NewsType {
	if strings.TrimSpace(raw) == "" {
		verr.Add("type", "type is required")
		return ""
	}
	newsType, ok := models.ParseNewsType(raw)
	if !ok {
		verr.Add("type", "unknown news type")
	}
	return newsType
}

func parseStatus(verr *apperr.ValidationError, raw string) models.NewsStatus {
	if strings.TrimSpace(raw) == "" {
		verr.Add("status", "status is required")
		return ""
	}
	status, ok := models.ParseNewsStatus(raw)
	if !ok {
		verr.Add("status", "unknown news status")
	}
	return status
}

func selectAuthor(q *gorm.DB) *gorm.DB {
	return q.Select("id", "username", "role")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
