// Package applications stores staff, builder and creator applications and ban appeals.
package applications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"github.com/qwmc/qwmc-web/internal/permissions"
	"github.com/qwmc/qwmc-web/internal/punishments"
	"gorm.io/gorm"
)

var validate = validator.New()

// Service stores applications and applies review decisions.
type Service struct {
	db          *gorm.DB
	punishments *punishments.Service
	now         func() time.Time
}

// NewService constructs a Service. Approved ban appeals lift bans through pun.
func NewService(conn *gorm.DB, pun *punishments.Service) *Service {
	return &Service{
		db:          conn,
		punishments: pun,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SubmitInput is a filled-in form.
type SubmitInput struct {
	Type    string            `json:"-"`
	Answers map[string]string `json:"answers"`
}

// ReviewInput is a staff decision.
type ReviewInput struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// Filter narrows List.
type Filter struct {
	Type   string
	Status string
	Limit  int
}

// Submit stores a PENDING application. A player may hold one pending
// application per type, and may appeal only while a ban is active.
func (s *Service) Submit(ctx context.Context, applicant *models.User, in SubmitInput) (*models.Application, error) {
	if applicant == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	kind, ok := models.ParseApplicationType(in.Type)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	form, _ := FormFor(kind)
	answers, errAnswers := checkAnswers(form, in.Answers)
	if errAnswers != nil {
		return nil, errAnswers
	}
	payload, errMarshal := json.Marshal(answers)
	if errMarshal != nil {
		return nil, fmt.Errorf("applications: encode answers: %w", errMarshal)
	}

	var application models.Application
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending int64
		if errCount := tx.Model(&models.Application{}).
			Where("applicant_id = ? AND type = ? AND status = ?", applicant.ID, kind, models.UserStatusPending).
			Count(&pending).Error; errCount != nil {
			return fmt.Errorf("applications: count pending: %w", errCount)
		}
		if pending > 0 {
			return fmt.Errorf("%w: an application of this type is already pending", apperr.ErrConflict)
		}

		now := s.now()
		if kind == models.ApplicationBanAppeal {
			var bans int64
			if errCount := tx.Model(&models.Punishment{}).
				Where("target_user_id = ? AND type = ?", applicant.ID, models.PunishmentBan).
				Where("revoked_at IS NULL").
				Where("expires_at IS NULL OR expires_at > ?", now).
				Count(&bans).Error; errCount != nil {
				return fmt.Errorf("applications: count bans: %w", errCount)
			}
			if bans == 0 {
				return fmt.Errorf("%w: no active ban to appeal", apperr.ErrConflict)
			}
		}

		application = models.Application{
			Type:        kind,
			ApplicantID: applicant.ID,
			Answers:     payload,
			Status:      models.UserStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if errCreate := tx.Create(&application).Error; errCreate != nil {
			return fmt.Errorf("applications: create: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &application, nil
}

// checkAnswers validates answers against form and drops unknown keys.
func checkAnswers(form Form, raw map[string]string) (map[string]string, error) {
	verr := apperr.NewValidationError()
	answers := make(map[string]string, len(form.Fields))
	for _, field := range form.Fields {
		value := strings.TrimSpace(raw[field.ID])
		if value == "" {
			if field.Required {
				verr.Add(field.ID, field.Label+" is required")
			}
			continue
		}
		if utf8.RuneCountInString(value) > maxAnswerLength {
			verr.Add(field.ID, fmt.Sprintf("answer must be at most %d characters", maxAnswerLength))
			continue
		}
		switch field.Kind {
		case FieldNumber:
			if validate.Var(value, "number") != nil {
				verr.Add(field.ID, "answer must be a number")
				continue
			}
		case FieldURL:
			if validate.Var(value, "url") != nil {
				verr.Add(field.ID, "answer must be a link")
				continue
			}
		case FieldSelect:
			if !slices.Contains(field.Options, value) {
				verr.Add(field.ID, "answer must be one of the listed options")
				continue
			}
		}
		answers[field.ID] = value
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}
	return answers, nil
}

// ListForUser returns the applicant's own applications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Application, error) {
	var rows []models.Application
	if errFind := s.db.WithContext(ctx).
		Preload("Reviewer", selectPublicUser).
		Where("applicant_id = ?", strings.TrimSpace(userID)).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("applications: list own: %w", errFind)
	}
	return rows, nil
}

// List returns applications for the review queue, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]models.Application, error) {
	q := s.db.WithContext(ctx).Model(&models.Application{})
	verr := apperr.NewValidationError()
	if raw := strings.TrimSpace(filter.Type); raw != "" {
		if kind, ok := models.ParseApplicationType(raw); ok {
			q = q.Where("type = ?", kind)
		} else {
			verr.Add("type", "unknown application type")
		}
	}
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status, ok := models.ParseUserStatus(raw)
		if ok && (status == models.UserStatusPending || status == models.UserStatusApproved || status == models.UserStatusRejected) {
			q = q.Where("status = ?", status)
		} else {
			verr.Add("status", "unknown application status")
		}
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []models.Application
	if errFind := q.Preload("Applicant", selectPublicUser).
		Preload("Reviewer", selectPublicUser).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("applications: list: %w", errFind)
	}
	return rows, nil
}

// Get returns one application to its applicant or to a reviewer.
func (s *Service) Get(ctx context.Context, id string, requester *models.User) (*models.Application, error) {
	if requester == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	var application models.Application
	errFind := s.db.WithContext(ctx).
		Preload("Applicant", selectPublicUser).
		Preload("Reviewer", selectPublicUser).
		Where("id = ?", strings.TrimSpace(id)).
		Take(&application).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("applications: load: %w", errFind)
	}
	if application.ApplicantID != requester.ID && !permissions.UserHas(requester, permissions.ApplicationsReview) {
		return nil, apperr.ErrForbidden
	}
	return &application, nil
}

// Review decides a PENDING application. Approving a ban appeal revokes the
// applicant's active bans in the same transaction.
func (s *Service) Review(ctx context.Context, actor *models.User, id string, in ReviewInput) (*models.Application, error) {
	if actor == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	if !permissions.UserHas(actor, permissions.ApplicationsReview) {
		return nil, apperr.ErrForbidden
	}
	decision, ok := models.ParseApplicationDecision(in.Status)
	if !ok {
		verr := apperr.NewValidationError()
		verr.Add("status", "status must be APPROVED or REJECTED")
		return nil, verr
	}
	note := strings.TrimSpace(in.Note)

	var application models.Application
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ?", strings.TrimSpace(id)).Take(&application).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("applications: load: %w", errFind)
		}
		if application.Status != models.UserStatusPending {
			return fmt.Errorf("%w: application already reviewed", apperr.ErrConflict)
		}

		now := s.now()
		res := tx.Model(&models.Application{}).
			Where("id = ? AND status = ?", application.ID, models.UserStatusPending).
			Updates(map[string]any{
				"status":      decision,
				"reviewer_id": actor.ID,
				"review_note": note,
				"reviewed_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("applications: review: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: application already reviewed", apperr.ErrConflict)
		}
		application.Status = decision
		reviewerID := actor.ID
		application.ReviewerID = &reviewerID
		application.ReviewNote = note
		application.ReviewedAt = &now
		application.UpdatedAt = now

		if errAudit := moderation.RecordAudit(tx, now, moderation.AuditEntry{
			ActorID:    actor.ID,
			Action:     models.AuditActionApplicationReview,
			TargetType: models.AuditTargetApplication,
			TargetID:   application.ID,
			From:       string(models.UserStatusPending),
			To:         string(decision),
			Metadata:   map[string]any{"type": string(application.Type), "applicant_id": application.ApplicantID},
		}); errAudit != nil {
			return errAudit
		}

		if application.Type != models.ApplicationBanAppeal || decision != models.UserStatusApproved {
			return nil
		}
		_, errRevoke := s.punishments.WithTx(tx).RevokeActive(ctx, actor, application.ApplicantID, models.PunishmentBan)
		return errRevoke
	})
	if errTx != nil {
		return nil, errTx
	}
	return &application, nil
}

func selectPublicUser(q *gorm.DB) *gorm.DB {
	return q.Select("id", "username", "role", "status")
}
