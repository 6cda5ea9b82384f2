package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/db"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/security"
	"gorm.io/gorm"
)

// UserUpdate carries the fields an administrator may change. Nil fields are left untouched.
type UserUpdate struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
	Password *string `json:"password"`
}

// UpdateUser applies an arbitrary subset of account fields and records which fields changed.
func (s *Service) UpdateUser(ctx context.Context, actor *models.User, userID string, in UserUpdate) (*models.User, error) {
	if actor == nil {
		return nil, apperr.ErrAuthenticationRequired
	}

	verr := apperr.NewValidationError()
	updates := map[string]any{}
	var (
		username string
		email    string
		status   models.UserStatus
	)
	if in.Username != nil {
		username = strings.TrimSpace(*in.Username)
		mergeValidation(verr, account.ValidateUsername(username))
		updates["username"] = username
	}
	if in.Email != nil {
		email = account.NormalizeEmail(*in.Email)
		mergeValidation(verr, account.ValidateEmail(email))
		updates["email"] = email
	}
	if in.Role != nil {
		role, ok := models.ParseRole(*in.Role)
		if !ok {
			verr.Add("role", "unknown role")
		}
		updates["role"] = role
	}
	if in.Status != nil {
		parsed, ok := models.ParseUserStatus(*in.Status)
		if !ok {
			verr.Add("status", "unknown user status")
		}
		status = parsed
		updates["status"] = parsed
	}
	if in.Password != nil {
		mergeValidation(verr, account.ValidatePassword(*in.Password))
	}
	if errValidate := verr.OrNil(); errValidate != nil {
		return nil, errValidate
	}
	if in.Password != nil {
		hash, errHash := security.HashPassword(*in.Password)
		if errHash != nil {
			return nil, fmt.Errorf("moderation: %w", errHash)
		}
		updates["password"] = hash
	}

	var user models.User
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ?", strings.TrimSpace(userID)).Take(&user).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("moderation: load user: %w", errFind)
		}

		if errUnique := checkUnique(tx, user.ID, username, email); errUnique != nil {
			return errUnique
		}
		if in.Status != nil && status != user.Status {
			if errPolicy := s.policy.AllowUserStatus(actor, &user, status); errPolicy != nil {
				return errPolicy
			}
		}

		changed := changedFields(&user, updates)
		if len(changed) == 0 {
			return nil
		}

		now := s.now()
		previousStatus := user.Status
		updates["updated_at"] = now
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
			if db.IsUniqueViolation(errUpdate) {
				return fmt.Errorf("%w: username or email already registered", apperr.ErrConflict)
			}
			return fmt.Errorf("moderation: update user: %w", errUpdate)
		}
		if errReload := tx.Where("id = ?", user.ID).Take(&user).Error; errReload != nil {
			return fmt.Errorf("moderation: reload user: %w", errReload)
		}

		if slices.Contains(changed, "status") {
			if errAudit := RecordAudit(tx, now, AuditEntry{
				ActorID:    actor.ID,
				Action:     models.AuditActionUserStatus,
				TargetType: models.AuditTargetUser,
				TargetID:   user.ID,
				From:       string(previousStatus),
				To:         string(user.Status),
			}); errAudit != nil {
				return errAudit
			}
		}
		return RecordAudit(tx, now, AuditEntry{
			ActorID:    actor.ID,
			Action:     models.AuditActionUserUpdate,
			TargetType: models.AuditTargetUser,
			TargetID:   user.ID,
			To:         strings.Join(changed, ","),
			Metadata:   map[string]any{"fields": changed},
		})
	})
	if errTx != nil {
		return nil, errTx
	}
	user.Password = ""
	return &user, nil
}

// checkUnique rejects a username or email already held by another account.
func checkUnique(tx *gorm.DB, userID, username, email string) error {
	if username == "" && email == "" {
		return nil
	}
	q := tx.Model(&models.User{}).Select("username", "email").Where("id <> ?", userID)
	switch {
	case username != "" && email != "":
		q = q.Where("username = ? OR email = ?", username, email)
	case username != "":
		q = q.Where("username = ?", username)
	default:
		q = q.Where("email = ?", email)
	}
	var clashes []models.User
	if errFind := q.Limit(2).Find(&clashes).Error; errFind != nil {
		return fmt.Errorf("moderation: check uniqueness: %w", errFind)
	}
	for _, row := range clashes {
		if email != "" && row.Email == email {
			return fmt.Errorf("%w: email already registered", apperr.ErrConflict)
		}
	}
	if len(clashes) > 0 {
		return fmt.Errorf("%w: username already taken", apperr.ErrConflict)
	}
	return nil
}

// changedFields returns the sorted column names whose values differ from user.
// A password is always reported as changed when present.
func changedFields(user *models.User, updates map[string]any) []string {
	changed := make([]string, 0, len(updates))
	for _, field := range []string{"username", "email", "role", "status", "password"} {
		value, ok := updates[field]
		if !ok {
			continue
		}
		switch field {
		case "username":
			if value.(string) == user.Username {
				continue
			}
		case "email":
			if value.(string) == user.Email {
				continue
			}
		case "role":
			if value.(models.Role) == user.Role {
				continue
			}
		case "status":
			if value.(models.UserStatus) == user.Status {
				continue
			}
		}
		changed = append(changed, field)
	}
	return changed
}

func mergeValidation(dst *apperr.ValidationError, err error) {
	if verr, ok := apperr.AsValidation(err); ok {
		for field, message := range verr.Fields {
			dst.Add(field, message)
		}
	}
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Search string
	Role   string
	Status string
	Limit  int
	Offset int
}

// ListUsers returns accounts, most recently seen first.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := db.ContainsPattern(s.db, search)
		q = q.Where(
			db.CaseInsensitiveLikeExpr(s.db, "username")+" OR "+db.CaseInsensitiveLikeExpr(s.db, "email"),
			pattern,
			pattern,
		)
	}
	if raw := strings.TrimSpace(filter.Role); raw != "" {
		role, ok := models.ParseRole(raw)
		if !ok {
			verr := apperr.NewValidationError()
			verr.Add("role", "unknown role")
			return nil, verr
		}
		q = q.Where("role = ?", role)
	}
	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status, ok := models.ParseUserStatus(raw)
		if !ok {
			verr := apperr.NewValidationError()
			verr.Add("status", "unknown user status")
			return nil, verr
		}
		q = q.Where("status = ?", status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []models.User
	if errFind := q.
		Order(db.NullsLastDesc(s.db, "last_seen")).
		Order("joined_at DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("moderation: list users: %w", errFind)
	}
	for i := range rows {
		rows[i].Password = ""
	}
	return rows, nil
}

// SetPresence lets a user switch between ONLINE, AWAY and OFFLINE.
// Users under a moderation marker cannot change their own status.
func (s *Service) SetPresence(ctx context.Context, user *models.User, status models.UserStatus) (*models.User, error) {
	if user == nil {
		return nil, apperr.ErrAuthenticationRequired
	}
	next, ok := models.ParseUserStatus(string(status))
	if !ok || !next.IsPresence() {
		verr := apperr.NewValidationError()
		verr.Add("status", "status must be ONLINE, AWAY or OFFLINE")
		return nil, verr
	}

	var current models.User
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ?", user.ID).Take(&current).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("moderation: load user: %w", errFind)
		}
		if current.Status.IsModerationLock() {
			return fmt.Errorf("%w: account status %s cannot be changed by its owner", apperr.ErrForbidden, current.Status)
		}

		now := s.now()
		previous := current.Status
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", current.ID).Updates(map[string]any{
			"status":     next,
			"last_seen":  now,
			"updated_at": now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("moderation: update presence: %w", errUpdate)
		}
		current.Status = next
		current.LastSeen = &now
		current.UpdatedAt = now

		return RecordAudit(tx, now, AuditEntry{
			ActorID:    current.ID,
			Action:     models.AuditActionPresence,
			TargetType: models.AuditTargetUser,
			TargetID:   current.ID,
			From:       string(previous),
			To:         string(next),
		})
	})
	if errTx != nil {
		return nil, errTx
	}
	current.Password = ""
	return &current, nil
}
