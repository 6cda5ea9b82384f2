// Package account owns user credentials: registration, login checks and two-factor enrolment.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/db"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/security"
	"gorm.io/gorm"
)

// ErrTOTPRequired indicates the account needs a valid two-factor code to sign in.
var ErrTOTPRequired = errors.New("two-factor code required")

// Store persists and verifies user accounts.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs a Store.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

// FindByID loads a user by identifier.
func (s *Store) FindByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.ErrNotFound
	}
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("account: find user: %w", errFind)
	}
	return &user, nil
}

// FindByEmail loads a user by normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if errFind := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("account: find user by email: %w", errFind)
	}
	return &user, nil
}

// VerifyCredentials returns the account for email when password matches.
// Unknown emails and wrong passwords both yield apperr.ErrInvalidCredentials.
// The returned user carries no password hash.
func (s *Store) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, errFind := s.FindByEmail(ctx, email)
	if errFind != nil {
		if errors.Is(errFind, apperr.ErrNotFound) {
			security.BurnPasswordCheck(password)
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, errFind
	}
	if !security.CheckPassword(user.Password, password) {
		return nil, apperr.ErrInvalidCredentials
	}
	user.Password = ""
	return user, nil
}

// CreateAccount registers a new member with the default role and status.
// Input must already be validated.
func (s *Store) CreateAccount(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)

	var existing []models.User
	if errFind := s.db.WithContext(ctx).
		Select("username", "email").
		Where("username = ? OR email = ?", username, email).
		Limit(2).
		Find(&existing).Error; errFind != nil {
		return nil, fmt.Errorf("account: check existing: %w", errFind)
	}
	if len(existing) > 0 {
		for _, row := range existing {
			if row.Email == email {
				return nil, fmt.Errorf("%w: email already registered", apperr.ErrConflict)
			}
		}
		return nil, fmt.Errorf("%w: username already taken", apperr.ErrConflict)
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return nil, fmt.Errorf("account: %w", errHash)
	}

	now := s.now()
	user := models.User{
		Username:  username,
		Email:     email,
		Password:  hash,
		Role:      models.RoleUser,
		Status:    models.UserStatusOffline,
		JoinedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return nil, fmt.Errorf("%w: username or email already registered", apperr.ErrConflict)
		}
		return nil, fmt.Errorf("account: create user: %w", errCreate)
	}
	user.Password = ""
	return &user, nil
}

// Login verifies credentials and, when enrolled, the two-factor code, then records last_seen.
func (s *Store) Login(ctx context.Context, in LoginInput) (*models.User, error) {
	user, errVerify := s.VerifyCredentials(ctx, in.Email, in.Password)
	if errVerify != nil {
		return nil, errVerify
	}
	if user.TOTPEnabled && !security.ValidateTOTP(in.TOTPCode, user.TOTPSecret, s.now()) {
		return nil, ErrTOTPRequired
	}
	if errTouch := s.MarkSeen(ctx, user.ID); errTouch != nil {
		return nil, errTouch
	}
	return user, nil
}

// MarkSeen sets last_seen to now.
func (s *Store) MarkSeen(ctx context.Context, userID string) error {
	now := s.now()
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"last_seen": now, "updated_at": now}).Error; errUpdate != nil {
		return fmt.Errorf("account: mark seen: %w", errUpdate)
	}
	return nil
}

// TOTPEnrollment is returned when a user starts two-factor setup.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// PrepareTOTP stores a fresh pending secret for the user.
func (s *Store) PrepareTOTP(ctx context.Context, userID, issuer string) (*TOTPEnrollment, error) {
	user, errFind := s.FindByID(ctx, userID)
	if errFind != nil {
		return nil, errFind
	}
	if user.TOTPEnabled {
		return nil, fmt.Errorf("%w: two-factor already enabled", apperr.ErrConflict)
	}
	secret, url, errGenerate := security.GenerateTOTPSecret(issuer, user.Email)
	if errGenerate != nil {
		return nil, fmt.Errorf("account: %w", errGenerate)
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"totp_secret": secret, "updated_at": s.now()}).Error; errUpdate != nil {
		return nil, fmt.Errorf("account: store totp secret: %w", errUpdate)
	}
	return &TOTPEnrollment{Secret: secret, URL: url}, nil
}

// ConfirmTOTP enables two-factor login once code matches the pending secret.
func (s *Store) ConfirmTOTP(ctx context.Context, userID, code string) error {
	user, errFind := s.FindByID(ctx, userID)
	if errFind != nil {
		return errFind
	}
	if user.TOTPEnabled {
		return fmt.Errorf("%w: two-factor already enabled", apperr.ErrConflict)
	}
	if user.TOTPSecret == "" {
		return fmt.Errorf("%w: two-factor setup not started", apperr.ErrConflict)
	}
	if !security.ValidateTOTP(code, user.TOTPSecret, s.now()) {
		return invalidCode()
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"totp_enabled": true, "updated_at": s.now()}).Error; errUpdate != nil {
		return fmt.Errorf("account: enable totp: %w", errUpdate)
	}
	return nil
}

// DisableTOTP turns off two-factor login after checking a current code.
func (s *Store) DisableTOTP(ctx context.Context, userID, code string) error {
	user, errFind := s.FindByID(ctx, userID)
	if errFind != nil {
		return errFind
	}
	if !user.TOTPEnabled {
		return fmt.Errorf("%w: two-factor not enabled", apperr.ErrConflict)
	}
	if !security.ValidateTOTP(code, user.TOTPSecret, s.now()) {
		return invalidCode()
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"totp_enabled": false, "totp_secret": "", "updated_at": s.now()}).Error; errUpdate != nil {
		return fmt.Errorf("account: disable totp: %w", errUpdate)
	}
	return nil
}

func invalidCode() error {
	verr := apperr.NewValidationError()
	verr.Add("code", "invalid two-factor code")
	return verr
}
