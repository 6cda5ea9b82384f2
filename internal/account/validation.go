package account

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/qwmc/qwmc-web/internal/apperr"
)

// usernamePattern is the Minecraft Java edition name format.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,16}$`)

// Password length bounds. The upper bound is the bcrypt input limit in bytes.
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if errRegister := v.RegisterValidation("mcname", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); errRegister != nil {
		panic(errRegister)
	}
	if errRegister := v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPasswordBytes
	}); errRegister != nil {
		panic(errRegister)
	}
	return v
}

// RegistrationInput is the payload of the sign-up form.
type RegistrationInput struct {
	Username        string `json:"username" validate:"required,mcname"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,bcryptlen"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	AcceptTerms     bool   `json:"accept_terms" validate:"required"`
	Remember        bool   `json:"remember"`
}

// LoginInput is the payload of the sign-in form.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
	TOTPCode string `json:"totp_code"`
}

// Normalize trims fields and lowercases the email in place.
func (in *RegistrationInput) Normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)
}

// Normalize trims fields and lowercases the email in place.
func (in *LoginInput) Normalize() {
	in.Email = NormalizeEmail(in.Email)
	in.TOTPCode = strings.TrimSpace(in.TOTPCode)
}

// ValidateRegistration reports every field problem in in.
func ValidateRegistration(in RegistrationInput) error {
	return validateStruct(in)
}

// ValidateLogin reports every field problem in in.
func ValidateLogin(in LoginInput) error {
	return validateStruct(in)
}

// ValidateUsername checks a single username value.
func ValidateUsername(username string) error {
	if errVar := validate.Var(username, "required,mcname"); errVar != nil {
		verr := apperr.NewValidationError()
		verr.Add("username", messageFor("username", firstTag(errVar)))
		return verr
	}
	return nil
}

// ValidateEmail checks a single email value.
func ValidateEmail(email string) error {
	if errVar := validate.Var(email, "required,email"); errVar != nil {
		verr := apperr.NewValidationError()
		verr.Add("email", messageFor("email", firstTag(errVar)))
		return verr
	}
	return nil
}

// ValidatePassword checks a single password value.
func ValidatePassword(password string) error {
	tag := ""
	switch {
	case len([]rune(password)) < MinPasswordLength:
		tag = "min"
	case len(password) > MaxPasswordBytes:
		tag = "bcryptlen"
	default:
		return nil
	}
	verr := apperr.NewValidationError()
	verr.Add("password", messageFor("password", tag))
	return verr
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateStruct(in any) error {
	errValidate := validate.Struct(in)
	if errValidate == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(errValidate, &fieldErrs) {
		return errValidate
	}
	verr := apperr.NewValidationError()
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), messageFor(fe.Field(), fe.Tag()))
	}
	return verr.OrNil()
}

func firstTag(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Tag()
	}
	return ""
}

func messageFor(field, tag string) string {
	switch field {
	case "username":
		if tag == "required" {
			return "username is required"
		}
		return "username must be 3-16 letters, numbers or underscores"
	case "email":
		if tag == "required" {
			return "email is required"
		}
		return "enter a valid email address"
	case "password":
		switch tag {
		case "required":
			return "password is required"
		case "bcryptlen":
			return "password must be at most 72 bytes"
		}
		return "password must be at least 8 characters"
	case "confirm_password":
		if tag == "required" {
			return "please confirm your password"
		}
		return "passwords do not match"
	case "accept_terms":
		return "you must accept the terms of service"
	default:
		return field + " is invalid"
	}
}
