package account

import (
	"strings"
	"testing"

	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegistration() RegistrationInput {
	return RegistrationInput{
		Username:        "Steve",
		Email:           "steve@example.com",
		Password:        "password1",
		ConfirmPassword: "password1",
		AcceptTerms:     true,
	}
}

func TestValidateRegistrationAcceptsValidInput(t *testing.T) {
	assert.NoError(t, ValidateRegistration(validRegistration()))
}

func TestValidateRegistrationUsernameBounds(t *testing.T) {
	cases := map[string]bool{
		"ab":                    false,
		"abc":                   true,
		strings.Repeat("a", 16): true,
		strings.Repeat("a", 17): false,
		"bad name":              false,
		"dash-name":             false,
		"under_score":           true,
	}
	for username, ok := range cases {
		in := validRegistration()
		in.Username = username
		err := ValidateRegistration(in)
		if ok {
			assert.NoError(t, err, "username %q", username)
			continue
		}
		verr, isValidation := apperr.AsValidation(err)
		require.True(t, isValidation, "username %q", username)
		assert.Contains(t, verr.Fields, "username")
	}
}

func TestValidateRegistrationReportsEveryField(t *testing.T) {
	err := ValidateRegistration(RegistrationInput{
		Username:        "x",
		Email:           "not-an-email",
		Password:        "short",
		ConfirmPassword: "different",
	})
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "username must be 3-16 letters, numbers or underscores", verr.Fields["username"])
	assert.Equal(t, "enter a valid email address", verr.Fields["email"])
	assert.Equal(t, "password must be at least 8 characters", verr.Fields["password"])
	assert.Equal(t, "passwords do not match", verr.Fields["confirm_password"])
	assert.Equal(t, "you must accept the terms of service", verr.Fields["accept_terms"])
}

func TestValidatePasswordLength(t *testing.T) {
	assert.Error(t, ValidatePassword("1234567"))
	assert.NoError(t, ValidatePassword("12345678"))
	assert.NoError(t, ValidatePassword(strings.Repeat("a", MaxPasswordBytes)))

	verr, ok := apperr.AsValidation(ValidatePassword(strings.Repeat("a", MaxPasswordBytes+1)))
	require.True(t, ok)
	assert.Equal(t, "password must be at most 72 bytes", verr.Fields["password"])

	// Multi-byte runes count by their encoded size.
	_, ok = apperr.AsValidation(ValidatePassword(strings.Repeat("é", 40)))
	assert.True(t, ok)
}

func TestValidateRegistrationRejectsOverlongPassword(t *testing.T) {
	in := validRegistration()
	in.Password = strings.Repeat("p", 80)
	in.ConfirmPassword = in.Password
	verr, ok := apperr.AsValidation(ValidateRegistration(in))
	require.True(t, ok)
	assert.Equal(t, map[string]string{"password": "password must be at most 72 bytes"}, verr.Fields)
}

func TestNormalizeRegistration(t *testing.T) {
	in := RegistrationInput{Username: "  Steve ", Email: " STEVE@Example.com "}
	in.Normalize()
	assert.Equal(t, "Steve", in.Username)
	assert.Equal(t, "steve@example.com", in.Email)
}

func TestValidateLoginRequiresFields(t *testing.T) {
	verr, ok := apperr.AsValidation(ValidateLogin(LoginInput{}))
	require.True(t, ok)
	assert.Equal(t, "email is required", verr.Fields["email"])
	assert.Equal(t, "password is required", verr.Fields["password"])
}
