package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// GenerateTOTPSecret creates a new TOTP key for accountName.
// It returns the base32 secret and the otpauth:// provisioning URL.
func GenerateTOTPSecret(issuer, accountName string) (string, string, error) {
	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if errGenerate != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", errGenerate)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTP checks code against secret at now, allowing one step of clock skew.
func ValidateTOTP(code, secret string, now time.Time) bool {
	code = strings.TrimSpace(code)
	secret = strings.TrimSpace(secret)
	if code == "" || secret == "" {
		return false
	}
	ok, errValidate := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return errValidate == nil && ok
}

// TOTPCode returns the current code for secret. Used by enrolment tests and tooling.
func TOTPCode(secret string, now time.Time) (string, error) {
	return totp.GenerateCode(secret, now.UTC())
}
