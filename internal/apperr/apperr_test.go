package apperr

import (
	"fmt"
	"testing"
)

func TestValidationErrorKeepsFirstMessage(t *testing.T) {
	verr := NewValidationError()
	verr.Add("username", "too short")
	verr.Add("username", "invalid characters")
	verr.Add("email", "invalid email")

	if got := verr.Fields["username"]; got != "too short" {
		t.Fatalf("expected first message to win, got %q", got)
	}
	if verr.Error() != "validation failed: email, username" {
		t.Fatalf("unexpected error string %q", verr.Error())
	}
}

func TestValidationErrorOrNil(t *testing.T) {
	if err := NewValidationError().OrNil(); err != nil {
		t.Fatalf("expected nil for empty validation error, got %v", err)
	}
	verr := NewValidationError()
	verr.Add("title", "required")
	wrapped := fmt.Errorf("create ticket: %w", verr.OrNil())
	got, ok := AsValidation(wrapped)
	if !ok {
		t.Fatalf("expected AsValidation to unwrap")
	}
	if got.Fields["title"] != "required" {
		t.Fatalf("unexpected fields %v", got.Fields)
	}
}
