package views

import (
	"testing"

	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAuditLogMetadata(t *testing.T) {
	decoded := AuditLog(&models.AuditLog{Metadata: []byte(`{"fields":["email"]}`)})
	assert.Equal(t, map[string]any{"fields": []any{"email"}}, decoded["metadata"])

	raw := AuditLog(&models.AuditLog{Metadata: []byte(`not json`)})
	assert.Equal(t, "not json", raw["metadata"])

	empty := AuditLog(&models.AuditLog{})
	assert.Nil(t, empty["metadata"])
}

func TestApplicationAnswers(t *testing.T) {
	view := Application(&models.Application{Answers: []byte(`{"discord":"alice"}`)})
	assert.Equal(t, map[string]string{"discord": "alice"}, view["answers"])

	broken := Application(&models.Application{Answers: []byte(`[1,2]`)})
	assert.Equal(t, map[string]string{}, broken["answers"])
	assert.Nil(t, broken["reviewer"])
}
