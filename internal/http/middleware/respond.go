package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/apperr"
	log "github.com/sirupsen/logrus"
)

// GenericErrorMessage is shown for every unexpected failure.
const GenericErrorMessage = "something went wrong, please try again"

// errorMapping pairs a sentinel with its HTTP status and default message.
type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{target: apperr.ErrConflict, status: http.StatusConflict, message: "already exists"},
	{target: apperr.ErrAuthenticationRequired, status: http.StatusUnauthorized, message: "authentication required"},
	{target: apperr.ErrInvalidCredentials, status: http.StatusUnauthorized, message: "invalid email or password"},
	{target: apperr.ErrForbidden, status: http.StatusForbidden, message: "access denied"},
	{target: apperr.ErrNotFound, status: http.StatusNotFound, message: "not found"},
}

// RespondError writes the JSON response for err and aborts the chain.
// Unknown errors are logged and reported with a generic message.
func RespondError(c *gin.Context, err error) {
	if verr, ok := apperr.AsValidation(err); ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
		return
	}
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			c.AbortWithStatusJSON(mapping.status, gin.H{"error": detail(err, mapping)})
			return
		}
	}
	log.WithError(err).WithFields(log.Fields{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"request_id": GetRequestID(c),
	}).Error("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": GenericErrorMessage})
}

// detail returns the wrapped context of a sentinel ("conflict: email already registered"
// yields "email already registered"), or the default message.
func detail(err error, mapping errorMapping) string {
	if mapping.target == apperr.ErrInvalidCredentials {
		return mapping.message
	}
	prefix := mapping.target.Error() + ": "
	if msg := err.Error(); strings.HasPrefix(msg, prefix) {
		if rest := strings.TrimSpace(strings.TrimPrefix(msg, prefix)); rest != "" {
			return rest
		}
	}
	return mapping.message
}
