package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/apperr"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/permissions"
)

const currentUserKey = "currentUser"

// UserResolver resolves the session user of a request.
type UserResolver interface {
	RequireUser(ctx context.Context, r *http.Request) (*models.User, error)
}

// RequireSession loads the session user into the context.
// Browsers are sent to the login page; API clients get 401.
func RequireSession(resolver UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, errResolve := resolver.RequireUser(c.Request.Context(), c.Request)
		if errResolve != nil {
			if errors.Is(errResolve, apperr.ErrAuthenticationRequired) && WantsHTML(c) {
				c.Redirect(http.StatusSeeOther, LoginRedirect(c.Request.URL.RequestURI()))
				c.Abort()
				return
			}
			RespondError(c, errResolve)
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by RequireSession.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

func currentUserID(c *gin.Context) string {
	if user, ok := CurrentUser(c); ok {
		return user.ID
	}
	return ""
}

// RequireCapability rejects users whose role lacks capability.
func RequireCapability(capability permissions.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			RespondError(c, apperr.ErrAuthenticationRequired)
			return
		}
		if !permissions.UserHas(user, capability) {
			RespondError(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// CapabilityLookup maps a method and registered route path to the capability it needs.
type CapabilityLookup func(method, path string) (permissions.Capability, bool)

// RequireRouteCapability checks the capability registered for the matched route.
// Routes without an entry are denied.
func RequireRouteCapability(lookup CapabilityLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			RespondError(c, apperr.ErrAuthenticationRequired)
			return
		}
		capability, found := lookup(c.Request.Method, c.FullPath())
		if !found || !permissions.UserHas(user, capability) {
			RespondError(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

// WantsHTML reports whether the client is a browser navigation.
func WantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

// LoginRedirect builds the login URL that returns to target afterwards.
func LoginRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		target = "/"
	}
	return "/login?redirectTo=" + url.QueryEscape(target)
}
