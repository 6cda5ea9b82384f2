package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/http/api/views"
	"github.com/qwmc/qwmc-web/internal/http/middleware"
	"github.com/qwmc/qwmc-web/internal/metrics"
	"github.com/qwmc/qwmc-web/internal/permissions"
	"github.com/qwmc/qwmc-web/internal/ratelimit"
	"github.com/qwmc/qwmc-web/internal/session"
	log "github.com/sirupsen/logrus"
)

// AuthHandler serves sign-up, sign-in and sign-out.
type AuthHandler struct {
	users    *account.Store     // Account store.
	sessions *session.Manager   // Cookie issuer.
	limiter  *ratelimit.Manager // Login throttling.
	metrics  *metrics.Metrics   // Optional auth counters.
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *account.Store, sessions *session.Manager, limiter *ratelimit.Manager, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, limiter: limiter, metrics: m}
}

// Register creates an account and signs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var body account.RegistrationInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	body.Normalize()
	if errValidate := account.ValidateRegistration(body); errValidate != nil {
		h.metrics.AuthEvent("register", "invalid")
		middleware.RespondError(c, errValidate)
		return
	}

	ctx := c.Request.Context()
	user, errCreate := h.users.CreateAccount(ctx, body.Username, body.Email, body.Password)
	if errCreate != nil {
		h.metrics.AuthEvent("register", "rejected")
		middleware.RespondError(c, errCreate)
		return
	}
	if !h.startSession(c, user.ID, body.Remember) {
		return
	}
	h.metrics.AuthEvent("register", "success")
	c.JSON(http.StatusCreated, views.User(user))
}

// Login verifies credentials and issues session cookies.
func (h *AuthHandler) Login(c *gin.Context) {
	var body account.LoginInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	body.Normalize()
	if errValidate := account.ValidateLogin(body); errValidate != nil {
		middleware.RespondError(c, errValidate)
		return
	}

	ctx := c.Request.Context()
	result, errLimit := h.limiter.Allow(ctx, ratelimit.LoginKey(c.ClientIP()))
	if errLimit != nil {
		log.WithError(errLimit).Warn("login rate limit check failed")
	} else if !result.Allowed {
		h.metrics.AuthEvent("login", "throttled")
		if wait := time.Until(result.Reset); wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, please try again later"})
		return
	}

	user, errLogin := h.users.Login(ctx, body)
	if errLogin != nil {
		h.metrics.AuthEvent("login", "failure")
		if errors.Is(errLogin, account.ErrTOTPRequired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errLogin.Error(), "totp_required": true})
			return
		}
		middleware.RespondError(c, errLogin)
		return
	}
	if !h.startSession(c, user.ID, body.Remember) {
		return
	}
	h.metrics.AuthEvent("login", "success")
	c.JSON(http.StatusOK, views.User(user))
}

// Logout clears both session cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	for _, cookie := range h.sessions.DestroySession() {
		http.SetCookie(c.Writer, cookie)
	}
	h.metrics.AuthEvent("logout", "success")
	if middleware.WantsHTML(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the signed-in account and its capabilities.
func (h *AuthHandler) Me(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	out := views.User(user)
	out["capabilities"] = permissions.For(user.EffectiveRole())
	c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) startSession(c *gin.Context, userID string, remember bool) bool {
	cookies, errSession := h.sessions.CreateSession(c.Request.Context(), userID, remember)
	if errSession != nil {
		middleware.RespondError(c, errSession)
		return false
	}
	for _, cookie := range cookies {
		http.SetCookie(c.Writer, cookie)
	}
	return true
}
