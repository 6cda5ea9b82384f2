package front

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwmc/qwmc-web/internal/access"
	"github.com/qwmc/qwmc-web/internal/account"
	"github.com/qwmc/qwmc-web/internal/applications"
	"github.com/qwmc/qwmc-web/internal/config"
	"github.com/qwmc/qwmc-web/internal/db"
	"github.com/qwmc/qwmc-web/internal/models"
	"github.com/qwmc/qwmc-web/internal/moderation"
	"github.com/qwmc/qwmc-web/internal/news"
	"github.com/qwmc/qwmc-web/internal/punishments"
	"github.com/qwmc/qwmc-web/internal/ratelimit"
	"github.com/qwmc/qwmc-web/internal/session"
	"github.com/qwmc/qwmc-web/internal/tickets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router *gin.Engine
	users  *account.Store
	news   *news.Service
}

func newTestEnv(t *testing.T, loginLimit int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open(db.BuildSQLiteDSN(filepath.Join(t.TempDir(), "front.db")))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	users := account.NewStore(conn)
	sessions := session.NewManager(users, config.SessionConfig{Secret: "front-test-secret", TTL: time.Hour})
	limiter := ratelimit.NewManager(func() ratelimit.SettingsConfig {
		return ratelimit.SettingsConfig{Limit: loginLimit, Window: time.Minute}
	}, nil, nil)
	newsSvc := news.NewService(conn)
	mod := moderation.NewService(conn)

	router := gin.New()
	RegisterFrontRoutes(router, Services{
		Guard:        access.NewGuard(sessions, users),
		Users:        users,
		Sessions:     sessions,
		Limiter:      limiter,
		Moderation:   mod,
		Tickets:      tickets.NewService(conn),
		News:         newsSvc,
		Applications: applications.NewService(conn, punishments.NewService(conn, mod)),
	})
	return &testEnv{router: router, users: users, news: newsSvc}
}

type client struct {
	env     *testEnv
	cookies map[string]*http.Cookie
}

func (e *testEnv) client() *client {
	return &client{env: e, cookies: map[string]*http.Cookie{}}
}

func (cl *client) do(t *testing.T, method, path string, body any, accept string) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)
	for _, c := range cl.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	cl.env.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(cl.cookies, c.Name)
			continue
		}
		cl.cookies[c.Name] = c
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func registration(username string) gin.H {
	return gin.H{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "diamonds123",
		"confirm_password": "diamonds123",
		"accept_terms":     true,
	}
}

func TestRegisterIssuesCookies(t *testing.T) {
	env := newTestEnv(t, 10)
	cl := env.client()

	rec := cl.do(t, http.MethodPost, "/api/auth/register", registration("Alice"), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, cl.cookies, session.CookieName)
	assert.Contains(t, cl.cookies, session.UserInfoCookieName)
	body := decode(t, rec)
	assert.Equal(t, "Alice", body["username"])
	assert.NotContains(t, body, "password")

	rec = cl.do(t, http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user", decode(t, rec)["role"])
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, 10)
	cl := env.client()

	rec := cl.do(t, http.MethodPost, "/api/auth/register", gin.H{
		"username":         "a",
		"email":            "nope",
		"password":         "short",
		"confirm_password": "other",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs, _ := decode(t, rec)["errors"].(map[string]any)
	for _, field := range []string{"username", "email", "password", "confirm_password", "accept_terms"} {
		assert.Contains(t, errs, field)
	}
	assert.Empty(t, cl.cookies)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, 10)
	require.Equal(t, http.StatusCreated, env.client().do(t, http.MethodPost, "/api/auth/register", registration("Alice"), "").Code)

	dup := registration("Alicia")
	dup["email"] = "ALICE@example.com"
	rec := env.client().do(t, http.MethodPost, "/api/auth/register", dup, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email already registered", decode(t, rec)["error"])
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, 10)
	require.Equal(t, http.StatusCreated, env.client().do(t, http.MethodPost, "/api/auth/register", registration("Alice"), "").Code)

	cl := env.client()
	rec := cl.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "alice@example.com", "password": "wrong-pass"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid email or password", decode(t, rec)["error"])

	rec = cl.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "diamonds123"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid email or password", decode(t, rec)["error"])

	rec = cl.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": " Alice@Example.com ", "password": "diamonds123", "remember": true}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, cl.cookies, session.CookieName)
	assert.Equal(t, int(session.RememberDuration.Seconds()), cl.cookies[session.CookieName].MaxAge)
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	cl := env.client()
	creds := gin.H{"email": "alice@example.com", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		rec := cl.do(t, http.MethodPost, "/api/auth/login", creds, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := cl.do(t, http.MethodPost, "/api/auth/login", creds, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, 10)
	cl := env.client()
	require.Equal(t, http.StatusCreated, cl.do(t, http.MethodPost, "/api/auth/register", registration("Alice"), "").Code)

	rec := cl.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, cl.cookies)

	rec = cl.do(t, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = cl.do(t, http.MethodPost, "/api/auth/logout", nil, "text/html")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestBrowserWithoutSessionIsRedirected(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := env.client().do(t, http.MethodGet, "/api/tickets", nil, "text/html,application/xhtml+xml")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?redirectTo=%2Fapi%2Ftickets", rec.Header().Get("Location"))
}

func TestTicketLifecycle(t *testing.T) {
	env := newTestEnv(t, 10)
	alice := env.client()
	bob := env.client()
	require.Equal(t, http.StatusCreated, alice.do(t, http.MethodPost, "/api/auth/register", registration("Alice"), "").Code)
	require.Equal(t, http.StatusCreated, bob.do(t, http.MethodPost, "/api/auth/register", registration("Bob"), "").Code)

	rec := alice.do(t, http.MethodPost, "/api/tickets", gin.H{"title": "Lost items"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs, _ := decode(t, rec)["errors"].(map[string]any)
	assert.Contains(t, errs, "description")
	assert.Contains(t, errs, "category")
	assert.Contains(t, errs, "priority")

	rec = alice.do(t, http.MethodPost, "/api/tickets", gin.H{
		"title":       "Lost items",
		"description": "Died in lava near spawn",
		"category":    "GENERAL",
		"priority":    "HIGH",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ticketID, _ := decode(t, rec)["id"].(string)
	require.NotEmpty(t, ticketID)

	rec = alice.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/messages", gin.H{"content": "  "}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	for _, content := range []string{"first", "second"} {
		rec = alice.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/messages", gin.H{"content": content}, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = alice.do(t, http.MethodGet, "/api/tickets/"+ticketID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	messages, _ := decode(t, rec)["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].(map[string]any)["content"])
	assert.Equal(t, "second", messages[1].(map[string]any)["content"])

	rec = alice.do(t, http.MethodGet, "/api/tickets", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows, _ := decode(t, rec)["tickets"].([]any)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0].(map[string]any)["message_count"])

	rec = bob.do(t, http.MethodGet, "/api/tickets/"+ticketID, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = bob.do(t, http.MethodPost, "/api/tickets/"+ticketID+"/messages", gin.H{"content": "hi"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = bob.do(t, http.MethodGet, "/api/tickets/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplicationSubmission(t *testing.T) {
	env := newTestEnv(t, 10)
	anon := env.client()
	rec := anon.do(t, http.MethodGet, "/api/applications/forms", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	forms, _ := decode(t, rec)["forms"].([]any)
	assert.Len(t, forms, 4)

	alice := env.client()
	bob := env.client()
	require.Equal(t, http.StatusCreated, alice.do(t, http.MethodPost, "/api/auth/register", registration("Alice"), "").Code)
	require.Equal(t, http.StatusCreated, bob.do(t, http.MethodPost, "/api/auth/register", registration("Bob"), "").Code)

	answers := gin.H{
		"minecraft_username": "Alice",
		"age":                "19",
		"discord":            "alice",
		"timezone":           "UTC",
		"about_yourself":     "Long-time player",
		"experience":         "Helper on another server",
		"why_join":           "To keep spawn friendly",
		"time_available":     "10 hours a week",
	}
	rec = alice.do(t, http.MethodPost, "/api/applications/staff", gin.H{"answers": gin.H{"age": "nineteen"}}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs, _ := decode(t, rec)["errors"].(map[string]any)
	assert.Contains(t, errs, "age")
	assert.Contains(t, errs, "discord")

	rec = alice.do(t, http.MethodPost, "/api/applications/staff", gin.H{"answers": answers}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "PENDING", created["status"])
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = alice.do(t, http.MethodPost, "/api/applications/staff", gin.H{"answers": answers}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = alice.do(t, http.MethodPost, "/api/applications/ban-appeal", gin.H{"answers": gin.H{
		"username": "Alice", "reason": "none", "explanation": "not banned", "future": "n/a",
	}}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = alice.do(t, http.MethodPost, "/api/applications/wizard", gin.H{"answers": answers}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = alice.do(t, http.MethodGet, "/api/applications", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows, _ := decode(t, rec)["applications"].([]any)
	assert.Len(t, rows, 1)

	rec = alice.do(t, http.MethodGet, "/api/applications/"+id, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = bob.do(t, http.MethodGet, "/api/applications/"+id, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = anon.do(t, http.MethodPost, "/api/applications/staff", gin.H{"answers": answers}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPresence(t *testing.T) {
	env := newTestEnv(t, 10)
	cl := env.client()
	require.Equal(t, http.StatusCreated, cl.do(t, http.MethodPost, "/api/auth/register", registration("Alice"), "").Code)

	rec := cl.do(t, http.MethodPut, "/api/account/presence", gin.H{"status": "away"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "AWAY", decode(t, rec)["status"])

	rec = cl.do(t, http.MethodPut, "/api/account/presence", gin.H{"status": "BANNED"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTOTPPrepare(t *testing.T) {
	env := newTestEnv(t, 10)
	cl := env.client()
	require.Equal(t, http.StatusCreated, cl.do(t, http.MethodPost, "/api/auth/register", registration("Alice"), "").Code)

	rec := cl.do(t, http.MethodPost, "/api/account/totp/prepare", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["secret"])
	assert.Contains(t, body["otpauth_url"], "otpauth://totp/")

	rec = cl.do(t, http.MethodPost, "/api/account/totp/confirm", gin.H{"code": "000000x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = cl.do(t, http.MethodPost, "/api/account/totp/disable", gin.H{"code": "123456"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPublicNews(t *testing.T) {
	env := newTestEnv(t, 10)
	author, err := env.users.CreateAccount(context.Background(), "Admin", "admin@example.com", "diamonds123")
	require.NoError(t, err)

	_, err = env.news.Create(context.Background(), author, news.Input{Title: "Season 3", Content: "New map", Type: "update", Status: "published"})
	require.NoError(t, err)
	_, err = env.news.Create(context.Background(), author, news.Input{Title: "Draft", Content: "Secret", Type: "general", Status: "draft"})
	require.NoError(t, err)

	rec := env.client().do(t, http.MethodGet, "/api/news", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	items, _ := decode(t, rec)["news"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Season 3", items[0].(map[string]any)["title"])
	assert.Equal(t, string(models.NewsStatusPublished), items[0].(map[string]any)["status"])
}
