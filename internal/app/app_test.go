package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qwmc/qwmc-web/internal/config"
	"github.com/qwmc/qwmc-web/internal/metrics"
	"github.com/qwmc/qwmc-web/internal/session"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn := openTestDB(t)
	m, err := metrics.New(metrics.Options{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	engine, err := NewEngine(conn, Options{
		DSN:     "file:qwmc.db",
		Session: config.SessionConfig{Secret: "app-test-secret", TTL: time.Hour},
		Metrics: m,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func serve(engine *gin.Engine, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&payload).Encode(body)
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestInitSetupFlow(t *testing.T) {
	engine := newTestEngine(t)

	rec := serve(engine, http.MethodGet, "/api/init/status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status InitStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Initialized || status.Database == nil || status.Database.Type != "sqlite" {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = serve(engine, http.MethodPost, "/api/init/setup", InitRequest{AdminUsername: "x"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	setup := InitRequest{SiteName: "QWMC", AdminUsername: "Notch", AdminEmail: "notch@example.com", AdminPassword: "password123"}
	rec = serve(engine, http.MethodPost, "/api/init/setup", setup, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sessionCookies []*http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName || c.Name == session.UserInfoCookieName {
			sessionCookies = append(sessionCookies, c)
		}
	}
	if len(sessionCookies) != 2 {
		t.Fatalf("expected session cookies, got %d", len(sessionCookies))
	}

	rec = serve(engine, http.MethodPost, "/api/init/setup", setup, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second setup, got %d", rec.Code)
	}

	rec = serve(engine, http.MethodGet, "/api/admin/settings", nil, sessionCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected admin to reach settings, got %d", rec.Code)
	}

	rec = serve(engine, http.MethodGet, "/api/init/status", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Initialized {
		t.Fatalf("expected initialized after setup")
	}
}

func TestEngineServesMetricsAndRequestID(t *testing.T) {
	engine := newTestEngine(t)

	rec := serve(engine, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	rec = serve(engine, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "qwmc_http_requests_total") {
		t.Fatalf("expected request counter in exposition")
	}

	rec = serve(engine, http.MethodGet, "/api/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
