package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerRecordsMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m, err := New(Options{Registry: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	router := gin.New()
	router.Use(m.Handler())
	router.GET("/api/tickets/:id", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tickets/abc", nil))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}

	labels := prometheus.Labels{"method": http.MethodGet, "route": "/api/tickets/:id", "status": "201"}
	if got := testutil.ToFloat64(m.Requests.With(labels)); got != 1 {
		t.Fatalf("expected request counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.InFlight); got != 0 {
		t.Fatalf("expected in-flight gauge to return to 0, got %f", got)
	}
	if samples := testutil.CollectAndCount(m.Duration); samples == 0 {
		t.Fatalf("expected histogram samples")
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := New(Options{Registry: registry})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := New(Options{Registry: registry})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.TicketsCreated != second.TicketsCreated {
		t.Fatalf("expected shared collector")
	}
}

func TestExpositionServesDomainCounters(t *testing.T) {
	m, err := New(Options{})
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.AuthEvent("login", "success")
	m.TicketCreated()
	m.StatusChange("user", "BANNED")

	rr := httptest.NewRecorder()
	m.Exposition().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`qwmc_auth_events_total{event="login",outcome="success"} 1`,
		`qwmc_tickets_created_total 1`,
		`qwmc_moderation_status_changes_total{status="BANNED",target="user"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in exposition:\n%s", want, body)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.AuthEvent("login", "failure")
	m.TicketMessage()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(m.Handler())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}
