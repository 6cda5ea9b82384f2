// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "qwmc"

// Options configures the collectors.
type Options struct {
	Registry  *prometheus.Registry
	Namespace string
	Buckets   []float64
}

// Metrics groups the HTTP and domain collectors.
type Metrics struct {
	registry *prometheus.Registry

	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge

	AuthEvents     *prometheus.CounterVec // Login and registration outcomes.
	TicketsCreated prometheus.Counter
	TicketMessages prometheus.Counter
	StatusChanges  *prometheus.CounterVec // Audited status transitions by target kind.
}

// New constructs and registers every collector.
func New(opts Options) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{registry: reg}
	var errRegister error

	if m.Requests, errRegister = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})); errRegister != nil {
		return nil, errRegister
	}
	if m.Duration, errRegister = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets:   buckets,
	}, []string{"method", "route", "status"})); errRegister != nil {
		return nil, errRegister
	}
	if m.InFlight, errRegister = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})); errRegister != nil {
		return nil, errRegister
	}
	if m.AuthEvents, errRegister = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "events_total",
		Help:      "Authentication events by kind and outcome.",
	}, []string{"event", "outcome"})); errRegister != nil {
		return nil, errRegister
	}
	if m.TicketsCreated, errRegister = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tickets",
		Name:      "created_total",
		Help:      "Total number of tickets opened.",
	})); errRegister != nil {
		return nil, errRegister
	}
	if m.TicketMessages, errRegister = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tickets",
		Name:      "messages_total",
		Help:      "Total number of ticket messages appended.",
	})); errRegister != nil {
		return nil, errRegister
	}
	if m.StatusChanges, errRegister = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "status_changes_total",
		Help:      "Audited status changes by target kind and new status.",
	}, []string{"target", "status"})); errRegister != nil {
		return nil, errRegister
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if errRegister := reg.Register(c); errRegister != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(errRegister, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, fmt.Errorf("register collector: %w", errRegister)
	}
	return c, nil
}

// Handler returns a gin middleware that records request metrics.
func (m *Metrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		m.Requests.With(labels).Inc()
		m.Duration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Exposition returns the /metrics handler for this registry.
func (m *Metrics) Exposition() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// AuthEvent counts an authentication outcome. Safe on a nil receiver.
func (m *Metrics) AuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(event, outcome).Inc()
}

// TicketCreated counts a new ticket. Safe on a nil receiver.
func (m *Metrics) TicketCreated() {
	if m == nil {
		return
	}
	m.TicketsCreated.Inc()
}

// TicketMessage counts an appended message. Safe on a nil receiver.
func (m *Metrics) TicketMessage() {
	if m == nil {
		return
	}
	m.TicketMessages.Inc()
}

// StatusChange counts an audited transition. Safe on a nil receiver.
func (m *Metrics) StatusChange(target, status string) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(target, status).Inc()
}
