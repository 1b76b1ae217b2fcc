package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
)

// Metrics holds the portal's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	MeasurementsSynced prometheus.Counter
	CreditsMinted      prometheus.Counter
	CreditsRetired     prometheus.Counter
}

// New creates a metrics set on its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		MeasurementsSynced: factory.NewCounter(prometheus.CounterOpts{
			Name: "portal_measurements_synced_total",
			Help: "Field measurements durably stored by the sync pipeline.",
		}),
		CreditsMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "portal_credits_minted_tco2e_total",
			Help: "Carbon credits minted, in tCO2e.",
		}),
		CreditsRetired: factory.NewCounter(prometheus.CounterOpts{
			Name: "portal_credits_retired_tco2e_total",
			Help: "Carbon credits retired, in tCO2e.",
		}),
	}
}

// ObserveBus feeds the domain counters from the event stream. It runs until
// the process exits; the bus never closes subscriber channels.
func (m *Metrics) ObserveBus(bus *notifications.Bus) {
	events := bus.Subscribe()
	go func() {
		for event := range events {
			switch event.Type {
			case notifications.EventMeasurementSynced:
				m.MeasurementsSynced.Inc()
			case notifications.EventCreditsMinted:
				if amount, ok := event.Payload["amount"].(float64); ok {
					m.CreditsMinted.Add(amount)
				}
			case notifications.EventCreditsRetired:
				if amount, ok := event.Payload["amount"].(float64); ok {
					m.CreditsRetired.Add(amount)
				}
			}
		}
	}()
}

// Middleware records request counts and latencies per route
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the scrape endpoint
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
