// Package telemetry exposes the care core's Prometheus metrics: HTTP request
// counters and latency, plus domain counters for bookings, slot conflicts,
// appointment transitions, intake recordings and lab uploads.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the telemetry settings.
type Config struct {
	ServiceName string
	Environment string
	// RuntimeMetrics adds the Go runtime and process collectors.
	RuntimeMetrics bool
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "carecore-server"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Provider owns a private registry so several providers can coexist in one
// process (tests build one each).
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpActive   prometheus.Gauge
	httpPanics   *prometheus.CounterVec

	bookings    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	intakes     *prometheus.CounterVec
	labUploads  prometheus.Counter
}

// NewProvider registers every collector on a fresh registry.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	constLabels := prometheus.Labels{"service": cfg.ServiceName, "env": cfg.Environment}

	p := &Provider{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_active_requests",
			Help:        "Number of in-flight HTTP requests",
			ConstLabels: constLabels,
		}),
		httpPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_panics_total",
			Help:        "Handler panics recovered, by route",
			ConstLabels: constLabels,
		}, []string{"route"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "appointment_bookings_total",
			Help:        "Booking attempts by outcome",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "appointment_transitions_total",
			Help:        "Appointment state transitions by target status and outcome",
			ConstLabels: constLabels,
		}, []string{"status", "outcome"}),
		intakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "adherence_intakes_total",
			Help:        "Medication intake recordings by taken flag and whether a record was created",
			ConstLabels: constLabels,
		}, []string{"taken", "created"}),
		labUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "lab_uploads_total",
			Help:        "Lab result files processed",
			ConstLabels: constLabels,
		}),
	}

	p.registry.MustRegister(
		p.httpRequests, p.httpDuration, p.httpActive, p.httpPanics,
		p.bookings, p.transitions, p.intakes, p.labUploads,
	)
	if cfg.RuntimeMetrics {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// Booking outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
)

// RecordBooking counts one booking attempt. A nil provider is a no-op so
// services can run without metrics.
func (p *Provider) RecordBooking(outcome string) {
	if p == nil {
		return
	}
	p.bookings.WithLabelValues(outcome).Inc()
}

// RecordTransition counts one complete/cancel attempt.
func (p *Provider) RecordTransition(status, outcome string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(status, outcome).Inc()
}

// RecordIntake counts one adherence upsert.
func (p *Provider) RecordIntake(taken, created bool) {
	if p == nil {
		return
	}
	p.intakes.WithLabelValues(strconv.FormatBool(taken), strconv.FormatBool(created)).Inc()
}

// RecordPanic counts one recovered handler panic.
func (p *Provider) RecordPanic(route string) {
	if p == nil {
		return
	}
	p.httpPanics.WithLabelValues(route).Inc()
}

// RecordLabUpload counts one processed lab file.
func (p *Provider) RecordLabUpload() {
	if p == nil {
		return
	}
	p.labUploads.Inc()
}

// MetricsMiddleware records request count, latency and in-flight requests,
// labelled by route pattern rather than raw path.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.httpActive.Inc()
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is final.
				c.Error(err)
			}

			p.httpActive.Dec()
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			method := c.Request().Method
			p.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
