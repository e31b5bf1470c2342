package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "shift_dispatch"

// Fallback outcomes recorded per processed delivery.
const (
	OutcomeSMSSent      = "sms_sent"
	OutcomeSMSFailed    = "sms_failed"
	OutcomeDelivered    = "delivered"
	OutcomeOptedOut     = "opted_out"
	OutcomeSkipped      = "skipped"
	OutcomeReleased     = "released"
	OutcomeExhausted    = "exhausted"
	OutcomeInsufficient = "insufficient_credits"
)

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	fallbackClaimedTotal     prometheus.Counter
	fallbackOutcomesTotal    *prometheus.CounterVec
	smsSendDuration          prometheus.Histogram
	creditsConsumedTotal     *prometheus.CounterVec
	creditsRefundedTotal     *prometheus.CounterVec
	creditsGrantedTotal      *prometheus.CounterVec
	creditsInsufficientTotal *prometheus.CounterVec
	ledgerLockWait           prometheus.Histogram
	receiptsTotal            *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		fallbackClaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fallback_claimed_total",
				Help:      "Total number of push deliveries claimed for SMS fallback.",
			},
		),
		fallbackOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "fallback_outcomes_total",
				Help:      "Total number of claimed deliveries by processing outcome.",
			},
			[]string{"outcome"},
		),
		smsSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "sms_send_duration_seconds",
				Help:      "SMS provider send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		creditsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "credits_consumed_total",
				Help:      "Total number of credits consumed by scope kind.",
			},
			[]string{"scope"},
		),
		creditsRefundedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "credits_refunded_total",
				Help:      "Total number of credits refunded by scope kind.",
			},
			[]string{"scope"},
		),
		creditsGrantedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "credits_granted_total",
				Help:      "Total number of credits granted by source type.",
			},
			[]string{"source"},
		),
		creditsInsufficientTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "credits_insufficient_total",
				Help:      "Total number of consume requests rejected for insufficient credits.",
			},
			[]string{"scope"},
		),
		ledgerLockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "ledger_lock_wait_seconds",
				Help:      "Time spent waiting for a ledger scope lock.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		receiptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "push_receipts_total",
				Help:      "Total number of push delivery receipts by result.",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.fallbackClaimedTotal,
		m.fallbackOutcomesTotal,
		m.smsSendDuration,
		m.creditsConsumedTotal,
		m.creditsRefundedTotal,
		m.creditsGrantedTotal,
		m.creditsInsufficientTotal,
		m.ledgerLockWait,
		m.receiptsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) AddFallbackClaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fallbackClaimedTotal.Add(float64(n))
}

func (m *Metrics) IncFallbackOutcome(outcome string) {
	if m == nil {
		return
	}
	m.fallbackOutcomesTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveSMSSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.smsSendDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) AddCreditsConsumed(scope string, amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsConsumedTotal.WithLabelValues(normalizeLabel(scope)).Add(float64(amount))
}

func (m *Metrics) AddCreditsRefunded(scope string, amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsRefundedTotal.WithLabelValues(normalizeLabel(scope)).Add(float64(amount))
}

func (m *Metrics) AddCreditsGranted(source string, amount int) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsGrantedTotal.WithLabelValues(normalizeLabel(source)).Add(float64(amount))
}

func (m *Metrics) IncCreditsInsufficient(scope string) {
	if m == nil {
		return
	}
	m.creditsInsufficientTotal.WithLabelValues(normalizeLabel(scope)).Inc()
}

func (m *Metrics) ObserveLedgerLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	m.ledgerLockWait.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncReceipt(result string) {
	if m == nil {
		return
	}
	m.receiptsTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func nonNegativeSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
