package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsFallbackCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.AddFallbackClaimed(3)
	metrics.AddFallbackClaimed(0)
	metrics.IncFallbackOutcome(OutcomeSMSSent)
	metrics.IncFallbackOutcome(" SMS_SENT ")
	metrics.IncFallbackOutcome("")
	metrics.ObserveSMSSendDuration(120 * time.Millisecond)

	if got := testutil.ToFloat64(metrics.fallbackClaimedTotal); got != 3 {
		t.Fatalf("fallback_claimed_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.fallbackOutcomesTotal.WithLabelValues("sms_sent")); got != 2 {
		t.Fatalf("fallback_outcomes_total{sms_sent} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.fallbackOutcomesTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("fallback_outcomes_total{unknown} = %v, want 1", got)
	}
}

func TestMetricsCreditCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.AddCreditsGranted("trial", 50)
	metrics.AddCreditsConsumed("organization", 2)
	metrics.AddCreditsConsumed("organization", -1)
	metrics.AddCreditsRefunded("organization", 1)
	metrics.IncCreditsInsufficient("user")
	metrics.ObserveLedgerLockWait(-time.Second)

	if got := testutil.ToFloat64(metrics.creditsGrantedTotal.WithLabelValues("trial")); got != 50 {
		t.Fatalf("credits_granted_total = %v, want 50", got)
	}
	if got := testutil.ToFloat64(metrics.creditsConsumedTotal.WithLabelValues("organization")); got != 2 {
		t.Fatalf("credits_consumed_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.creditsRefundedTotal.WithLabelValues("organization")); got != 1 {
		t.Fatalf("credits_refunded_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.creditsInsufficientTotal.WithLabelValues("user")); got != 1 {
		t.Fatalf("credits_insufficient_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.AddFallbackClaimed(1)
	metrics.IncFallbackOutcome(OutcomeSkipped)
	metrics.AddCreditsConsumed("organization", 1)
	metrics.ObserveLedgerLockWait(time.Millisecond)
	metrics.IncReceipt("delivered")
	if metrics.Handler() == nil {
		t.Fatal("Handler() on nil metrics should fall back to default handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
