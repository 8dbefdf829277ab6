package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsEndpoint(t *testing.T) {
	counter := NewCounter("hl8test", "endpoint", "hits_total", "endpoint test counter", []string{"tenant"})
	counter.WithLabelValues("tenant-1").Inc()
	counter.WithLabelValues("tenant-1").Inc()

	app := fiber.New()
	RegisterMetricsEndpoint(app)

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "hl8test_endpoint_hits_total") {
		t.Fatalf("metrics output missing hl8test_endpoint_hits_total")
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("tenant-1")); got != 2 {
		t.Fatalf("counter = %v, want 2", got)
	}
}

func TestNewGaugeRegisters(t *testing.T) {
	gauge := NewGauge("hl8test", "pool", "active", "active sessions per tenant", []string{"tenant"})
	gauge.WithLabelValues("tenant-2").Set(7)

	if got := testutil.ToFloat64(gauge.WithLabelValues("tenant-2")); got != 7 {
		t.Fatalf("gauge = %v, want 7", got)
	}
}

func TestIsolationFallbackCounterLabels(t *testing.T) {
	before := testutil.ToFloat64(IsolationFallbackTotal.WithLabelValues("http", "platform"))
	IsolationFallbackTotal.WithLabelValues("http", "platform").Inc()
	after := testutil.ToFloat64(IsolationFallbackTotal.WithLabelValues("http", "platform"))

	if after != before+1 {
		t.Fatalf("fallback counter = %v, want %v", after, before+1)
	}
}
