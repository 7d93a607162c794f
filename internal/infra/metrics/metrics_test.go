package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersInstruments(t *testing.T) {
	m := New()

	m.CallsTotal.WithLabelValues("threat-intel", "success").Inc()
	m.CallsTotal.WithLabelValues("threat-intel", "success").Inc()
	m.CacheEvents.WithLabelValues("hit").Inc()
	m.BreakerTransitions.WithLabelValues("endpoint:threat-intel", "open").Inc()

	got := testutil.ToFloat64(m.CallsTotal.WithLabelValues("threat-intel", "success"))
	if got != 2 {
		t.Errorf("calls_total = %v, want 2", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	a := New()
	b := New()

	a.CallsTotal.WithLabelValues("x", "failure").Inc()

	if got := testutil.ToFloat64(b.CallsTotal.WithLabelValues("x", "failure")); got != 0 {
		t.Errorf("registries should be independent, got %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.InvestigationsTotal.WithLabelValues("comprehensive", "done").Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 1<<16)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])

	if !strings.Contains(body, "inquest_orchestrator_investigations_total") {
		t.Errorf("metrics output missing investigation counter:\n%s", body)
	}
}
