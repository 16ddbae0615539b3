package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics("fdpricer")
	m.SetVersion("fdpricer", "1.0.0")
	m.SolveDuration.WithLabelValues("penalty", "put").Observe(0.02)
	m.CacheLookups.WithLabelValues("hit").Inc()
	m.CacheLookups.WithLabelValues("hit").Inc()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var hits float64
	for _, mf := range families {
		if mf.GetName() == "pde_surface_cache_lookups_total" {
			hits = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if hits != 2 {
		t.Errorf("expected 2 cache hits, got %v", hits)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"pde_solve_duration_seconds", "build_info{service=\"fdpricer\",version=\"1.0.0\"}"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metric %s missing from exposition", name)
		}
	}
}
