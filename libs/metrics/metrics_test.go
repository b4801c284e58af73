package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveReflow(t *testing.T) {
	m := New()
	m.ObserveReflow(5, 3, 2, 0.002)
	m.ObserveReflow(1, 1, 0, 0.001)

	if got := testutil.ToFloat64(m.ReflowRuns); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.SlotsRetained); got != 4 {
		t.Fatalf("expected 4 retained, got %v", got)
	}
	if got := testutil.ToFloat64(m.SlotsAvailable); got != 2 {
		t.Fatalf("expected 2 available, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.CacheLookups.WithLabelValues("hit").Inc()

	rw := httptest.NewRecorder()
	m.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), `slotreflow_cache_lookups_total{result="hit"} 1`) {
		t.Fatalf("cache counter missing from output")
	}
}
