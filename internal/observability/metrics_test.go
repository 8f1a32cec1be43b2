package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveOperationRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}

	collector.ObserveOperation("optimize_plan", "success", 1500*time.Millisecond)
	collector.ObserveOperation("optimize_plan", "failure", 200*time.Millisecond)
	collector.ObserveOperation("create_plan", "success", 5*time.Millisecond)

	if got := testutil.ToFloat64(collector.Operations.WithLabelValues("optimize_plan", "success")); got != 1 {
		t.Fatalf("planner_operations_total{optimize_plan,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Operations.WithLabelValues("optimize_plan", "failure")); got != 1 {
		t.Fatalf("planner_operations_total{optimize_plan,failure} = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "planner_operation_duration_seconds", map[string]string{
		"operation": "optimize_plan",
	}); count != 2 {
		t.Fatalf("planner_operation_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestPlannerCollectorReregistrationReusesExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}
	second, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector (second): %v", err)
	}

	first.Operations.WithLabelValues("optimize_plan", "success").Inc()
	second.Operations.WithLabelValues("optimize_plan", "success").Inc()

	if got := testutil.ToFloat64(first.Operations.WithLabelValues("optimize_plan", "success")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestMetricsHandlerExposesPlannerGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlannerCollector(reg)
	if err != nil {
		t.Fatalf("NewPlannerCollector: %v", err)
	}
	collector.SetPlanCacheSize(7)
	collector.SetInflight(3)
	collector.SetBreakerOpen(true)
	collector.ObserveOperation("get_plan_status", "success", time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"planner_operations_total",
		"planner_operation_duration_seconds",
		"planner_plan_cache_size",
		"planner_inflight_optimizations",
		"planner_circuit_breaker_open",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, "planner_plan_cache_size 7") {
		t.Fatalf("/metrics output missing cache gauge value: %s", body)
	}
	if !strings.Contains(body, "planner_circuit_breaker_open 1") {
		t.Fatalf("/metrics output missing breaker gauge value: %s", body)
	}
}

func TestOracleCollectorRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewOracleCollector(reg)
	if err != nil {
		t.Fatalf("NewOracleCollector: %v", err)
	}

	collector.ObserveRequest("optimize", "success", 40*time.Millisecond)
	collector.ObserveRequest("status", "retryable", 10*time.Millisecond)
	collector.IncRetries()
	collector.IncPollCycles()
	collector.IncPollCycles()

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("optimize", "success")); got != 1 {
		t.Fatalf("oracle_requests_total{optimize,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.RetriesTotal); got != 1 {
		t.Fatalf("oracle_retries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.PollCyclesTotal); got != 2 {
		t.Fatalf("oracle_poll_cycles_total = %v, want 2", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
