package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PlannerCollector bundles Prometheus metrics for the planning surface:
// per-operation counts and latencies plus gauges for cache size, in-flight
// optimizations, and the oracle circuit breaker.
type PlannerCollector struct {
	gatherer prometheus.Gatherer

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	PlanCacheSize         prometheus.Gauge
	InflightOptimizations prometheus.Gauge
	CircuitBreakerOpen    prometheus.Gauge
}

// NewPlannerCollector registers planner Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewPlannerCollector(reg prometheus.Registerer) (*PlannerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_operations_total",
		Help: "Total number of planner operations, labeled by operation and outcome.",
	}, []string{"operation", "outcome"})
	operations, err := registerCounterVec(reg, operations, "planner_operations_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planner_operation_duration_seconds",
		Help:    "Planner operation latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"operation"})
	durations, err = registerHistogramVec(reg, durations, "planner_operation_duration_seconds")
	if err != nil {
		return nil, err
	}

	cacheSize, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_plan_cache_size",
		Help: "Current number of cached collection plans.",
	}), "planner_plan_cache_size")
	if err != nil {
		return nil, err
	}
	inflight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_inflight_optimizations",
		Help: "Number of optimization runs currently holding a concurrency slot.",
	}), "planner_inflight_optimizations")
	if err != nil {
		return nil, err
	}
	breakerOpen, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "planner_circuit_breaker_open",
		Help: "1 when the oracle circuit breaker is open, 0 otherwise.",
	}), "planner_circuit_breaker_open")
	if err != nil {
		return nil, err
	}

	return &PlannerCollector{
		gatherer:              gatherer,
		Operations:            operations,
		OperationDuration:     durations,
		PlanCacheSize:         cacheSize,
		InflightOptimizations: inflight,
		CircuitBreakerOpen:    breakerOpen,
	}, nil
}

// ObserveOperation records one completed operation with its outcome and
// duration. It is nil-safe so callers can run without metrics wired.
func (c *PlannerCollector) ObserveOperation(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Operations != nil {
		c.Operations.WithLabelValues(operation, outcome).Inc()
	}
	if c.OperationDuration != nil {
		c.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// SetPlanCacheSize updates the plan cache gauge.
func (c *PlannerCollector) SetPlanCacheSize(n int) {
	if c == nil || c.PlanCacheSize == nil {
		return
	}
	c.PlanCacheSize.Set(float64(n))
}

// SetInflight updates the in-flight optimization gauge.
func (c *PlannerCollector) SetInflight(n int) {
	if c == nil || c.InflightOptimizations == nil {
		return
	}
	c.InflightOptimizations.Set(float64(n))
}

// SetBreakerOpen reflects the oracle circuit breaker state.
func (c *PlannerCollector) SetBreakerOpen(open bool) {
	if c == nil || c.CircuitBreakerOpen == nil {
		return
	}
	if open {
		c.CircuitBreakerOpen.Set(1)
	} else {
		c.CircuitBreakerOpen.Set(0)
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PlannerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
