package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OracleCollector exposes metrics for the oracle HTTP client.
type OracleCollector struct {
	gatherer prometheus.Gatherer

	Requests        *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	PollCyclesTotal prometheus.Counter
}

// NewOracleCollector registers oracle client metrics against the provided registerer.
func NewOracleCollector(reg prometheus.Registerer) (*OracleCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_requests_total",
		Help: "Total number of oracle HTTP requests, labeled by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
	requests, err := registerCounterVec(reg, requests, "oracle_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_request_duration_seconds",
		Help:    "Oracle HTTP request latency in seconds.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
	durations, err = registerHistogram(reg, durations, "oracle_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_retries_total",
		Help: "Cumulative number of retried oracle requests.",
	})
	retries, err = registerCounter(reg, retries, "oracle_retries_total")
	if err != nil {
		return nil, err
	}

	polls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_poll_cycles_total",
		Help: "Cumulative number of status poll cycles against the oracle.",
	})
	polls, err = registerCounter(reg, polls, "oracle_poll_cycles_total")
	if err != nil {
		return nil, err
	}

	return &OracleCollector{
		gatherer:        gatherer,
		Requests:        requests,
		RequestDuration: durations,
		RetriesTotal:    retries,
		PollCyclesTotal: polls,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *OracleCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRequest records one oracle HTTP request.
func (c *OracleCollector) ObserveRequest(endpoint, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Requests != nil {
		c.Requests.WithLabelValues(endpoint, outcome).Inc()
	}
	if c.RequestDuration != nil {
		c.RequestDuration.Observe(d.Seconds())
	}
}

// IncRetries increments the retry counter.
func (c *OracleCollector) IncRetries() {
	if c == nil || c.RetriesTotal == nil {
		return
	}
	c.RetriesTotal.Inc()
}

// IncPollCycles increments the poll cycle counter.
func (c *OracleCollector) IncPollCycles() {
	if c == nil || c.PollCyclesTotal == nil {
		return
	}
	c.PollCyclesTotal.Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
