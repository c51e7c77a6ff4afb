package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconcile outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Collector captures telemetry events emitted by the console.
//
// Calls happen inline on the event loop and inside the REST client, so
// implementations must not block.
type Collector interface {
	IncHotReload(file string)
	ObserveReconcile(class, outcome string, created, erased, invalid int)
	SetTreeSize(nodes int)
	ObserveRequest(method, outcome string, elapsed time.Duration)
	SetBreakerState(name string, state int)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncHotReload(string)                            {}
func (noopCollector) ObserveReconcile(string, string, int, int, int) {}
func (noopCollector) SetTreeSize(int)                                {}
func (noopCollector) ObserveRequest(string, string, time.Duration)   {}
func (noopCollector) SetBreakerState(string, int)                    {}

// PrometheusCollector exposes console telemetry via Prometheus.
type PrometheusCollector struct {
	hotReloads     *prometheus.CounterVec
	passes         *prometheus.CounterVec
	nodesCreated   *prometheus.CounterVec
	nodesErased    *prometheus.CounterVec
	invalidEntries *prometheus.CounterVec
	treeSize       prometheus.Gauge
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
}

// NewPrometheusCollector registers the console metrics with reg. Metrics that
// are already registered are reused so the collector can be rebuilt on
// configuration reloads.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var (
		c   PrometheusCollector
		err error
	)
	if c.hotReloads, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsconsole_config_hot_reload_total",
		Help: "Number of hot reload operations triggered per configuration source file.",
	}, []string{"file"})); err != nil {
		return nil, err
	}
	if c.passes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsconsole_reconcile_passes_total",
		Help: "Reconciliation passes per child class and outcome.",
	}, []string{"class", "outcome"})); err != nil {
		return nil, err
	}
	if c.nodesCreated, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsconsole_nodes_created_total",
		Help: "Tree nodes created by reconciliation per child class.",
	}, []string{"class"})); err != nil {
		return nil, err
	}
	if c.nodesErased, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsconsole_nodes_erased_total",
		Help: "Tree nodes erased by reconciliation per child class.",
	}, []string{"class"})); err != nil {
		return nil, err
	}
	if c.invalidEntries, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsconsole_reconcile_invalid_entries_total",
		Help: "Snapshot entries skipped because their self link was missing or malformed.",
	}, []string{"class"})); err != nil {
		return nil, err
	}
	if c.treeSize, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tsconsole_tree_nodes",
		Help: "Number of nodes currently held in the resource tree.",
	})); err != nil {
		return nil, err
	}
	if c.requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsconsole_api_requests_total",
		Help: "REST requests issued against the stream processor per method and outcome.",
	}, []string{"method", "outcome"})); err != nil {
		return nil, err
	}
	if c.latency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tsconsole_api_request_duration_seconds",
		Help:    "Latency of REST requests issued against the stream processor.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method"})); err != nil {
		return nil, err
	}
	if c.breakerState, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tsconsole_api_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})); err != nil {
		return nil, err
	}
	return &c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return collector, nil
}

// IncHotReload increments the counter for the provided file path.
func (p *PrometheusCollector) IncHotReload(file string) {
	if p == nil || p.hotReloads == nil {
		return
	}
	p.hotReloads.WithLabelValues(file).Inc()
}

// ObserveReconcile records one reconciliation pass for a child class.
func (p *PrometheusCollector) ObserveReconcile(class, outcome string, created, erased, invalid int) {
	if p == nil || p.passes == nil {
		return
	}
	p.passes.WithLabelValues(class, outcome).Inc()
	if created > 0 {
		p.nodesCreated.WithLabelValues(class).Add(float64(created))
	}
	if erased > 0 {
		p.nodesErased.WithLabelValues(class).Add(float64(erased))
	}
	if invalid > 0 {
		p.invalidEntries.WithLabelValues(class).Add(float64(invalid))
	}
}

// SetTreeSize updates the node count gauge.
func (p *PrometheusCollector) SetTreeSize(nodes int) {
	if p == nil || p.treeSize == nil {
		return
	}
	p.treeSize.Set(float64(nodes))
}

// ObserveRequest records a finished REST request.
func (p *PrometheusCollector) ObserveRequest(method, outcome string, elapsed time.Duration) {
	if p == nil || p.requests == nil {
		return
	}
	p.requests.WithLabelValues(method, outcome).Inc()
	p.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SetBreakerState publishes the current circuit breaker state.
func (p *PrometheusCollector) SetBreakerState(name string, state int) {
	if p == nil || p.breakerState == nil {
		return
	}
	p.breakerState.WithLabelValues(name).Set(float64(state))
}
