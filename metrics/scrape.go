package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeRegistry implements Registry on a private Prometheus registry served over HTTP.
// Each server gets its own registry, so several can live in one process.
type ScrapeRegistry struct {
	prom      *prometheus.Registry
	namespace string
}

// NewScrapeRegistry creates a ScrapeRegistry with the Go runtime and process collectors
// registered. A non-empty namespace prefixes every metric name, like PushConfig.Prefix.
func NewScrapeRegistry(namespace string) (*ScrapeRegistry, error) {
	r := &ScrapeRegistry{
		prom:      prometheus.NewRegistry(),
		namespace: namespace,
	}
	if _, err := register(r, "go", collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if _, err := register(r, "process", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return r, nil
}

// Handler serves the registry in the Prometheus text and OpenMetrics formats.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// register adds c to the registry. Registering the same name twice is an error.
func register[C prometheus.Collector](r *ScrapeRegistry, name string, c C) (C, error) {
	if err := r.prom.Register(c); err != nil {
		var zero C
		return zero, fmt.Errorf("registering %s collector: %w", name, err)
	}
	return c, nil
}

// NewGauge implements Registry.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	opts.Namespace = r.namespace
	return register(r, opts.Name, prometheus.NewGauge(opts))
}

// NewGaugeVec implements Registry.
func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	opts.Namespace = r.namespace
	vec, err := register(r, opts.Name, prometheus.NewGaugeVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return gaugeVec{vec}, nil
}

// NewCounter implements Registry.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	opts.Namespace = r.namespace
	return register(r, opts.Name, prometheus.NewCounter(opts))
}

// NewCounterVec implements Registry.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	opts.Namespace = r.namespace
	vec, err := register(r, opts.Name, prometheus.NewCounterVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return counterVec{vec}, nil
}

// gaugeVec and counterVec narrow the With results to this package's interfaces.
type gaugeVec struct{ *prometheus.GaugeVec }

func (v gaugeVec) With(labels prometheus.Labels) Gauge { return v.GaugeVec.With(labels) }

type counterVec struct{ *prometheus.CounterVec }

func (v counterVec) With(labels prometheus.Labels) Counter { return v.CounterVec.With(labels) }
