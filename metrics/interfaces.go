// Package metrics lets cloudstats record metrics without caring how they leave the process.
//
// The server scrapes: a ScrapeRegistry is served on /metrics. The CLI runs once and exits,
// so it pushes every sample to a remote write endpoint through a PushRegistry instead.
// Recording code only ever sees Registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is a value that can go up and down, such as the number of active activities.
type Gauge interface {
	Set(float64)
}

// Counter only goes up. Add panics on a negative value.
type Counter interface {
	Inc()
	Add(float64)
}

// GaugeVec partitions a Gauge by labels.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec partitions a Counter by labels.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates metrics. Names are given without a prefix; the implementation applies
// its own namespace.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}

var (
	_ Registry = (*ScrapeRegistry)(nil)
	_ Registry = (*PushRegistry)(nil)
)
