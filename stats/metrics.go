package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/cloudstats/activity"
	"github.com/nomis52/cloudstats/metrics"
)

// recorder publishes registry metrics. A nil recorder records nothing.
type recorder struct {
	active          metrics.Gauge
	history         metrics.Gauge
	capacity        metrics.Gauge
	byPhase         metrics.GaugeVec
	startedTotal    metrics.Counter
	archivedTotal   metrics.CounterVec
	persistFailures metrics.Counter
	sweptTotal      metrics.Counter
}

func newRecorder(reg metrics.Registry) (*recorder, error) {
	var (
		rec recorder
		err error
	)

	if rec.active, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "activities_active",
		Help: "Activities that have not completed yet",
	}); err != nil {
		return nil, err
	}
	if rec.history, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "activities_history",
		Help: "Completed activities retained in history",
	}); err != nil {
		return nil, err
	}
	if rec.capacity, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "history_capacity",
		Help: "Maximum number of completed activities retained",
	}); err != nil {
		return nil, err
	}
	if rec.byPhase, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "activities_active_by_phase",
		Help: "Activities that have not completed, by current phase",
	}, []string{"phase"}); err != nil {
		return nil, err
	}
	if rec.startedTotal, err = reg.NewCounter(prometheus.CounterOpts{
		Name: "activities_started_total",
		Help: "Activities started since the process started",
	}); err != nil {
		return nil, err
	}
	if rec.archivedTotal, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "activities_archived_total",
		Help: "Activities moved to history, by final status",
	}, []string{"status"}); err != nil {
		return nil, err
	}
	if rec.persistFailures, err = reg.NewCounter(prometheus.CounterOpts{
		Name: "persist_failures_total",
		Help: "Failed attempts to save the statistics",
	}); err != nil {
		return nil, err
	}
	if rec.sweptTotal, err = reg.NewCounter(prometheus.CounterOpts{
		Name: "sweep_completed_total",
		Help: "Activities force-completed by the reconciliation sweep",
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// observe publishes the registry size. Every phase but COMPLETED is set, so a phase that
// emptied reads zero.
func (rec *recorder) observe(active, archived, capacity int, byPhase map[activity.Phase]int) {
	if rec == nil {
		return
	}
	rec.active.Set(float64(active))
	rec.history.Set(float64(archived))
	rec.capacity.Set(float64(capacity))
	for _, phase := range activity.Phases() {
		if phase == activity.Completed {
			continue
		}
		rec.byPhase.With(prometheus.Labels{"phase": phase.String()}).Set(float64(byPhase[phase]))
	}
}

func (rec *recorder) started() {
	if rec == nil {
		return
	}
	rec.startedTotal.Inc()
}

func (rec *recorder) archived(status activity.Status) {
	if rec == nil {
		return
	}
	rec.archivedTotal.With(prometheus.Labels{"status": status.String()}).Inc()
}

func (rec *recorder) persistFailed() {
	if rec == nil {
		return
	}
	rec.persistFailures.Inc()
}

func (rec *recorder) swept(n int) {
	if rec == nil || n == 0 {
		return
	}
	rec.sweptTotal.Add(float64(n))
}
