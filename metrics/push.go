package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for a single remote write request.
	DefaultTimeout = 30 * time.Second

	writePath = "/api/v1/write"
)

// PushRegistry implements Registry for push-based metrics collection.
// Every Set, Inc or Add sends one sample to a VictoriaMetrics/Prometheus remote write
// endpoint. Failures are logged and counted but never returned to the caller.
type PushRegistry struct {
	w *remoteWriter
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:8428").
	URL string
	// Prefix is prepended to every metric name, followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Logger receives push failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PushRegistry{w: &remoteWriter{
		url:      strings.TrimSuffix(cfg.URL, "/") + writePath,
		client:   &http.Client{Timeout: timeout},
		prefix:   cfg.Prefix,
		job:      cfg.Job,
		instance: cfg.Instance,
		timeout:  timeout,
		logger:   logger,
	}}
}

// Failures returns the number of samples that could not be delivered.
func (r *PushRegistry) Failures() int64 {
	return r.w.failures.Load()
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{w: r.w, name: opts.Name}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{
		w:      r.w,
		name:   opts.Name,
		labels: labels,
	}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{w: r.w, name: opts.Name}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{
		w:        r.w,
		name:     opts.Name,
		labels:   labels,
		counters: make(map[string]*pushCounter),
	}, nil
}

// remoteWriter sends samples to a VictoriaMetrics or Prometheus remote write endpoint.
type remoteWriter struct {
	url      string
	client   *http.Client
	prefix   string
	job      string
	instance string
	timeout  time.Duration
	logger   *slog.Logger
	failures atomic.Int64
}

// write pushes a sample, counting and logging any failure.
func (w *remoteWriter) write(name string, value float64, labels map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	body, err := encode(w.series(name, value, labels, time.Now()))
	if err == nil {
		err = w.post(ctx, body)
	}
	if err != nil {
		w.failures.Add(1)
		w.logger.Warn("unable to push metric", "metric", name, "error", err)
	}
}

// post delivers one encoded write request.
func (w *remoteWriter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building remote write request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", w.url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("remote write returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

// encode marshals a single-series write request and compresses it with snappy.
func encode(ts prompb.TimeSeries) ([]byte, error) {
	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: []prompb.TimeSeries{ts}})
	if err != nil {
		return nil, fmt.Errorf("marshaling write request: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

// series builds a single-sample series. Custom labels follow the job and instance
// labels in key order so identical label sets always produce identical series.
func (w *remoteWriter) series(name string, value float64, labels map[string]string, now time.Time) prompb.TimeSeries {
	if w.prefix != "" {
		name = w.prefix + "_" + name
	}
	lbls := []prompb.Label{{Name: "__name__", Value: name}}
	if w.job != "" {
		lbls = append(lbls, prompb.Label{Name: "job", Value: w.job})
	}
	if w.instance != "" {
		lbls = append(lbls, prompb.Label{Name: "instance", Value: w.instance})
	}
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		lbls = append(lbls, prompb.Label{Name: k, Value: labels[k]})
	}
	return prompb.TimeSeries{
		Labels:  lbls,
		Samples: []prompb.Sample{{Value: value, Timestamp: now.UnixMilli()}},
	}
}

// pushGauge implements Gauge for push mode.
type pushGauge struct {
	w      *remoteWriter
	name   string
	labels map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.w.write(g.name, v, g.labels)
}

// pushGaugeVec implements GaugeVec for push mode.
type pushGaugeVec struct {
	w      *remoteWriter
	name   string
	labels []string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{
		w:      g.w,
		name:   g.name,
		labels: labels,
	}
}

// pushCounter implements Counter for push mode. The running total lives client side,
// so a counter only survives for the lifetime of the process that created it.
type pushCounter struct {
	mu     sync.Mutex
	w      *remoteWriter
	name   string
	labels map[string]string
	value  float64
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("metrics: counter cannot decrease in value")
	}
	c.mu.Lock()
	c.value += v
	value := c.value
	c.mu.Unlock()
	c.w.write(c.name, value, c.labels)
}

// pushCounterVec implements CounterVec for push mode.
type pushCounterVec struct {
	mu       sync.Mutex
	w        *remoteWriter
	name     string
	labels   []string
	counters map[string]*pushCounter
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	key := labelsToKey(labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, ok := c.counters[key]; ok {
		return counter
	}
	counter := &pushCounter{
		w:      c.w,
		name:   c.name,
		labels: labels,
	}
	c.counters[key] = counter
	return counter
}

// labelsToKey creates a stable map key from a label set.
func labelsToKey(labels prometheus.Labels) string {
	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
		sb.WriteByte(',')
	}
	return sb.String()
}
