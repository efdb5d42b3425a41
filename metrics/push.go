package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
)

// PushRegistry implements Registry for push-based metrics collection.
// Values are buffered in memory and written to a VictoriaMetrics/Prometheus
// remote write endpoint by Flush.
type PushRegistry struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	logger     *slog.Logger

	mu     sync.Mutex
	series map[string]*series
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:9090").
	URL string
	// Prefix is the metric name prefix. All metric names will be prefixed with this value
	// followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// series is one buffered time series.
type series struct {
	name   string
	labels map[string]string
	value  float64
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

	return &PushRegistry{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		logger:     logger,
		series:     make(map[string]*series),
	}
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{registry: r, name: opts.Name}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{registry: r, name: opts.Name}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{registry: r, name: opts.Name}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{registry: r, name: opts.Name}, nil
}

// NewHistogramVec creates a new push-based HistogramVec. Only the _sum and
// _count series are pushed.
func (r *PushRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error) {
	return &pushHistogramVec{registry: r, name: opts.Name}, nil
}

func (r *PushRegistry) set(name string, labels map[string]string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup(name, labels).value = v
}

func (r *PushRegistry) add(name string, labels map[string]string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup(name, labels).value += v
}

// lookup returns the series for name and labels. r.mu must be held.
func (r *PushRegistry) lookup(name string, labels map[string]string) *series {
	key := name + "{" + labelsToKey(labels) + "}"
	s, ok := r.series[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		s = &series{name: name, labels: copied}
		r.series[key] = s
	}
	return s
}

// Flush writes every buffered series to the remote write endpoint.
func (r *PushRegistry) Flush(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now().UnixMilli()
	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	timeseries := make([]prompb.TimeSeries, 0, len(keys))
	for _, k := range keys {
		s := r.series[k]
		timeseries = append(timeseries, r.metricToTimeSeries(s.name, s.value, s.labels, now))
	}
	r.mu.Unlock()

	if len(timeseries) == 0 {
		return nil
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: timeseries})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	r.logger.Debug("pushed metrics", "series", len(timeseries), "url", r.url)
	return nil
}

// metricToTimeSeries converts a metric to Prometheus TimeSeries format.
func (r *PushRegistry) metricToTimeSeries(name string, value float64, labels map[string]string, timestamp int64) prompb.TimeSeries {
	promLabels := make([]prompb.Label, 0, len(labels)+3)

	metricName := name
	if r.prefix != "" {
		metricName = r.prefix + "_" + name
	}
	promLabels = append(promLabels, prompb.Label{Name: "__name__", Value: metricName})

	if r.job != "" {
		promLabels = append(promLabels, prompb.Label{Name: "job", Value: r.job})
	}
	if r.instance != "" {
		promLabels = append(promLabels, prompb.Label{Name: "instance", Value: r.instance})
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		promLabels = append(promLabels, prompb.Label{Name: k, Value: labels[k]})
	}

	return prompb.TimeSeries{
		Labels:  promLabels,
		Samples: []prompb.Sample{{Value: value, Timestamp: timestamp}},
	}
}

// pushGauge implements Gauge for push mode.
type pushGauge struct {
	registry *PushRegistry
	name     string
	labels   map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.registry.set(g.name, g.labels, v)
}

// pushGaugeVec implements GaugeVec for push mode.
type pushGaugeVec struct {
	registry *PushRegistry
	name     string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{registry: g.registry, name: g.name, labels: labels}
}

// pushCounter implements Counter for push mode.
type pushCounter struct {
	registry *PushRegistry
	name     string
	labels   map[string]string
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.registry.add(c.name, c.labels, v)
}

// pushCounterVec implements CounterVec for push mode.
type pushCounterVec struct {
	registry *PushRegistry
	name     string
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	return &pushCounter{registry: c.registry, name: c.name, labels: labels}
}

// pushObserver implements Observer for push mode.
type pushObserver struct {
	registry *PushRegistry
	name     string
	labels   map[string]string
}

func (o *pushObserver) Observe(v float64) {
	o.registry.add(o.name+"_sum", o.labels, v)
	o.registry.add(o.name+"_count", o.labels, 1)
}

// pushHistogramVec implements HistogramVec for push mode.
type pushHistogramVec struct {
	registry *PushRegistry
	name     string
}

func (h *pushHistogramVec) With(labels prometheus.Labels) Observer {
	return &pushObserver{registry: h.registry, name: h.name, labels: labels}
}

// labelsToKey creates a stable string key from labels for map lookup.
func labelsToKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
