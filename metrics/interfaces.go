// Package metrics records bootstrap runs as Prometheus metrics.
//
// The server exposes them for scraping on /metrics. The CLI has no
// listener, so it buffers them and writes them to a remote write endpoint
// (VictoriaMetrics or Prometheus) once the run is over. BootstrapMetrics is
// written against Registry and works with either.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Gauge interface {
	Set(float64)
}

// Counter only goes up. Add panics on negative values.
type Counter interface {
	Inc()
	Add(float64)
}

// Observer records samples of a distribution, e.g. request latency.
type Observer interface {
	Observe(float64)
}

// Vec selects the child of a labelled metric.
type Vec[M any] interface {
	With(prometheus.Labels) M
}

type (
	GaugeVec     = Vec[Gauge]
	CounterVec   = Vec[Counter]
	HistogramVec = Vec[Observer]
)

// Registry creates metrics. Registering a name twice is an error for
// registries that enforce it.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
	NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error)
}
