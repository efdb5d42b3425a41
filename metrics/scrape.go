package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nomis52/goprovision/buildinfo"
)

var _ Registry = (*ScrapeRegistry)(nil)

// ScrapeRegistry registers metrics with a private Prometheus registry served
// by Handler. It also carries the Go runtime and process collectors.
type ScrapeRegistry struct {
	prom *prometheus.Registry
}

// ScrapeOption configures a ScrapeRegistry.
type ScrapeOption func(*ScrapeRegistry) error

// WithBuildInfo exports goprovision_build_info{version,commit} with value 1.
func WithBuildInfo(props buildinfo.Properties) ScrapeOption {
	return func(r *ScrapeRegistry) error {
		g, err := register(r, "goprovision_build_info", prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goprovision_build_info",
			Help: "Build of the running goprovision server",
		}, []string{"version", "commit"}))
		if err != nil {
			return err
		}
		g.With(prometheus.Labels{"version": props.Version, "commit": props.GitCommit}).Set(1)
		return nil
	}
}

// NewScrapeRegistry creates a ScrapeRegistry.
func NewScrapeRegistry(opts ...ScrapeOption) (*ScrapeRegistry, error) {
	r := &ScrapeRegistry{prom: prometheus.NewRegistry()}
	if _, err := register(r, "go collector", collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if _, err := register(r, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Handler serves the registry in the Prometheus or OpenMetrics text format.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return register(r, opts.Name, prometheus.NewGauge(opts))
}

func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	v, err := register(r, opts.Name, prometheus.NewGaugeVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return vec[Gauge]{with: func(l prometheus.Labels) Gauge { return v.With(l) }}, nil
}

func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return register(r, opts.Name, prometheus.NewCounter(opts))
}

func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	v, err := register(r, opts.Name, prometheus.NewCounterVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return vec[Counter]{with: func(l prometheus.Labels) Counter { return v.With(l) }}, nil
}

func (r *ScrapeRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error) {
	v, err := register(r, opts.Name, prometheus.NewHistogramVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return vec[Observer]{with: func(l prometheus.Labels) Observer { return v.With(l) }}, nil
}

func register[C prometheus.Collector](r *ScrapeRegistry, name string, c C) (C, error) {
	if err := r.prom.Register(c); err != nil {
		var zero C
		return zero, fmt.Errorf("registering %s: %w", name, err)
	}
	return c, nil
}

// vec adapts the With method of a prometheus vector, whose concrete return
// type differs from the Vec interface.
type vec[M any] struct {
	with func(prometheus.Labels) M
}

func (v vec[M]) With(l prometheus.Labels) M {
	return v.with(l)
}
