package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/stage"
)

var (
	_ bootstrap.Sink            = (*BootstrapMetrics)(nil)
	_ bootstrap.RequestObserver = (*BootstrapMetrics)(nil)
)

// BootstrapMetrics records bootstrap runs. It implements bootstrap.Sink and
// bootstrap.RequestObserver.
type BootstrapMetrics struct {
	runs            CounterVec
	stageStatus     GaugeVec
	requestDuration HistogramVec
	requestFailures CounterVec
	lastSuccess     Gauge
	lastRun         Gauge
}

// NewBootstrapMetrics registers the bootstrap metrics with reg.
func NewBootstrapMetrics(reg Registry) (*BootstrapMetrics, error) {
	runs, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "bootstrap_runs_total",
		Help: "Bootstrap runs by outcome",
	}, []string{"outcome"})
	if err != nil {
		return nil, err
	}

	stageStatus, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bootstrap_stage_status",
		Help: "Status of each stage of the last run (0=initializing, 1=running, 2=success, 3=error)",
	}, []string{"stage"})
	if err != nil {
		return nil, err
	}

	requestDuration, err := reg.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bootstrap_request_duration_seconds",
		Help:    "Duration of control plane create requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	if err != nil {
		return nil, err
	}

	requestFailures, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "bootstrap_request_failures_total",
		Help: "Failed control plane create requests",
	}, []string{"stage"})
	if err != nil {
		return nil, err
	}

	lastSuccess, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "bootstrap_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	})
	if err != nil {
		return nil, err
	}

	lastRun, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "bootstrap_last_run_timestamp_seconds",
		Help: "Unix time of the last finished run",
	})
	if err != nil {
		return nil, err
	}

	return &BootstrapMetrics{
		runs:            runs,
		stageStatus:     stageStatus,
		requestDuration: requestDuration,
		requestFailures: requestFailures,
		lastSuccess:     lastSuccess,
		lastRun:         lastRun,
	}, nil
}

// OnStageStatus implements bootstrap.Sink.
func (m *BootstrapMetrics) OnStageStatus(t stage.Type, s stage.Status) {
	m.stageStatus.With(prometheus.Labels{"stage": t.String()}).Set(float64(s))
}

// OnComplete implements bootstrap.Sink.
func (m *BootstrapMetrics) OnComplete(string) {
	now := float64(time.Now().Unix())
	m.runs.With(prometheus.Labels{"outcome": "success"}).Inc()
	m.lastSuccess.Set(now)
	m.lastRun.Set(now)
}

// OnFailed implements bootstrap.Sink.
func (m *BootstrapMetrics) OnFailed(stage.Type, error) {
	m.runs.With(prometheus.Labels{"outcome": "failed"}).Inc()
	m.lastRun.Set(float64(time.Now().Unix()))
}

// ObserveRequest implements bootstrap.RequestObserver.
func (m *BootstrapMetrics) ObserveRequest(t stage.Type, d time.Duration, err error) {
	labels := prometheus.Labels{"stage": t.String()}
	m.requestDuration.With(labels).Observe(d.Seconds())
	if err != nil {
		m.requestFailures.With(labels).Inc()
	}
}
