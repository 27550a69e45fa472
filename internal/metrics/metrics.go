// Package metrics records submission outcomes with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives submission lifecycle events from controllers.
type Recorder interface {
	ObserveSubmission(errorKind string, duration time.Duration)
	ObserveAborted(duration time.Duration)
	IncRejected(reason string)
	IncInFlight()
	DecInFlight()
}

// PrometheusRecorder implements Recorder on its own registry, so several
// servers can live in one process (tests) without duplicate registration.
type PrometheusRecorder struct {
	registry          *prometheus.Registry
	submissionsTotal  *prometheus.CounterVec
	submissionSeconds *prometheus.HistogramVec
	rejectedTotal     *prometheus.CounterVec
	inFlight          prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder with Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &PrometheusRecorder{
		registry: reg,
		submissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "karigar_submissions_total",
				Help: "Completed generation submissions by outcome and error kind",
			},
			[]string{"outcome", "error_kind"},
		),
		submissionSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "karigar_submission_duration_seconds",
				Help:    "Time from submit until the backend answered or failed",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		rejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "karigar_submissions_rejected_total",
				Help: "Submissions refused before reaching the backend",
			},
			[]string{"reason"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "karigar_submissions_in_flight",
			Help: "Generation requests currently waiting on the backend",
		}),
	}
	reg.MustRegister(p.submissionsTotal, p.submissionSeconds, p.rejectedTotal, p.inFlight)
	return p
}

// ObserveSubmission records a finished submission. An empty errorKind means success.
func (p *PrometheusRecorder) ObserveSubmission(errorKind string, duration time.Duration) {
	outcome := "success"
	if errorKind != "" {
		outcome = "error"
	}
	p.submissionsTotal.WithLabelValues(outcome, errorKind).Inc()
	p.submissionSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveAborted records an attempt whose outcome was discarded because a
// reset or session expiry superseded it.
func (p *PrometheusRecorder) ObserveAborted(duration time.Duration) {
	p.submissionsTotal.WithLabelValues("aborted", "").Inc()
	p.submissionSeconds.WithLabelValues("aborted").Observe(duration.Seconds())
}

// IncRejected counts a submission refused before any request was sent.
func (p *PrometheusRecorder) IncRejected(reason string) {
	p.rejectedTotal.WithLabelValues(reason).Inc()
}

// IncInFlight marks a request as started.
func (p *PrometheusRecorder) IncInFlight() { p.inFlight.Inc() }

// DecInFlight marks a request as finished.
func (p *PrometheusRecorder) DecInFlight() { p.inFlight.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveSubmission(string, time.Duration) {}
func (Nop) ObserveAborted(time.Duration)            {}
func (Nop) IncRejected(string)                      {}
func (Nop) IncInFlight()                            {}
func (Nop) DecInFlight()                            {}
