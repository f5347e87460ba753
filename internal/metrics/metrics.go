package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/lqe/internal/buildconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lqe"

// Metrics holds the prometheus collectors for the service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	ObservationsApplied prometheus.Counter
	UpdateConflicts     prometheus.Counter
	SignalsExpired      prometheus.Counter
	PosteriorVariance   prometheus.Histogram
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        prometheus.Histogram
	BuildInfo           *prometheus.GaugeVec
}

func NewDefault() (*Metrics, error) {
	return New(prometheus.NewRegistry())
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		reg: reg,
		ObservationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Observations folded into persisted signals",
		}),
		UpdateConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_conflicts_total",
			Help:      "Belief writes that lost a compare-and-swap and were retried",
		}),
		SignalsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_expired_total",
			Help:      "Signals removed by the expirer",
		}),
		PosteriorVariance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "signal_variance",
			Help:      "Variance of persisted posteriors after an observation",
			Buckets:   prometheus.ExponentialBuckets(0.001, 10, 8),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by status code",
		}, []string{"code"}),
		HTTPDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build version and commit of the running binary",
		}, []string{"version", "commit"}),
	}

	err := errors.Join(
		reg.Register(m.ObservationsApplied),
		reg.Register(m.UpdateConflicts),
		reg.Register(m.SignalsExpired),
		reg.Register(m.PosteriorVariance),
		reg.Register(m.HTTPRequests),
		reg.Register(m.HTTPDuration),
		reg.Register(m.BuildInfo),
	)
	if err != nil {
		return nil, err
	}

	info := buildconfig.Get()
	m.BuildInfo.WithLabelValues(info.Version, info.Commit).Set(1)
	return m, nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveStep(count int, variance float64) {
	if m == nil {
		return
	}
	m.ObservationsApplied.Add(float64(count))
	m.PosteriorVariance.Observe(variance)
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.UpdateConflicts.Inc()
}

func (m *Metrics) Expired(n int64) {
	if m == nil {
		return
	}
	m.SignalsExpired.Add(float64(n))
}

func (m *Metrics) ObserveRequest(status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	m.HTTPDuration.Observe(d.Seconds())
}
