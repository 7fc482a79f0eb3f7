package metrics

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Launch results used as the "result" label.
const (
	ResultSpawned = "spawned"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Metrics holds the launcher's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	launches      *prometheus.CounterVec
	childStderr   *prometheus.CounterVec
	childDuration *prometheus.HistogramVec
	childExitCode *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "foxy",
				Name:      "launches_total",
				Help:      "Launcher invocations by command and result.",
			}, []string{"id", "result"},
		),
		childStderr: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "foxy",
				Subsystem: "child",
				Name:      "stderr_total",
				Help:      "Children that wrote to stderr.",
			}, []string{"id"},
		),
		childDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "foxy",
				Subsystem: "child",
				Name:      "duration_seconds",
				Help:      "Wall time from spawn until the child exited.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
			}, []string{"id"},
		),
		childExitCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "foxy",
				Subsystem: "child",
				Name:      "exit_code",
				Help:      "Exit code of the last child (-1 when killed by a signal).",
			}, []string{"id"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "foxy",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last invocation by result.",
			}, []string{"id", "result"},
		),
	}
}

// Register registers all collectors with r.
// Collectors already registered with r are kept.
func (m *Metrics) Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{m.launches, m.childStderr, m.childDuration, m.childExitCode, m.lastRun}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler returns an http.Handler serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Launch records the outcome of one invocation for the command identified by id.
func (m *Metrics) Launch(id, result string, at time.Time) {
	if m == nil {
		return
	}
	m.launches.WithLabelValues(id, result).Inc()
	m.lastRun.WithLabelValues(id, result).Set(float64(at.Unix()))
}

// ChildExited records a finished child.
func (m *Metrics) ChildExited(id string, d time.Duration, exitCode int, wroteStderr bool) {
	if m == nil {
		return
	}
	m.childDuration.WithLabelValues(id).Observe(d.Seconds())
	m.childExitCode.WithLabelValues(id).Set(float64(exitCode))
	if wroteStderr {
		m.childStderr.WithLabelValues(id).Inc()
	}
}

// TextfilePath expands the "{id}" placeholder of a textfile path template.
func TextfilePath(tmpl, id string) string { return strings.ReplaceAll(tmpl, "{id}", id) }

// WriteTextfile atomically writes everything gathered by g to path in the
// text exposition format read by node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
