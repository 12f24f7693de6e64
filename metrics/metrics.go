// Package metrics exposes station counters on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rollcall"

type Metrics struct {
	registry *prometheus.Registry

	frames       *prometheus.CounterVec
	faces        prometheus.Counter
	matches      *prometheus.CounterVec
	distance     prometheus.Histogram
	samples      *prometheus.CounterVec
	trainings    *prometheus.CounterVec
	modelVersion prometheus.Gauge
	sessions     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames read from the capture device, by result.",
		}, []string{"result"}),
		faces: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_located_total",
			Help:      "Faces returned by the locator.",
		}),
		matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Classified faces by attendance outcome.",
		}, []string{"outcome"}),
		distance: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance",
			Help:      "Distance of the nearest identity for each classified face.",
			Buckets:   []float64{10, 20, 30, 40, 50, 55, 60, 80, 100, 150, 200},
		}),
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enroll_frames_total",
			Help:      "Enrollment frames by result.",
		}, []string{"result"}),
		trainings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trainings_total",
			Help:      "Training runs by result.",
		}, []string{"result"}),
		modelVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_version",
			Help:      "Version number of the active model.",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Verification sessions by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Frame counts one processed frame; result is "ok" or "error".
func (m *Metrics) Frame(result string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(result).Inc()
}

func (m *Metrics) Faces(n int) {
	if m == nil {
		return
	}
	m.faces.Add(float64(n))
}

func (m *Metrics) Match(outcome string, distance float64) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(outcome).Inc()
	m.distance.Observe(distance)
}

// Enroll counts one enrollment frame; result is "saved", "no_face" or
// "multiple_faces".
func (m *Metrics) Enroll(result string) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(result).Inc()
}

func (m *Metrics) Training(err error) {
	if m == nil {
		return
	}
	m.trainings.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Session(err error) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ModelVersion(v uint64) {
	if m == nil {
		return
	}
	m.modelVersion.Set(float64(v))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
