// Package metrics exposes Prometheus collectors for the live processor and the
// transcoder.
package metrics

import (
	"net/http"
	"time"

	"github.com/jmylchreest/brickify/internal/bufpool"
	"github.com/jmylchreest/brickify/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "brickify"

// Metrics owns a registry and the collectors registered on it. It implements
// live.Observer and transcode.Observer.
type Metrics struct {
	registry *prometheus.Registry

	framesCaptured prometheus.Counter
	framesRendered prometheus.Counter
	framesDropped  prometheus.Counter
	renderFailures prometheus.Counter
	renderLatency  prometheus.Histogram

	transcodesActive  prometheus.Gauge
	transcodes        *prometheus.CounterVec
	transcodeDuration prometheus.Histogram
	poolAcquisitions  prometheus.Counter
	poolExhaustions   prometheus.Counter
}

// New creates the collectors on a fresh registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{registry: reg}
	m.framesCaptured = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "frames_captured_total",
		Help:      "Frames delivered by the capture source.",
	})
	m.framesRendered = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "frames_rendered_total",
		Help:      "Frames rendered and published.",
	})
	m.framesDropped = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "frames_dropped_total",
		Help:      "Frames replaced by a newer frame before rendering started.",
	})
	m.renderFailures = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "render_failures_total",
		Help:      "Frames skipped because they could not be rendered.",
	})
	m.renderLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "live",
		Name:      "render_seconds",
		Help:      "Time spent rendering one live frame.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	m.transcodesActive = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcode",
		Name:      "active",
		Help:      "Transcodes currently running.",
	})
	m.transcodes = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transcode",
		Name:      "total",
		Help:      "Finished transcodes by result.",
	}, []string{"result"})
	m.transcodeDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "transcode",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of finished transcodes.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	m.poolAcquisitions = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "acquisitions_total",
		Help:      "Pixel buffers handed out by transcode pools.",
	})
	m.poolExhaustions = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "exhaustions_total",
		Help:      "Acquire calls that found every pixel buffer in use.",
	})
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterGauge adds a gauge whose value is read on every scrape.
func (m *Metrics) RegisterGauge(subsystem, name, help string, value func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, value))
}

// FrameCaptured implements live.Observer.
func (m *Metrics) FrameCaptured() { m.framesCaptured.Inc() }

// FrameDropped implements live.Observer.
func (m *Metrics) FrameDropped() { m.framesDropped.Inc() }

// FrameRendered implements live.Observer.
func (m *Metrics) FrameRendered(latency time.Duration) {
	m.framesRendered.Inc()
	m.renderLatency.Observe(latency.Seconds())
}

// RenderFailed implements live.Observer.
func (m *Metrics) RenderFailed() { m.renderFailures.Inc() }

// TranscodeStarted implements transcode.Observer.
func (m *Metrics) TranscodeStarted() { m.transcodesActive.Inc() }

// TranscodeFinished implements transcode.Observer. Successful runs are
// labelled "success", failures by their error kind.
func (m *Metrics) TranscodeFinished(res pipeline.Result, elapsed time.Duration, pool bufpool.Stats) {
	m.transcodesActive.Dec()
	label := "success"
	if !res.OK() {
		label = res.Kind().String()
	}
	m.transcodes.WithLabelValues(label).Inc()
	m.transcodeDuration.Observe(elapsed.Seconds())
	m.poolAcquisitions.Add(float64(pool.Acquisitions))
	m.poolExhaustions.Add(float64(pool.Exhaustions))
}
