package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source kinds used as the "kind" label
const (
	KindUSB     = "usb"
	KindNetwork = "network"
)

// Metrics holds the camera manager's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	frames        *prometheus.CounterVec
	frameFailures *prometheus.CounterVec
	activeStreams prometheus.Gauge
	captures      *prometheus.CounterVec
	detected      *prometheus.GaugeVec
}

// New creates a Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shellsorter_frames_total",
			Help: "Frames stored in a camera's latest-frame buffer",
		}, []string{"camera", "kind"}),
		frameFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shellsorter_frame_failures_total",
			Help: "Failed frame reads or fetches",
		}, []string{"camera", "kind"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shellsorter_active_streams",
			Help: "Running frame pumps",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shellsorter_captures_total",
			Help: "High resolution still captures by result",
		}, []string{"result"}),
		detected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shellsorter_detected_cameras",
			Help: "Cameras found by the last detection pass",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.frames,
		m.frameFailures,
		m.activeStreams,
		m.captures,
		m.detected,
		collectors.NewGoCollector(),
	)

	return m
}

// FrameStored counts a frame written to a buffer
func (m *Metrics) FrameStored(index int, kind string) {
	m.frames.WithLabelValues(strconv.Itoa(index), kind).Inc()
}

// FrameFailed counts a failed read or fetch
func (m *Metrics) FrameFailed(index int, kind string) {
	m.frameFailures.WithLabelValues(strconv.Itoa(index), kind).Inc()
}

// StreamStarted increments the running pump gauge
func (m *Metrics) StreamStarted() {
	m.activeStreams.Inc()
}

// StreamStopped decrements the running pump gauge
func (m *Metrics) StreamStopped() {
	m.activeStreams.Dec()
}

// Captured counts a still capture attempt
func (m *Metrics) Captured(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.captures.WithLabelValues(result).Inc()
}

// Detected records the outcome of a detection pass
func (m *Metrics) Detected(usb, network int) {
	m.detected.WithLabelValues(KindUSB).Set(float64(usb))
	m.detected.WithLabelValues(KindNetwork).Set(float64(network))
}

// Handler returns the Prometheus scrape handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
