// Package metrics exposes a Prometheus registry for the streaming
// gateway, adapted from the teacher's counter-per-GaugeFunc style.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the orchestrator and its
// components update as they run.
type Metrics struct {
	FramesRead      atomic.Uint64
	FramesEncoded   atomic.Uint64
	FramesSkipped   atomic.Uint64
	KeyframesSent   atomic.Uint64
	RTPPacketsSent  atomic.Uint64
	ShmReadErrors   atomic.Uint64
	EncodeErrors    atomic.Uint64

	ActivePeers atomic.Uint64
	TotalPeers  atomic.Uint64

	EmulatorRunning        atomic.Uint64 // 0/1
	EmulatorRestarts       atomic.Uint64
	ControlSocketConnected atomic.Uint64 // 0/1

	registry *prometheus.Registry
}

// New creates a Metrics instance with its Prometheus collectors
// registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauge := func(name, help string, get func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help}, get,
		))
	}

	gauge("macemu_frames_read_total", "Frames read from the video shared-memory channel", func() float64 { return float64(m.FramesRead.Load()) })
	gauge("macemu_frames_encoded_total", "Frames successfully encoded", func() float64 { return float64(m.FramesEncoded.Load()) })
	gauge("macemu_frames_skipped_total", "Frames skipped due to encode failure", func() float64 { return float64(m.FramesSkipped.Load()) })
	gauge("macemu_keyframes_sent_total", "Keyframes fanned out to peers", func() float64 { return float64(m.KeyframesSent.Load()) })
	gauge("macemu_rtp_packets_sent_total", "RTP packets sent across all peers", func() float64 { return float64(m.RTPPacketsSent.Load()) })
	gauge("macemu_shm_read_errors_total", "Shared-memory read errors", func() float64 { return float64(m.ShmReadErrors.Load()) })
	gauge("macemu_encode_errors_total", "Encoder errors", func() float64 { return float64(m.EncodeErrors.Load()) })
	gauge("macemu_active_peers", "Currently connected peer sessions", func() float64 { return float64(m.ActivePeers.Load()) })
	gauge("macemu_total_peers", "Total peer sessions ever created", func() float64 { return float64(m.TotalPeers.Load()) })
	gauge("macemu_emulator_running", "Whether the emulator child process is running (0/1)", func() float64 { return float64(m.EmulatorRunning.Load()) })
	gauge("macemu_emulator_restarts_total", "Emulator restarts observed", func() float64 { return float64(m.EmulatorRestarts.Load()) })
	gauge("macemu_control_socket_connected", "Whether the emulator control socket is connected (0/1)", func() float64 { return float64(m.ControlSocketConnected.Load()) })
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
