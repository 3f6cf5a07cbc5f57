// Package metrics exposes Prometheus instrumentation for the daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the Prometheus registry and every daemon metric.
type Collector struct {
	registry *prometheus.Registry

	channels          prometheus.Gauge
	channelsRecording prometheus.Gauge
	channelsOnline    prometheus.Gauge
	channelsFailed    prometheus.Gauge
	diskFreeBytes     prometheus.Gauge

	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram

	capturesStartedTotal   prometheus.Counter
	captureExitsTotal      *prometheus.CounterVec
	captureLifetimeSeconds prometheus.Histogram
	splitsTotal            prometheus.Counter
	toleranceFailuresTotal prometheus.Counter

	reconcileCyclesTotal prometheus.Counter
	reconcileDuration    prometheus.Histogram
}

// NewCollector creates a collector with all metrics registered on a
// private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_channels",
			Help: "Number of tracked channels.",
		}),
		channelsRecording: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_channels_recording",
			Help: "Number of channels with an active capture.",
		}),
		channelsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_channels_online",
			Help: "Number of channels whose stream is live.",
		}),
		channelsFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_channels_failed",
			Help: "Number of channels parked in the failed state.",
		}),
		diskFreeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamvault_disk_free_bytes",
			Help: "Free space on the recordings filesystem.",
		}),

		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_probes_total",
			Help: "Availability probes by result.",
		}, []string{"result"}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamvault_probe_duration_seconds",
			Help:    "Duration of availability probes.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),

		capturesStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_captures_started_total",
			Help: "Capture processes started.",
		}),
		captureExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamvault_capture_exits_total",
			Help: "Capture process exits by exit code.",
		}, []string{"exit_code"}),
		captureLifetimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamvault_capture_lifetime_seconds",
			Help:    "Lifetime of capture sessions.",
			Buckets: []float64{1, 5, 20, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		splitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_splits_total",
			Help: "Recordings split because they reached the size limit.",
		}),
		toleranceFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_tolerance_failures_total",
			Help: "Channels that exhausted their restart tolerance.",
		}),

		reconcileCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamvault_reconcile_cycles_total",
			Help: "Completed reconcile cycles.",
		}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamvault_reconcile_duration_seconds",
			Help:    "Duration of reconcile cycles.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
	}

	c.registry.MustRegister(
		c.channels,
		c.channelsRecording,
		c.channelsOnline,
		c.channelsFailed,
		c.diskFreeBytes,
		c.probesTotal,
		c.probeDuration,
		c.capturesStartedTotal,
		c.captureExitsTotal,
		c.captureLifetimeSeconds,
		c.splitsTotal,
		c.toleranceFailuresTotal,
		c.reconcileCyclesTotal,
		c.reconcileDuration,
	)
	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the scrape handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetChannelCounts updates the channel gauges.
func (c *Collector) SetChannelCounts(total, recording, online, failed int) {
	c.channels.Set(float64(total))
	c.channelsRecording.Set(float64(recording))
	c.channelsOnline.Set(float64(online))
	c.channelsFailed.Set(float64(failed))
}

// SetDiskFree updates the recordings filesystem free space gauge.
func (c *Collector) SetDiskFree(bytes uint64) {
	c.diskFreeBytes.Set(float64(bytes))
}

// RecordProbe records one availability probe.
func (c *Collector) RecordProbe(live bool, elapsed time.Duration) {
	result := "offline"
	if live {
		result = "live"
	}
	c.probesTotal.WithLabelValues(result).Inc()
	c.probeDuration.Observe(elapsed.Seconds())
}

// RecordCaptureStart records one capture process start.
func (c *Collector) RecordCaptureStart() {
	c.capturesStartedTotal.Inc()
}

// RecordCaptureExit records one capture process exit.
func (c *Collector) RecordCaptureExit(exitCode int, lifetime time.Duration) {
	c.captureExitsTotal.WithLabelValues(strconv.Itoa(exitCode)).Inc()
	c.captureLifetimeSeconds.Observe(lifetime.Seconds())
}

// RecordSplit records one size-triggered recording split.
func (c *Collector) RecordSplit() {
	c.splitsTotal.Inc()
}

// RecordToleranceExceeded records a channel entering the failed state.
func (c *Collector) RecordToleranceExceeded() {
	c.toleranceFailuresTotal.Inc()
}

// RecordReconcile records one completed reconcile cycle.
func (c *Collector) RecordReconcile(elapsed time.Duration) {
	c.reconcileCyclesTotal.Inc()
	c.reconcileDuration.Observe(elapsed.Seconds())
}
