// Package telemetry exposes sampler activity as Prometheus metrics.
package telemetry

import (
	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/record"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "infologger"

// Metrics implements sampling.Recorder on top of Prometheus collectors.
type Metrics struct {
	ticks         prometheus.Counter
	lines         *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	finalized     *prometheus.CounterVec
	entries       *prometheus.HistogramVec
	channelActive *prometheus.GaugeVec
	timerActive   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	channelLabel := []string{"channel"}

	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Number of sampling ticks.",
		}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Sample lines appended to channel buffers.",
		}, channelLabel),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_write_failures_total",
			Help:      "Sample lines that could not be written.",
		}, channelLabel),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalized_total",
			Help:      "Logging sessions stopped and converted to record sets.",
		}, channelLabel),
		entries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalized_entries",
			Help:      "Entries per finalized record set.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, channelLabel),
		channelActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_active",
			Help:      "Whether a channel is currently logging (1) or not (0).",
		}, channelLabel),
		timerActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timer_active",
			Help:      "Whether the sampling timer is running.",
		}),
	}

	collectors := []prometheus.Collector{
		m.ticks, m.lines, m.writeFailures, m.finalized, m.entries, m.channelActive, m.timerActive,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, errors.New().Wrap(ErrRegisterFailed, err)
		}
	}

	for _, ch := range record.Channels {
		m.channelActive.WithLabelValues(ch.String()).Set(0)
	}

	return m, nil
}

func (m *Metrics) Tick() {
	m.ticks.Inc()
}

func (m *Metrics) LineWritten(ch record.Channel) {
	m.lines.WithLabelValues(ch.String()).Inc()
}

func (m *Metrics) WriteFailed(ch record.Channel) {
	m.writeFailures.WithLabelValues(ch.String()).Inc()
}

func (m *Metrics) Finalized(ch record.Channel, entries int) {
	m.finalized.WithLabelValues(ch.String()).Inc()
	m.entries.WithLabelValues(ch.String()).Observe(float64(entries))
}

func (m *Metrics) ChannelActive(ch record.Channel, active bool) {
	m.channelActive.WithLabelValues(ch.String()).Set(boolToFloat(active))
}

func (m *Metrics) TimerActive(active bool) {
	m.timerActive.Set(boolToFloat(active))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
