package sdls

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instrumentation. Unlike
// runZeroInc-conniver's exporter, which implements a custom
// prometheus.Collector to report one metric family per live connection,
// the engine's countable state is a handful of process-wide scalars, so
// plain promauto counters/gauges registered once at construction are
// sufficient and simpler (see DESIGN.md).
type Metrics struct {
	FramesApplied   *prometheus.CounterVec
	FramesProcessed *prometheus.CounterVec
	ReplayRejects   prometheus.Counter
	MacFailures     prometheus.Counter
	SAState         *prometheus.GaugeVec
}

// NewMetrics registers the engine's metric families against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in cmd/satsim.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdls",
			Name:      "frames_applied_total",
			Help:      "TC/TM frames successfully secured, by SPI.",
		}, []string{"spi"}),
		FramesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdls",
			Name:      "frames_processed_total",
			Help:      "TC frames successfully authenticated/decrypted, by SPI.",
		}, []string{"spi"}),
		ReplayRejects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sdls",
			Name:      "replay_rejects_total",
			Help:      "Frames rejected by the anti-replay window check.",
		}),
		MacFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sdls",
			Name:      "mac_failures_total",
			Help:      "Frames rejected for authentication tag mismatch.",
		}),
		SAState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sdls",
			Name:      "sa_state",
			Help:      "Current lifecycle state of each SA (spec.md §3 SAState ordinal).",
		}, []string{"spi"}),
	}
}

func (e *Engine) metricApplied(spi int) {
	if e.metrics == nil {
		return
	}
	e.metrics.FramesApplied.WithLabelValues(strconv.Itoa(spi)).Inc()
}

func (e *Engine) metricProcessed(spi int) {
	if e.metrics == nil {
		return
	}
	e.metrics.FramesProcessed.WithLabelValues(strconv.Itoa(spi)).Inc()
}
