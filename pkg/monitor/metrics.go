/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics describes the monitor's own behaviour. A nil *Metrics records
// nothing.
type Metrics struct {
	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	collectErrors *prometheus.CounterVec
	monitored     prometheus.Gauge
}

// NewMetrics creates the monitor metrics on reg. A nil reg creates
// unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "queuewatch_ticks_total",
			Help: "The number of completed polling ticks.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "queuewatch_tick_duration_seconds",
			Help:    "The time taken to collect and publish one tick.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		collectErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "queuewatch_collect_errors_total",
			Help: "The number of failed reads, by queue and source.",
		}, []string{"queue", "source"}),
		monitored: f.NewGauge(prometheus.GaugeOpts{
			Name: "queuewatch_monitored_queues",
			Help: "The number of queues that resolved at startup.",
		}),
	}
}

func (m *Metrics) observeTick(d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) collectError(queue, source string) {
	if m == nil {
		return
	}
	m.collectErrors.WithLabelValues(queue, source).Inc()
}

func (m *Metrics) setMonitored(n int) {
	if m == nil {
		return
	}
	m.monitored.Set(float64(n))
}
