package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the store's Prometheus collectors. Labels are deliberately
// absent: table and simulation names are unbounded.
type Metrics struct {
	QueueDepth    prometheus.Gauge
	RowsWritten   prometheus.Counter
	FlushErrors   prometheus.Counter
	FlushDuration prometheus.Histogram
	LockWait      prometheus.Histogram
}

// NewMetrics creates the store collectors and registers them with reg.
// A nil reg leaves them unregistered. Collectors already registered by an
// earlier Store on the same registry are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "simkernel",
			Subsystem: "store",
			Name:      "queue_depth",
			Help:      "Pending writes across all result files.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simkernel",
			Subsystem: "store",
			Name:      "rows_written_total",
			Help:      "Rows committed to result tables.",
		}),
		FlushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "simkernel",
			Subsystem: "store",
			Name:      "flush_errors_total",
			Help:      "Table or file flushes that failed.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simkernel",
			Subsystem: "store",
			Name:      "flush_duration_seconds",
			Help:      "Time to merge-write one file's queued entries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simkernel",
			Subsystem: "store",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a contended file lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	if reg == nil {
		return m
	}

	m.QueueDepth = register(reg, m.QueueDepth)
	m.RowsWritten = register(reg, m.RowsWritten)
	m.FlushErrors = register(reg, m.FlushErrors)
	m.FlushDuration = register(reg, m.FlushDuration)
	m.LockWait = register(reg, m.LockWait)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
