// Package healthexport publishes ledger health gauges to a Pushgateway or a
// remote_write endpoint after every health check.
package healthexport

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	ledgerhealthdomain "github.com/smallbiznis/clockwise/internal/ledgerhealth/domain"
)

var statuses = []ledgerhealthdomain.Status{
	ledgerhealthdomain.StatusHealthy,
	ledgerhealthdomain.StatusWarning,
	ledgerhealthdomain.StatusCritical,
}

// Exporter keeps the gauges of the latest health check in a dedicated
// registry so a push never carries process or scheduler metrics.
type Exporter struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	pusher   Pusher

	status           *prometheus.GaugeVec
	totalRows        prometheus.Gauge
	gaps             prometheus.Gauge
	hashFailures     prometheus.Gauge
	unprocessed      prometheus.Gauge
	staleUnprocessed prometheus.Gauge
	lagSeconds       prometheus.Gauge
	checkedAt        prometheus.Gauge
	durationSeconds  prometheus.Gauge
}

func NewExporter(pusher Pusher, service, instance string) *Exporter {
	labels := prometheus.Labels{"service": service, "instance": instance}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "clockwise_ledger_" + name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	e := &Exporter{
		registry: prometheus.NewRegistry(),
		pusher:   pusher,
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "clockwise_ledger_health_status",
			Help:        "1 for the status of the latest ledger health check, 0 otherwise.",
			ConstLabels: labels,
		}, []string{"status"}),
		totalRows:        gauge("rows", "Ledger rows seen by the latest health check."),
		gaps:             gauge("sequence_gaps", "Sequence gaps found by the latest health check."),
		hashFailures:     gauge("hash_failures", "Hash chain failures found by the latest health check."),
		unprocessed:      gauge("unprocessed_rows", "Unprocessed ledger rows."),
		staleUnprocessed: gauge("stale_unprocessed_rows", "Unprocessed ledger rows older than the staleness threshold."),
		lagSeconds:       gauge("processing_lag_seconds", "Seconds between the newest scan and the health check."),
		checkedAt:        gauge("health_checked_timestamp_seconds", "Unix time of the latest health check."),
		durationSeconds:  gauge("health_check_duration_seconds", "Duration of the latest health check."),
	}
	e.registry.MustRegister(
		e.status,
		e.totalRows,
		e.gaps,
		e.hashFailures,
		e.unprocessed,
		e.staleUnprocessed,
		e.lagSeconds,
		e.checkedAt,
		e.durationSeconds,
	)
	return e
}

// Export sets the gauges from entry and pushes them.
func (e *Exporter) Export(ctx context.Context, entry ledgerhealthdomain.HealthLog) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, status := range statuses {
		value := 0.0
		if status == entry.Status {
			value = 1
		}
		e.status.WithLabelValues(string(status)).Set(value)
	}
	e.totalRows.Set(float64(entry.TotalRows))
	e.gaps.Set(float64(entry.GapCount))
	e.hashFailures.Set(float64(entry.HashFailureCount))
	e.unprocessed.Set(float64(entry.UnprocessedCount))
	e.staleUnprocessed.Set(float64(entry.StaleUnprocessedCount))
	e.lagSeconds.Set(entry.ProcessingLagSeconds)
	e.checkedAt.Set(float64(entry.CheckedAt.Unix()))
	e.durationSeconds.Set(float64(entry.DurationMs) / 1000)

	if e.pusher == nil {
		return nil
	}
	return e.pusher.Push(ctx, e.registry)
}

// Registry exposes the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
