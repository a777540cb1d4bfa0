package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ledgerPolled       metric.Int64Counter
	ledgerDuplicates   metric.Int64Counter
	ledgerReconciled   metric.Int64Counter
	eventsMaterialized metric.Int64Counter
	eventConflicts     metric.Int64Counter
	unmatchedTokens    metric.Int64Counter
	summariesComputed  metric.Int64Counter
	healthChecks       metric.Int64Counter
	throttleDecisions  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "clockwise"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		name   string
		target *metric.Int64Counter
	}{
		{"clockwise_ledger_rows_polled_total", &m.ledgerPolled},
		{"clockwise_ledger_duplicates_total", &m.ledgerDuplicates},
		{"clockwise_ledger_already_processed_total", &m.ledgerReconciled},
		{"clockwise_attendance_events_materialized_total", &m.eventsMaterialized},
		{"clockwise_attendance_event_conflicts_total", &m.eventConflicts},
		{"clockwise_ledger_unmatched_tokens_total", &m.unmatchedTokens},
		{"clockwise_daily_summaries_computed_total", &m.summariesComputed},
		{"clockwise_ledger_health_checks_total", &m.healthChecks},
		{"clockwise_rate_limit_decisions_total", &m.throttleDecisions},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	return m, nil
}

// RecordPrepared counts one prepared ledger batch.
func (m *Metrics) RecordPrepared(ctx context.Context, total, duplicates, alreadyProcessed int) {
	if m == nil {
		return
	}
	m.ledgerPolled.Add(ctx, int64(total))
	m.ledgerDuplicates.Add(ctx, int64(duplicates))
	m.ledgerReconciled.Add(ctx, int64(alreadyProcessed))
}

// RecordMaterialized counts attendance events written from the ledger.
func (m *Metrics) RecordMaterialized(ctx context.Context, source string, inserted, conflicts, unmatched int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("source", strings.TrimSpace(source)))...)
	m.eventsMaterialized.Add(ctx, int64(inserted), attrs)
	m.eventConflicts.Add(ctx, int64(conflicts), attrs)
	m.unmatchedTokens.Add(ctx, int64(unmatched), attrs)
}

// RecordSummary counts daily summary computations by outcome.
func (m *Metrics) RecordSummary(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.summariesComputed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordHealthCheck counts ledger health checks by resulting status.
func (m *Metrics) RecordHealthCheck(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.healthChecks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordThrottle counts rate limit decisions on manual endpoints. outcome is
// allowed, denied or unavailable.
func (m *Metrics) RecordThrottle(ctx context.Context, endpoint, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.throttleDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"source":      {},
	"outcome":     {},
	"status":      {},
	"rule":        {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
