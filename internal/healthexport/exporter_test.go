package healthexport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/clockwise/internal/config"
	ledgerhealthdomain "github.com/smallbiznis/clockwise/internal/ledgerhealth/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturePusher struct {
	calls int
	err   error
}

func (p *capturePusher) Push(context.Context, *prometheus.Registry) error {
	p.calls++
	return p.err
}

func sampleLog() ledgerhealthdomain.HealthLog {
	return ledgerhealthdomain.HealthLog{
		CheckedAt:             time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		TotalRows:             1200,
		GapCount:              2,
		HashFailureCount:      1,
		UnprocessedCount:      40,
		StaleUnprocessedCount: 3,
		ProcessingLagSeconds:  95.5,
		Status:                ledgerhealthdomain.StatusCritical,
		DurationMs:            1500,
	}
}

func TestExportSetsGauges(t *testing.T) {
	pusher := &capturePusher{}
	e := NewExporter(pusher, "clockwise", "node-1")

	require.NoError(t, e.Export(context.Background(), sampleLog()))
	assert.Equal(t, 1, pusher.calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.status.WithLabelValues("critical")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.status.WithLabelValues("healthy")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.status.WithLabelValues("warning")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(e.totalRows))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.gaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.hashFailures))
	assert.Equal(t, 40.0, testutil.ToFloat64(e.unprocessed))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.staleUnprocessed))
	assert.Equal(t, 95.5, testutil.ToFloat64(e.lagSeconds))
	assert.Equal(t, 1.5, testutil.ToFloat64(e.durationSeconds))

	healthy := sampleLog()
	healthy.Status = ledgerhealthdomain.StatusHealthy
	require.NoError(t, e.Export(context.Background(), healthy))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.status.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.status.WithLabelValues("healthy")))
}

func TestExportReturnsPushError(t *testing.T) {
	e := NewExporter(&capturePusher{err: errors.New("unreachable")}, "clockwise", "node-1")
	assert.EqualError(t, e.Export(context.Background(), sampleLog()), "unreachable")
}

func TestNilExporterIsNoop(t *testing.T) {
	var e *Exporter
	assert.NoError(t, e.Export(context.Background(), sampleLog()))
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var received prompb.WriteRequest
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, received.Unmarshal(decoded))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	e := NewExporter(nil, "clockwise", "node-1")
	require.NoError(t, e.Export(context.Background(), sampleLog()))

	pusher := NewRemoteWritePusher(server.URL, "secret")
	pusher.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.NoError(t, pusher.Push(context.Background(), e.Registry()))

	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))

	var found bool
	for _, ts := range received.Timeseries {
		labels := map[string]string{}
		for _, label := range ts.Labels {
			labels[label.Name] = label.Value
		}
		if labels["__name__"] != "clockwise_ledger_sequence_gaps" {
			continue
		}
		found = true
		assert.Equal(t, "node-1", labels["instance"])
		require.Len(t, ts.Samples, 1)
		assert.Equal(t, 2.0, ts.Samples[0].Value)
		assert.Equal(t, int64(1700000000000), ts.Samples[0].Timestamp)
	}
	assert.True(t, found)
}

func TestRemoteWritePusherReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	e := NewExporter(nil, "clockwise", "node-1")
	require.NoError(t, e.Export(context.Background(), sampleLog()))

	err := NewRemoteWritePusher(server.URL, "").Push(context.Background(), e.Registry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPushgatewayPusherUsesJobAndGrouping(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	e := NewExporter(nil, "clockwise", "node-1")
	require.NoError(t, e.Export(context.Background(), sampleLog()))

	pusher := NewPushgatewayPusher(server.URL, "clockwise", map[string]string{"environment": "staging", "empty": ""})
	require.NoError(t, pusher.Push(context.Background(), e.Registry()))
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/clockwise"))
	assert.Contains(t, path, "/environment/staging")
	assert.NotContains(t, path, "/empty")
}

func TestNewPusherFromConfig(t *testing.T) {
	log := zap.NewNop()

	assert.Nil(t, NewPusher(config.Config{}, log))

	cfg := config.Config{AppName: "clockwise", HealthExport: config.HealthExportConfig{Enabled: true}}
	assert.Nil(t, NewPusher(cfg, log))

	cfg.HealthExport.Exporter = "statsd"
	cfg.HealthExport.Endpoint = "http://localhost:9091"
	assert.Nil(t, NewPusher(cfg, log))

	cfg.HealthExport.Exporter = "prometheus_pushgateway"
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, log))

	cfg.HealthExport.Exporter = "prometheus_remote_write"
	cfg.HealthExport.Endpoint = "http://localhost:9090/api/v1/write"
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, log))
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "h"})
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "c"})
	registry.MustRegister(hist, counter)
	hist.Observe(1)
	counter.Add(3)

	families, err := registry.Gather()
	require.NoError(t, err)
	series := buildRemoteWriteSeries(families, 10)
	require.Len(t, series, 1)
	assert.Equal(t, "c", series[0].Labels[0].Value)
	assert.Equal(t, 3.0, series[0].Samples[0].Value)
}
