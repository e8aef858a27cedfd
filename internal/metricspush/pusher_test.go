package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/condopay/internal/config"
	"github.com/smallbiznis/condopay/internal/migration"
	"github.com/smallbiznis/condopay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_recomputes_total"}, []string{"trigger"})
	counter.WithLabelValues("feed").Add(3)
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_sessions"})
	gauge.Set(2)
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_duration_seconds", Buckets: []float64{1}})
	hist.Observe(0.5)
	hist.Observe(4)

	reg.MustRegister(counter, gauge, hist)
	return reg
}

func seriesKey(s prompb.TimeSeries) string {
	key := ""
	for _, l := range s.Labels {
		if l.Name == "env" {
			continue
		}
		key += l.Name + "=" + l.Value + ","
	}
	return key
}

func TestToTimeSeries(t *testing.T) {
	families, err := testRegistry(t).Gather()
	require.NoError(t, err)

	series := toTimeSeries(families, []prompb.Label{{Name: "env", Value: "test"}}, 1000)
	require.Len(t, series, 6)

	got := map[string]float64{}
	for _, s := range series {
		assert.Equal(t, int64(1000), s.Samples[0].Timestamp)
		assert.Contains(t, s.Labels, prompb.Label{Name: "env", Value: "test"})
		for i := 1; i < len(s.Labels); i++ {
			assert.Less(t, s.Labels[i-1].Name, s.Labels[i].Name)
		}
		got[seriesKey(s)] = s.Samples[0].Value
	}

	assert.Equal(t, map[string]float64{
		"__name__=test_recomputes_total,trigger=feed,":   3,
		"__name__=test_sessions,":                        2,
		"__name__=test_duration_seconds_bucket,le=1,":    1,
		"__name__=test_duration_seconds_bucket,le=+Inf,": 2,
		"__name__=test_duration_seconds_sum,":            4.5,
		"__name__=test_duration_seconds_count,":          2,
	}, got)
}

func TestRemoteWritePusher(t *testing.T) {
	var (
		mu   sync.Mutex
		got  prompb.WriteRequest
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, got.Unmarshal(decoded))
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "secret", map[string]string{"service": "condopay", "environment": ""})
	pusher.now = func() time.Time { return time.UnixMilli(42) }
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret", auth)
	require.Len(t, got.Timeseries, 6)
	for _, ts := range got.Timeseries {
		assert.Contains(t, ts.Labels, prompb.Label{Name: "service", Value: "condopay"})
		assert.Equal(t, int64(42), ts.Samples[0].Timestamp)
	}
}

func TestRemoteWritePusherReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "", nil).Push(context.Background(), testRegistry(t))
	assert.ErrorContains(t, err, "502")
}

func TestPushgatewayPusher(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pusher := NewPushgatewayPusher(srv.URL, "condopay", map[string]string{"environment": "test", "empty": ""})
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, "/metrics/job/condopay/environment/test", path)
}

func TestNewPusher(t *testing.T) {
	log := zap.NewNop()

	assert.Nil(t, NewPusher(config.Config{}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: ExporterRemoteWrite}}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: ExporterRemoteWrite, Endpoint: "collector:9090"}}, log))
	assert.Nil(t, NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: "statsd", Endpoint: "http://statsd:8125"}}, log))

	rw := NewPusher(config.Config{MetricsPush: config.MetricsPushConfig{Exporter: ExporterRemoteWrite, Endpoint: "http://collector/api/v1/write"}}, log)
	assert.IsType(t, &RemoteWritePusher{}, rw)

	pg := NewPusher(config.Config{AppName: "condopay", MetricsPush: config.MetricsPushConfig{Exporter: ExporterPushgateway, Endpoint: "http://gateway:9091"}}, log)
	assert.IsType(t, &PushgatewayPusher{}, pg)
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		wantErr  bool
	}{
		{endpoint: "http://collector:9090/api/v1/write"},
		{endpoint: "https://prometheus-prod.grafana.net/api/prom/push"},
		{endpoint: "collector:9090", wantErr: true},
		{endpoint: "localhost:9091", wantErr: true},
		{endpoint: "ftp://collector/write", wantErr: true},
		{endpoint: "http://", wantErr: true},
		{endpoint: "/api/v1/write", wantErr: true},
		{endpoint: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			err := validateEndpoint(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

type recordingPusher struct {
	mu       sync.Mutex
	families map[string]float64
}

func (p *recordingPusher) Push(_ context.Context, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.families = map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 1 && f.GetMetric()[0].GetGauge() != nil {
			p.families[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return nil
}

func TestWorkerPushesInventory(t *testing.T) {
	conn := db.NewTest(t)
	require.NoError(t, migration.AutoMigrate(conn))
	require.NoError(t, conn.Exec(`INSERT INTO condominiums (id, name, slug, currency, metadata) VALUES (1, 'A', 'a', 'BRL', '{}')`).Error)

	pusher := &recordingPusher{}
	worker := NewWorker(pusher, conn, time.Hour, zap.NewNop())
	worker.PushOnce(context.Background())

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	assert.Equal(t, 1.0, pusher.families["condopay_condominiums_total"])
	assert.Equal(t, 0.0, pusher.families["condopay_residents_total"])
}
