// Package metricspush ships the prometheus registry to a remote collector on
// an interval, for deployments where /metrics cannot be scraped.
package metricspush

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/condopay/internal/config"
	"go.uber.org/zap"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"
)

// Pusher sends one snapshot of gatherer to the collector.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// NewPusher returns nil when pushing is off. A misconfigured exporter is
// logged and also yields nil; metrics are never a reason to refuse start.
func NewPusher(cfg config.Config, log *zap.Logger) Pusher {
	pushCfg := cfg.MetricsPush
	exporter := strings.ToLower(strings.TrimSpace(pushCfg.Exporter))
	if exporter == "" {
		return nil
	}
	log = log.Named("metricspush").With(zap.String("exporter", exporter))

	endpoint := strings.TrimSpace(pushCfg.Endpoint)
	if err := validateEndpoint(endpoint); err != nil {
		log.Warn("metrics push disabled, METRICS_PUSH_ENDPOINT is not a url", zap.Error(err))
		return nil
	}

	labels := map[string]string{
		"service":     cfg.AppName,
		"environment": cfg.Environment,
	}
	switch exporter {
	case ExporterRemoteWrite:
		return NewRemoteWritePusher(endpoint, pushCfg.AuthToken, labels)
	case ExporterPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.AppName, map[string]string{"environment": cfg.Environment})
	}
	log.Warn("metrics push disabled, unknown METRICS_PUSH_EXPORTER")
	return nil
}

// validateEndpoint accepts absolute http(s) urls only. url.ParseRequestURI
// takes "host:port" as a scheme, so the scheme and host are checked here.
func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}

// RemoteWritePusher posts snappy-compressed protobuf to a prometheus
// remote_write receiver (prometheus, mimir, grafana cloud).
type RemoteWritePusher struct {
	endpoint  string
	authToken string
	external  []prompb.Label
	client    *http.Client
	now       func() time.Time
}

// NewRemoteWritePusher stamps every series with the non-empty external labels.
func NewRemoteWritePusher(endpoint, authToken string, external map[string]string) *RemoteWritePusher {
	p := &RemoteWritePusher{
		endpoint:  endpoint,
		authToken: strings.TrimSpace(authToken),
		client:    &http.Client{Timeout: 5 * time.Second},
		now:       time.Now,
	}
	for name, value := range external {
		if value = strings.TrimSpace(value); value != "" {
			p.external = append(p.external, prompb.Label{Name: name, Value: value})
		}
	}
	return p
}

func (p *RemoteWritePusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	series := toTimeSeries(families, p.external, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	raw, err := (&prompb.WriteRequest{Timeseries: series}).Marshal()
	if err != nil {
		return fmt.Errorf("encode write request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, raw)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write: %s", resp.Status)
	}
	return nil
}

// PushgatewayPusher replaces the job's group on a pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	job = strings.TrimSpace(job)
	if job == "" {
		job = "condopay"
	}
	return &PushgatewayPusher{endpoint: endpoint, job: job, grouping: grouping}
}

func (p *PushgatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	pusher := push.New(p.endpoint, p.job).Gatherer(gatherer)
	for name, value := range p.grouping {
		if value = strings.TrimSpace(value); value != "" {
			pusher = pusher.Grouping(name, value)
		}
	}
	return pusher.PushContext(ctx)
}

// toTimeSeries flattens families into remote_write samples at ts.
// Histograms become _bucket, _sum and _count series the way the scrape
// format exposes them. Summaries and untyped families are skipped.
func toTimeSeries(families []*dto.MetricFamily, external []prompb.Label, ts int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	emit := func(name string, m *dto.Metric, value float64, extra ...prompb.Label) {
		labels := make([]prompb.Label, 0, len(m.GetLabel())+len(external)+len(extra)+1)
		labels = append(labels, prompb.Label{Name: "__name__", Value: name})
		for _, l := range m.GetLabel() {
			labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
		}
		labels = append(labels, extra...)
		labels = append(labels, external...)
		sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
		out = append(out, prompb.TimeSeries{
			Labels:  labels,
			Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
		})
	}

	for _, family := range families {
		name := family.GetName()
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				emit(name, m, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				emit(name, m, m.GetGauge().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				for _, b := range h.GetBucket() {
					if math.IsInf(b.GetUpperBound(), 1) {
						continue
					}
					emit(name+"_bucket", m, float64(b.GetCumulativeCount()), leLabel(b.GetUpperBound()))
				}
				emit(name+"_bucket", m, float64(h.GetSampleCount()), leLabel(math.Inf(1)))
				emit(name+"_sum", m, h.GetSampleSum())
				emit(name+"_count", m, float64(h.GetSampleCount()))
			}
		}
	}
	return out
}

func leLabel(bound float64) prompb.Label {
	if math.IsInf(bound, 1) {
		return prompb.Label{Name: "le", Value: "+Inf"}
	}
	return prompb.Label{Name: "le", Value: strconv.FormatFloat(bound, 'g', -1, 64)}
}
