// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアント、画面コントローラー、セッション管理から利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
	RecordFormSubmission(entity, mode, result string)
	RecordStaleFetch(entity string)
	SetActiveSessions(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	formSubmissions  *prometheus.CounterVec
	staleFetches     *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vouchdesk_upstream_requests_total",
			Help: "上流APIへのリクエスト数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vouchdesk_upstream_latency_seconds",
			Help:    "上流APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		formSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vouchdesk_form_submissions_total",
			Help: "フォーム送信数（エンティティ・モード・結果別）",
		}, []string{"entity", "mode", "result"}),
		staleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vouchdesk_stale_fetches_total",
			Help: "新しいリクエストに追い越されて破棄された一覧取得結果の数",
		}, []string{"entity"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vouchdesk_active_sessions",
			Help: "メモリ上に保持しているダッシュボードセッション数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.formSubmissions,
		c.staleFetches,
		c.activeSessions,
	)

	return c
}

// RecordUpstreamRequest は上流APIリクエストの結果を記録する。
// 通信エラーでステータスコードがない場合は0を渡し、"error"として記録する。
func (c *Collector) RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	c.upstreamRequests.WithLabelValues(endpoint, status).Inc()
	c.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordFormSubmission はフォーム送信の結果を記録する。
func (c *Collector) RecordFormSubmission(entity, mode, result string) {
	c.formSubmissions.WithLabelValues(entity, mode, result).Inc()
}

// RecordStaleFetch は破棄された一覧取得結果を記録する。
func (c *Collector) RecordStaleFetch(entity string) {
	c.staleFetches.WithLabelValues(entity).Inc()
}

// SetActiveSessions はメモリ上のセッション数を設定する。
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやCLIで使用する。
type Nop struct{}

func (Nop) RecordUpstreamRequest(string, int, time.Duration) {}
func (Nop) RecordFormSubmission(string, string, string)      {}
func (Nop) RecordStaleFetch(string)                          {}
func (Nop) SetActiveSessions(int)                            {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
