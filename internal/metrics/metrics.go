// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ゲートウェイ呼び出しの結果ラベル。
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// タスクストア、タスクリスト、HTTP層から利用する。
type MetricsCollector interface {
	RecordGatewayCall(op, outcome string, duration time.Duration)
	RecordRollback(op string)
	RecordStaleReload()
	RecordHTTPStatus(statusCode int)
	SetActiveWorkspaces(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gatewayCalls     *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	rollbacks        *prometheus.CounterVec
	staleReloads     prometheus.Counter
	httpStatus       *prometheus.CounterVec
	activeWorkspaces prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_gateway_calls_total",
			Help: "タスクストア呼び出しの操作別・結果別の合計数",
		}, []string{"op", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todoman_gateway_latency_seconds",
			Help:    "タスクストア呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_task_rollbacks_total",
			Help: "ストアへの反映に失敗して巻き戻した楽観的更新の数",
		}, []string{"op"}),
		staleReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_stale_reloads_total",
			Help: "後続のリロードに追い越されて破棄した取得結果の数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		activeWorkspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "todoman_workspaces_active",
			Help: "サーバーが保持しているワークスペース数",
		}),
	}

	reg.MustRegister(
		c.gatewayCalls,
		c.gatewayLatency,
		c.rollbacks,
		c.staleReloads,
		c.httpStatus,
		c.activeWorkspaces,
	)

	return c
}

// RecordGatewayCall はタスクストア呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordGatewayCall(op, outcome string, duration time.Duration) {
	c.gatewayCalls.WithLabelValues(op, outcome).Inc()
	c.gatewayLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordRollback は楽観的更新の巻き戻しを記録する。
func (c *Collector) RecordRollback(op string) {
	c.rollbacks.WithLabelValues(op).Inc()
}

// RecordStaleReload は破棄したリロード結果を記録する。
func (c *Collector) RecordStaleReload() {
	c.staleReloads.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetActiveWorkspaces は保持中のワークスペース数を設定する。
func (c *Collector) SetActiveWorkspaces(n int) {
	c.activeWorkspaces.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
