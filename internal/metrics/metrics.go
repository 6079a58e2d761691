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
// 外部APIクライアントやワークスペース管理から利用する。
type MetricsCollector interface {
	// RecordJokeRequest はジョーク保存APIの呼び出し結果を記録する。
	// 通信エラーでレスポンスが得られなかった場合、statusCodeは0。
	RecordJokeRequest(endpoint string, statusCode int, duration time.Duration)
	// RecordDispatch はAI生成イベントの呼び出し結果を記録する。
	RecordDispatch(capability string, success bool, duration time.Duration)
	// RecordAuthEvent はIdPから通知されたセッション変化を記録する。
	RecordAuthEvent(event string)
	// SetActiveWorkspaces は保持中のワークスペース数を記録する。
	SetActiveWorkspaces(n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	jokeRequests    *prometheus.CounterVec
	jokeLatency     *prometheus.HistogramVec
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	authEvents      *prometheus.CounterVec
	workspaces      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jokeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jokecentral_joke_api_requests_total",
			Help: "ジョーク保存APIへのリクエスト数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		jokeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jokecentral_joke_api_latency_seconds",
			Help:    "ジョーク保存APIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jokecentral_ai_dispatch_total",
			Help: "AI生成イベントの呼び出し数（機能・結果別）",
		}, []string{"capability", "outcome"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jokecentral_ai_dispatch_latency_seconds",
			Help:    "AI生成イベントのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"capability"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jokecentral_auth_events_total",
			Help: "IdPから通知されたセッション変化の数",
		}, []string{"event"}),
		workspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jokecentral_workspaces_active",
			Help: "メモリ上に保持しているブラウザワークスペース数",
		}),
	}

	reg.MustRegister(
		c.jokeRequests,
		c.jokeLatency,
		c.dispatchTotal,
		c.dispatchLatency,
		c.authEvents,
		c.workspaces,
	)

	return c
}

// RecordJokeRequest はジョーク保存APIの呼び出し結果を記録する。
func (c *Collector) RecordJokeRequest(endpoint string, statusCode int, duration time.Duration) {
	c.jokeRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.jokeLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordDispatch はAI生成イベントの呼び出し結果を記録する。
func (c *Collector) RecordDispatch(capability string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.dispatchTotal.WithLabelValues(capability, outcome).Inc()
	c.dispatchLatency.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordAuthEvent はIdPから通知されたセッション変化を記録する。
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// SetActiveWorkspaces は保持中のワークスペース数を記録する。
func (c *Collector) SetActiveWorkspaces(n int) {
	c.workspaces.Set(float64(n))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordJokeRequest(string, int, time.Duration) {}
func (Nop) RecordDispatch(string, bool, time.Duration)   {}
func (Nop) RecordAuthEvent(string)                       {}
func (Nop) SetActiveWorkspaces(int)                      {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
