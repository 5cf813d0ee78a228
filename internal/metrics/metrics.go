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
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordAccessDecision(class, action string)
	RecordOAuthCallback(result string)
	RecordRegistrationMerged()
	RecordSubscriptionSelection(plan string, persisted bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordGeocodeRequest(result string, duration time.Duration)
	RecordWebhookEvent(status string)
	RecordHabitCheckIn()
	RecordCleanup(kind string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	accessDecisions *prometheus.CounterVec
	oauthCallbacks  *prometheus.CounterVec
	registrations   prometheus.Counter
	subscriptions   *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	geocodeRequests *prometheus.CounterVec
	geocodeLatency  prometheus.Histogram
	webhookEvents   *prometheus.CounterVec
	habitCheckIns   prometheus.Counter
	cleanupRemoved  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wakr_access_decisions_total",
			Help: "ルート区分と判定結果別のアクセス判定数",
		}, []string{"class", "action"}),
		oauthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wakr_oauth_callbacks_total",
			Help: "結果別のOAuthコールバック処理数",
		}, []string{"result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wakr_registrations_merged_total",
			Help: "仮登録データを本登録へ統合した回数",
		}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wakr_subscription_selections_total",
			Help: "プラン別の購読プラン選択数",
		}, []string{"plan", "persisted"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wakr_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wakr_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		geocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wakr_geocode_requests_total",
			Help: "結果別のジオコーディングAPI呼び出し数",
		}, []string{"result"}),
		geocodeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wakr_geocode_latency_seconds",
			Help:    "ジオコーディングAPIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wakr_webhook_events_total",
			Help: "通話ステータス別のWebhook受信数",
		}, []string{"status"}),
		habitCheckIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wakr_habit_check_ins_total",
			Help: "記録された習慣チェックインの合計数",
		}),
		cleanupRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wakr_cleanup_affected_total",
			Help: "メンテナンスジョブが処理したレコード数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.accessDecisions,
		c.oauthCallbacks,
		c.registrations,
		c.subscriptions,
		c.httpStatus,
		c.requestLatency,
		c.geocodeRequests,
		c.geocodeLatency,
		c.webhookEvents,
		c.habitCheckIns,
		c.cleanupRemoved,
	)

	return c
}

// RecordAccessDecision はアクセス判定を記録する。
func (c *Collector) RecordAccessDecision(class, action string) {
	c.accessDecisions.WithLabelValues(class, action).Inc()
}

// RecordOAuthCallback はOAuthコールバックの結果を記録する。
func (c *Collector) RecordOAuthCallback(result string) {
	c.oauthCallbacks.WithLabelValues(result).Inc()
}

// RecordRegistrationMerged は仮登録データの統合を記録する。
func (c *Collector) RecordRegistrationMerged() {
	c.registrations.Inc()
}

// RecordSubscriptionSelection はプラン選択を記録する。
func (c *Collector) RecordSubscriptionSelection(plan string, persisted bool) {
	c.subscriptions.WithLabelValues(plan, strconv.FormatBool(persisted)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordGeocodeRequest はジオコーディングAPI呼び出しを記録する。
func (c *Collector) RecordGeocodeRequest(result string, duration time.Duration) {
	c.geocodeRequests.WithLabelValues(result).Inc()
	c.geocodeLatency.Observe(duration.Seconds())
}

// RecordWebhookEvent はWebhook受信を記録する。
func (c *Collector) RecordWebhookEvent(status string) {
	c.webhookEvents.WithLabelValues(status).Inc()
}

// RecordHabitCheckIn は習慣チェックインを記録する。
func (c *Collector) RecordHabitCheckIn() {
	c.habitCheckIns.Inc()
}

// RecordCleanup はメンテナンスジョブの処理件数を記録する。
func (c *Collector) RecordCleanup(kind string, count int64) {
	c.cleanupRemoved.WithLabelValues(kind).Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAccessDecision(string, string)        {}
func (Nop) RecordOAuthCallback(string)                 {}
func (Nop) RecordRegistrationMerged()                  {}
func (Nop) RecordSubscriptionSelection(string, bool)   {}
func (Nop) RecordHTTPStatus(int)                       {}
func (Nop) RecordRequestLatency(time.Duration)         {}
func (Nop) RecordGeocodeRequest(string, time.Duration) {}
func (Nop) RecordWebhookEvent(string)                  {}
func (Nop) RecordHabitCheckIn()                        {}
func (Nop) RecordCleanup(string, int64)                {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても取得できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// NewOpsMux はワーカーのように業務ルーターを持たないプロセス向けに、
// /metricsと/healthだけを提供するServeMuxを返す。
func NewOpsMux(gatherer prometheus.Gatherer, health http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	mux.Handle("GET /health", health)
	return mux
}
