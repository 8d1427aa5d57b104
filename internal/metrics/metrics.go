// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OTP検証結果のラベル値
const (
	VerificationSuccess  = "success"
	VerificationInvalid  = "invalid"
	VerificationConflict = "conflict"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、HTTPミドルウェア、クリーンアップジョブから利用する。
type MetricsCollector interface {
	RecordOTPIssued()
	RecordOTPEmailFailure()
	RecordOTPVerification(result string)
	RecordSignIn(provider string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordOTPCleanup(deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	otpIssued         prometheus.Counter
	otpEmailFailures  prometheus.Counter
	otpVerifications  *prometheus.CounterVec
	signIns           *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	otpCleanupDeleted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notesapp_otp_issued_total",
			Help: "発行したワンタイムコードの合計数",
		}),
		otpEmailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notesapp_otp_email_failures_total",
			Help: "ワンタイムコードのメール送信失敗の合計数",
		}),
		otpVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notesapp_otp_verifications_total",
			Help: "結果別のワンタイムコード検証数",
		}, []string{"result"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notesapp_sign_ins_total",
			Help: "プロバイダー別のサインイン成功数",
		}, []string{"provider"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notesapp_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notesapp_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		otpCleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notesapp_otp_cleanup_deleted_total",
			Help: "クリーンアップで削除された期限切れワンタイムコードの合計数",
		}),
	}

	reg.MustRegister(
		c.otpIssued,
		c.otpEmailFailures,
		c.otpVerifications,
		c.signIns,
		c.httpStatus,
		c.requestLatency,
		c.otpCleanupDeleted,
	)

	return c
}

// RecordOTPIssued はワンタイムコードの発行を記録する。
func (c *Collector) RecordOTPIssued() {
	c.otpIssued.Inc()
}

// RecordOTPEmailFailure はワンタイムコードのメール送信失敗を記録する。
func (c *Collector) RecordOTPEmailFailure() {
	c.otpEmailFailures.Inc()
}

// RecordOTPVerification はワンタイムコード検証の結果を記録する。
func (c *Collector) RecordOTPVerification(result string) {
	c.otpVerifications.WithLabelValues(result).Inc()
}

// RecordSignIn はサインイン成功をプロバイダー別に記録する。
func (c *Collector) RecordSignIn(provider string) {
	c.signIns.WithLabelValues(provider).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordOTPCleanup はクリーンアップで削除したコード数を記録する。
func (c *Collector) RecordOTPCleanup(deleted int64) {
	c.otpCleanupDeleted.Add(float64(deleted))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
