// Package metrics はPrometheusメトリクスの収集と公開を提供します。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン・登録・ログアウトの結果ラベルです。
const (
	LoginAuthenticated = "authenticated"
	LoginRejected      = "rejected"
	LoginInvalid       = "invalid"

	RegistrationRegistered = "registered"
	RegistrationInvalid    = "invalid"
	RegistrationDuplicate  = "duplicate"
	RegistrationError      = "error"

	LogoutRequested    = "logout"
	LogoutUnauthorized = "unauthorized"
)

// Recorder はハンドラーから利用するメトリクス記録のインターフェースです。
type Recorder interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
	RecordLogout(reason string)
}

// Collector はPrometheusメトリクスを収集する実装です。
type Collector struct {
	loginAttempts *prometheus.CounterVec
	registrations *prometheus.CounterVec
	logouts       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録します。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_gateway_login_attempts_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_gateway_registrations_total",
			Help: "登録リクエストの結果別合計数",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_gateway_logouts_total",
			Help: "ログアウトの理由別合計数",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.registrations,
		c.logouts,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録します。
func (c *Collector) RecordLogin(outcome string) {
	c.loginAttempts.WithLabelValues(outcome).Inc()
}

// RecordRegistration は登録リクエストの結果を記録します。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogout はログアウトを記録します。
func (c *Collector) RecordLogout(reason string) {
	c.logouts.WithLabelValues(reason).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返します。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しない Recorder です。
type Nop struct{}

func (Nop) RecordLogin(string)        {}
func (Nop) RecordRegistration(string) {}
func (Nop) RecordLogout(string)       {}
