package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records auth outcomes. Components default to NopMetrics.
type Metrics interface {
	RecordLogin(result string)
	RecordSignup()
	RecordRefresh(result string)
	RecordRotation()
	RecordRevocations(count int)
	RecordSweep(count int)
	RecordFingerprintMismatch(kind string)
	RecordOAuth(provider, result string)
}

// Metric result labels
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultInactive = "inactive"
)

// MetricsCollector is the prometheus backed Metrics
type MetricsCollector struct {
	logins     *prometheus.CounterVec
	signups    prometheus.Counter
	refreshes  *prometheus.CounterVec
	rotations  prometheus.Counter
	revoked    prometheus.Counter
	swept      prometheus.Counter
	mismatches *prometheus.CounterVec
	oauth      *prometheus.CounterVec
}

var _ Metrics = (*MetricsCollector)(nil)

// NewMetricsCollector creates the collector and registers it on reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	c := &MetricsCollector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Password login attempts by result",
		}, []string{"result"}),
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Completed local signups",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Refresh attempts by result",
		}, []string{"result"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_session_rotations_total",
			Help: "Refresh sessions rotated",
		}),
		revoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_session_revocations_total",
			Help: "Refresh sessions revoked by logout",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_swept_total",
			Help: "Expired refresh sessions removed by the sweeper",
		}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_client_fingerprint_mismatch_total",
			Help: "Refreshes presenting a different user agent or ip hash",
		}, []string{"kind"}),
		oauth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_oauth_callbacks_total",
			Help: "OAuth callbacks by provider and result",
		}, []string{"provider", "result"}),
	}

	reg.MustRegister(
		c.logins,
		c.signups,
		c.refreshes,
		c.rotations,
		c.revoked,
		c.swept,
		c.mismatches,
		c.oauth,
	)

	return c
}

func (c *MetricsCollector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *MetricsCollector) RecordSignup() {
	c.signups.Inc()
}

func (c *MetricsCollector) RecordRefresh(result string) {
	c.refreshes.WithLabelValues(result).Inc()
}

func (c *MetricsCollector) RecordRotation() {
	c.rotations.Inc()
}

func (c *MetricsCollector) RecordRevocations(count int) {
	if count > 0 {
		c.revoked.Add(float64(count))
	}
}

func (c *MetricsCollector) RecordSweep(count int) {
	if count > 0 {
		c.swept.Add(float64(count))
	}
}

// RecordFingerprintMismatch counts a mismatch, kind is "user_agent" or "ip"
func (c *MetricsCollector) RecordFingerprintMismatch(kind string) {
	c.mismatches.WithLabelValues(kind).Inc()
}

func (c *MetricsCollector) RecordOAuth(provider, result string) {
	c.oauth.WithLabelValues(provider, result).Inc()
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordLogin(string)               {}
func (NopMetrics) RecordSignup()                    {}
func (NopMetrics) RecordRefresh(string)             {}
func (NopMetrics) RecordRotation()                  {}
func (NopMetrics) RecordRevocations(int)            {}
func (NopMetrics) RecordSweep(int)                  {}
func (NopMetrics) RecordFingerprintMismatch(string) {}
func (NopMetrics) RecordOAuth(string, string)       {}

// NormalizeMetrics returns NopMetrics for a nil m
func NormalizeMetrics(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}
