// Package metrics holds the Prometheus metrics recorded by the session manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authsession"

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Metrics holds all Prometheus metrics for the session manager.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	RefreshesTotal     *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec
	RetriesTotal       *prometheus.CounterVec
	LogoutsTotal       prometheus.Counter
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		LoginsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Completed auth callbacks",
			},
			[]string{"provider", "result"},
		),
		RefreshesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_total",
				Help:      "Access token refresh attempts",
			},
			[]string{"result"}, // result=success/failure/skipped
		),
		VerificationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_total",
				Help:      "Token verifications",
			},
			[]string{"path", "result"}, // path=local/remote, result=valid/invalid
		),
		RetriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unauthorized_retries_total",
				Help:      "Requests retried after a 401 response",
			},
			[]string{"status"},
		),
		LogoutsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logouts_total",
				Help:      "Session logouts",
			},
		),
	}
}

func (m *Metrics) Login(provider, result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Verification(path string, valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.VerificationsTotal.WithLabelValues(path, result).Inc()
}

func (m *Metrics) Retry(status string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Logout() {
	if m == nil {
		return
	}
	m.LogoutsTotal.Inc()
}
