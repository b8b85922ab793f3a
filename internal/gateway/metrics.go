// internal/gateway/metrics.go
package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Logins  *prometheus.CounterVec
	Denials *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_logins_total",
			Help: "Login attempts by provider and terminal result.",
		}, []string{"provider", "result"}),
		Denials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_admission_denied_total",
			Help: "Admission denials by reason.",
		}, []string{"reason"}),
	}
}
