package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serviceMetrics struct {
	decisions   *prometheus.CounterVec
	storeErrors prometheus.Counter
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	factory := promauto.With(reg)
	return &serviceMetrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "screengate_authz",
			Name:      "decisions_total",
			Help:      "Authorization decisions by request mode, result and reason.",
		}, []string{"mode", "result", "reason"}),
		storeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "screengate_authz",
			Name:      "store_errors_total",
			Help:      "Policy store lookups that failed and were denied.",
		}),
	}
}
