package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
type Metrics struct {
	PrincipalsRegistered prometheus.Counter
	LoginsSucceeded      prometheus.Counter
	LoginsFailed         prometheus.Counter
}

// New creates a new Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		PrincipalsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presence_principals_registered_total",
			Help: "Total number of principals registered",
		}),
		LoginsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presence_logins_succeeded_total",
			Help: "Total number of successful logins",
		}),
		LoginsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presence_logins_failed_total",
			Help: "Total number of failed logins",
		}),
	}
}
