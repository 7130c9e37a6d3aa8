package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts grant outcomes and lockouts. A nil Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry
	grants   *prometheus.CounterVec
	lockouts prometheus.Counter
	swept    prometheus.Counter
}

// New registers the collectors on a private registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: registry,
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oauth",
			Name:      "grants_total",
			Help:      "Token endpoint exchanges by grant type and outcome.",
		}, []string{"grant", "outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oauth",
			Name:      "account_lockouts_total",
			Help:      "Accounts that entered the lockout window.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oauth",
			Name:      "expired_tokens_swept_total",
			Help:      "Expired tokens removed by the sweeper.",
		}),
	}
	registry.MustRegister(r.grants, r.lockouts, r.swept)
	return r
}

// Grant records one exchange outcome.
func (r *Recorder) Grant(grant, outcome string) {
	if r == nil {
		return
	}
	r.grants.WithLabelValues(grant, outcome).Inc()
}

// Lockout records an account entering the lock window.
func (r *Recorder) Lockout() {
	if r == nil {
		return
	}
	r.lockouts.Inc()
}

// Swept records removed expired tokens.
func (r *Recorder) Swept(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.swept.Add(float64(n))
}

// Lockouts exposes the lockout counter.
func (r *Recorder) Lockouts() prometheus.Counter { return r.lockouts }

// Grants exposes the grant outcome counter.
func (r *Recorder) Grants() *prometheus.CounterVec { return r.grants }

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
