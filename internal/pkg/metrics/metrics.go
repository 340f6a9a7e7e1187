package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "findmy_relay"

// Poll cycle results
const (
	CycleDispatched = "dispatched"
	CycleUnchanged  = "unchanged"
	CycleNoReading  = "no_reading"
	CycleNoDevice   = "no_device"
	CycleFailed     = "failed"
)

// Authentication results
const (
	AuthOK       = "ok"
	AuthRejected = "rejected"
	AuthFailed   = "failed"
)

// Metrics holds the relay's collectors
type Metrics struct {
	PollCycles        *prometheus.CounterVec
	LocationAttempts  prometheus.Histogram
	Authentications   *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
	LocationChanges   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		PollCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result",
		}, []string{"result"}),
		LocationAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "location_attempts",
			Help:      "Location queries needed to get a finished reading",
			Buckets:   prometheus.LinearBuckets(1, 1, 6),
		}),
		Authentications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentications_total",
			Help:      "Provider authentication attempts by result",
		}, []string{"result"}),
		WebhookDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by sink and outcome",
		}, []string{"sink", "outcome"}),
		LocationChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_changes_total",
			Help:      "Evaluated readings by significance",
		}, []string{"significant"}),
	}
}

// Discard returns collectors registered with a private registry, for
// callers that do not export metrics
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
