package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the federation counters. A nil *Recorder records nothing,
// so components can take one optionally.
type Recorder struct {
	gatherer prometheus.Gatherer

	InboxActivities  *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	Fetches          *prometheus.CounterVec
}

// New creates a Recorder registered with reg. A fresh registry is used
// when reg is nil.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)

	return &Recorder{
		gatherer: reg,

		InboxActivities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "federa_inbox_activities_total",
			Help: "Incoming activities by dispatch outcome",
		}, []string{"result"}),

		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "federa_deliveries_total",
			Help: "Outgoing inbox deliveries by outcome",
		}, []string{"result"}),

		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "federa_delivery_duration_seconds",
			Help:    "Time spent posting one activity to a remote inbox",
			Buckets: prometheus.DefBuckets,
		}),

		Fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "federa_fetches_total",
			Help: "Remote object dereferences by outcome",
		}, []string{"result"}),
	}
}

// Inbox counts one dispatched activity.
func (r *Recorder) Inbox(result string) {
	if r == nil {
		return
	}

	r.InboxActivities.WithLabelValues(result).Inc()
}

// Delivery counts one delivery attempt and its duration.
func (r *Recorder) Delivery(result string, took time.Duration) {
	if r == nil {
		return
	}

	r.Deliveries.WithLabelValues(result).Inc()
	r.DeliveryDuration.Observe(took.Seconds())
}

// Fetch counts one dereference.
func (r *Recorder) Fetch(result string) {
	if r == nil {
		return
	}

	r.Fetches.WithLabelValues(result).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
