package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	StoreMutations     *prometheus.CounterVec
	StoreSaves         *prometheus.CounterVec
	StoreSaveLatency   prometheus.Histogram
	AdsExpired         prometheus.Counter
	FeaturedExpired    prometheus.Counter
	ModerationOutcomes *prometheus.CounterVec
	ModerationLatency  *prometheus.HistogramVec
	PaymentRequests    *prometheus.CounterVec
	PaymentLatency     *prometheus.HistogramVec
	NotificationsSent  *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			StoreMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_mutations_total",
				Help:      "Total store mutations by operation.",
			}, []string{"op"}),
			StoreSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_saves_total",
				Help:      "Total collection saves by outcome.",
			}, []string{"status"}),
			StoreSaveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_save_duration_seconds",
				Help:      "Latency distribution for full collection saves.",
				Buckets:   prometheus.DefBuckets,
			}),
			AdsExpired: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ads_expired_total",
				Help:      "Total ads moved to expired by the sweeper.",
			}),
			FeaturedExpired: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "featured_expired_total",
				Help:      "Total ads whose featured placement ran out.",
			}),
			ModerationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "moderation_outcomes_total",
				Help:      "Total moderation decisions by resulting status and source.",
			}, []string{"source", "status"}),
			ModerationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "moderation_request_duration_seconds",
				Help:      "Latency distribution for content moderation calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			PaymentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_gateway_requests_total",
				Help:      "Total payment gateway requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			PaymentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_gateway_request_duration_seconds",
				Help:      "Latency distribution for payment gateway requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Total outgoing notifications by channel and kind.",
			}, []string{"channel", "kind"}),
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total API requests by route and status code.",
			}, []string{"route", "code"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.StoreMutations,
			metricsInstance.StoreSaves,
			metricsInstance.StoreSaveLatency,
			metricsInstance.AdsExpired,
			metricsInstance.FeaturedExpired,
			metricsInstance.ModerationOutcomes,
			metricsInstance.ModerationLatency,
			metricsInstance.PaymentRequests,
			metricsInstance.PaymentLatency,
			metricsInstance.NotificationsSent,
			metricsInstance.HTTPRequests,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
