package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Source fetch metrics
	FetchTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	// Aggregation metrics
	RefreshTotal    *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	FeedSize        prometheus.Gauge
	FeedUnread      prometheus.Gauge

	// Broker metrics
	BroadcastTotal *prometheus.CounterVec

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
}

// New creates all application metrics and registers them on reg. A nil
// reg registers on the default registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Total number of upstream source fetches",
		}, []string{"source", "status"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream source fetches",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"source"}),

		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Total number of refresh cycles by outcome",
		}, []string{"status"}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh cycles",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		FeedSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_size",
			Help:      "Number of notifications in the published feed",
		}),
		FeedUnread: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_unread",
			Help:      "1 when the published feed has unread notifications",
		}),

		BroadcastTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_total",
			Help:      "Total number of feed broadcasts by outcome",
		}, []string{"status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
		}, []string{"method", "path", "status"}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

// NewTest returns metrics on a private registry.
func NewTest() *Metrics {
	return New("test", prometheus.NewRegistry())
}
