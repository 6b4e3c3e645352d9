package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookingdesk"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Document store operations by operation, collection and result.",
		},
		[]string{"op", "collection", "result"},
	)

	storeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Document store operation latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "collection"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings written to the store.",
		},
	)

	activeSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Live store listeners by collection.",
		},
		[]string{"collection"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, storeOps, storeLatency, bookingsCreated, activeSubscriptions)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string, code int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// ObserveStoreOp records one document store call.
func ObserveStoreOp(op, collection string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOps.WithLabelValues(op, collection, result).Inc()
	storeLatency.WithLabelValues(op, collection).Observe(elapsed.Seconds())
}

func IncBookingsCreated() {
	bookingsCreated.Inc()
}

func SubscriptionStarted(collection string) {
	activeSubscriptions.WithLabelValues(collection).Inc()
}

func SubscriptionStopped(collection string) {
	activeSubscriptions.WithLabelValues(collection).Dec()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
