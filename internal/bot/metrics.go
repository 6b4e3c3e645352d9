package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	MessagesProcessed    prometheus.Counter
	CallbacksProcessed   prometheus.Counter
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
	FormSubmissions      *prometheus.CounterVec
}

// NewMetrics registers the bot metrics on the default registry. Call it once
// per process.
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_messages_processed_total",
			Help: "Total number of messages processed",
		}),

		CallbacksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_callbacks_processed_total",
			Help: "Total number of inline button callbacks processed",
		}),

		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_errors_total",
			Help: "Total number of recovered handler panics",
		}),

		UpdateProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "telegram_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),

		FormSubmissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_form_submissions_total",
			Help: "Booking form submissions by result",
		}, []string{"result"}),
	}
}
