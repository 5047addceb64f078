package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bookstore"

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	// Checkout funnel
	CheckoutStarted   prometheus.Counter
	CheckoutCompleted prometheus.Counter
	CheckoutFailed    *prometheus.CounterVec

	// Units of work
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration prometheus.Histogram

	// Outbox relay
	EventsPublished prometheus.Counter
	EventsFailed    prometheus.Counter

	// HTTP
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// NewMetrics registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CheckoutStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "started_total",
			Help:      "Checkouts attempted.",
		}),
		CheckoutCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "completed_total",
			Help:      "Checkouts committed.",
		}),
		CheckoutFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "failed_total",
			Help:      "Checkouts rolled back, by error code.",
		}, []string{"code"}),
		TransactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uow",
			Name:      "transactions_total",
			Help:      "Units of work run, by outcome.",
		}, []string{"outcome"}),
		TransactionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "uow",
			Name:      "transaction_duration_seconds",
			Help:      "Time from init to cleanup of a unit of work.",
			Buckets:   prometheus.DefBuckets,
		}),
		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events published to the broker.",
		}),
		EventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "failed_total",
			Help:      "Outbox events that failed to publish.",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}
}
