package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	OrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders committed",
		},
	)

	InvoiceDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_dispatch_total",
			Help: "Invoice email dispatches by result",
		},
		[]string{"result"},
	)

	InvoiceRenderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoice_render_duration_seconds",
			Help:    "Duration of invoice html to pdf rendering",
			Buckets: prometheus.DefBuckets,
		},
	)

	UserServiceLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_service_logins_total",
			Help: "Session logins against the user service by result",
		},
		[]string{"result"},
	)

	OutboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Outbox events relayed by result",
		},
		[]string{"result"},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OrdersCreatedTotal,
		InvoiceDispatchTotal,
		InvoiceRenderDuration,
		UserServiceLoginsTotal,
		OutboxEventsTotal,
	)
}
