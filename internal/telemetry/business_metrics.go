package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability
// of the order fulfillment pipeline.
type BusinessMetrics struct {
	// Orders
	OrdersPlaced   *prometheus.CounterVec
	OrderValue     *prometheus.HistogramVec
	OrderItemCount prometheus.Histogram
	StatusChanges  *prometheus.CounterVec

	// Payments
	PaymentOrdersCreated prometheus.Counter
	PaymentVerifications *prometheus.CounterVec
	RefundsIssued        *prometheus.CounterVec
	RefundAmount         prometheus.Counter

	// Shipments
	ShipmentsCreated   *prometheus.CounterVec
	ShipmentFailures   *prometheus.CounterVec
	ShipmentRetries    prometheus.Counter
	ShipmentsCancelled *prometheus.CounterVec

	// Returns
	ReturnsRequested *prometheus.CounterVec
	ReturnsResolved  *prometheus.CounterVec

	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    prometheus.Counter
	WebhookLatency   prometheus.Histogram
}

// NewBusinessMetrics creates and registers all business metrics
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "vastra"
	}

	subsystem := "business"

	m := &BusinessMetrics{
		// =======================================================================
		// Orders
		// =======================================================================
		OrdersPlaced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_placed_total",
				Help:      "Total orders placed",
			},
			[]string{"payment_method"},
		),
		OrderValue: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value_rupees",
				Help:      "Order total in rupees",
				Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000},
			},
			[]string{"payment_method"},
		),
		OrderItemCount: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_item_count",
				Help:      "Line items per order",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		StatusChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_status_changes_total",
				Help:      "Order status transitions applied",
			},
			[]string{"to"},
		),

		// =======================================================================
		// Payments
		// =======================================================================
		PaymentOrdersCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_orders_created_total",
				Help:      "Gateway payment orders created",
			},
		),
		PaymentVerifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_verifications_total",
				Help:      "Payment signature verifications by result",
			},
			[]string{"result"},
		),
		RefundsIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refunds_issued_total",
				Help:      "Refunds issued by gateway",
			},
			[]string{"gateway"},
		),
		RefundAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refund_amount_rupees_total",
				Help:      "Total rupees refunded",
			},
		),

		// =======================================================================
		// Shipments
		// =======================================================================
		ShipmentsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shipments_created_total",
				Help:      "Shipments registered with the carrier aggregator",
			},
			[]string{"trigger"},
		),
		ShipmentFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shipment_failures_total",
				Help:      "Shipment creation attempts that failed",
			},
			[]string{"trigger"},
		),
		ShipmentRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shipment_retries_total",
				Help:      "Pending shipments claimed by the retry worker",
			},
		),
		ShipmentsCancelled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "shipments_cancelled_total",
				Help:      "Carrier shipments cancelled by strategy",
			},
			[]string{"strategy"},
		),

		// =======================================================================
		// Returns
		// =======================================================================
		ReturnsRequested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "returns_requested_total",
				Help:      "Customer return requests by type",
			},
			[]string{"type"},
		),
		ReturnsResolved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "returns_resolved_total",
				Help:      "Return requests resolved by outcome",
			},
			[]string{"outcome"},
		),

		// =======================================================================
		// Webhooks
		// =======================================================================
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Carrier webhook deliveries by status string",
			},
			[]string{"status"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Carrier webhook deliveries that mutated an order",
			},
			[]string{"action"},
		),
		WebhookFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Carrier webhook deliveries that errored",
			},
		),
		WebhookLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_duration_seconds",
				Help:      "Carrier webhook processing duration",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	return m
}
