package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "marketplace"

// MarketplaceMetrics exposes counters/histograms for bookings, the ledger,
// webhook intake and outbox delivery.
type MarketplaceMetrics struct {
	bookingsTotal       *prometheus.CounterVec
	bookingConflicts    *prometheus.CounterVec
	ledgerTransactions  *prometheus.CounterVec
	ledgerAmountCents   *prometheus.CounterVec
	webhookEventsTotal  *prometheus.CounterVec
	webhookLatency      *prometheus.HistogramVec
	outboxDeliveryTotal *prometheus.CounterVec
}

func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	m := &MarketplaceMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "operations_total",
			Help:      "Booking operations by outcome",
		}, []string{"operation", "outcome"}),
		bookingConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "rejections_total",
			Help:      "Booking requests rejected because the slot was unavailable",
		}, []string{"reason"}),
		ledgerTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Completed ledger journal rows",
		}, []string{"type"}),
		ledgerAmountCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "amount_cents_total",
			Help:      "Gross minor units moved by completed ledger rows",
		}, []string{"type"}),
		webhookEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Gateway webhook events by type and outcome",
		}, []string{"event_type", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "latency_seconds",
			Help:      "Latency of gateway webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		outboxDeliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts",
		}, []string{"event_type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal,
		m.bookingConflicts,
		m.ledgerTransactions,
		m.ledgerAmountCents,
		m.webhookEventsTotal,
		m.webhookLatency,
		m.outboxDeliveryTotal,
	)
	return m
}

func (m *MarketplaceMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *MarketplaceMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.bookingConflicts.WithLabelValues(reason).Inc()
}

func (m *MarketplaceMetrics) ObserveLedger(txType string, grossCents int64) {
	if m == nil {
		return
	}
	m.ledgerTransactions.WithLabelValues(txType).Inc()
	if grossCents < 0 {
		grossCents = -grossCents
	}
	m.ledgerAmountCents.WithLabelValues(txType).Add(float64(grossCents))
}

func (m *MarketplaceMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

func (m *MarketplaceMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *MarketplaceMetrics) ObserveOutboxDelivery(eventType, status string) {
	if m == nil {
		return
	}
	m.outboxDeliveryTotal.WithLabelValues(eventType, status).Inc()
}
