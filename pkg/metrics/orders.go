package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts order lifecycle outcomes.
type OrderMetrics struct {
	created         *prometheus.CounterVec
	confirmed       prometheus.Counter
	cancelled       *prometheus.CounterVec
	integrityErrors *prometheus.CounterVec
}

// NewOrderMetrics registers the order counters on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created, by payment method.",
		}, []string{"payment_method"}),
		confirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_confirmed_total",
			Help:      "Card orders moved to processing after settlement.",
		}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Cancelled orders, by actor.",
		}, []string{"actor"}),
		integrityErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_integrity_errors_total",
			Help:      "Settled payments whose stock could not be committed.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.created, m.confirmed, m.cancelled, m.integrityErrors)
	return m
}

func (m *OrderMetrics) IncCreated(paymentMethod string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

func (m *OrderMetrics) IncConfirmed() {
	if m == nil || m.confirmed == nil {
		return
	}
	m.confirmed.Inc()
}

func (m *OrderMetrics) IncCancelled(actor string) {
	if m == nil || m.cancelled == nil {
		return
	}
	m.cancelled.WithLabelValues(normalizeLabel(actor)).Inc()
}

func (m *OrderMetrics) IncIntegrityError(stage string) {
	if m == nil || m.integrityErrors == nil {
		return
	}
	m.integrityErrors.WithLabelValues(normalizeLabel(stage)).Inc()
}
