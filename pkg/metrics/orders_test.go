package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestOrderMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.IncCreated("cod")
	m.IncCreated("cod")
	m.IncCancelled("admin")
	m.IncIntegrityError("confirm")
	m.IncConfirmed()

	assert.Equal(t, 2.0, counter(t, reg, "storefront_orders_created_total", map[string]string{"payment_method": "cod"}))
	assert.Equal(t, 1.0, counter(t, reg, "storefront_orders_integrity_errors_total", map[string]string{"stage": "confirm"}))
	assert.NotNil(t, sample(t, reg, "storefront_orders_confirmed_total", nil))
}

func TestNilOrderMetricsIsNoop(t *testing.T) {
	var m *OrderMetrics
	m.IncCreated("stripe")
	m.IncConfirmed()
	NewOrderMetrics(nil).IncCancelled("owner")
}
