package invoices

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func sampleOrder() *models.Order {
	code := "SAVE10"
	return &models.Order{
		ID:     uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000001"),
		UserID: uuid.New(),
		Items: []models.OrderItem{
			{ProductID: uuid.New(), Title: "Linen <Shirt>", Size: "M", PriceCents: 10000, Qty: 2},
		},
		Currency:            "usd",
		SubTotalCents:       20000,
		CouponCode:          &code,
		CouponDiscountCents: 2000,
		FinalAmountCents:    18000,
		ShippingAddress:     types.Address{FullName: "Ada Buyer", Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"},
		Status:              enums.OrderStatusProcessing,
		PaymentMethod:       enums.PaymentMethodStripe,
		PaymentInfo:         models.PaymentInfo{Paid: true},
		CreatedAt:           time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderInvoice(t *testing.T) {
	r, err := NewRenderer("Acme")
	require.NoError(t, err)

	html, err := r.RenderInvoice(sampleOrder())
	require.NoError(t, err)

	assert.Contains(t, html, "Acme")
	assert.Contains(t, html, "#3F2A9C1E")
	assert.Contains(t, html, "Linen &lt;Shirt&gt;")
	assert.Contains(t, html, "200.00")
	assert.Contains(t, html, "-20.00")
	assert.Contains(t, html, "Total: 180.00 usd")
	assert.Contains(t, html, "(paid)")
	assert.Contains(t, html, "Feb 3, 2026")
}

func TestRenderStatusUpdate(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	order := sampleOrder()
	order.Status = enums.OrderStatusShipped
	html, err := r.RenderStatusUpdate(order)
	require.NoError(t, err)
	assert.Contains(t, html, "Storefront")
	assert.Contains(t, html, "shipped")
}

func TestRenderRequiresOrder(t *testing.T) {
	r, err := NewRenderer("Acme")
	require.NoError(t, err)
	_, err = r.RenderInvoice(nil)
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0.00", FormatMoney(0))
	assert.Equal(t, "499.99", FormatMoney(49999))
	assert.Equal(t, "0.05", FormatMoney(5))
}
