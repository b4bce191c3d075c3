package invoices

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Renderer turns orders into the HTML documents emailed to buyers.
type Renderer struct {
	storeName string
	invoice   *template.Template
	status    *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer(storeName string) (*Renderer, error) {
	if strings.TrimSpace(storeName) == "" {
		storeName = "Storefront"
	}
	funcs := template.FuncMap{
		"money": FormatMoney,
		"date":  func(t time.Time) string { return t.UTC().Format("Jan 2, 2006") },
		"short": func(s fmt.Stringer) string { return strings.ToUpper(s.String()[:8]) },
	}
	invoice, err := template.New("invoice").Funcs(funcs).Parse(invoiceTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	status, err := template.New("status").Funcs(funcs).Parse(statusTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse status template: %w", err)
	}
	return &Renderer{storeName: storeName, invoice: invoice, status: status}, nil
}

type invoiceLine struct {
	Title      string
	Size       string
	Qty        int
	PriceCents int64
	TotalCents int64
}

type view struct {
	StoreName string
	Order     *models.Order
	Lines     []invoiceLine
}

// RenderInvoice renders the invoice for a paid or COD order.
func (r *Renderer) RenderInvoice(order *models.Order) (string, error) {
	return r.render(r.invoice, order)
}

// RenderStatusUpdate renders the short email sent when an order changes status.
func (r *Renderer) RenderStatusUpdate(order *models.Order) (string, error) {
	return r.render(r.status, order)
}

func (r *Renderer) render(tmpl *template.Template, order *models.Order) (string, error) {
	if order == nil {
		return "", fmt.Errorf("order required")
	}
	lines := make([]invoiceLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, invoiceLine{
			Title:      item.Title,
			Size:       item.Size,
			Qty:        item.Qty,
			PriceCents: item.PriceCents,
			TotalCents: item.LineTotalCents(),
		})
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view{StoreName: r.storeName, Order: order, Lines: lines}); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// FormatMoney renders integer cents as a fixed two-decimal amount.
func FormatMoney(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Invoice {{ short .Order.ID }}</title></head>
<body style="font-family: sans-serif;">
<h1>{{ .StoreName }}</h1>
<p>Invoice for order <strong>#{{ short .Order.ID }}</strong> placed {{ date .Order.CreatedAt }}</p>
<p>
{{ with .Order.ShippingAddress }}{{ .FullName }}<br>{{ .Line1 }}{{ if .Line2 }}, {{ .Line2 }}{{ end }}<br>{{ .City }}{{ if .State }}, {{ .State }}{{ end }} {{ .PostalCode }}<br>{{ .Country }}{{ end }}
</p>
<table cellpadding="6" style="border-collapse: collapse;">
<tr><th align="left">Item</th><th>Size</th><th>Qty</th><th align="right">Price</th><th align="right">Total</th></tr>
{{ range .Lines }}<tr><td>{{ .Title }}</td><td>{{ .Size }}</td><td>{{ .Qty }}</td><td align="right">{{ money .PriceCents }}</td><td align="right">{{ money .TotalCents }}</td></tr>
{{ end }}</table>
<p>Subtotal: {{ money .Order.SubTotalCents }} {{ .Order.Currency }}</p>
{{ if .Order.CouponCode }}<p>Coupon {{ .Order.CouponCode }}: -{{ money .Order.CouponDiscountCents }}</p>{{ end }}
<p><strong>Total: {{ money .Order.FinalAmountCents }} {{ .Order.Currency }}</strong></p>
<p>Payment: {{ .Order.PaymentMethod }}{{ if .Order.PaymentInfo.Paid }} (paid){{ else }} (due on delivery){{ end }}</p>
</body>
</html>
`

const statusTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Order {{ short .Order.ID }}</title></head>
<body style="font-family: sans-serif;">
<h1>{{ .StoreName }}</h1>
<p>Your order <strong>#{{ short .Order.ID }}</strong> is now <strong>{{ .Order.Status }}</strong>.</p>
<p>Order total: {{ money .Order.FinalAmountCents }} {{ .Order.Currency }}</p>
</body>
</html>
`
