package payment

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"strings"

	"github.com/stripe/stripe-go/v80"

	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/currency"
	"github.com/noah-isme/backend-giftshop/internal/pricing"
)

var orderTemplate = template.Must(template.New("order").Parse(`<div style="margin:0; padding:24px; background:#f5eee5; font-family:Arial, Helvetica, sans-serif; color:#3d2a20;">
  <div style="max-width:680px; margin:0 auto; border:1px solid #e7d7c6; border-radius:16px; overflow:hidden; background:#fff;">
    <div style="padding:18px 22px; background:#A3132C; color:#fff;">
      <h2 style="margin:0; font-size:22px; line-height:1.2;">{{.Heading}}</h2>
    </div>
    <div style="padding:18px 22px; border-bottom:1px solid #f0e4d9;">
      <p style="margin:0 0 8px; font-size:14px;"><strong>Плащане:</strong> {{.IntentID}}</p>
{{- if .Customer}}
      <p style="margin:0; font-size:14px;"><strong>Клиент:</strong> {{.Customer}}</p>
{{- end}}
    </div>
    <div style="padding:18px 22px;">
      <ul style="padding:0; margin:0 0 12px; list-style:none;">
{{- range .Items}}
        <li style="margin:0 0 8px; font-size:14px;">{{.Title}} x {{.OrderQuantity}}</li>
{{- else}}
        <li style="margin:0 0 8px; font-size:14px;">-</li>
{{- end}}
      </ul>
      <p style="margin:0; font-size:16px;"><strong>Общо:</strong> {{.TotalEUR}}{{if .TotalBGN}} / {{.TotalBGN}}{{end}}</p>
    </div>
  </div>
</div>
`))

type orderEmailData struct {
	Heading  string
	IntentID string
	Customer string
	Items    []ProductMeta
	TotalEUR string
	TotalBGN string
}

// OrderMailer notifies the shop owner about paid orders and confirms them to
// the customer when Stripe carries a receipt address.
type OrderMailer struct {
	Mailer  common.EmailSender
	AdminTo string
}

// Send delivers the order emails for a succeeded payment intent.
func (m OrderMailer) Send(ctx context.Context, pi *stripe.PaymentIntent) error {
	if m.Mailer == nil {
		return nil
	}
	data := orderEmailData{
		IntentID: pi.ID,
		Customer: strings.TrimSpace(pi.ReceiptEmail),
		TotalEUR: currency.FormatMinor(pricing.Money(pi.Amount), strings.ToUpper(string(pi.Currency))),
		TotalBGN: pi.Metadata[MetaAmountSource],
	}
	if products, err := DecodeProducts(pi.Metadata[MetaProducts]); err == nil {
		for _, p := range products {
			if p.OrderQuantity > 0 && strings.TrimSpace(p.Title) != "" {
				data.Items = append(data.Items, p)
			}
		}
	}

	var errs []error
	if to := strings.TrimSpace(m.AdminTo); to != "" {
		data.Heading = "Нова поръчка"
		errs = append(errs, m.deliver(ctx, to, "Нова поръчка "+pi.ID, data))
	}
	if data.Customer != "" {
		data.Heading = "Поръчката ви е потвърдена"
		errs = append(errs, m.deliver(ctx, data.Customer, "Потвърдена поръчка "+pi.ID, data))
	}
	return errors.Join(errs...)
}

func (m OrderMailer) deliver(ctx context.Context, to, subject string, data orderEmailData) error {
	var buf bytes.Buffer
	if err := orderTemplate.Execute(&buf, data); err != nil {
		return err
	}
	return m.Mailer.Send(ctx, common.Email{To: to, Subject: subject, HTML: buf.String()})
}
