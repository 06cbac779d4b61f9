package app

import (
	"bytes"
	"text/template"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var messageTemplates = template.Must(template.New("messages").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
}).Parse(`
{{define "buyer_ready"}}Hello,

Thank you for your payment. Your panel has been created.

Panel name: {{.Order.DisplayName}}
Type: {{.Order.ResourceKind}}
Username: {{.Order.Credentials.Username}}
Password: {{.Order.Credentials.Password}}
Duration: {{.Order.TermDays}} days
Panel URL: {{.PanelURL}}

Your panel expires on {{date .Resource.ExpiresAt}}.
{{end}}
{{define "admin_provisioned"}}New panel provisioned.

Order: {{.Order.ID}}
Buyer: {{.Order.BuyerEmail}}{{with .Order.PayerEmail}} (payer {{.}}){{end}}
Price: {{.Price}}
Kind: {{.Order.ResourceKind}} memory={{.Order.Sizing.MemoryMB}}MB cpu={{.Order.Sizing.CPUPercent}}% disk={{.Order.Sizing.DiskMB}}MB
Term: {{.Order.TermDays}} days
Resource: {{.Resource.ID}}
Expires: {{date .Resource.ExpiresAt}}
{{end}}
{{define "admin_provision_failed"}}Provisioning failed for a paid order. Manual intervention required.

Order: {{.Order.ID}}
Buyer: {{.Order.BuyerEmail}}
Price: {{.Price}}
Kind: {{.Order.ResourceKind}}
Detail: {{.Detail}}
{{end}}
{{define "admin_reclaimed"}}Expired panel reclaimed.

Order: {{.Order.ID}}
Buyer: {{.Order.BuyerEmail}}
Resource: {{.Resource.ID}}
Expired at: {{date .Resource.ExpiresAt}}
{{end}}
`))

type messageData struct {
	Order    domain.Order
	Resource domain.ProvisionedResource
	PanelURL string
	Price    string
	Detail   string
}

func renderMessage(name string, data messageData) (string, error) {
	data.Price = formatPrice(data.Order)
	var buf bytes.Buffer
	if err := messageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatPrice(o domain.Order) string {
	unit, err := currency.ParseISO(o.Currency)
	if err != nil {
		return o.Price.StringFixed(2) + " " + o.Currency
	}
	amount, _ := o.Price.Float64()
	return message.NewPrinter(language.English).Sprint(currency.Symbol(unit.Amount(amount)))
}

func buyerReadyMessage(o domain.Order, res domain.ProvisionedResource, panelURL string) (domain.Message, error) {
	body, err := renderMessage("buyer_ready", messageData{Order: o, Resource: res, PanelURL: panelURL})
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:      newMessageID(),
		To:      o.BuyerEmail,
		Subject: "Your panel " + o.DisplayName + " is ready",
		Body:    body,
	}, nil
}

func adminProvisionedMessage(to string, o domain.Order, res domain.ProvisionedResource) (domain.Message, error) {
	body, err := renderMessage("admin_provisioned", messageData{Order: o, Resource: res})
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:      newMessageID(),
		To:      to,
		Subject: "Panel provisioned: " + o.ID,
		Body:    body,
	}, nil
}

func adminProvisionFailedMessage(to string, o domain.Order, detail string) (domain.Message, error) {
	body, err := renderMessage("admin_provision_failed", messageData{Order: o, Detail: detail})
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:      newMessageID(),
		To:      to,
		Subject: "Provisioning failed: " + o.ID,
		Body:    body,
	}, nil
}

func adminReclaimedMessage(to string, o domain.Order, res domain.ProvisionedResource) (domain.Message, error) {
	body, err := renderMessage("admin_reclaimed", messageData{Order: o, Resource: res})
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:      newMessageID(),
		To:      to,
		Subject: "Panel reclaimed: " + o.ID,
		Body:    body,
	}, nil
}
