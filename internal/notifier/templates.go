package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"

	"hookgate/pkg/models"
)

const (
	TemplatePaymentSuccess = "payment_success"
	TemplateOrderCreated   = "order_created"
	TemplateError          = "error"
	TemplateAdmin          = "admin"
)

const timeLayout = "02.01.2006 15:04"

// Templates produce Telegram HTML. Values are escaped by html/template.
var messageTemplates = template.Must(template.New("messages").Funcs(template.FuncMap{
	"now": func() string { return time.Now().Format(timeLayout) },
}).Parse(`
{{define "payment_success"}}✅ <b>Payment received</b>

📋 <b>Order:</b> {{.order_id}}
📅 <b>Paid:</b> {{now}}
{{with .amount}}💰 <b>Amount:</b> {{.}}
{{end}}{{with .pdf_url}}
📄 <b>Your product card is ready:</b>
<a href="{{.}}">Download PDF</a>
{{end}}
Thank you for your order! 🚀{{end}}

{{define "order_created"}}🎉 <b>Your order has been created</b>

📋 <b>Order number:</b> {{.order_id}}
{{with .product_name}}🛍 <b>Product:</b> {{.}}
{{end}}📅 <b>Date:</b> {{now}}
{{with .generated_images_count}}
🖼 Images generated: {{.}}
{{end}}
💳 Proceed to payment to complete the order.{{end}}

{{define "error"}}❌ <b>Order processing failed</b>

📋 <b>Order:</b> {{.order_id}}
📅 <b>Time:</b> {{now}}

⚠️ {{if .error_message}}{{.error_message}}{{else}}An error occurred while processing the order{{end}}

Please contact support or try again later.{{end}}

{{define "admin"}}🔔 <b>Admin notification</b>

📅 {{now}}

{{.message}}{{end}}
`))

// TemplateNames lists the built-in message templates.
func TemplateNames() []string {
	var names []string
	for _, t := range messageTemplates.Templates() {
		if t.Name() != "messages" {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Render returns the message text for task. A literal Message wins over the template.
func Render(task models.NotificationTask) (string, error) {
	if task.Message != "" {
		return task.Message, nil
	}
	if task.Template == "" {
		return "", fmt.Errorf("task %s has neither message nor template", task.ID)
	}

	t := messageTemplates.Lookup(task.Template)
	if t == nil {
		return "", fmt.Errorf("unknown notification template %q", task.Template)
	}

	data := task.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", task.Template, err)
	}
	return buf.String(), nil
}
