package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/telemetry"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

const (
	defaultCustomerTemplate = "customer_receipt.html"
	defaultAdminTemplate    = "admin_alert.html"

	defaultCustomerSubject = "Thank you for your order {{.OrderNumber}}"
	defaultAdminSubject    = "New order received: {{.OrderNumber}}"
)

// NotifierConfig configures the order notification dispatcher.
type NotifierConfig struct {
	FromAddress string
	FromName    string

	// ReplyTo is set on every notification when non-empty, so replies land
	// somewhere other than the sending address.
	ReplyTo string

	// AdminRecipients receive the admin alert. Empty disables it.
	AdminRecipients []string

	// CustomerSubject and AdminSubject are text templates rendered against
	// the order data. Empty falls back to the defaults.
	CustomerSubject string
	AdminSubject    string

	// OverrideDir is searched for per-form template overrides. A form
	// naming an override resolves "<name>.html" first, "<name>.twig"
	// second, and falls back to the built-in template when neither exists.
	OverrideDir string

	// DisableCustomer and DisableAdmin switch off either notification.
	DisableCustomer bool
	DisableAdmin    bool
}

// Notifier sends order notifications. It implements domain.OrderObserver, so
// the payment pipeline invokes it after every finalized order. Send failures
// are logged and never propagate into the payment flow.
type Notifier struct {
	sender Sender
	config NotifierConfig
	logger *slog.Logger
}

var _ domain.OrderObserver = (*Notifier)(nil)

// NewNotifier creates an order notification dispatcher.
func NewNotifier(sender Sender, config NotifierConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sender: sender, config: config, logger: logger}
}

// OrderCompleted sends the customer receipt and the admin alert for a
// finalized order.
func (n *Notifier) OrderCompleted(ctx context.Context, order *domain.Order, form *domain.PaymentForm) {
	data := buildOrderEmailData(order, form)

	if !n.config.DisableCustomer && order.Email != "" {
		n.send(ctx, "customer", []string{order.Email},
			n.config.CustomerSubject, defaultCustomerSubject,
			form.CustomerTemplateOverride, defaultCustomerTemplate, data)
	}

	if !n.config.DisableAdmin && len(n.config.AdminRecipients) > 0 {
		n.send(ctx, "admin", n.config.AdminRecipients,
			n.config.AdminSubject, defaultAdminSubject,
			form.AdminTemplateOverride, defaultAdminTemplate, data)
	}
}

func (n *Notifier) send(ctx context.Context, kind string, to []string, subjectTmpl, defaultSubject, override, defaultName string, data orderEmailData) {
	subject, err := renderSubject(subjectTmpl, defaultSubject, data)
	if err != nil {
		n.logger.Error("notification subject render failed",
			"kind", kind, "order", data.OrderNumber, "error", err)
		telemetry.RecordEmailFailed(kind)
		return
	}

	htmlBody, err := n.renderBody(override, defaultName, data)
	if err != nil {
		n.logger.Error("notification template render failed",
			"kind", kind, "order", data.OrderNumber, "error", err)
		telemetry.RecordEmailFailed(kind)
		return
	}

	msg := &Email{
		To:       to,
		From:     formatFrom(n.config.FromName, n.config.FromAddress),
		ReplyTo:  n.config.ReplyTo,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: generatePlainText(htmlBody),
	}

	if _, err := n.sender.Send(ctx, msg); err != nil {
		n.logger.Error("notification send failed",
			"kind", kind, "order", data.OrderNumber, "to", to, "error", err)
		telemetry.RecordEmailFailed(kind)
		return
	}

	n.logger.Info("notification sent", "kind", kind, "order", data.OrderNumber)
	telemetry.RecordEmailSent(kind)
}

// renderBody resolves the template for a notification and renders it.
func (n *Notifier) renderBody(override, defaultName string, data orderEmailData) (string, error) {
	tmpl, err := n.resolveTemplate(override, defaultName)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

func (n *Notifier) resolveTemplate(override, defaultName string) (*template.Template, error) {
	if override != "" && n.config.OverrideDir != "" {
		for _, ext := range []string{".html", ".twig"} {
			path := filepath.Join(n.config.OverrideDir, override+ext)
			if _, err := os.Stat(path); err == nil {
				return template.ParseFiles(path)
			}
		}
		n.logger.Warn("template override not found, using default",
			"override", override, "dir", n.config.OverrideDir)
	}

	content, err := defaultTemplates.ReadFile("templates/" + defaultName)
	if err != nil {
		return nil, fmt.Errorf("read built-in template %s: %w", defaultName, err)
	}
	return template.New(defaultName).Parse(string(content))
}

func renderSubject(tmpl, fallback string, data orderEmailData) (string, error) {
	if tmpl == "" {
		tmpl = fallback
	}
	t, err := texttemplate.New("subject").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse subject template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute subject template: %w", err)
	}
	return buf.String(), nil
}

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// orderEmailData is the render context shared by subjects and bodies.
type orderEmailData struct {
	OrderNumber    string
	Email          string
	FormName       string
	CompanyName    string
	Quantity       int32
	Currency       string
	TotalPrice     string
	ShippingAmount string
	TaxAmount      string
	DiscountAmount string
	PaymentType    string
	TestMode       bool
	Variants       map[string]string
	Address        *domain.Address
}

func buildOrderEmailData(order *domain.Order, form *domain.PaymentForm) orderEmailData {
	return orderEmailData{
		OrderNumber:    order.Number,
		Email:          order.Email,
		FormName:       form.Name,
		CompanyName:    form.CompanyName,
		Quantity:       order.Quantity,
		Currency:       strings.ToUpper(order.Currency),
		TotalPrice:     formatAmount(order.TotalPrice),
		ShippingAmount: formatAmount(order.ShippingAmount),
		TaxAmount:      formatAmount(order.TaxAmount),
		DiscountAmount: formatAmount(order.DiscountAmount),
		PaymentType:    order.PaymentType,
		TestMode:       order.TestMode,
		Variants:       order.Variants,
		Address:        order.Address,
	}
}

// formatAmount renders a major-unit amount, empty when zero so templates can
// skip absent lines.
func formatAmount(v float64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", v)
}

// generatePlainText derives a plain text alternative from an HTML body.
func generatePlainText(html string) string {
	text := html

	for _, br := range []string{"<br>", "<br/>", "<br />"} {
		text = strings.ReplaceAll(text, br, "\n")
	}
	for _, closer := range []string{"</p>", "</div>", "</tr>", "</h1>", "</h2>", "</h3>", "</table>"} {
		text = strings.ReplaceAll(text, closer, "\n")
	}
	text = strings.ReplaceAll(text, "</td>", " ")

	// Strip remaining tags.
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	text = b.String()

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	text = replacer.Replace(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}
