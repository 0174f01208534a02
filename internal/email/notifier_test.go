package email

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madronelabs/formpay/internal/domain"
)

func testNotifierOrder() (*domain.Order, *domain.PaymentForm) {
	order := &domain.Order{
		Number:      "20250129-x4k9q7",
		Email:       "buyer@example.com",
		Quantity:    2,
		Currency:    "usd",
		PaymentType: "cc",
		TotalPrice:  49.98,
		TaxAmount:   4.12,
		Variants:    map[string]string{"color": "red"},
	}
	form := &domain.PaymentForm{
		Handle:      "tshirt",
		Name:        "T-Shirt",
		CompanyName: "Acme Co",
	}
	return order, form
}

func Test_Notifier_SendsCustomerAndAdmin(t *testing.T) {
	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress:     "orders@acme.example",
		FromName:        "Acme Orders",
		AdminRecipients: []string{"ops@acme.example", "sales@acme.example"},
	}, nil)

	order, form := testNotifierOrder()
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 2)

	customer := msgs[0]
	assert.Equal(t, []string{"buyer@example.com"}, customer.To)
	assert.Equal(t, "Acme Orders <orders@acme.example>", customer.From)
	assert.Equal(t, "Thank you for your order 20250129-x4k9q7", customer.Subject)
	assert.Contains(t, customer.HTMLBody, "20250129-x4k9q7")
	assert.Contains(t, customer.HTMLBody, "49.98")
	assert.Contains(t, customer.HTMLBody, "USD")
	assert.NotEmpty(t, customer.TextBody)
	assert.NotContains(t, customer.TextBody, "<table")

	admin := msgs[1]
	assert.Equal(t, []string{"ops@acme.example", "sales@acme.example"}, admin.To)
	assert.Equal(t, "New order received: 20250129-x4k9q7", admin.Subject)
	assert.Contains(t, admin.HTMLBody, "buyer@example.com")
	assert.Contains(t, admin.HTMLBody, "color")
}

func Test_Notifier_ReplyToAddress(t *testing.T) {
	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress:     "orders@acme.example",
		ReplyTo:         "support@acme.example",
		AdminRecipients: []string{"ops@acme.example"},
	}, nil)

	order, form := testNotifierOrder()
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "support@acme.example", msgs[0].ReplyTo, "customer receipt carries the reply-to")
	assert.Equal(t, "support@acme.example", msgs[1].ReplyTo, "admin alert carries the reply-to")
}

func Test_Notifier_NoReplyToByDefault(t *testing.T) {
	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress:     "orders@acme.example",
		AdminRecipients: []string{"ops@acme.example"},
	}, nil)

	order, form := testNotifierOrder()
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[0].ReplyTo)
	assert.Empty(t, msgs[1].ReplyTo)
}

func Test_Notifier_CustomSubjectTemplates(t *testing.T) {
	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress:     "orders@acme.example",
		AdminRecipients: []string{"ops@acme.example"},
		CustomerSubject: "Receipt for {{.FormName}} ({{.OrderNumber}})",
		AdminSubject:    "{{.Email}} bought {{.FormName}}",
	}, nil)

	order, form := testNotifierOrder()
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Receipt for T-Shirt (20250129-x4k9q7)", msgs[0].Subject)
	assert.Equal(t, "buyer@example.com bought T-Shirt", msgs[1].Subject)
}

func Test_Notifier_DisabledChannels(t *testing.T) {
	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress:     "orders@acme.example",
		AdminRecipients: []string{"ops@acme.example"},
		DisableCustomer: true,
	}, nil)

	order, form := testNotifierOrder()
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"ops@acme.example"}, msgs[0].To)
}

func Test_Notifier_NoAdminRecipients(t *testing.T) {
	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{FromAddress: "orders@acme.example"}, nil)

	order, form := testNotifierOrder()
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 1, "only the customer receipt goes out")
	assert.Equal(t, []string{"buyer@example.com"}, msgs[0].To)
}

func Test_Notifier_SendFailureDoesNotPanic(t *testing.T) {
	sender := &MockSender{
		SendFunc: func(ctx context.Context, email *Email) (string, error) {
			return "", errors.New("smtp unreachable")
		},
	}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress:     "orders@acme.example",
		AdminRecipients: []string{"ops@acme.example"},
	}, nil)

	order, form := testNotifierOrder()
	// Failures are logged, never raised.
	n.OrderCompleted(context.Background(), order, form)
}

func Test_Notifier_TemplateOverride(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "fancy_receipt.html")
	require.NoError(t, os.WriteFile(override,
		[]byte("<p>Custom receipt for {{.OrderNumber}}</p>"), 0o644))

	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress: "orders@acme.example",
		OverrideDir: dir,
	}, nil)

	order, form := testNotifierOrder()
	form.CustomerTemplateOverride = "fancy_receipt"
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "<p>Custom receipt for 20250129-x4k9q7</p>", msgs[0].HTMLBody)
}

func Test_Notifier_TwigOverrideFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.twig"),
		[]byte("<p>Legacy template {{.OrderNumber}}</p>"), 0o644))

	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress: "orders@acme.example",
		OverrideDir: dir,
	}, nil)

	order, form := testNotifierOrder()
	form.CustomerTemplateOverride = "legacy"
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTMLBody, "Legacy template 20250129-x4k9q7")
}

func Test_Notifier_MissingOverrideFallsBackToDefault(t *testing.T) {
	sender := &MockSender{}
	n := NewNotifier(sender, NotifierConfig{
		FromAddress: "orders@acme.example",
		OverrideDir: t.TempDir(),
	}, nil)

	order, form := testNotifierOrder()
	form.CustomerTemplateOverride = "does_not_exist"
	n.OrderCompleted(context.Background(), order, form)

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTMLBody, "Thank you for your order")
}

func Test_GeneratePlainText(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		contains []string
		excludes []string
	}{
		{
			name:     "simple paragraph",
			html:     "<p>Hello, World!</p>",
			contains: []string{"Hello, World!"},
			excludes: []string{"<p>", "</p>"},
		},
		{
			name:     "line breaks",
			html:     "Line 1<br>Line 2<br/>Line 3",
			contains: []string{"Line 1", "Line 2", "Line 3"},
			excludes: []string{"<br>"},
		},
		{
			name:     "entities decoded",
			html:     "Tea &amp; biscuits &lt;free&gt;",
			contains: []string{"Tea & biscuits <free>"},
			excludes: []string{"&amp;", "&lt;"},
		},
		{
			name:     "links stripped",
			html:     `<a href="https://example.com">Click here</a>`,
			contains: []string{"Click here"},
			excludes: []string{"href"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := generatePlainText(tt.html)
			for _, want := range tt.contains {
				assert.Contains(t, result, want)
			}
			for _, exclude := range tt.excludes {
				assert.NotContains(t, result, exclude)
			}
		})
	}
}

func Test_GeneratePlainText_NoBlankLines(t *testing.T) {
	result := generatePlainText("<p>   spaced   </p><p></p><p>next</p>")
	for _, line := range strings.Split(result, "\n") {
		assert.NotEmpty(t, strings.TrimSpace(line))
	}
}
