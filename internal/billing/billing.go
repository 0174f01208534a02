package billing

import (
	"context"
	"time"
)

// Provider defines the interface for the remote payment processor.
// The production implementation uses Stripe; tests use MockProvider.
type Provider interface {
	// CreateCustomer creates a customer record in the billing provider,
	// attaching the payment token as its default source.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// GetCustomer retrieves an existing customer by provider ID.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// UpdateCustomerSource reattaches a new payment token as the
	// customer's default source. Used on repeat purchases so the most
	// recent card is the one charged.
	UpdateCustomerSource(ctx context.Context, customerID, token string) (*Customer, error)

	// CreateCharge executes a single immediate charge.
	CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error)

	// GetPlan retrieves an existing plan by provider ID.
	GetPlan(ctx context.Context, planID string) (*Plan, error)

	// CreatePlan creates a plan for dynamically priced subscriptions
	// (customer-entered amounts, recurring opt-ins).
	CreatePlan(ctx context.Context, params CreatePlanParams) (*Plan, error)

	// CreateSubscription binds a customer to a plan.
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)

	// CreateInvoiceItem attaches a one-time amount to the customer's next
	// invoice. Used for subscription setup fees.
	CreateInvoiceItem(ctx context.Context, params CreateInvoiceItemParams) (*InvoiceItem, error)

	// CreateSource creates a provider-side source object representing a
	// pending or completed bank-initiated payment method (iDEAL, SEPA).
	CreateSource(ctx context.Context, params CreateSourceParams) (*Source, error)

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreateCustomerParams contains parameters for creating a customer.
type CreateCustomerParams struct {
	Email       string
	Token       string
	Description string
	Metadata    map[string]string
}

// Customer represents a billing customer.
type Customer struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// ShippingDetails carries the shipping block attached to a charge when the
// submission included an address.
type ShippingDetails struct {
	Name    string
	Line1   string
	City    string
	State   string
	Zip     string
	Country string
	// CarrierAmountCents is the shipping cost in minor units, recorded in
	// charge metadata for reporting.
	CarrierAmountCents int64
}

// CreateChargeParams contains parameters for a single immediate charge.
type CreateChargeParams struct {
	// AmountCents is the amount in smallest currency unit (cents for USD).
	AmountCents int64

	// Currency code (ISO 4217, lowercase) - e.g., "usd", "eur".
	Currency string

	// CustomerID links the charge to an existing provider customer.
	CustomerID string

	// Source charges a specific token/source instead of the customer's
	// default. Required for bank-debit sources.
	Source string

	// Description appears on the customer's statement and dashboard.
	Description string

	// Metadata for filtering and reporting.
	Metadata map[string]string

	// Shipping is attached when the submission carried an address.
	Shipping *ShippingDetails
}

// Charge represents a completed or attempted charge.
type Charge struct {
	ID          string
	AmountCents int64
	Currency    string
	Status      string
	CreatedAt   time.Time
}

// CreatePlanParams contains parameters for creating a plan.
type CreatePlanParams struct {
	// ID is the provider-side plan identifier to assign. Dynamically
	// created plans use a deterministic name derived from the form.
	ID string

	// AmountCents is the per-interval price in minor units.
	AmountCents int64

	Currency string

	// Interval is the billing frequency: "day", "week", "month", "year".
	Interval string

	// IntervalCount multiplies the interval (2 = biweekly for "week").
	IntervalCount int64

	// ProductName names the provider-side product created with the plan.
	ProductName string

	Metadata map[string]string
}

// Plan represents a provider-side recurring price definition.
type Plan struct {
	ID            string
	AmountCents   int64
	Currency      string
	Interval      string
	IntervalCount int64
}

// CreateSubscriptionParams contains parameters for creating a subscription.
type CreateSubscriptionParams struct {
	CustomerID string
	PlanID     string
	Quantity   int64

	// TaxPercent is applied provider-side on each invoice. Zero means no
	// tax line; dynamically created plan amounts are net of this.
	TaxPercent float64

	Metadata map[string]string
}

// Subscription represents a recurring subscription.
type Subscription struct {
	ID         string
	CustomerID string
	PlanID     string
	Status     string
	CreatedAt  time.Time
}

// CreateInvoiceItemParams contains parameters for a one-time invoice line.
type CreateInvoiceItemParams struct {
	CustomerID  string
	AmountCents int64
	Currency    string
	Description string
}

// InvoiceItem represents a one-time amount attached to the next invoice.
type InvoiceItem struct {
	ID          string
	AmountCents int64
	Currency    string
}

// SourceType identifies the kind of provider source to create.
type SourceType string

const (
	// SourceTypeIDEAL is a single-use Dutch bank-transfer source. The
	// customer is redirected to their bank to authorize it.
	SourceTypeIDEAL SourceType = "ideal"

	// SourceTypeSEPADebit is a reusable direct-debit mandate, created by
	// exchanging a chargeable iDEAL source.
	SourceTypeSEPADebit SourceType = "sepa_debit"
)

// CreateSourceParams contains parameters for creating a bank source.
type CreateSourceParams struct {
	Type        SourceType
	AmountCents int64
	Currency    string

	// OwnerName and OwnerEmail identify the payer.
	OwnerName  string
	OwnerEmail string

	// RedirectURL is where the bank returns the customer after
	// authorization. Required for SourceTypeIDEAL.
	RedirectURL string

	// OriginalSourceID exchanges an existing chargeable source for a
	// reusable mandate. Required for SourceTypeSEPADebit.
	OriginalSourceID string

	Metadata map[string]string
}

// Source represents a provider-side bank payment source.
type Source struct {
	ID          string
	Type        SourceType
	Status      string
	AmountCents int64
	Currency    string

	// OwnerVerifiedName is the payer name verified by the bank, when the
	// bank supplied one.
	OwnerVerifiedName string

	// RedirectURL is the bank authorization URL for redirect sources.
	RedirectURL string

	CreatedAt time.Time
}
