package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/madronelabs/formpay/internal/telemetry"
)

// StripeProvider implements Provider using the Stripe Go SDK.
type StripeProvider struct {
	config StripeConfig
	api    *client.API

	// taxRates caches provider-side tax rate IDs by percentage so repeat
	// subscriptions at the same rate reuse one rate object.
	mu       sync.Mutex
	taxRates map[float64]string
}

// Compile-time check that StripeProvider implements Provider.
var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	api := &client.API{}
	api.Init(config.APIKey, nil)

	return &StripeProvider{
		config:   config,
		api:      api,
		taxRates: make(map[float64]string),
	}, nil
}

// observe starts a latency measurement for one Stripe API call. The
// returned func records it when deferred.
func observe(operation string) func() {
	start := time.Now()
	return func() {
		telemetry.ObserveStripeLatency(operation, time.Since(start).Seconds())
	}
}

// CreateCustomer creates a Stripe customer with the payment token attached
// as its default source.
func (s *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	defer observe("create_customer")()
	cp := &stripe.CustomerParams{
		Email:       stripe.String(params.Email),
		Description: stripe.String(params.Description),
	}
	cp.Context = ctx
	if params.Token != "" {
		cp.Source = stripe.String(params.Token)
	}
	for k, v := range params.Metadata {
		cp.AddMetadata(k, v)
	}

	cus, err := s.api.Customers.New(cp)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return customerFromStripe(cus), nil
}

// GetCustomer retrieves an existing customer.
func (s *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	defer observe("get_customer")()
	cp := &stripe.CustomerParams{}
	cp.Context = ctx

	cus, err := s.api.Customers.Get(customerID, cp)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return customerFromStripe(cus), nil
}

// UpdateCustomerSource reattaches a new payment token as the customer's
// default source.
func (s *StripeProvider) UpdateCustomerSource(ctx context.Context, customerID, token string) (*Customer, error) {
	defer observe("update_customer_source")()
	cp := &stripe.CustomerParams{}
	cp.Context = ctx
	cp.Source = stripe.String(token)

	cus, err := s.api.Customers.Update(customerID, cp)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return customerFromStripe(cus), nil
}

// CreateCharge executes a single immediate charge.
func (s *StripeProvider) CreateCharge(ctx context.Context, params CreateChargeParams) (*Charge, error) {
	defer observe("create_charge")()
	cp := &stripe.ChargeParams{
		Amount:      stripe.Int64(params.AmountCents),
		Currency:    stripe.String(params.Currency),
		Description: stripe.String(params.Description),
	}
	cp.Context = ctx
	if params.CustomerID != "" {
		cp.Customer = stripe.String(params.CustomerID)
	}
	if params.Source != "" {
		if err := cp.SetSource(params.Source); err != nil {
			return nil, wrapStripeError(err)
		}
	}
	if params.Shipping != nil {
		cp.Shipping = &stripe.ShippingDetailsParams{
			Name: stripe.String(params.Shipping.Name),
			Address: &stripe.AddressParams{
				Line1:      stripe.String(params.Shipping.Line1),
				City:       stripe.String(params.Shipping.City),
				State:      stripe.String(params.Shipping.State),
				PostalCode: stripe.String(params.Shipping.Zip),
				Country:    stripe.String(params.Shipping.Country),
			},
		}
		if params.Shipping.CarrierAmountCents > 0 {
			cp.AddMetadata("shipping_amount", fmt.Sprintf("%d", params.Shipping.CarrierAmountCents))
		}
	}
	for k, v := range params.Metadata {
		cp.AddMetadata(k, v)
	}

	ch, err := s.api.Charges.New(cp)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &Charge{
		ID:          ch.ID,
		AmountCents: ch.Amount,
		Currency:    string(ch.Currency),
		Status:      string(ch.Status),
	}, nil
}

// GetPlan retrieves an existing plan.
func (s *StripeProvider) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	defer observe("get_plan")()
	pp := &stripe.PlanParams{}
	pp.Context = ctx

	p, err := s.api.Plans.Get(planID, pp)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return planFromStripe(p), nil
}

// CreatePlan creates a plan, including its backing product.
func (s *StripeProvider) CreatePlan(ctx context.Context, params CreatePlanParams) (*Plan, error) {
	defer observe("create_plan")()
	intervalCount := params.IntervalCount
	if intervalCount < 1 {
		intervalCount = 1
	}

	pp := &stripe.PlanParams{
		Amount:        stripe.Int64(params.AmountCents),
		Currency:      stripe.String(params.Currency),
		Interval:      stripe.String(params.Interval),
		IntervalCount: stripe.Int64(intervalCount),
		Product: &stripe.PlanProductParams{
			Name: stripe.String(params.ProductName),
		},
	}
	pp.Context = ctx
	if params.ID != "" {
		pp.ID = stripe.String(params.ID)
	}
	for k, v := range params.Metadata {
		pp.AddMetadata(k, v)
	}

	p, err := s.api.Plans.New(pp)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return planFromStripe(p), nil
}

// CreateSubscription binds a customer to a plan. A nonzero TaxPercent is
// applied through a provider-side tax rate attached to every invoice.
func (s *StripeProvider) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error) {
	defer observe("create_subscription")()
	quantity := params.Quantity
	if quantity < 1 {
		quantity = 1
	}

	sp := &stripe.SubscriptionParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Plan:     stripe.String(params.PlanID),
				Quantity: stripe.Int64(quantity),
			},
		},
	}
	sp.Context = ctx
	if params.TaxPercent > 0 {
		rateID, err := s.taxRateID(ctx, params.TaxPercent)
		if err != nil {
			return nil, err
		}
		sp.DefaultTaxRates = stripe.StringSlice([]string{rateID})
	}
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}

	sub, err := s.api.Subscriptions.New(sp)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	out := &Subscription{
		ID:         sub.ID,
		CustomerID: params.CustomerID,
		PlanID:     params.PlanID,
		Status:     string(sub.Status),
	}
	return out, nil
}

// CreateInvoiceItem attaches a one-time amount to the customer's next invoice.
func (s *StripeProvider) CreateInvoiceItem(ctx context.Context, params CreateInvoiceItemParams) (*InvoiceItem, error) {
	defer observe("create_invoice_item")()
	ip := &stripe.InvoiceItemParams{
		Customer:    stripe.String(params.CustomerID),
		Amount:      stripe.Int64(params.AmountCents),
		Currency:    stripe.String(params.Currency),
		Description: stripe.String(params.Description),
	}
	ip.Context = ctx

	item, err := s.api.InvoiceItems.New(ip)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &InvoiceItem{
		ID:          item.ID,
		AmountCents: item.Amount,
		Currency:    string(item.Currency),
	}, nil
}

// CreateSource creates a bank payment source. For SourceTypeSEPADebit the
// params must carry the original chargeable iDEAL source to exchange.
func (s *StripeProvider) CreateSource(ctx context.Context, params CreateSourceParams) (*Source, error) {
	defer observe("create_source")()
	sp := &stripe.SourceParams{
		Type:     stripe.String(string(params.Type)),
		Currency: stripe.String(params.Currency),
	}
	sp.Context = ctx

	switch params.Type {
	case SourceTypeIDEAL:
		sp.Amount = stripe.Int64(params.AmountCents)
		sp.Redirect = &stripe.SourceRedirectParams{
			ReturnURL: stripe.String(params.RedirectURL),
		}
	case SourceTypeSEPADebit:
		sp.OriginalSource = stripe.String(params.OriginalSourceID)
		sp.Usage = stripe.String("reusable")
	}

	if params.OwnerName != "" || params.OwnerEmail != "" {
		sp.Owner = &stripe.SourceOwnerParams{}
		if params.OwnerName != "" {
			sp.Owner.Name = stripe.String(params.OwnerName)
		}
		if params.OwnerEmail != "" {
			sp.Owner.Email = stripe.String(params.OwnerEmail)
		}
	}
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}

	src, err := s.api.Sources.New(sp)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return sourceFromStripe(src), nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if _, err := webhook.ConstructEvent(payload, signature, secret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}
	return nil
}

// taxRateID returns a provider-side tax rate for the given percentage,
// creating it on first use.
func (s *StripeProvider) taxRateID(ctx context.Context, percent float64) (string, error) {
	s.mu.Lock()
	if id, ok := s.taxRates[percent]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	tp := &stripe.TaxRateParams{
		DisplayName: stripe.String("Sales Tax"),
		Percentage:  stripe.Float64(percent),
		Inclusive:   stripe.Bool(false),
	}
	tp.Context = ctx

	rate, err := s.api.TaxRates.New(tp)
	if err != nil {
		return "", wrapStripeError(err)
	}

	s.mu.Lock()
	s.taxRates[percent] = rate.ID
	s.mu.Unlock()
	return rate.ID, nil
}

func customerFromStripe(cus *stripe.Customer) *Customer {
	return &Customer{
		ID:    cus.ID,
		Email: cus.Email,
	}
}

func planFromStripe(p *stripe.Plan) *Plan {
	return &Plan{
		ID:            p.ID,
		AmountCents:   p.Amount,
		Currency:      string(p.Currency),
		Interval:      string(p.Interval),
		IntervalCount: p.IntervalCount,
	}
}

func sourceFromStripe(src *stripe.Source) *Source {
	out := &Source{
		ID:          src.ID,
		Type:        SourceType(src.Type),
		Status:      string(src.Status),
		AmountCents: src.Amount,
		Currency:    string(src.Currency),
	}
	if src.Owner != nil {
		out.OwnerVerifiedName = src.Owner.VerifiedName
	}
	if src.Redirect != nil {
		out.RedirectURL = src.Redirect.URL
	}
	return out
}
