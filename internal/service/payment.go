// Package service implements the payment orchestration pipeline: submission
// in, one payment strategy executed against the billing provider, one
// finalized order out.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/madronelabs/formpay/internal/billing"
	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/money"
	"github.com/madronelabs/formpay/internal/store"
	"github.com/madronelabs/formpay/internal/telemetry"
)

// Payment type tags recorded on orders.
const (
	PaymentTypeCard  = "cc"
	PaymentTypeIDEAL = "ideal"
)

// Config carries the orchestrator's runtime settings.
type Config struct {
	// Env selects the error policy: "dev" re-raises classified provider
	// errors to the caller, anything else swallows them into a nil result.
	Env string

	// TestMode forces every submission into the provider sandbox.
	TestMode bool

	// TaxEnabled and TaxPercent drive the net-of-tax computation for
	// dynamically created plans. The provider re-adds the percentage on
	// each invoice.
	TaxEnabled bool
	TaxPercent float64

	// IdealReturnURL is where the bank sends the customer back after
	// authorizing an iDEAL payment.
	IdealReturnURL string
}

// PaymentService runs form submissions through exactly one payment strategy
// and finalizes the resulting order.
type PaymentService struct {
	store     store.Store
	billing   billing.Provider
	customers *CustomerService
	logger    *slog.Logger
	cfg       Config

	mu        sync.RWMutex
	observers []domain.OrderObserver
}

// NewPaymentService creates the payment orchestrator.
func NewPaymentService(st store.Store, provider billing.Provider, customers *CustomerService, cfg Config, logger *slog.Logger) *PaymentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		store:     st,
		billing:   provider,
		customers: customers,
		logger:    logger,
		cfg:       cfg,
	}
}

// RegisterObserver adds an order-completion subscriber. Observers run
// synchronously after a successful finalize, in registration order.
func (s *PaymentService) RegisterObserver(o domain.OrderObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// PopulateOrder maps a submission onto a fresh order. Monetary fields stay
// in minor units; the conversion to major units happens exactly once, at
// finalization. No validation happens here.
func (s *PaymentService) PopulateOrder(sub *domain.Submission, form *domain.PaymentForm, pending bool) *domain.Order {
	state := domain.OrderStateNew
	if pending {
		state = domain.OrderStatePending
	}

	quantity := sub.Quantity
	if quantity < 1 {
		quantity = 1
	}

	currency := form.Currency
	if sub.Currency != "" {
		currency = sub.Currency
	}

	paymentType := sub.PaymentType
	if paymentType == "" {
		paymentType = PaymentTypeCard
	}

	raw, err := json.Marshal(sub)
	if err != nil {
		// Submission came off the wire as JSON-compatible data; a marshal
		// failure would mean a programming error upstream.
		s.logger.Error("failed to capture submission payload", "error", err)
	}

	return &domain.Order{
		Number:         domain.NewOrderNumber(time.Now()),
		State:          state,
		FormID:         form.ID,
		Email:          sub.Email,
		Quantity:       quantity,
		Currency:       strings.ToLower(currency),
		PaymentType:    paymentType,
		TestMode:       s.cfg.TestMode || sub.TestMode,
		TotalPrice:     float64(effectiveAmountCents(sub, form)),
		ShippingAmount: float64(sub.ShippingAmount),
		TaxAmount:      float64(sub.TaxAmount),
		DiscountAmount: float64(sub.DiscountAmount),
		Variants:       billing.FlattenMetadata(sub.Metadata),
		Address:        sub.Address,
		RawPayload:     raw,
	}
}

// ProcessPayment is the orchestration entry point. A nil existing order
// means a fresh submission; the iDEAL webhook passes its Pending order to
// re-enter the pipeline, and the order is forced to New on success.
//
// A nil, nil return means the attempt failed for a reason already logged
// (bad client input, declined charge, persistence failure). A non-nil error
// means a configuration defect, or a provider error in the dev environment.
func (s *PaymentService) ProcessPayment(ctx context.Context, sub *domain.Submission, existing *domain.Order) (*domain.Order, error) {
	if sub.Token == "" || sub.FormHandle == "" {
		s.logger.Warn("submission rejected: missing token or form handle",
			"form", sub.FormHandle, "has_token", sub.Token != "")
		return nil, nil
	}

	form, err := s.store.GetFormByHandle(ctx, sub.FormHandle)
	if err != nil {
		if errors.Is(err, domain.ErrFormNotFound) {
			return nil, domain.Errorf(domain.EINTERNAL, "payment.process",
				"payment form %q is not configured", sub.FormHandle)
		}
		return nil, err
	}

	amountCents := effectiveAmountCents(sub, form)
	if amountCents <= 0 {
		s.logger.Warn("submission rejected: no positive amount",
			"form", form.Handle, "email", sub.Email)
		return nil, nil
	}

	order := existing
	if order == nil {
		order = s.PopulateOrder(sub, form, false)
	}
	telemetry.RecordPaymentAttempt(form.Handle, order.PaymentType)

	customerID, isNew, err := s.customers.ResolveCustomer(ctx, sub.Email, sub.Token, order.TestMode)
	if err != nil {
		return s.failPayment(form, "customer", err)
	}
	order.StripeCustomerID = customerID
	s.logger.Debug("customer resolved",
		"form", form.Handle, "customer", customerID, "new", isNew)

	txID, err := s.executeStrategy(ctx, sub, form, order, customerID)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			// Configuration defects always surface.
			return nil, err
		}
		return s.failPayment(form, "charge", err)
	}
	if txID == "" {
		s.logger.Warn("payment attempt produced no transaction",
			"form", form.Handle, "order", order.Number)
		telemetry.RecordPaymentFailed(form.Handle, "no_transaction")
		return nil, nil
	}

	order.StripeTransactionID = txID
	if err := s.finalize(ctx, order, form, existing != nil); err != nil {
		// The remote charge stands; compensation is out of scope. A
		// successful charge with no local order is the documented gap.
		s.logger.Error("order persistence failed after successful charge",
			"form", form.Handle, "order", order.Number,
			"transaction", txID, "error", err)
		telemetry.RecordPaymentFailed(form.Handle, "persistence")
		return nil, nil
	}

	telemetry.RecordPaymentSucceeded(form.Handle, order.PaymentType)
	telemetry.RecordOrderCreated(form.Handle, string(order.State))
	telemetry.RecordOrderValue(order.Currency, order.TotalPrice)
	s.logger.Info("payment completed",
		"form", form.Handle, "order", order.Number,
		"transaction", txID, "total", order.TotalPrice, "currency", order.Currency)

	s.notifyCompleted(ctx, order, form)
	return order, nil
}

// failPayment applies the provider error policy: log with category detail,
// count the failure, re-raise only in dev.
func (s *PaymentService) failPayment(form *domain.PaymentForm, stage string, err error) (*domain.Order, error) {
	category := billing.Classify(err)
	var se *billing.StripeError
	if errors.As(err, &se) {
		s.logger.Error("provider call failed",
			"form", form.Handle, "stage", stage,
			"category", string(category), "code", se.Code,
			"decline_code", se.DeclineCode, "request_id", se.RequestID,
			"error", se.Message)
	} else {
		s.logger.Error("provider call failed",
			"form", form.Handle, "stage", stage,
			"category", string(category), "error", err)
	}
	telemetry.RecordPaymentFailed(form.Handle, string(category))

	if s.cfg.Env == "dev" {
		return nil, err
	}
	return nil, nil
}

// executeStrategy picks and runs exactly one payment strategy, returning the
// provider transaction ID (charge, subscription, or source).
func (s *PaymentService) executeStrategy(ctx context.Context, sub *domain.Submission, form *domain.PaymentForm, order *domain.Order, customerID string) (string, error) {
	switch {
	case form.EnableSubscriptions && form.SubscriptionType == domain.SubscriptionTypeSingle &&
		form.AmountType == domain.AmountTypeFixed:
		return s.subscribeSinglePlanFixed(ctx, form, order, customerID)

	case form.EnableSubscriptions && form.SubscriptionType == domain.SubscriptionTypeSingle:
		return s.subscribeSinglePlanCustomAmount(ctx, sub, form, order, customerID)

	case form.EnableSubscriptions && form.SubscriptionType == domain.SubscriptionTypeMultiple:
		return s.subscribeSelectedPlan(ctx, sub, form, order, customerID)

	case !form.EnableSubscriptions && form.EnableRecurringPayment &&
		sub.RecurringToggle && sub.CustomPlanAmount > 0:
		return s.subscribeRecurringOptIn(ctx, sub, form, order, customerID)

	default:
		return s.chargeOnce(ctx, sub, form, order, customerID)
	}
}

// subscribeSinglePlanFixed subscribes the customer to the form's
// preconfigured plan, billing the optional setup fee on the first invoice.
func (s *PaymentService) subscribeSinglePlanFixed(ctx context.Context, form *domain.PaymentForm, order *domain.Order, customerID string) (string, error) {
	if form.SinglePlanID == "" {
		return "", domain.Errorf(domain.EINTERNAL, "payment.subscribe",
			"form %q enables a single-plan subscription but names no plan", form.Handle)
	}
	if err := s.requirePlan(ctx, form.SinglePlanID); err != nil {
		return "", err
	}
	if err := s.billSetupFee(ctx, form, order, customerID, form.SinglePlanSetupFeeCents); err != nil {
		return "", err
	}
	return s.subscribe(ctx, form, order, customerID, form.SinglePlanID)
}

// subscribeSinglePlanCustomAmount creates a one-off plan at the entered
// amount, net of the setup fee and tax, and subscribes the customer to it.
func (s *PaymentService) subscribeSinglePlanCustomAmount(ctx context.Context, sub *domain.Submission, form *domain.PaymentForm, order *domain.Order, customerID string) (string, error) {
	amount := sub.CustomAmount
	if amount <= 0 {
		amount = sub.Amount
	}

	setupFee := form.SinglePlanSetupFeeCents
	if err := s.billSetupFee(ctx, form, order, customerID, setupFee); err != nil {
		return "", err
	}

	base := amount - setupFee
	if base <= 0 {
		s.logger.Warn("custom subscription amount does not cover the setup fee",
			"form", form.Handle, "amount", amount, "setup_fee", setupFee)
		return "", nil
	}

	planID, err := s.ensurePlan(ctx, form, s.netOfTax(base), order.Currency)
	if err != nil {
		return "", err
	}
	return s.subscribe(ctx, form, order, customerID, planID)
}

// subscribeSelectedPlan subscribes the customer to the plan they picked on a
// multi-plan form, with that plan's setup fee.
func (s *PaymentService) subscribeSelectedPlan(ctx context.Context, sub *domain.Submission, form *domain.PaymentForm, order *domain.Order, customerID string) (string, error) {
	if sub.PlanID == "" {
		s.logger.Warn("multi-plan submission without a selected plan", "form", form.Handle)
		return "", nil
	}
	if err := s.requirePlan(ctx, sub.PlanID); err != nil {
		return "", err
	}
	if err := s.billSetupFee(ctx, form, order, customerID, form.SetupFeeForPlan(sub.PlanID)); err != nil {
		return "", err
	}
	return s.subscribe(ctx, form, order, customerID, sub.PlanID)
}

// subscribeRecurringOptIn handles the recurring-billing checkbox on a
// non-subscription form: a plan at the customer's amount, net of tax.
func (s *PaymentService) subscribeRecurringOptIn(ctx context.Context, sub *domain.Submission, form *domain.PaymentForm, order *domain.Order, customerID string) (string, error) {
	planID, err := s.ensurePlan(ctx, form, s.netOfTax(sub.CustomPlanAmount), order.Currency)
	if err != nil {
		return "", err
	}
	return s.subscribe(ctx, form, order, customerID, planID)
}

// chargeOnce executes the plain one-time charge strategy.
func (s *PaymentService) chargeOnce(ctx context.Context, sub *domain.Submission, form *domain.PaymentForm, order *domain.Order, customerID string) (string, error) {
	metadata := billing.MergeMetadata(billing.FlattenMetadata(sub.Metadata), map[string]string{
		"order_number": order.Number,
		"form_handle":  form.Handle,
	})

	params := billing.CreateChargeParams{
		AmountCents: int64(order.TotalPrice),
		Currency:    order.Currency,
		CustomerID:  customerID,
		Description: chargeDescription(form, order),
		Metadata:    metadata,
		Shipping:    billing.ShippingFromAddress(order.Address, sub.ShippingAmount),
	}
	if order.PaymentType == PaymentTypeIDEAL {
		// Bank-debit sources are charged directly, not through the
		// customer's default card.
		params.Source = sub.Token
	}

	charge, err := s.billing.CreateCharge(ctx, params)
	if err != nil {
		return "", err
	}
	return charge.ID, nil
}

func (s *PaymentService) subscribe(ctx context.Context, form *domain.PaymentForm, order *domain.Order, customerID, planID string) (string, error) {
	var taxPercent float64
	if s.cfg.TaxEnabled {
		taxPercent = s.cfg.TaxPercent
	}

	subscription, err := s.billing.CreateSubscription(ctx, billing.CreateSubscriptionParams{
		CustomerID: customerID,
		PlanID:     planID,
		Quantity:   int64(order.Quantity),
		TaxPercent: taxPercent,
		Metadata: map[string]string{
			"order_number": order.Number,
			"form_handle":  form.Handle,
		},
	})
	if err != nil {
		return "", err
	}
	return subscription.ID, nil
}

// billSetupFee attaches a one-time fee to the customer's next invoice.
// A zero fee is a no-op.
func (s *PaymentService) billSetupFee(ctx context.Context, form *domain.PaymentForm, order *domain.Order, customerID string, feeCents int64) error {
	if feeCents <= 0 {
		return nil
	}
	_, err := s.billing.CreateInvoiceItem(ctx, billing.CreateInvoiceItemParams{
		CustomerID:  customerID,
		AmountCents: feeCents,
		Currency:    order.Currency,
		Description: fmt.Sprintf("One-time setup fee: %s", form.Name),
	})
	return err
}

// requirePlan verifies a preconfigured plan exists. A missing one is a
// deployment defect, not a bad request.
func (s *PaymentService) requirePlan(ctx context.Context, planID string) error {
	_, err := s.billing.GetPlan(ctx, planID)
	if err == nil {
		return nil
	}
	if errors.Is(err, billing.ErrPlanNotFound) || billing.Classify(err) == billing.CategoryInvalidRequest {
		return domain.Errorf(domain.EINTERNAL, "payment.subscribe",
			"configured plan %q does not exist at the billing provider", planID)
	}
	return err
}

// ensurePlan finds or creates the dynamically priced plan for a form. The
// plan ID is deterministic over (form, interval, amount) so repeat
// submissions at the same amount share one provider plan.
func (s *PaymentService) ensurePlan(ctx context.Context, form *domain.PaymentForm, amountCents int64, currency string) (string, error) {
	interval := form.CustomPlanInterval
	if interval == "" {
		interval = "month"
	}
	intervalCount := form.CustomPlanIntervalCount
	if intervalCount < 1 {
		intervalCount = 1
	}

	planID := fmt.Sprintf("%s_%s%d_%d", form.Handle, interval, intervalCount, amountCents)

	if plan, err := s.billing.GetPlan(ctx, planID); err == nil {
		return plan.ID, nil
	} else if !errors.Is(err, billing.ErrPlanNotFound) &&
		billing.Classify(err) != billing.CategoryInvalidRequest {
		return "", err
	}

	plan, err := s.billing.CreatePlan(ctx, billing.CreatePlanParams{
		ID:            planID,
		AmountCents:   amountCents,
		Currency:      currency,
		Interval:      interval,
		IntervalCount: intervalCount,
		ProductName:   form.Name,
		Metadata:      map[string]string{"form_handle": form.Handle},
	})
	if err != nil {
		return "", err
	}
	return plan.ID, nil
}

// netOfTax strips the configured tax percentage out of a gross amount so
// the provider's invoice-level tax re-adds it without inflating the total.
func (s *PaymentService) netOfTax(amountCents int64) int64 {
	if !s.cfg.TaxEnabled || s.cfg.TaxPercent <= 0 {
		return amountCents
	}
	tax := math.Round(float64(amountCents) * s.cfg.TaxPercent / (100 + s.cfg.TaxPercent))
	return amountCents - int64(tax)
}

// finalize converts the order's monetary fields to major units, decrements
// finite stock, and persists everything inside one transaction. The stock
// decrement performs no sufficiency check.
func (s *PaymentService) finalize(ctx context.Context, order *domain.Order, form *domain.PaymentForm, isUpdate bool) error {
	cur := order.Currency
	order.TotalPrice = money.ToMajorUnits(int64(order.TotalPrice), cur)
	order.ShippingAmount = money.ToMajorUnits(int64(order.ShippingAmount), cur)
	order.TaxAmount = money.ToMajorUnits(int64(order.TaxAmount), cur)
	order.DiscountAmount = money.ToMajorUnits(int64(order.DiscountAmount), cur)
	order.State = domain.OrderStateNew

	if order.StatusID == 0 {
		if def, err := s.store.GetDefaultStatus(ctx); err == nil {
			order.StatusID = def.ID
		}
	}

	if err := order.Validate(); err != nil {
		return err
	}

	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		if !form.HasUnlimitedStock {
			form.Quantity -= order.Quantity
			if err := s.store.UpdateForm(ctx, form); err != nil {
				return err
			}
		}
		if isUpdate {
			return s.store.UpdateOrder(ctx, order)
		}
		return s.store.CreateOrder(ctx, order)
	})
}

func (s *PaymentService) notifyCompleted(ctx context.Context, order *domain.Order, form *domain.PaymentForm) {
	s.mu.RLock()
	observers := make([]domain.OrderObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o.OrderCompleted(ctx, order, form)
	}
}

// effectiveAmountCents picks the charge amount for the submission given the
// form's pricing mode.
func effectiveAmountCents(sub *domain.Submission, form *domain.PaymentForm) int64 {
	switch {
	case form.EnableSubscriptions && form.SubscriptionType == domain.SubscriptionTypeSingle &&
		form.AmountType == domain.AmountTypeCustomerEntered && sub.CustomAmount > 0:
		return sub.CustomAmount
	case !form.EnableSubscriptions && form.EnableRecurringPayment &&
		sub.RecurringToggle && sub.CustomPlanAmount > 0:
		return sub.CustomPlanAmount
	case sub.Amount > 0:
		return sub.Amount
	default:
		return form.AmountCents
	}
}

func chargeDescription(form *domain.PaymentForm, order *domain.Order) string {
	name := form.CompanyName
	if name == "" {
		name = form.Name
	}
	return fmt.Sprintf("%s - order %s", name, order.Number)
}
