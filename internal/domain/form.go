package domain

import "time"

// AmountType controls where a form's charge amount comes from.
type AmountType string

const (
	// AmountTypeFixed charges the amount configured on the form.
	AmountTypeFixed AmountType = "fixed"

	// AmountTypeCustomerEntered charges whatever the customer typed in.
	AmountTypeCustomerEntered AmountType = "customer_entered"
)

// SubscriptionType controls how a subscription-enabled form offers plans.
type SubscriptionType string

const (
	// SubscriptionTypeSingle subscribes every customer to one plan.
	SubscriptionTypeSingle SubscriptionType = "single"

	// SubscriptionTypeMultiple lets the customer pick from a plan list.
	SubscriptionTypeMultiple SubscriptionType = "multiple"
)

// FormPlan is one selectable plan on a multi-plan form.
type FormPlan struct {
	// PlanID is the billing provider's plan identifier.
	PlanID string `json:"planId"`

	// SetupFeeCents is an optional one-time fee billed alongside the
	// first cycle, in minor units. Zero means no setup fee.
	SetupFeeCents int64 `json:"setupFee"`
}

// PaymentForm is the configuration describing a purchasable offer.
//
// The payment flow treats forms as read/write collaborator state: when a
// form enforces a finite quantity, finalizing an order decrements the stock
// counter and writes the form back.
type PaymentForm struct {
	ID          int64
	Handle      string
	Name        string
	CompanyName string
	Currency    string

	// AmountCents is the fixed price in minor units. Ignored when
	// AmountType is AmountTypeCustomerEntered.
	AmountCents int64
	AmountType  AmountType

	// Subscription configuration.
	EnableSubscriptions bool
	SubscriptionType    SubscriptionType
	SinglePlanID        string
	// SinglePlanSetupFeeCents is billed once alongside the first cycle
	// of a single-plan subscription, in minor units.
	SinglePlanSetupFeeCents int64
	// Plans is the selectable plan list for SubscriptionTypeMultiple.
	Plans []FormPlan
	// CustomPlanInterval configures dynamically created plans for
	// customer-entered subscription amounts ("day", "week", "month", "year").
	CustomPlanInterval      string
	CustomPlanIntervalCount int64

	// EnableRecurringPayment allows a non-subscription form to offer a
	// recurring-billing opt-in at a customer-entered amount. It also
	// switches the iDEAL flow to collect a reusable SEPA mandate.
	EnableRecurringPayment bool

	// Stock control. Quantity is the remaining stock when
	// HasUnlimitedStock is false; it is decremented at finalization
	// without a sufficiency check or locking.
	HasUnlimitedStock bool
	Quantity          int32

	// Optional notification template overrides, looked up by name in the
	// template override directory.
	CustomerTemplateOverride string
	AdminTemplateOverride    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetupFeeForPlan returns the setup fee configured for the given plan on a
// multi-plan form, or zero when the plan carries none.
func (f *PaymentForm) SetupFeeForPlan(planID string) int64 {
	for _, p := range f.Plans {
		if p.PlanID == planID {
			return p.SetupFeeCents
		}
	}
	return 0
}
