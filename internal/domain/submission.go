package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Submission is the typed form payload accepted at the HTTP boundary.
//
// Raw form fields are parsed into this structure and validated before they
// reach the payment pipeline; the pipeline itself never sees loose field
// maps. Monetary fields are in minor units as posted by the form.
type Submission struct {
	Token      string `json:"token" validate:"required"`
	FormHandle string `json:"formId" validate:"required"`
	Email      string `json:"email" validate:"required,email"`

	// Amount is the charge amount in minor units.
	Amount   int64 `json:"amount" validate:"gte=0"`
	Quantity int32 `json:"quantity" validate:"gte=0"`

	ShippingAmount int64 `json:"shippingAmount" validate:"gte=0"`
	TaxAmount      int64 `json:"taxAmount" validate:"gte=0"`
	DiscountAmount int64 `json:"discountAmount" validate:"gte=0"`

	// CustomAmount is a customer-entered amount for single-plan forms
	// configured with AmountTypeCustomerEntered.
	CustomAmount int64 `json:"customAmount" validate:"gte=0"`

	// CustomPlanAmount is a customer-entered amount for the recurring
	// opt-in on non-subscription forms.
	CustomPlanAmount int64 `json:"customPlanAmount" validate:"gte=0"`

	// RecurringToggle is true when the customer opted into recurring
	// billing (posted as "on" by the form).
	RecurringToggle bool `json:"recurringToggle"`

	// PlanID is the plan the customer selected on a multi-plan form.
	PlanID string `json:"planId"`

	PaymentType string `json:"paymentType"`
	TestMode    bool   `json:"testMode"`

	Address *Address `json:"address,omitempty"`

	// Metadata carries arbitrary form-field key/value pairs. Values are
	// strings or string lists; anything else is rejected during parsing.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Currency overrides the form currency. Only the iDEAL flow sets it.
	Currency string `json:"currency,omitempty"`
}

var submissionValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the submission at the boundary. Failures come back as a
// field-level ValidationError keyed by the posted field name.
func (s *Submission) Validate() error {
	err := submissionValidator.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return Invalid("submission.validate", "invalid submission")
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fieldName(fe)] = messageForTag(fe)
	}
	return &ValidationError{Op: "submission.validate", Fields: fields}
}

// fieldName maps a validator field error back to the posted field name.
func fieldName(fe validator.FieldError) string {
	// Namespace is like "Submission.FormHandle"; drop the struct prefix.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns[:1]) + ns[1:]
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "invalid value"
	}
}
