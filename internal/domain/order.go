package domain

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order-related domain errors.
var (
	ErrOrderNotFound    = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrCustomerNotFound = &Error{Code: ENOTFOUND, Message: "Customer not found"}
	ErrFormNotFound     = &Error{Code: ENOTFOUND, Message: "Payment form not found"}
	ErrStatusNotFound   = &Error{Code: ENOTFOUND, Message: "Order status not found"}
	ErrDuplicateNumber  = &Error{Code: ECONFLICT, Message: "Order number already exists"}
)

// OrderState is the lifecycle state of an order.
//
// An order is created Pending when a redirect-based flow (iDEAL) is in
// progress, otherwise New. The Pending -> New transition happens exactly
// once, when the asynchronous payment confirmation arrives. Processed is an
// operator-driven fulfillment state and never set by the payment flow.
type OrderState string

const (
	OrderStatePending   OrderState = "pending"
	OrderStateNew       OrderState = "new"
	OrderStateProcessed OrderState = "processed"
)

// Valid reports whether s is a known order state.
func (s OrderState) Valid() bool {
	switch s {
	case OrderStatePending, OrderStateNew, OrderStateProcessed:
		return true
	}
	return false
}

// Address holds the shipping address captured with a submission.
type Address struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Order is a persisted record of one purchase attempt and its outcome.
type Order struct {
	ID     uuid.UUID
	Number string
	State  OrderState

	// StatusID references the operator-managed status catalogue label.
	// Zero means the catalogue default applies.
	StatusID int64

	FormID         int64
	Email          string
	Quantity       int32
	Currency       string
	PaymentType    string
	TestMode       bool

	// TotalPrice is kept in minor units (cents) while the payment is in
	// flight and converted to major units exactly once, at finalization.
	TotalPrice     float64
	ShippingAmount float64
	TaxAmount      float64
	DiscountAmount float64

	// StripeTransactionID is set only after a successful remote charge,
	// subscription, or source creation.
	StripeTransactionID string

	// StripeCustomerID links the order to the remote customer record.
	StripeCustomerID string

	// Variants holds arbitrary form-field metadata, serialized as an
	// opaque blob in storage.
	Variants map[string]string

	Address *Address

	// RawPayload is the captured submission, retained verbatim so
	// redirect-based flows can re-enter the payment pipeline later.
	RawPayload json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the order before persistence. Failures are returned as a
// field-level error collection, not an exception.
func (o *Order) Validate() error {
	var err error
	if o.Number == "" {
		err = AddFieldError(err, "number", "order number is required")
	}
	if o.Email == "" {
		err = AddFieldError(err, "email", "customer email is required")
	}
	if !o.State.Valid() {
		err = AddFieldError(err, "state", fmt.Sprintf("unknown order state: %s", o.State))
	}
	if o.Quantity < 1 {
		err = AddFieldError(err, "quantity", "quantity must be at least 1")
	}
	if err != nil {
		ve := err.(*ValidationError)
		ve.Op = "order.validate"
		return ve
	}
	return nil
}

const orderNumberAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewOrderNumber generates a human-readable order number.
// Format: a date prefix plus a random suffix, e.g. "20250129-x4k9q7".
// The number is unique and immutable once assigned to an order.
func NewOrderNumber(now time.Time) string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a uuid-derived suffix rather than panicking mid-checkout.
		return now.Format("20060102") + "-" + uuid.New().String()[:6]
	}
	for i := range b {
		b[i] = orderNumberAlphabet[int(b[i])%len(orderNumberAlphabet)]
	}
	return now.Format("20060102") + "-" + string(b)
}
