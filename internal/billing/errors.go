package billing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
)

var (
	// ErrInvalidAPIKey is returned when the Stripe API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

	// ErrPlanNotFound is returned when a referenced plan does not exist.
	// A missing preconfigured plan is a deployment defect, not a bad request.
	ErrPlanNotFound = errors.New("billing: plan not found")

	// ErrInvalidWebhookSignature is returned when webhook signature verification fails.
	ErrInvalidWebhookSignature = errors.New("billing: invalid webhook signature")
)

// ErrorCategory classifies a remote provider failure.
// Each category is logged distinctly by the payment pipeline.
type ErrorCategory string

const (
	CategoryCardDeclined   ErrorCategory = "card_declined"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryInvalidRequest ErrorCategory = "invalid_request"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryConnectivity   ErrorCategory = "connectivity"
	CategoryAPI            ErrorCategory = "api_error"
)

// StripeError wraps a Stripe API error with classification and context.
type StripeError struct {
	Category    ErrorCategory
	Message     string // Human-readable error message
	Code        string // Stripe error code (e.g., "card_declined")
	DeclineCode string // Card decline reason (if applicable)
	RequestID   string // Stripe request ID for debugging
	Err         error  // Original error from the Stripe SDK
}

func (e *StripeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe: %s: %s (code: %s)", e.Category, e.Message, e.Code)
	}
	return fmt.Sprintf("stripe: %s: %s", e.Category, e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.Err
}

// IsDeclined returns true if the error is due to a card decline.
func (e *StripeError) IsDeclined() bool {
	return e.Category == CategoryCardDeclined
}

// IsTemporary returns true if the error is likely transient.
func (e *StripeError) IsTemporary() bool {
	return e.Category == CategoryRateLimit || e.Category == CategoryConnectivity
}

// wrapStripeError converts an SDK error into a classified *StripeError.
// Non-SDK errors (timeouts, DNS failures) classify as connectivity.
func wrapStripeError(err error) error {
	if err == nil {
		return nil
	}

	var se *stripe.Error
	if !errors.As(err, &se) {
		return &StripeError{
			Category: CategoryConnectivity,
			Message:  err.Error(),
			Err:      err,
		}
	}

	out := &StripeError{
		Category:    classify(se),
		Message:     se.Msg,
		Code:        string(se.Code),
		DeclineCode: string(se.DeclineCode),
		RequestID:   se.RequestID,
		Err:         err,
	}
	return out
}

func classify(se *stripe.Error) ErrorCategory {
	switch {
	case se.Type == stripe.ErrorTypeCard || se.Code == stripe.ErrorCodeCardDeclined || se.DeclineCode != "":
		return CategoryCardDeclined
	case se.Code == stripe.ErrorCodeRateLimit || se.HTTPStatusCode == http.StatusTooManyRequests:
		return CategoryRateLimit
	case se.HTTPStatusCode == http.StatusUnauthorized:
		return CategoryAuthentication
	case se.Type == stripe.ErrorTypeInvalidRequest:
		return CategoryInvalidRequest
	default:
		return CategoryAPI
	}
}

// Classify extracts the category from any error produced by this package.
// Unrecognized errors classify as CategoryAPI.
func Classify(err error) ErrorCategory {
	var se *StripeError
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryAPI
}
