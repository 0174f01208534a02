package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/service"
)

// CheckoutHandler accepts payment-form submissions.
type CheckoutHandler struct {
	payments *service.PaymentService
	logger   *slog.Logger
}

// NewCheckoutHandler creates the checkout handler.
func NewCheckoutHandler(payments *service.PaymentService, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{payments: payments, logger: logger}
}

// checkoutResponse is the success envelope for a finalized payment.
type checkoutResponse struct {
	Success     bool    `json:"success"`
	OrderNumber string  `json:"orderNumber,omitempty"`
	Total       float64 `json:"total,omitempty"`
	Currency    string  `json:"currency,omitempty"`

	// RedirectURL is set for bank-redirect payments; the client must send
	// the customer there to authorize.
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Submit handles POST /checkout. Form-encoded and JSON bodies are both
// accepted; bracketed form fields like address[city] and metadata[size] nest
// into the submission structure.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ErrorResponse(w, r, domain.Invalid("checkout.submit", "Method not allowed"))
		return
	}

	sub, err := parseSubmission(r)
	if err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	if sub.PaymentType == service.PaymentTypeIDEAL {
		// Redirect payments carry no card token; the orchestrator checks
		// the fields it needs.
		url, err := h.payments.StartBankRedirect(r.Context(), sub)
		if err != nil {
			ErrorResponse(w, r, err)
			return
		}
		if url == "" {
			ErrorResponse(w, r, domain.Invalid("checkout.submit", "Payment could not be started"))
			return
		}
		respondJSON(w, http.StatusOK, checkoutResponse{Success: true, RedirectURL: url})
		return
	}

	if err := sub.Validate(); err != nil {
		ValidationErrorResponse(w, r, err)
		return
	}

	order, err := h.payments.ProcessPayment(r.Context(), sub, nil)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if order == nil {
		// Declined or rejected; details are in the log, not the response.
		ErrorResponse(w, r, &domain.Error{
			Code:    domain.EPAYMENT,
			Op:      "checkout.submit",
			Message: "Payment could not be completed",
		})
		return
	}

	respondJSON(w, http.StatusOK, checkoutResponse{
		Success:     true,
		OrderNumber: order.Number,
		Total:       order.TotalPrice,
		Currency:    order.Currency,
	})
}

// parseSubmission reads the request body into a Submission. JSON bodies
// unmarshal directly; form bodies go through the bracketed-field mapping.
func parseSubmission(r *http.Request) (*domain.Submission, error) {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var sub domain.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			return nil, domain.Invalid("checkout.parse", "request body is not valid JSON")
		}
		return &sub, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, domain.Invalid("checkout.parse", "request body is not a valid form")
	}
	return submissionFromForm(r.PostForm)
}

// submissionFromForm maps posted form fields onto a Submission. Unrecognized
// scalar fields and metadata[...] entries are collected as metadata so custom
// form fields survive into order variants.
func submissionFromForm(form map[string][]string) (*domain.Submission, error) {
	sub := &domain.Submission{}
	var parseErr error

	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		value := values[0]

		if inner, ok := bracketKey(key, "address"); ok {
			if sub.Address == nil {
				sub.Address = &domain.Address{}
			}
			setAddressField(sub.Address, inner, value)
			continue
		}
		if inner, ok := bracketKey(key, "metadata"); ok {
			addMetadata(sub, inner, values)
			continue
		}

		switch key {
		case "token":
			sub.Token = value
		case "formId":
			sub.FormHandle = value
		case "email":
			sub.Email = value
		case "amount":
			parseErr = setCents(&sub.Amount, key, value, parseErr)
		case "quantity":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				parseErr = domain.AddFieldError(parseErr, key, "must be a whole number")
				continue
			}
			sub.Quantity = int32(n)
		case "shippingAmount":
			parseErr = setCents(&sub.ShippingAmount, key, value, parseErr)
		case "taxAmount":
			parseErr = setCents(&sub.TaxAmount, key, value, parseErr)
		case "discountAmount":
			parseErr = setCents(&sub.DiscountAmount, key, value, parseErr)
		case "customAmount":
			parseErr = setCents(&sub.CustomAmount, key, value, parseErr)
		case "customPlanAmount":
			parseErr = setCents(&sub.CustomPlanAmount, key, value, parseErr)
		case "recurringToggle":
			sub.RecurringToggle = value == "on" || value == "true" || value == "1"
		case "planId":
			sub.PlanID = value
		case "paymentType":
			sub.PaymentType = value
		case "testMode":
			sub.TestMode = value == "on" || value == "true" || value == "1"
		default:
			addMetadata(sub, key, values)
		}
	}

	if parseErr != nil {
		return nil, parseErr
	}
	return sub, nil
}

// bracketKey matches keys of the form prefix[inner] and returns inner.
func bracketKey(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix+"[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	return key[len(prefix)+1 : len(key)-1], true
}

func setAddressField(addr *domain.Address, field, value string) {
	switch field {
	case "name":
		addr.Name = value
	case "line1":
		addr.Line1 = value
	case "city":
		addr.City = value
	case "state":
		addr.State = value
	case "zip":
		addr.Zip = value
	case "country":
		addr.Country = value
	}
}

func addMetadata(sub *domain.Submission, key string, values []string) {
	if sub.Metadata == nil {
		sub.Metadata = make(map[string]interface{})
	}
	if len(values) == 1 {
		sub.Metadata[key] = values[0]
		return
	}
	sub.Metadata[key] = values
}

func setCents(dst *int64, field, value string, parseErr error) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return domain.AddFieldError(parseErr, field, "must be an amount in cents")
	}
	*dst = n
	return parseErr
}
