package billing

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func Test_WrapStripeError_Nil(t *testing.T) {
	assert.Nil(t, wrapStripeError(nil))
}

func Test_WrapStripeError_NonSDKErrorIsConnectivity(t *testing.T) {
	err := wrapStripeError(errors.New("dial tcp: i/o timeout"))

	var se *StripeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CategoryConnectivity, se.Category)
	assert.True(t, se.IsTemporary())
	assert.False(t, se.IsDeclined())
}

func Test_WrapStripeError_Classification(t *testing.T) {
	tests := []struct {
		name     string
		in       *stripe.Error
		expected ErrorCategory
	}{
		{
			name:     "card error type",
			in:       &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."},
			expected: CategoryCardDeclined,
		},
		{
			name:     "card declined code",
			in:       &stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "declined"},
			expected: CategoryCardDeclined,
		},
		{
			name:     "decline code present",
			in:       &stripe.Error{DeclineCode: "insufficient_funds", Msg: "declined"},
			expected: CategoryCardDeclined,
		},
		{
			name:     "rate limit code",
			in:       &stripe.Error{Code: stripe.ErrorCodeRateLimit, Msg: "too many requests"},
			expected: CategoryRateLimit,
		},
		{
			name:     "429 status",
			in:       &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests, Msg: "slow down"},
			expected: CategoryRateLimit,
		},
		{
			name:     "401 status",
			in:       &stripe.Error{HTTPStatusCode: http.StatusUnauthorized, Msg: "bad key"},
			expected: CategoryAuthentication,
		},
		{
			name:     "invalid request",
			in:       &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "no such plan"},
			expected: CategoryInvalidRequest,
		},
		{
			name:     "anything else is api error",
			in:       &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "internal"},
			expected: CategoryAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapStripeError(tt.in)

			var se *StripeError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.expected, se.Category)
		})
	}
}

func Test_WrapStripeError_PreservesDetails(t *testing.T) {
	in := &stripe.Error{
		Type:        stripe.ErrorTypeCard,
		Code:        stripe.ErrorCodeCardDeclined,
		DeclineCode: "insufficient_funds",
		Msg:         "Your card has insufficient funds.",
		RequestID:   "req_123",
	}

	err := wrapStripeError(in)

	var se *StripeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "card_declined", se.Code)
	assert.Equal(t, "insufficient_funds", se.DeclineCode)
	assert.Equal(t, "req_123", se.RequestID)
	assert.Contains(t, se.Error(), "card_declined")

	// The original SDK error stays reachable through the chain.
	var orig *stripe.Error
	assert.ErrorAs(t, err, &orig)
}

func Test_Classify(t *testing.T) {
	declined := wrapStripeError(&stripe.Error{Type: stripe.ErrorTypeCard})
	assert.Equal(t, CategoryCardDeclined, Classify(declined))

	assert.Equal(t, CategoryAPI, Classify(errors.New("unrelated")))
}

func Test_StripeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid test key", "sk_test_abc", false},
		{"valid live key", "sk_live_abc", false},
		{"empty key", "", true},
		{"publishable key rejected", "pk_test_abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := StripeConfig{APIKey: tt.key}.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAPIKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_StripeConfig_IsTestMode(t *testing.T) {
	assert.True(t, StripeConfig{APIKey: "sk_test_abc"}.IsTestMode())
	assert.False(t, StripeConfig{APIKey: "sk_live_abc"}.IsTestMode())
}
