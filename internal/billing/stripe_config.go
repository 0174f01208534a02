package billing

import (
	"fmt"
	"strings"
)

// StripeConfig holds Stripe API configuration.
type StripeConfig struct {
	// APIKey is the secret key (sk_test_... or sk_live_...).
	APIKey string

	// WebhookSecret verifies webhook signatures (whsec_...).
	WebhookSecret string
}

// Validate checks that the configuration is complete and well-formed.
func (c StripeConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidAPIKey)
	}
	if !strings.HasPrefix(c.APIKey, "sk_") {
		return fmt.Errorf("%w: secret keys start with sk_", ErrInvalidAPIKey)
	}
	return nil
}

// IsTestMode reports whether the configured key targets the test environment.
// Recorded on every order so test traffic is distinguishable afterwards.
func (c StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.APIKey, "sk_test_")
}
