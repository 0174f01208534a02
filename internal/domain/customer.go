package domain

import "time"

// Customer maps a local email plus test-mode flag to a remote customer
// identifier, so repeat purchases reuse the provider-side customer record.
//
// At most one record exists per (email, testMode) pair; the pair scoping
// keeps sandbox and live customers from ever colliding.
type Customer struct {
	ID               int64
	Email            string
	StripeCustomerID string
	TestMode         bool
	CreatedAt        time.Time
}
