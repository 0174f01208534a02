package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/madronelabs/formpay/internal/billing"
	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/store"
)

// CustomerService resolves a submission email to a provider-side customer,
// backed by the local (email, testMode) cache so repeat buyers reuse one
// remote customer record.
type CustomerService struct {
	store   store.Store
	billing billing.Provider
	logger  *slog.Logger
}

// NewCustomerService creates a customer resolver.
func NewCustomerService(st store.Store, provider billing.Provider, logger *slog.Logger) *CustomerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CustomerService{store: st, billing: provider, logger: logger}
}

// ResolveCustomer returns the provider customer ID for the email, creating
// the remote customer on first purchase. On a cache hit the remote customer
// is retrieved and the payment token reattached as its default source so the
// card just entered is the one charged. isNew reports whether a remote
// customer was created.
//
// Sandbox and live customers never collide: the cache key is (email, testMode).
func (s *CustomerService) ResolveCustomer(ctx context.Context, email, token string, testMode bool) (customerID string, isNew bool, err error) {
	cached, err := s.store.GetCustomerByEmail(ctx, email, testMode)
	if err != nil && !errors.Is(err, domain.ErrCustomerNotFound) {
		return "", false, err
	}

	if cached != nil {
		id, err := s.refreshSource(ctx, cached.StripeCustomerID, token)
		if err == nil {
			return id, false, nil
		}
		// A cached ID the provider no longer recognizes means the remote
		// customer was deleted out-of-band. Recreate it and repoint the
		// cache row.
		if billing.Classify(err) != billing.CategoryInvalidRequest {
			return "", false, err
		}
		s.logger.Warn("cached stripe customer no longer exists, recreating",
			"email", email, "stripe_customer_id", cached.StripeCustomerID)

		created, cerr := s.billing.CreateCustomer(ctx, billing.CreateCustomerParams{
			Email: email,
			Token: token,
		})
		if cerr != nil {
			return "", false, cerr
		}
		cached.StripeCustomerID = created.ID
		if uerr := s.store.UpdateCustomer(ctx, cached); uerr != nil {
			return "", false, uerr
		}
		return created.ID, true, nil
	}

	created, err := s.billing.CreateCustomer(ctx, billing.CreateCustomerParams{
		Email: email,
		Token: token,
	})
	if err != nil {
		return "", false, err
	}

	record := &domain.Customer{
		Email:            email,
		StripeCustomerID: created.ID,
		TestMode:         testMode,
	}
	if err := s.store.CreateCustomer(ctx, record); err != nil {
		return "", false, err
	}

	s.logger.Info("stripe customer created",
		"email", email, "stripe_customer_id", created.ID, "test_mode", testMode)
	return created.ID, true, nil
}

// refreshSource retrieves the cached remote customer and reattaches the
// payment token just entered as its default source.
func (s *CustomerService) refreshSource(ctx context.Context, customerID, token string) (string, error) {
	remote, err := s.billing.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if _, err := s.billing.UpdateCustomerSource(ctx, remote.ID, token); err != nil {
		return "", err
	}
	return remote.ID, nil
}
