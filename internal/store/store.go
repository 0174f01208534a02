// Package store defines the persistence interfaces for orders, customers,
// payment forms, and the order status catalogue.
//
// Two implementations exist: MemoryStore in this package for tests and
// development, and the pgx-backed implementation in internal/postgres.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/madronelabs/formpay/internal/domain"
)

// OrderFilter narrows ListOrders results. Zero values mean "no filter".
type OrderFilter struct {
	FormID   int64
	StatusID int64
	State    domain.OrderState
	Email    string

	Limit  int
	Offset int
}

// OrderStore persists orders.
type OrderStore interface {
	// CreateOrder inserts a new order. The order number must be unique;
	// violations return domain.ErrDuplicateNumber.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// UpdateOrder writes back a mutated order, keyed by ID.
	UpdateOrder(ctx context.Context, order *domain.Order) error

	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)

	// GetOrderByTransactionID finds the order holding a given provider
	// transaction or source ID. Used by webhook-driven flows to re-enter
	// a pending order.
	GetOrderByTransactionID(ctx context.Context, txID string) (*domain.Order, error)

	// ListOrders returns orders newest first.
	ListOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)

	DeleteOrder(ctx context.Context, id uuid.UUID) error
}

// CustomerStore persists the local email-to-provider-customer cache.
type CustomerStore interface {
	// GetCustomerByEmail looks up the cache entry for (email, testMode).
	// Missing entries return domain.ErrCustomerNotFound.
	GetCustomerByEmail(ctx context.Context, email string, testMode bool) (*domain.Customer, error)

	CreateCustomer(ctx context.Context, customer *domain.Customer) error
	UpdateCustomer(ctx context.Context, customer *domain.Customer) error
	DeleteCustomer(ctx context.Context, id int64) error
}

// FormStore persists payment form configuration.
type FormStore interface {
	// GetFormByHandle resolves a form by its submission handle. Missing
	// forms return domain.ErrFormNotFound.
	GetFormByHandle(ctx context.Context, handle string) (*domain.PaymentForm, error)

	GetFormByID(ctx context.Context, id int64) (*domain.PaymentForm, error)

	CreateForm(ctx context.Context, form *domain.PaymentForm) error

	// UpdateForm writes back form state. The payment flow uses this to
	// decrement stock at finalization.
	UpdateForm(ctx context.Context, form *domain.PaymentForm) error
}

// StatusStore persists the ordered status catalogue.
type StatusStore interface {
	CreateStatus(ctx context.Context, status *domain.OrderStatus) error
	UpdateStatus(ctx context.Context, status *domain.OrderStatus) error

	GetStatusByID(ctx context.Context, id int64) (*domain.OrderStatus, error)
	GetStatusByHandle(ctx context.Context, handle string) (*domain.OrderStatus, error)

	// GetDefaultStatus returns the status flagged default, or
	// domain.ErrStatusNotFound when none is flagged.
	GetDefaultStatus(ctx context.Context) (*domain.OrderStatus, error)

	// ListStatuses returns the catalogue in sort order.
	ListStatuses(ctx context.Context) ([]*domain.OrderStatus, error)

	// ClearDefaultExcept unsets the default flag on every status other
	// than the given ID. Run inside the same transaction as the save that
	// sets a new default.
	ClearDefaultExcept(ctx context.Context, id int64) error

	// ReorderStatuses rewrites sort positions to match the given ID order.
	ReorderStatuses(ctx context.Context, ids []int64) error

	DeleteStatus(ctx context.Context, id int64) error

	CountStatuses(ctx context.Context) (int, error)
}

// TxRunner executes a function inside a storage transaction. The callback
// receives a context carrying the transaction; store methods called with it
// participate in the transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store aggregates every persistence concern behind one interface.
type Store interface {
	OrderStore
	CustomerStore
	FormStore
	StatusStore
	TxRunner
}
