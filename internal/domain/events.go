package domain

import "context"

// OrderObserver receives synchronous notifications after an order completes
// its Pending/New transition and is persisted.
//
// Observers run on the request goroutine, in registration order, after the
// state transition has committed. Observer failures are the observer's
// problem: the payment pipeline never rolls back a completed order because
// a notification failed.
type OrderObserver interface {
	OrderCompleted(ctx context.Context, order *Order, form *PaymentForm)
}

// OrderObserverFunc adapts a function to the OrderObserver interface.
type OrderObserverFunc func(ctx context.Context, order *Order, form *PaymentForm)

// OrderCompleted implements OrderObserver.
func (f OrderObserverFunc) OrderCompleted(ctx context.Context, order *Order, form *PaymentForm) {
	f(ctx, order, form)
}
