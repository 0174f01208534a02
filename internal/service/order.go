package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/store"
)

// OrderService exposes read and delete access to persisted orders for
// administrative callers. The payment pipeline writes orders itself.
type OrderService struct {
	store  store.Store
	logger *slog.Logger
}

// NewOrderService creates the order query service.
func NewOrderService(st store.Store, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{store: st, logger: logger}
}

func (s *OrderService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.store.GetOrderByID(ctx, id)
}

func (s *OrderService) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.store.GetOrderByNumber(ctx, number)
}

func (s *OrderService) GetByTransactionID(ctx context.Context, txID string) (*domain.Order, error) {
	return s.store.GetOrderByTransactionID(ctx, txID)
}

func (s *OrderService) List(ctx context.Context, filter store.OrderFilter) ([]*domain.Order, error) {
	return s.store.ListOrders(ctx, filter)
}

// Delete removes an order outright. There is no soft delete.
func (s *OrderService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.logger.Info("order deleted", "order_id", id)
	return nil
}
