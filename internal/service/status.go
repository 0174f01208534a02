package service

import (
	"context"
	"log/slog"

	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/store"
)

// StatusService manages the operator-facing order status catalogue.
type StatusService struct {
	store  store.Store
	logger *slog.Logger
}

// NewStatusService creates the status catalogue service.
func NewStatusService(st store.Store, logger *slog.Logger) *StatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusService{store: st, logger: logger}
}

// Save validates and persists a status. Flagging one default clears the
// flag on every other status inside the same transaction, so at most one
// default exists at any time.
func (s *StatusService) Save(ctx context.Context, status *domain.OrderStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		if status.ID == 0 {
			if err := s.store.CreateStatus(ctx, status); err != nil {
				return err
			}
		} else {
			if err := s.store.UpdateStatus(ctx, status); err != nil {
				return err
			}
		}
		if status.IsDefault {
			return s.store.ClearDefaultExcept(ctx, status.ID)
		}
		return nil
	})
}

// Reorder rewrites the catalogue's sort positions to match ids, first to
// last, in one transaction.
func (s *StatusService) Reorder(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return domain.Invalid("status.reorder", "id list is empty")
	}
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		return s.store.ReorderStatuses(ctx, ids)
	})
}

// Delete removes a status from the catalogue. The deletion is refused, with
// a false return and no error, when any order references the status or when
// removing it would empty the catalogue.
func (s *StatusService) Delete(ctx context.Context, id int64) (bool, error) {
	referencing, err := s.store.ListOrders(ctx, store.OrderFilter{StatusID: id, Limit: 1})
	if err != nil {
		return false, err
	}
	if len(referencing) > 0 {
		s.logger.Info("status delete refused: orders reference it", "status_id", id)
		return false, nil
	}

	count, err := s.store.CountStatuses(ctx)
	if err != nil {
		return false, err
	}
	if count <= 1 {
		s.logger.Info("status delete refused: catalogue would be empty", "status_id", id)
		return false, nil
	}

	if err := s.store.DeleteStatus(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the catalogue in sort order.
func (s *StatusService) List(ctx context.Context) ([]*domain.OrderStatus, error) {
	return s.store.ListStatuses(ctx)
}

// Get returns one status by ID.
func (s *StatusService) Get(ctx context.Context, id int64) (*domain.OrderStatus, error) {
	return s.store.GetStatusByID(ctx, id)
}
