package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/madronelabs/formpay/internal/domain"
	"github.com/madronelabs/formpay/internal/store"
)

const orderColumns = `id, number, state, status_id, form_id, email, quantity,
	currency, payment_type, test_mode, total_price, shipping_amount,
	tax_amount, discount_amount, stripe_transaction_id, stripe_customer_id,
	variants, address, raw_payload, created_at, updated_at`

// CreateOrder inserts a new order.
func (db *DB) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	variants, err := marshalVariants(order.Variants)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to encode variants")
	}
	address, err := marshalAddress(order.Address)
	if err != nil {
		return domain.Internal(err, "order.create", "failed to encode address")
	}

	row := db.q(ctx).QueryRow(ctx, `
		INSERT INTO orders (id, number, state, status_id, form_id, email,
			quantity, currency, payment_type, test_mode, total_price,
			shipping_amount, tax_amount, discount_amount,
			stripe_transaction_id, stripe_customer_id, variants, address,
			raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at`,
		order.ID, order.Number, order.State, order.StatusID, order.FormID,
		order.Email, order.Quantity, order.Currency, order.PaymentType,
		order.TestMode, order.TotalPrice, order.ShippingAmount,
		order.TaxAmount, order.DiscountAmount, order.StripeTransactionID,
		order.StripeCustomerID, variants, address, order.RawPayload,
	)
	if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateNumber
		}
		return domain.Internal(err, "order.create", "failed to insert order")
	}
	return nil
}

// UpdateOrder writes back a mutated order.
func (db *DB) UpdateOrder(ctx context.Context, order *domain.Order) error {
	variants, err := marshalVariants(order.Variants)
	if err != nil {
		return domain.Internal(err, "order.update", "failed to encode variants")
	}
	address, err := marshalAddress(order.Address)
	if err != nil {
		return domain.Internal(err, "order.update", "failed to encode address")
	}

	tag, err := db.q(ctx).Exec(ctx, `
		UPDATE orders SET
			state = $2, status_id = $3, email = $4, quantity = $5,
			currency = $6, payment_type = $7, total_price = $8,
			shipping_amount = $9, tax_amount = $10, discount_amount = $11,
			stripe_transaction_id = $12, stripe_customer_id = $13,
			variants = $14, address = $15, raw_payload = $16,
			updated_at = now()
		WHERE id = $1`,
		order.ID, order.State, order.StatusID, order.Email, order.Quantity,
		order.Currency, order.PaymentType, order.TotalPrice,
		order.ShippingAmount, order.TaxAmount, order.DiscountAmount,
		order.StripeTransactionID, order.StripeCustomerID, variants,
		address, order.RawPayload,
	)
	if err != nil {
		return domain.Internal(err, "order.update", "failed to update order")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (db *DB) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return db.getOrder(ctx, "order.get", `WHERE id = $1`, id)
}

func (db *DB) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return db.getOrder(ctx, "order.get_by_number", `WHERE number = $1`, number)
}

// GetOrderByTransactionID finds the order holding a given provider
// transaction or source ID.
func (db *DB) GetOrderByTransactionID(ctx context.Context, txID string) (*domain.Order, error) {
	if txID == "" {
		return nil, domain.ErrOrderNotFound
	}
	return db.getOrder(ctx, "order.get_by_transaction", `WHERE stripe_transaction_id = $1`, txID)
}

func (db *DB) getOrder(ctx context.Context, op, where string, arg any) (*domain.Order, error) {
	row := db.q(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM orders %s`, orderColumns, where), arg)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, op, "failed to get order")
	}
	return order, nil
}

// ListOrders returns orders newest first.
func (db *DB) ListOrders(ctx context.Context, filter store.OrderFilter) ([]*domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.FormID != 0 {
		args = append(args, filter.FormID)
		conds = append(conds, fmt.Sprintf("form_id = $%d", len(args)))
	}
	if filter.StatusID != 0 {
		args = append(args, filter.StatusID)
		conds = append(conds, fmt.Sprintf("status_id = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if filter.Email != "" {
		args = append(args, filter.Email)
		conds = append(conds, fmt.Sprintf("email = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM orders`, orderColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal(err, "order.list", "failed to list orders")
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, domain.Internal(err, "order.list", "failed to scan order")
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "order.list", "failed to read order rows")
	}
	return out, nil
}

func (db *DB) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := db.q(ctx).Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return domain.Internal(err, "order.delete", "failed to delete order")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o        domain.Order
		variants []byte
		address  []byte
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.State, &o.StatusID, &o.FormID, &o.Email,
		&o.Quantity, &o.Currency, &o.PaymentType, &o.TestMode,
		&o.TotalPrice, &o.ShippingAmount, &o.TaxAmount, &o.DiscountAmount,
		&o.StripeTransactionID, &o.StripeCustomerID, &variants, &address,
		&o.RawPayload, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &o.Variants); err != nil {
			return nil, fmt.Errorf("decode variants: %w", err)
		}
	}
	if len(address) > 0 {
		o.Address = &domain.Address{}
		if err := json.Unmarshal(address, o.Address); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	return &o, nil
}

func marshalVariants(v map[string]string) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func marshalAddress(a *domain.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}
