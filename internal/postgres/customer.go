package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/madronelabs/formpay/internal/domain"
)

// GetCustomerByEmail looks up the cache entry for (email, testMode).
func (db *DB) GetCustomerByEmail(ctx context.Context, email string, testMode bool) (*domain.Customer, error) {
	var c domain.Customer
	err := db.q(ctx).QueryRow(ctx, `
		SELECT id, email, stripe_customer_id, test_mode, created_at
		FROM customers
		WHERE email = $1 AND test_mode = $2`,
		email, testMode,
	).Scan(&c.ID, &c.Email, &c.StripeCustomerID, &c.TestMode, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, domain.Internal(err, "customer.get_by_email", "failed to get customer")
	}
	return &c, nil
}

func (db *DB) CreateCustomer(ctx context.Context, customer *domain.Customer) error {
	err := db.q(ctx).QueryRow(ctx, `
		INSERT INTO customers (email, stripe_customer_id, test_mode)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		customer.Email, customer.StripeCustomerID, customer.TestMode,
	).Scan(&customer.ID, &customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Errorf(domain.ECONFLICT, "customer.create", "customer already cached for this email")
		}
		return domain.Internal(err, "customer.create", "failed to insert customer")
	}
	return nil
}

func (db *DB) UpdateCustomer(ctx context.Context, customer *domain.Customer) error {
	tag, err := db.q(ctx).Exec(ctx, `
		UPDATE customers
		SET email = $2, stripe_customer_id = $3, test_mode = $4
		WHERE id = $1`,
		customer.ID, customer.Email, customer.StripeCustomerID, customer.TestMode,
	)
	if err != nil {
		return domain.Internal(err, "customer.update", "failed to update customer")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}

func (db *DB) DeleteCustomer(ctx context.Context, id int64) error {
	tag, err := db.q(ctx).Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return domain.Internal(err, "customer.delete", "failed to delete customer")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCustomerNotFound
	}
	return nil
}
