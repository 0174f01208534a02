package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/madronelabs/formpay/internal/domain"
)

const formColumns = `id, handle, name, company_name, currency, amount_cents,
	amount_type, enable_subscriptions, subscription_type, single_plan_id,
	single_plan_setup_fee_cents, plans, custom_plan_interval,
	custom_plan_interval_count, enable_recurring_payment,
	has_unlimited_stock, quantity, customer_template_override,
	admin_template_override, created_at, updated_at`

// GetFormByHandle resolves a form by its submission handle.
func (db *DB) GetFormByHandle(ctx context.Context, handle string) (*domain.PaymentForm, error) {
	return db.getForm(ctx, "form.get_by_handle", `WHERE handle = $1`, handle)
}

func (db *DB) GetFormByID(ctx context.Context, id int64) (*domain.PaymentForm, error) {
	return db.getForm(ctx, "form.get", `WHERE id = $1`, id)
}

func (db *DB) getForm(ctx context.Context, op, where string, arg any) (*domain.PaymentForm, error) {
	row := db.q(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM payment_forms %s`, formColumns, where), arg)

	form, err := scanForm(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFormNotFound
		}
		return nil, domain.Internal(err, op, "failed to get payment form")
	}
	return form, nil
}

func (db *DB) CreateForm(ctx context.Context, form *domain.PaymentForm) error {
	plans, err := marshalPlans(form.Plans)
	if err != nil {
		return domain.Internal(err, "form.create", "failed to encode plans")
	}

	err = db.q(ctx).QueryRow(ctx, `
		INSERT INTO payment_forms (handle, name, company_name, currency,
			amount_cents, amount_type, enable_subscriptions,
			subscription_type, single_plan_id, single_plan_setup_fee_cents,
			plans, custom_plan_interval, custom_plan_interval_count,
			enable_recurring_payment, has_unlimited_stock, quantity,
			customer_template_override, admin_template_override)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at`,
		form.Handle, form.Name, form.CompanyName, form.Currency,
		form.AmountCents, form.AmountType, form.EnableSubscriptions,
		form.SubscriptionType, form.SinglePlanID,
		form.SinglePlanSetupFeeCents, plans, form.CustomPlanInterval,
		form.CustomPlanIntervalCount, form.EnableRecurringPayment,
		form.HasUnlimitedStock, form.Quantity,
		form.CustomerTemplateOverride, form.AdminTemplateOverride,
	).Scan(&form.ID, &form.CreatedAt, &form.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("form.create", "a form with this handle already exists")
		}
		return domain.Internal(err, "form.create", "failed to insert payment form")
	}
	return nil
}

// UpdateForm writes back form state, including the stock counter.
func (db *DB) UpdateForm(ctx context.Context, form *domain.PaymentForm) error {
	plans, err := marshalPlans(form.Plans)
	if err != nil {
		return domain.Internal(err, "form.update", "failed to encode plans")
	}

	tag, err := db.q(ctx).Exec(ctx, `
		UPDATE payment_forms SET
			handle = $2, name = $3, company_name = $4, currency = $5,
			amount_cents = $6, amount_type = $7,
			enable_subscriptions = $8, subscription_type = $9,
			single_plan_id = $10, single_plan_setup_fee_cents = $11,
			plans = $12, custom_plan_interval = $13,
			custom_plan_interval_count = $14,
			enable_recurring_payment = $15, has_unlimited_stock = $16,
			quantity = $17, customer_template_override = $18,
			admin_template_override = $19, updated_at = now()
		WHERE id = $1`,
		form.ID, form.Handle, form.Name, form.CompanyName, form.Currency,
		form.AmountCents, form.AmountType, form.EnableSubscriptions,
		form.SubscriptionType, form.SinglePlanID,
		form.SinglePlanSetupFeeCents, plans, form.CustomPlanInterval,
		form.CustomPlanIntervalCount, form.EnableRecurringPayment,
		form.HasUnlimitedStock, form.Quantity,
		form.CustomerTemplateOverride, form.AdminTemplateOverride,
	)
	if err != nil {
		return domain.Internal(err, "form.update", "failed to update payment form")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFormNotFound
	}
	return nil
}

func scanForm(row pgx.Row) (*domain.PaymentForm, error) {
	var (
		f     domain.PaymentForm
		plans []byte
	)
	err := row.Scan(
		&f.ID, &f.Handle, &f.Name, &f.CompanyName, &f.Currency,
		&f.AmountCents, &f.AmountType, &f.EnableSubscriptions,
		&f.SubscriptionType, &f.SinglePlanID, &f.SinglePlanSetupFeeCents,
		&plans, &f.CustomPlanInterval, &f.CustomPlanIntervalCount,
		&f.EnableRecurringPayment, &f.HasUnlimitedStock, &f.Quantity,
		&f.CustomerTemplateOverride, &f.AdminTemplateOverride,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if err := json.Unmarshal(plans, &f.Plans); err != nil {
			return nil, fmt.Errorf("decode plans: %w", err)
		}
	}
	return &f, nil
}

func marshalPlans(plans []domain.FormPlan) ([]byte, error) {
	if len(plans) == 0 {
		return nil, nil
	}
	return json.Marshal(plans)
}
