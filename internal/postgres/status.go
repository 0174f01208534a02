package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/madronelabs/formpay/internal/domain"
)

const statusColumns = `id, name, handle, color, sort_order, is_default,
	created_at, updated_at`

func (db *DB) CreateStatus(ctx context.Context, status *domain.OrderStatus) error {
	err := db.q(ctx).QueryRow(ctx, `
		INSERT INTO order_statuses (name, handle, color, sort_order, is_default)
		VALUES ($1, $2, $3,
			CASE WHEN $4 > 0 THEN $4
			     ELSE (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM order_statuses)
			END,
			$5)
		RETURNING id, sort_order, created_at, updated_at`,
		status.Name, status.Handle, status.Color, status.SortOrder, status.IsDefault,
	).Scan(&status.ID, &status.SortOrder, &status.CreatedAt, &status.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("status.create", "a status with this handle already exists")
		}
		return domain.Internal(err, "status.create", "failed to insert status")
	}
	return nil
}

func (db *DB) UpdateStatus(ctx context.Context, status *domain.OrderStatus) error {
	tag, err := db.q(ctx).Exec(ctx, `
		UPDATE order_statuses SET
			name = $2, handle = $3, color = $4, sort_order = $5,
			is_default = $6, updated_at = now()
		WHERE id = $1`,
		status.ID, status.Name, status.Handle, status.Color,
		status.SortOrder, status.IsDefault,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("status.update", "a status with this handle already exists")
		}
		return domain.Internal(err, "status.update", "failed to update status")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStatusNotFound
	}
	return nil
}

func (db *DB) GetStatusByID(ctx context.Context, id int64) (*domain.OrderStatus, error) {
	return db.getStatus(ctx, "status.get", `WHERE id = $1`, id)
}

func (db *DB) GetStatusByHandle(ctx context.Context, handle string) (*domain.OrderStatus, error) {
	return db.getStatus(ctx, "status.get_by_handle", `WHERE handle = $1`, handle)
}

// GetDefaultStatus returns the status flagged default.
func (db *DB) GetDefaultStatus(ctx context.Context) (*domain.OrderStatus, error) {
	return db.getStatus(ctx, "status.get_default", `WHERE is_default ORDER BY sort_order LIMIT 1`)
}

func (db *DB) getStatus(ctx context.Context, op, where string, args ...any) (*domain.OrderStatus, error) {
	row := db.q(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM order_statuses %s`, statusColumns, where), args...)

	var st domain.OrderStatus
	err := row.Scan(&st.ID, &st.Name, &st.Handle, &st.Color, &st.SortOrder,
		&st.IsDefault, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStatusNotFound
		}
		return nil, domain.Internal(err, op, "failed to get status")
	}
	return &st, nil
}

// ListStatuses returns the catalogue in sort order.
func (db *DB) ListStatuses(ctx context.Context) ([]*domain.OrderStatus, error) {
	rows, err := db.q(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM order_statuses ORDER BY sort_order, id`, statusColumns))
	if err != nil {
		return nil, domain.Internal(err, "status.list", "failed to list statuses")
	}
	defer rows.Close()

	var out []*domain.OrderStatus
	for rows.Next() {
		var st domain.OrderStatus
		err := rows.Scan(&st.ID, &st.Name, &st.Handle, &st.Color,
			&st.SortOrder, &st.IsDefault, &st.CreatedAt, &st.UpdatedAt)
		if err != nil {
			return nil, domain.Internal(err, "status.list", "failed to scan status")
		}
		out = append(out, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "status.list", "failed to read status rows")
	}
	return out, nil
}

// ClearDefaultExcept unsets the default flag on every other status.
func (db *DB) ClearDefaultExcept(ctx context.Context, id int64) error {
	_, err := db.q(ctx).Exec(ctx, `
		UPDATE order_statuses SET is_default = false, updated_at = now()
		WHERE is_default AND id <> $1`, id)
	if err != nil {
		return domain.Internal(err, "status.clear_default", "failed to clear default flags")
	}
	return nil
}

// ReorderStatuses rewrites sort positions to match the given ID order.
func (db *DB) ReorderStatuses(ctx context.Context, ids []int64) error {
	for pos, id := range ids {
		tag, err := db.q(ctx).Exec(ctx, `
			UPDATE order_statuses SET sort_order = $2, updated_at = now()
			WHERE id = $1`, id, pos+1)
		if err != nil {
			return domain.Internal(err, "status.reorder", "failed to reorder statuses")
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrStatusNotFound
		}
	}
	return nil
}

func (db *DB) DeleteStatus(ctx context.Context, id int64) error {
	tag, err := db.q(ctx).Exec(ctx, `DELETE FROM order_statuses WHERE id = $1`, id)
	if err != nil {
		return domain.Internal(err, "status.delete", "failed to delete status")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStatusNotFound
	}
	return nil
}

func (db *DB) CountStatuses(ctx context.Context) (int, error) {
	var n int
	err := db.q(ctx).QueryRow(ctx, `SELECT count(*) FROM order_statuses`).Scan(&n)
	if err != nil {
		return 0, domain.Internal(err, "status.count", "failed to count statuses")
	}
	return n, nil
}
