package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, order_total, currency, payment_code, status,
			is_payment_processed, created_at, updated_at
		 FROM orders
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

// CompletePayment is the single guarded transition into a processed order.
// The WHERE clause makes the check-then-set atomic on every supported
// dialect, so concurrent triggers cannot both observe an unset flag.
func (r *repo) CompletePayment(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, is_payment_processed = TRUE, updated_at = ?
		 WHERE id = ? AND is_payment_processed = FALSE`,
		status,
		time.Now().UTC(),
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Find(ctx, db, id); err != nil {
			return err
		}
		return domain.ErrAlreadyProcessed
	}
	return nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
