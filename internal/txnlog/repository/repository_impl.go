package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/txnlog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO transaction_logs (
			id, order_id, payment_code, payment_name, message, is_success,
			request, response, is_refundable, refunded_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrderID,
		entry.PaymentCode,
		entry.PaymentName,
		entry.Message,
		entry.IsSuccess,
		entry.Request,
		entry.Response,
		entry.IsRefundable,
		entry.RefundedAt,
		entry.CreatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Entry, error) {
	var item domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, payment_code, payment_name, message, is_success,
			request, response, is_refundable, refunded_at, created_at
		 FROM transaction_logs
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

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.Entry, error) {
	var items []domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, payment_code, payment_name, message, is_success,
			request, response, is_refundable, refunded_at, created_at
		 FROM transaction_logs
		 WHERE order_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkRefundProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, before, after domain.RefundCallback) error {
	entry, err := r.Find(ctx, db, id)
	if err != nil {
		return err
	}
	if entry.RefundedAt != nil {
		return domain.ErrAlreadyRefunded
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if before != nil {
			if err := before(ctx, entry); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		res := tx.Exec(
			`UPDATE transaction_logs
			 SET refunded_at = ?
			 WHERE id = ? AND refunded_at IS NULL`,
			now,
			id,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrAlreadyRefunded
		}
		entry.RefundedAt = &now
		return nil
	})
	if err != nil {
		return err
	}

	if after != nil {
		return after(ctx, entry)
	}
	return nil
}
