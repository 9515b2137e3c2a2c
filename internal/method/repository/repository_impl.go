package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/payway/internal/method/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const methodColumns = `code, name, priority, enabled, is_default, settings, created_at, updated_at`

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.PaymentMethod, error) {
	var item domain.PaymentMethod
	err := db.WithContext(ctx).Raw(
		`SELECT `+methodColumns+`
		 FROM payment_methods
		 WHERE code = ?
		 LIMIT 1`,
		code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.Code == "" {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) ListEnabled(ctx context.Context, db *gorm.DB) ([]domain.PaymentMethod, error) {
	var items []domain.PaymentMethod
	err := db.WithContext(ctx).Raw(
		`SELECT ` + methodColumns + `
		 FROM payment_methods
		 WHERE enabled = TRUE
		 ORDER BY priority ASC, code ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, method *domain.PaymentMethod) (bool, error) {
	now := time.Now().UTC()
	if method.CreatedAt.IsZero() {
		method.CreatedAt = now
	}
	method.UpdatedAt = now
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_methods (
			code, name, priority, enabled, is_default, settings, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO NOTHING`,
		method.Code,
		method.Name,
		method.Priority,
		method.Enabled,
		method.IsDefault,
		method.Settings,
		method.CreatedAt,
		method.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateSettings(ctx context.Context, db *gorm.DB, code string, settings datatypes.JSON) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_methods
		 SET settings = ?, updated_at = ?
		 WHERE code = ?`,
		settings,
		time.Now().UTC(),
		code,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) SetEnabled(ctx context.Context, db *gorm.DB, code string, enabled bool) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_methods
		 SET enabled = ?, updated_at = ?
		 WHERE code = ?`,
		enabled,
		time.Now().UTC(),
		code,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) SetDefault(ctx context.Context, db *gorm.DB, code string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Exec(
			`UPDATE payment_methods
			 SET is_default = TRUE, updated_at = ?
			 WHERE code = ?`,
			now,
			code,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return tx.Exec(
			`UPDATE payment_methods
			 SET is_default = FALSE, updated_at = ?
			 WHERE code <> ? AND is_default = TRUE`,
			now,
			code,
		).Error
	})
}
