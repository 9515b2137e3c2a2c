package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/profile/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const profileColumns = `id, customer_id, payment_code, provider_customer_id, provider_card_id,
	card_brand, card_last4, is_primary, created_at, updated_at`

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Profile, error) {
	var item domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT `+profileColumns+`
		 FROM payment_profiles
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

func (r *repo) FindByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, paymentCode string) (*domain.Profile, error) {
	var item domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT `+profileColumns+`
		 FROM payment_profiles
		 WHERE customer_id = ? AND payment_code = ?
		 LIMIT 1`,
		customerID,
		paymentCode,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.Profile, error) {
	var items []domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT `+profileColumns+`
		 FROM payment_profiles
		 WHERE customer_id = ?
		 ORDER BY is_primary DESC, created_at ASC`,
		customerID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, profile *domain.Profile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_profiles (
			id, customer_id, payment_code, provider_customer_id, provider_card_id,
			card_brand, card_last4, is_primary, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id, payment_code) DO UPDATE SET
			provider_customer_id = excluded.provider_customer_id,
			provider_card_id = excluded.provider_card_id,
			card_brand = excluded.card_brand,
			card_last4 = excluded.card_last4,
			updated_at = excluded.updated_at`,
		profile.ID,
		profile.CustomerID,
		profile.PaymentCode,
		profile.ProviderCustomerID,
		profile.ProviderCardID,
		profile.CardBrand,
		profile.CardLast4,
		profile.IsPrimary,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM payment_profiles WHERE id = ?`,
		id,
	).Error
}

func (r *repo) MakePrimary(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := r.Find(ctx, tx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Exec(
			`UPDATE payment_profiles
			 SET is_primary = FALSE, updated_at = ?
			 WHERE customer_id = ? AND id <> ? AND is_primary = TRUE`,
			now,
			target.CustomerID,
			id,
		).Error; err != nil {
			return err
		}
		return tx.Exec(
			`UPDATE payment_profiles
			 SET is_primary = TRUE, updated_at = ?
			 WHERE id = ?`,
			now,
			id,
		).Error
	})
}
