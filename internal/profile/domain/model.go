package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Profile is a customer's stored, tokenized payment instrument for one
// payment method. Provider references are opaque provider-side tokens.
type Profile struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	CustomerID         snowflake.ID `json:"customer_id" gorm:"not null;uniqueIndex:ux_payment_profiles_customer_code,priority:1"`
	PaymentCode        string       `json:"payment_code" gorm:"type:text;not null;uniqueIndex:ux_payment_profiles_customer_code,priority:2"`
	ProviderCustomerID string       `json:"provider_customer_id" gorm:"type:text"`
	ProviderCardID     string       `json:"provider_card_id" gorm:"type:text"`
	CardBrand          string       `json:"card_brand" gorm:"type:text"`
	CardLast4          string       `json:"card_last4" gorm:"type:text"`
	IsPrimary          bool         `json:"is_primary" gorm:"not null;default:false"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (Profile) TableName() string { return "payment_profiles" }

var ErrNotFound = errors.New("payment_profile_not_found")

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Profile, error)
	FindByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, paymentCode string) (*Profile, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]Profile, error)
	Upsert(ctx context.Context, db *gorm.DB, profile *Profile) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// MakePrimary promotes one profile and demotes all of the customer's
	// sibling profiles inside one transaction.
	MakePrimary(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
