package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentMethod is the configuration row behind one gateway code. The code is
// immutable after creation; rows are seeded once per registered gateway and
// edited by the external configuration UI.
type PaymentMethod struct {
	Code      string         `json:"code" gorm:"primaryKey;type:text"`
	Name      string         `json:"name" gorm:"type:text;not null"`
	Priority  int            `json:"priority" gorm:"not null;default:0"`
	Enabled   bool           `json:"enabled" gorm:"not null;default:false"`
	IsDefault bool           `json:"is_default" gorm:"not null;default:false"`
	Settings  datatypes.JSON `json:"settings" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

var (
	ErrNotFound      = errors.New("payment_method_not_found")
	ErrInvalidMethod = errors.New("invalid_payment_method")
)

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PaymentMethod, error)
	ListEnabled(ctx context.Context, db *gorm.DB) ([]PaymentMethod, error)
	// Insert creates the row only when the code is not present yet.
	Insert(ctx context.Context, db *gorm.DB, method *PaymentMethod) (bool, error)
	UpdateSettings(ctx context.Context, db *gorm.DB, code string, settings datatypes.JSON) error
	SetEnabled(ctx context.Context, db *gorm.DB, code string, enabled bool) error
	// SetDefault promotes one code and demotes all siblings in one transaction.
	SetDefault(ctx context.Context, db *gorm.DB, code string) error
}
