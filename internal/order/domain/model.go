package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Order is the payment view of an order. The orchestration layer owns only the
// payment-processed flag and status transitions; everything else on the row is
// maintained by the order-management application.
type Order struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	CustomerID         snowflake.ID `json:"customer_id" gorm:"not null;index"`
	OrderTotal         int64        `json:"order_total" gorm:"not null"`
	Currency           string       `json:"currency" gorm:"type:text;not null"`
	PaymentCode        string       `json:"payment_code" gorm:"type:text;not null;index"`
	Status             string       `json:"status" gorm:"type:text;not null"`
	IsPaymentProcessed bool         `json:"is_payment_processed" gorm:"not null;default:false"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusOnHold     = "on_hold"
	StatusCanceled   = "canceled"
	StatusRefunded   = "refunded"
)

var (
	ErrNotFound         = errors.New("order_not_found")
	ErrAlreadyProcessed = errors.New("order_already_processed")
)

// Repository persists orders. CompletePayment must be an atomic
// check-then-set: exactly one caller may flip the processed flag.
type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// CompletePayment sets the order status and the payment-processed flag in
	// one guarded write. Returns ErrAlreadyProcessed when another trigger won.
	CompletePayment(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error
}
