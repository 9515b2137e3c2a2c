package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is one attempt or event against an order's payment. Entries are
// append-only; the only permitted mutation is the single refunded_at stamp.
type Entry struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrderID      snowflake.ID   `json:"order_id" gorm:"not null;index"`
	PaymentCode  string         `json:"payment_code" gorm:"type:text;not null"`
	PaymentName  string         `json:"payment_name" gorm:"type:text;not null"`
	Message      string         `json:"message" gorm:"type:text;not null"`
	IsSuccess    bool           `json:"is_success" gorm:"not null;default:false"`
	Request      datatypes.JSON `json:"request" gorm:"type:jsonb"`
	Response     datatypes.JSON `json:"response" gorm:"type:jsonb"`
	IsRefundable bool           `json:"is_refundable" gorm:"not null;default:false"`
	RefundedAt   *time.Time     `json:"refunded_at"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null"`
}

func (Entry) TableName() string { return "transaction_logs" }

var (
	ErrNotFound        = errors.New("transaction_log_not_found")
	ErrAlreadyRefunded = errors.New("transaction_log_already_refunded")
)

// RefundCallback runs around the refunded_at stamp. Before-callbacks run
// inside the transaction prior to the write, after-callbacks after commit.
type RefundCallback func(ctx context.Context, entry *Entry) error

type Repository interface {
	Append(ctx context.Context, db *gorm.DB, entry *Entry) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Entry, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Entry, error)
	// MarkRefundProcessed stamps refunded_at once. A second call is a no-op
	// returning ErrAlreadyRefunded; callbacks do not run on the no-op path.
	MarkRefundProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, before, after RefundCallback) error
}
