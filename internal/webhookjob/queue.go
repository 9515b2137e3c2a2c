package webhookjob

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	checkoutdomain "github.com/smallbiznis/payway/internal/checkout/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queueKey = "payway:webhook_jobs"

// Record is the durable audit row behind one queued webhook delivery. The
// redis list drives the worker; the row survives it.
type Record struct {
	ID          string     `json:"id" gorm:"primaryKey;type:text"`
	PaymentCode string     `json:"payment_code" gorm:"type:text;not null"`
	Payload     []byte     `json:"payload" gorm:"not null"`
	Status      string     `json:"status" gorm:"type:text;not null"`
	Error       string     `json:"error" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null"`
	ProcessedAt *time.Time `json:"processed_at"`
}

func (Record) TableName() string { return "webhook_jobs" }

const (
	StatusQueued    = "queued"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

var ErrQueueUnavailable = errors.New("webhook_queue_unavailable")

// Queue pushes verified webhook payloads onto a redis list for the worker.
type Queue struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.Logger
}

func NewQueue(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *Queue {
	return &Queue{
		db:  db,
		rdb: rdb,
		log: log.Named("webhookjob.queue"),
	}
}

func (q *Queue) Enqueue(ctx context.Context, job checkoutdomain.WebhookJob) error {
	if q.rdb == nil {
		return ErrQueueUnavailable
	}

	record := Record{
		ID:          job.ID,
		PaymentCode: job.PaymentCode,
		Payload:     job.Payload,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := q.db.WithContext(ctx).Exec(
		`INSERT INTO webhook_jobs (id, payment_code, payload, status, error, created_at)
		 VALUES (?, ?, ?, ?, '', ?)`,
		record.ID, record.PaymentCode, record.Payload, record.Status, record.CreatedAt,
	).Error; err != nil {
		return err
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, queueKey, raw).Err(); err != nil {
		q.log.Warn("failed to push webhook job", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}
