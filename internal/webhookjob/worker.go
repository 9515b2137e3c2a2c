package webhookjob

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	checkoutdomain "github.com/smallbiznis/payway/internal/checkout/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Worker drains the webhook job list and applies each payload through the
// checkout service. One worker per process is enough; redis BRPOP spreads
// jobs across processes.
type Worker struct {
	db     *gorm.DB
	rdb    *redis.Client
	log    *zap.Logger
	svc    checkoutdomain.Service
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(db *gorm.DB, rdb *redis.Client, log *zap.Logger, svc checkoutdomain.Service) *Worker {
	return &Worker{
		db:  db,
		rdb: rdb,
		log: log.Named("webhookjob.worker"),
		svc: svc,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(runCtx)
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
	case <-ctx.Done():
	}
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		if ctx.Err() != nil {
			return
		}
		result, err := w.rdb.BRPop(ctx, 5*time.Second, queueKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("queue poll failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		// BRPop returns [key, value].
		if len(result) != 2 {
			continue
		}
		w.handle(ctx, []byte(result[1]))
	}
}

func (w *Worker) handle(ctx context.Context, raw []byte) {
	var job checkoutdomain.WebhookJob
	if err := json.Unmarshal(raw, &job); err != nil {
		w.log.Error("dropping unreadable webhook job", zap.Error(err))
		return
	}

	err := w.svc.ProcessWebhookJob(ctx, job)
	status := StatusProcessed
	errText := ""
	if err != nil {
		status = StatusFailed
		errText = err.Error()
		w.log.Warn("webhook job failed",
			zap.String("job_id", job.ID),
			zap.String("gateway", job.PaymentCode),
			zap.Error(err),
		)
	}
	if dbErr := w.db.WithContext(ctx).Exec(
		`UPDATE webhook_jobs
		 SET status = ?, error = ?, processed_at = ?
		 WHERE id = ?`,
		status, errText, time.Now().UTC(), job.ID,
	).Error; dbErr != nil {
		w.log.Error("failed to update webhook job record",
			zap.String("job_id", job.ID),
			zap.Error(dbErr),
		)
	}
}
