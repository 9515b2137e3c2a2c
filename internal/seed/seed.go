package seed

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/smallbiznis/payway/internal/gateway/registry"
	methoddomain "github.com/smallbiznis/payway/internal/method/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// codCode gets enabled and promoted to default on first boot so a fresh
// install can take orders before any provider is configured.
const codCode = "cod"

var defaultSettings = datatypes.JSON([]byte(`{"transaction_mode":"test"}`))

// SyncPaymentMethods creates one payment_methods row per registered gateway.
// Existing rows are never touched; operator edits survive restarts.
func SyncPaymentMethods(db *gorm.DB, reg *registry.Registry, methods methoddomain.Repository, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	gateways := reg.ListGateways()
	sort.Slice(gateways, func(i, j int) bool {
		return gateways[i].Code() < gateways[j].Code()
	})

	ctx := context.Background()
	now := time.Now().UTC()

	for i, gw := range gateways {
		method := &methoddomain.PaymentMethod{
			Code:      gw.Code(),
			Name:      gw.Name(),
			Priority:  (i + 1) * 10,
			Enabled:   gw.Code() == codCode,
			IsDefault: gw.Code() == codCode,
			Settings:  defaultSettings,
			CreatedAt: now,
			UpdatedAt: now,
		}

		created, err := methods.Insert(ctx, db, method)
		if err != nil {
			return err
		}
		if created {
			log.Info("seeded payment method",
				zap.String("code", method.Code),
				zap.Bool("enabled", method.Enabled),
			)
		}
	}
	return nil
}
