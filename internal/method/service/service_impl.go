package service

import (
	"context"
	"errors"

	gatewaydomain "github.com/smallbiznis/payway/internal/gateway/domain"
	"github.com/smallbiznis/payway/internal/method/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service exposes payment method management on top of the repository and
// feeds the gateway registry with resolved configurations.
type Service interface {
	gatewaydomain.MethodSource

	List(ctx context.Context) ([]domain.PaymentMethod, error)
	Get(ctx context.Context, code string) (*domain.PaymentMethod, error)
	UpdateSettings(ctx context.Context, code string, settings datatypes.JSON) error
	SetEnabled(ctx context.Context, code string, enabled bool) error
	SetDefault(ctx context.Context, code string) error
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Methods domain.Repository
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	methods domain.Repository
}

func New(p Params) Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("method.service"),
		methods: p.Methods,
	}
}

func (s *service) List(ctx context.Context) ([]domain.PaymentMethod, error) {
	return s.methods.ListEnabled(ctx, s.db)
}

func (s *service) Get(ctx context.Context, code string) (*domain.PaymentMethod, error) {
	return s.methods.FindByCode(ctx, s.db, code)
}

func (s *service) UpdateSettings(ctx context.Context, code string, settings datatypes.JSON) error {
	if _, err := gatewaydomain.ParseSettings(settings); err != nil {
		return domain.ErrInvalidMethod
	}
	return s.methods.UpdateSettings(ctx, s.db, code, settings)
}

func (s *service) SetEnabled(ctx context.Context, code string, enabled bool) error {
	return s.methods.SetEnabled(ctx, s.db, code, enabled)
}

func (s *service) SetDefault(ctx context.Context, code string) error {
	return s.methods.SetDefault(ctx, s.db, code)
}

// Enabled resolves the configured payment methods in priority order. Rows
// with an unreadable settings blob are skipped rather than failing dispatch.
func (s *service) Enabled(ctx context.Context) ([]gatewaydomain.Config, error) {
	rows, err := s.methods.ListEnabled(ctx, s.db)
	if err != nil {
		return nil, err
	}
	configs := make([]gatewaydomain.Config, 0, len(rows))
	for _, row := range rows {
		cfg, err := toConfig(row)
		if err != nil {
			s.log.Warn("skipping payment method with invalid settings",
				zap.String("code", row.Code),
				zap.Error(err),
			)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (s *service) ByCode(ctx context.Context, code string) (*gatewaydomain.Config, error) {
	row, err := s.methods.FindByCode(ctx, s.db, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, gatewaydomain.ErrGatewayNotFound
	}
	if err != nil {
		return nil, err
	}
	if !row.Enabled {
		return nil, gatewaydomain.ErrGatewayNotFound
	}
	cfg, err := toConfig(*row)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func toConfig(row domain.PaymentMethod) (gatewaydomain.Config, error) {
	settings, err := gatewaydomain.ParseSettings(row.Settings)
	if err != nil {
		return gatewaydomain.Config{}, err
	}
	return gatewaydomain.Config{
		Code:     row.Code,
		Name:     row.Name,
		Settings: settings,
	}, nil
}
