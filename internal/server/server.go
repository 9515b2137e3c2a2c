package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	checkoutdomain "github.com/smallbiznis/payway/internal/checkout/domain"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/gateway/registry"
	methodservice "github.com/smallbiznis/payway/internal/method/service"
	"github.com/smallbiznis/payway/internal/observability"
	obsmiddleware "github.com/smallbiznis/payway/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Server carries the handler dependencies and owns route registration.
type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	checkoutSvc checkoutdomain.Service
	methodSvc   methodservice.Service
	registry    *registry.Registry
}

type Params struct {
	fx.In

	Engine      *gin.Engine
	Config      config.Config
	Log         *zap.Logger
	CheckoutSvc checkoutdomain.Service
	MethodSvc   methodservice.Service
	Registry    *registry.Registry
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:      p.Engine,
		cfg:         p.Config,
		log:         p.Log.Named("server"),
		checkoutSvc: p.CheckoutSvc,
		methodSvc:   p.MethodSvc,
		registry:    p.Registry,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1")
	{
		api.POST("/orders/:order_id/payment", s.ProcessPayment)
		api.POST("/orders/:order_id/payment/profile", s.PayFromProfile)
		api.POST("/orders/:order_id/status", s.OrderStatusChanged)
		api.GET("/orders/:order_id/transactions", s.ListTransactions)

		api.POST("/transactions/:id/refund", s.Refund)
		api.POST("/transactions/:id/capture", s.Capture)
		api.POST("/transactions/:id/void", s.CancelAuthorization)

		api.GET("/payment-methods", s.ListPaymentMethods)
		api.GET("/payment-methods/:code", s.GetPaymentMethod)
		api.PUT("/payment-methods/:code/settings", s.UpdateMethodSettings)
		api.POST("/payment-methods/:code/enable", s.EnableMethod)
		api.POST("/payment-methods/:code/disable", s.DisableMethod)
		api.POST("/payment-methods/:code/default", s.SetDefaultMethod)

		api.GET("/customers/:customer_id/profiles", s.ListProfiles)
		api.PUT("/customers/:customer_id/profiles/:code", s.UpdateProfile)
		api.DELETE("/customers/:customer_id/profiles/:code", s.DeleteProfile)
		api.POST("/customers/:customer_id/profiles/:code/primary", s.MakePrimaryProfile)
	}

	// Provider callbacks: redirect returns and server-to-server notifies.
	s.engine.Any("/payments/:entry_point/*rest", s.RunEntryPoint)
	s.engine.POST("/webhooks/:code", s.HandleWebhook)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
