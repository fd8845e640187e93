package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whattoeat/kitchenbot/docs"
	"github.com/whattoeat/kitchenbot/internal/app/api/handlers"
	mw "github.com/whattoeat/kitchenbot/internal/app/api/middleware"
	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/app/service/expiry_sweep"
	"github.com/whattoeat/kitchenbot/internal/app/service/kitchen"
	nh "github.com/whattoeat/kitchenbot/internal/app/service/notification_handler"
	notificationlog "github.com/whattoeat/kitchenbot/internal/app/service/notification_log"
	"github.com/whattoeat/kitchenbot/internal/app/service/payment"
	"github.com/whattoeat/kitchenbot/internal/app/service/statistics"
	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	cfgpkg "github.com/whattoeat/kitchenbot/pkg/config"
	metrics "github.com/whattoeat/kitchenbot/pkg/metrics"
)

// Deps is everything the HTTP surface talks to.
type Deps struct {
	fx.In

	Log           *zap.SugaredLogger
	Cfg           *cfgpkg.Config
	DB            *gorm.DB
	Accounts      *account.Service
	Usage         *usage.Service
	Kitchen       *kitchen.Service
	Payments      *payment.Service
	Webhooks      *nh.NotificationHandler
	Notifications *notificationlog.Service
	Grants        *entitlement.Service
	Sweep         *expiry_sweep.Scheduler
	Stats         *statistics.Service
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// request logger & access log are attached per group in RegisterRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

// enableMetrics records HTTP metrics on r and serves them, with the business
// collectors, on a separate listener at cfg.MetricsAddr.
func enableMetrics(lc fx.Lifecycle, r *gin.Engine, log *zap.SugaredLogger, cfg *cfgpkg.Config) error {
	if cfg.MetricsAddr == "" {
		return nil
	}
	p, err := metrics.NewPrometheus(metrics.NewPrometheusOptions{})
	if err != nil {
		return err
	}
	r.Use(p.Middleware())

	mux := http.NewServeMux()
	mux.Handle(metrics.DefaultMetricsPath, p.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("metrics server stopped", "error", err)
				}
			}()
			log.Infow("metrics started", "addr", cfg.MetricsAddr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return nil
}

// RegisterRoutes mounts the public, bot and admin groups on r.
func RegisterRoutes(r *gin.Engine, d Deps) {
	logged := []gin.HandlerFunc{mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware()}

	pub := r.Group("/", logged...)
	handlers.RegisterHealthRoutes(pub, d.DB)
	handlers.RegisterPaymentWebhookRoutes(pub, d.Webhooks)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	secret := d.Cfg.Auth.JWTSecret
	bot := r.Group("/api/v1", append(logged, mw.AuthMiddleware(secret, mw.RoleBot, mw.RoleAdmin))...)
	handlers.RegisterUserRoutes(bot, d.Accounts, d.Cfg)
	handlers.RegisterGatedRoutes(bot, d.Usage)
	handlers.RegisterKitchenRoutes(bot, d.Kitchen)
	handlers.RegisterPaymentRoutes(bot, d.Payments)

	admin := r.Group("/api/v1/admin", append(logged, mw.AuthMiddleware(secret, mw.RoleAdmin))...)
	handlers.RegisterAdminRoutes(admin, handlers.AdminDeps{
		Grants:        d.Grants,
		Sweep:         d.Sweep,
		Payments:      d.Payments,
		Notifications: d.Notifications,
		Stats:         d.Stats,
	})
}

func registerRoutes(lc fx.Lifecycle, r *gin.Engine, d Deps) error {
	// middleware must be attached before any route is registered
	if err := enableMetrics(lc, r, d.Log, d.Cfg); err != nil {
		return err
	}
	if d.Cfg.Auth.JWTSecret == "" {
		d.Log.Warnw("auth.jwt_secret is empty: /api/v1 rejects every request")
	}
	RegisterRoutes(r, d)
	return nil
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
