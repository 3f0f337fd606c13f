package cmd

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/controller"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/repository"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/service"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/types"
	"github.com/vibast-solutions/ms-go-gateway-hub/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server with webhook ingestion, the payments API, the admin surface, and the polling scheduler.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, paymentRepo, gateways, cleanup := mustCreatePaymentService()
	defer cleanup()

	scheduler := service.NewPollingScheduler(paymentService, paymentRepo, gateways, cfg.Polling)
	paymentService.SetPollController(scheduler)

	rehydrateCtx, cancelRehydrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := scheduler.Rehydrate(rehydrateCtx); err != nil {
		cancelRehydrate()
		logrus.WithError(err).Fatal("Failed to rehydrate poll timers")
	}
	cancelRehydrate()

	paymentController := controller.NewPaymentController(paymentService)
	webhookController := controller.NewWebhookController(paymentService)
	adminController := controller.NewAdminController(paymentService, scheduler)

	e := setupHTTPServer(paymentController, webhookController, adminController, cfg.App.AdminAPIKey)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	paymentController *controller.PaymentController,
	webhookController *controller.WebhookController,
	adminController *controller.AdminController,
	adminAPIKey string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())

	e.GET("/health", paymentController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	payments := e.Group("/payments")
	payments.POST("", paymentController.CreatePayment)
	payments.GET("", paymentController.ListPayments)
	payments.GET("/:id", paymentController.GetPayment)

	webhooks := e.Group("/webhooks")
	webhooks.POST("/:gateway", webhookController.Receive)

	admin := e.Group("/admin", requireAPIKey(adminAPIKey))
	admin.GET("/poller/stats", adminController.PollerStats)
	admin.GET("/poller/timers/:paymentId", adminController.PollerTimer)
	admin.POST("/payments/:id/recheck", adminController.RecheckPayment)
	admin.GET("/shops/:shopId/payouts/eligibility", adminController.PayoutEligibility)

	return e
}

func requireAPIKey(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if apiKey == "" {
				return ctx.JSON(http.StatusForbidden, &types.ErrorResponse{Error: "admin api key is not configured"})
			}
			provided := strings.TrimSpace(ctx.Request().Header.Get("X-API-Key"))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid api key"})
			}
			return next(ctx)
		}
	}
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, *repository.PaymentRepository, *gateway.Registry, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	paymentRepo := repository.NewPaymentRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	auditRepo := repository.NewWebhookAuditRepository(db)
	settingsRepo := repository.NewShopSettingsRepository(db)

	gateways := gateway.NewRegistry(
		gateway.NewPlisioGateway(cfg.Gateways.Plisio),
		gateway.NewRapydGateway(cfg.Gateways.Rapyd),
		gateway.NewNodaGateway(cfg.Gateways.Noda),
		gateway.NewCoinToPayGateway(cfg.Gateways.CoinToPay),
		gateway.NewKlymeEUGateway(cfg.Gateways.KlymeEU),
		gateway.NewKlymeGBGateway(cfg.Gateways.KlymeGB),
		gateway.NewKlymeDEGateway(cfg.Gateways.KlymeDE),
	)

	paymentService := service.NewPaymentService(
		paymentRepo,
		eventRepo,
		auditRepo,
		settingsRepo,
		gateways,
		cfg.Payments,
		cfg.Polling,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, paymentRepo, gateways, cleanup
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	return nil
}
