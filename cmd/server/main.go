// Package main runs the course marketplace settlement server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/NgouanKoffi/fullmargin-sub007/config"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/auth"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/balances"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/courses"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/enrollments"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/gateway"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/middleware"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/notify"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/orders"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/payouts"
	"github.com/NgouanKoffi/fullmargin-sub007/internal/settlement"
	"github.com/NgouanKoffi/fullmargin-sub007/pkg/database"
	"github.com/NgouanKoffi/fullmargin-sub007/pkg/queue"
	"github.com/NgouanKoffi/fullmargin-sub007/pkg/redis"
	"github.com/NgouanKoffi/fullmargin-sub007/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Catalog
	courseRepo := courses.NewRepository(pool)
	courseHandler := courses.NewHandler(courseRepo)

	// Settlement engine
	orderRepo := orders.NewRepository(pool)
	enrollmentRepo := enrollments.NewRepository(pool)
	payoutRepo := payouts.NewRepository(pool)
	balanceRepo := balances.NewRepository(pool)
	balanceHandler := balances.NewHandler(balanceRepo)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifyRepo := notify.NewRepository(pool)
	notifier := notify.NewNotifier(notifyRepo, jobQueue, logger)

	gatewayClient := gateway.NewClient(cfg.Gateway.APIBaseURL, cfg.Gateway.SecretKey,
		time.Duration(cfg.Gateway.TimeoutSec)*time.Second, logger)

	ledger := settlement.NewLedger(payoutRepo, cfg.Platform.CommissionRatePercent, logger)
	settlementSvc := settlement.NewService(courseRepo, orderRepo, enrollmentRepo, ledger, gatewayClient, notifier,
		settlement.Config{
			SuccessURL:      cfg.Gateway.SuccessURL,
			CancelURL:       cfg.Gateway.CancelURL,
			DefaultCurrency: cfg.Platform.DefaultCurrency,
		}, logger)
	settlementHandler := settlement.NewHandler(settlementSvc, rdb.Client, cfg.Gateway.WebhookSecret, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Catalog (public)
	router.GET("/courses", courseHandler.List)
	router.GET("/courses/:id", courseHandler.GetByID)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/checkout", settlementHandler.StartCheckout)
		api.POST("/orders/refresh", settlementHandler.Refresh)
		api.GET("/orders", settlementHandler.ListMine)
		api.GET("/balance", balanceHandler.GetMine)

		// Manual settlement verdicts (back office)
		api.POST("/orders/:ref/confirm", middleware.RequireRole("admin"), settlementHandler.ConfirmManual)
	}

	// Webhooks (no JWT; signature validated in handler when configured)
	router.POST("/webhooks/gateway", settlementHandler.GatewayEvent)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
