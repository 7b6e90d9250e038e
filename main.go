package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-bot-service/config"
	"payment-bot-service/controllers"
	"payment-bot-service/database"
	"payment-bot-service/repository"
	"payment-bot-service/routes"
	"payment-bot-service/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg := config.Load()

	// --- Database ---
	if err := database.Connect(cfg.MongoURL, cfg.MongoDB); err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}
	logger.Info("Connected to MongoDB", zap.String("db", cfg.MongoDB))

	paymentRepo := repository.NewMongoPaymentRepository(database.DB)
	settingRepo := repository.NewMongoSettingRepository(database.DB)

	indexCtx, indexCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := paymentRepo.EnsureIndexes(indexCtx); err != nil {
		indexCancel()
		logger.Fatal("Index creation failed", zap.Error(err))
	}
	indexCancel()

	// --- Bot session + expiry sweeper ---
	bot := services.NewBotService(
		paymentRepo,
		settingRepo,
		services.NewBotAPISession,
		cfg.PaymentTTL,
		cfg.PollTimeoutSecs,
		logger,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	bot.Init(initCtx)
	initCancel()

	sweeper := services.NewExpirySweeper(paymentRepo, cfg.SweepInterval, logger)
	sweeper.Start()

	// --- HTTP router ---
	r := gin.New()
	r.Use(gin.Recovery())

	// Structured HTTP request logging
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	})

	// Request timeout middleware
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	// --- Dependency injection ---
	settingsController := controllers.NewSettingsController(settingRepo, bot, logger)
	paymentsController := controllers.NewPaymentsController(paymentRepo, logger)
	botController := controllers.NewBotController(settingRepo, bot, logger)
	messagesController := controllers.NewMessagesController(paymentRepo, bot, logger)

	routes.Register(r, settingsController, paymentsController, botController, messagesController)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	sweeper.Stop()
	bot.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	if err := database.Close(); err != nil {
		logger.Error("MongoDB disconnect failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
