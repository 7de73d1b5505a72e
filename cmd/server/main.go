package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-gateway/config"
	"payment-gateway/internal/api"
	"payment-gateway/internal/broker"
	"payment-gateway/internal/processor"
	"payment-gateway/internal/redisclient"
	"payment-gateway/internal/service"
	"payment-gateway/internal/util"
	"payment-gateway/internal/webhook"
	"payment-gateway/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "payment-gateway"

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting payment gateway")

	tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(producer)

	rzp := processor.NewRazorpayClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)

	services := api.Services{
		Orders: service.NewOrderService(rzp, cfg.Business.DefaultCurrency),
		Customers: service.NewCustomerResolver(rzp, redisClient, service.ResolverOptions{
			PageSize: cfg.Business.CustomerPageSize,
			MaxPages: cfg.Business.CustomerMaxPages,
			LockTTL:  cfg.Business.CustomerLockTTL,
			LockWait: cfg.Business.CustomerLockWait,
		}),
		Subscriptions: service.NewSubscriptionService(rzp, cfg.Business.DefaultCurrency),
		Verifier:      service.NewPaymentVerifier(rzp, []byte(cfg.Razorpay.KeySecret), eventPublisher, cfg.Business.VerifyLiveStatus),
		Webhooks:      webhook.NewIngestor([]byte(cfg.Razorpay.WebhookSecret), redisClient, eventPublisher, cfg.Business.WebhookDedupeWindow),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	eventConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup,
		cfg.Kafka.TopicDeadLetter, cfg.Kafka.MaxAttempts)
	webhookWorker := worker.NewWebhookWorker(eventConsumer)
	go func() {
		if err := webhookWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Webhook worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, redisClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := webhookWorker.Stop(); err != nil {
		logger.Error("Error stopping webhook worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
