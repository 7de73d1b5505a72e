package worker

import (
	"context"

	"payment-gateway/internal/broker"
	"payment-gateway/internal/models"
	"payment-gateway/internal/util"

	"go.uber.org/zap"
)

// Consumer is the part of broker.Consumer the worker drives
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// WebhookWorker consumes the payment event stream and records what the
// processor reports asynchronously.
type WebhookWorker struct {
	consumer     Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewWebhookWorker creates a new webhook worker
func NewWebhookWorker(consumer Consumer) *WebhookWorker {
	w := &WebhookWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnPayment(w.handlePayment)
	w.eventHandler.OnSubscription(w.handleSubscription)
	w.eventHandler.OnPaymentVerified(w.handlePaymentVerified)

	return w
}

// Start blocks until ctx ends or the consumer fails
func (w *WebhookWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting webhook worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *WebhookWorker) Stop() error {
	w.logger.Info("Stopping webhook worker")
	return w.consumer.Close()
}

func (w *WebhookWorker) handlePayment(_ context.Context, event string, p *models.Payment, o *models.Order) error {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("payment_id", p.ID),
		zap.String("status", p.Status),
		zap.Int64("amount", p.Amount),
		zap.String("currency", p.Currency),
	}
	if o != nil {
		fields = append(fields, zap.String("order_id", o.ID), zap.String("order_status", o.Status))
	} else if p.OrderID != "" {
		fields = append(fields, zap.String("order_id", p.OrderID))
	}

	switch event {
	case models.WebhookPaymentFailed:
		w.logger.Warn("Payment failed", fields...)
	case models.WebhookPaymentCaptured, models.WebhookOrderPaid:
		w.logger.Info("Payment settled", fields...)
	default:
		w.logger.Info("Payment update", fields...)
	}

	util.WebhookEventsTotal.WithLabelValues(event, "processed").Inc()
	return nil
}

func (w *WebhookWorker) handleSubscription(_ context.Context, event string, s *models.Subscription, p *models.Payment) error {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("subscription_id", s.ID),
		zap.String("status", s.Status),
		zap.String("plan_id", s.PlanID),
	}
	if p != nil {
		fields = append(fields, zap.String("payment_id", p.ID), zap.Int64("amount", p.Amount))
	}

	switch event {
	case models.WebhookSubscriptionHalted, models.WebhookSubscriptionCancelled:
		w.logger.Warn("Subscription stopped billing", fields...)
	default:
		w.logger.Info("Subscription update", fields...)
	}

	util.WebhookEventsTotal.WithLabelValues(event, "processed").Inc()
	return nil
}

func (w *WebhookWorker) handlePaymentVerified(_ context.Context, e *models.PaymentVerifiedEvent) error {
	w.logger.Info("Payment verification recorded",
		zap.String("type", e.EventType),
		zap.String("payment_id", e.PaymentID),
		zap.String("order_id", e.OrderID),
		zap.String("subscription_id", e.SubscriptionID),
		zap.String("status", e.Status))
	return nil
}
