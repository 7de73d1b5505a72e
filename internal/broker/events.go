package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"payment-gateway/internal/models"
	"payment-gateway/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type eventProducer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing payment events
type EventPublisher struct {
	producer eventProducer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPaymentVerified publishes a verified completion notice
func (ep *EventPublisher) PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error {
	return ep.producer.PublishEvent(ctx, "payment-"+event.PaymentID, event)
}

// PublishWebhookEvent publishes a signature-checked webhook delivery, keyed by
// the entity it concerns so one subscription's events stay ordered.
func (ep *EventPublisher) PublishWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return ep.producer.PublishEvent(ctx, WebhookKey(event), event)
}

// WebhookKey picks the partition key for a webhook: subscription, then order,
// then payment id, falling back to the delivery id.
func WebhookKey(event *models.WebhookEvent) string {
	var p models.WebhookPayload
	if len(event.Payload) > 0 && json.Unmarshal(event.Payload, &p) == nil {
		switch {
		case p.Subscription != nil && p.Subscription.Entity.ID != "":
			return "subscription-" + p.Subscription.Entity.ID
		case p.Order != nil && p.Order.Entity.ID != "":
			return "order-" + p.Order.Entity.ID
		case p.Payment != nil && p.Payment.Entity.OrderID != "":
			return "order-" + p.Payment.Entity.OrderID
		case p.Payment != nil && p.Payment.Entity.ID != "":
			return "payment-" + p.Payment.Entity.ID
		}
	}
	return "webhook-" + event.DeliveryID
}

// PaymentHandler receives payment.* and order.paid webhooks. order is nil
// unless the delivery carried one.
type PaymentHandler func(ctx context.Context, event string, payment *models.Payment, order *models.Order) error

// SubscriptionHandler receives subscription.* webhooks. payment is nil unless
// the delivery carried one.
type SubscriptionHandler func(ctx context.Context, event string, sub *models.Subscription, payment *models.Payment) error

// EventHandler routes consumed events to registered handlers
type EventHandler struct {
	onPaymentVerified func(context.Context, *models.PaymentVerifiedEvent) error
	onPayment         PaymentHandler
	onSubscription    SubscriptionHandler
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPaymentVerified registers a handler for verified completion notices
func (eh *EventHandler) OnPaymentVerified(handler func(context.Context, *models.PaymentVerifiedEvent) error) {
	eh.onPaymentVerified = handler
}

// OnPayment registers a handler for payment webhooks
func (eh *EventHandler) OnPayment(handler PaymentHandler) {
	eh.onPayment = handler
}

// OnSubscription registers a handler for subscription webhooks
func (eh *EventHandler) OnSubscription(handler SubscriptionHandler) {
	eh.onSubscription = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePaymentVerified, models.EventTypeSubscriptionVerified:
		if eh.onPaymentVerified != nil {
			var event models.PaymentVerifiedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onPaymentVerified(ctx, &event)
		}

	case models.EventTypeWebhookReceived:
		var event models.WebhookEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal webhook event: %w", err)
		}
		return eh.handleWebhook(ctx, &event)

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}

func (eh *EventHandler) handleWebhook(ctx context.Context, event *models.WebhookEvent) error {
	var p models.WebhookPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal %s payload: %w", event.Event, err)
		}
	}

	var payment *models.Payment
	if p.Payment != nil {
		payment = &p.Payment.Entity
	}

	switch {
	case strings.HasPrefix(event.Event, "subscription."):
		if eh.onSubscription == nil {
			return nil
		}
		if p.Subscription == nil {
			return fmt.Errorf("%s delivery %s has no subscription entity", event.Event, event.DeliveryID)
		}
		return eh.onSubscription(ctx, event.Event, &p.Subscription.Entity, payment)

	case strings.HasPrefix(event.Event, "payment."), event.Event == models.WebhookOrderPaid:
		if eh.onPayment == nil {
			return nil
		}
		if payment == nil {
			return fmt.Errorf("%s delivery %s has no payment entity", event.Event, event.DeliveryID)
		}
		var order *models.Order
		if p.Order != nil {
			order = &p.Order.Entity
		}
		return eh.onPayment(ctx, event.Event, payment, order)
	}

	eh.logger.Info("Ignoring webhook event", zap.String("event", event.Event))
	return nil
}
