package models

import (
	"encoding/json"
	"time"
)

// Event types
const (
	EventTypePaymentVerified      = "payment.verified"
	EventTypeSubscriptionVerified = "subscription.payment_verified"
	EventTypeWebhookReceived      = "razorpay.webhook"

	// Razorpay webhook events this service reacts to
	WebhookPaymentAuthorized     = "payment.authorized"
	WebhookPaymentCaptured       = "payment.captured"
	WebhookPaymentFailed         = "payment.failed"
	WebhookOrderPaid             = "order.paid"
	WebhookSubscriptionActivated = "subscription.activated"
	WebhookSubscriptionCharged   = "subscription.charged"
	WebhookSubscriptionHalted    = "subscription.halted"
	WebhookSubscriptionCancelled = "subscription.cancelled"
	WebhookSubscriptionCompleted = "subscription.completed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentVerifiedEvent is published once a completion notice passes every
// authenticity check.
type PaymentVerifiedEvent struct {
	BaseEvent
	PaymentID      string `json:"payment_id"`
	OrderID        string `json:"order_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Status         string `json:"status"`
}

// WebhookEvent wraps a signature-checked Razorpay webhook delivery. Payload is
// kept verbatim so consumers can decode only the entities they need.
type WebhookEvent struct {
	BaseEvent
	DeliveryID string          `json:"delivery_id"`
	Event      string          `json:"event"`
	AccountID  string          `json:"account_id,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	Payload    json.RawMessage `json:"payload"`
}

// WebhookEnvelope is the body Razorpay posts to the webhook endpoint.
type WebhookEnvelope struct {
	Entity    string          `json:"entity"`
	AccountID string          `json:"account_id"`
	Event     string          `json:"event"`
	Contains  []string        `json:"contains"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

// WebhookPayload holds the entities a webhook may carry.
type WebhookPayload struct {
	Payment *struct {
		Entity Payment `json:"entity"`
	} `json:"payment,omitempty"`
	Order *struct {
		Entity Order `json:"entity"`
	} `json:"order,omitempty"`
	Subscription *struct {
		Entity Subscription `json:"entity"`
	} `json:"subscription,omitempty"`
}
