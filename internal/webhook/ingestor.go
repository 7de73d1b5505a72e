package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"payment-gateway/internal/models"
	"payment-gateway/internal/signature"
	"payment-gateway/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Headers Razorpay sets on webhook deliveries
const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"
)

var (
	// ErrInvalidSignature means the delivery was not signed with the webhook secret
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedPayload means the body verified but is not a webhook envelope
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// DedupeStore remembers delivery ids for a window
type DedupeStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ForgetIdempotencyKey(ctx context.Context, key string) error
}

// Publisher hands verified deliveries to the event stream
type Publisher interface {
	PublishWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
}

// Delivery is one inbound webhook request
type Delivery struct {
	Body      []byte
	Signature string
	EventID   string
}

// Result reports what happened to a verified delivery
type Result struct {
	Event     string `json:"event"`
	Duplicate bool   `json:"duplicate"`
}

// Ingestor verifies, dedupes and forwards webhook deliveries. It never
// interprets the event itself; consumers of the stream do that.
type Ingestor struct {
	secret    []byte
	dedupe    DedupeStore
	publisher Publisher
	window    time.Duration
	logger    *zap.Logger
}

// NewIngestor creates an ingestor. dedupe may be nil, in which case every
// delivery is forwarded.
func NewIngestor(secret []byte, dedupe DedupeStore, publisher Publisher, window time.Duration) *Ingestor {
	return &Ingestor{
		secret:    secret,
		dedupe:    dedupe,
		publisher: publisher,
		window:    window,
		logger:    util.GetLogger(),
	}
}

// Ingest processes one delivery. The signature is checked over the raw body
// before anything is decoded.
func (i *Ingestor) Ingest(ctx context.Context, d Delivery) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "Ingestor.Ingest")
	defer span.End()

	if !signature.VerifyWebhook(d.Body, d.Signature, i.secret) {
		util.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		i.logger.Warn("Rejected webhook with invalid signature", zap.String("event_id", d.EventID))
		return nil, ErrInvalidSignature
	}

	var env models.WebhookEnvelope
	if err := json.Unmarshal(d.Body, &env); err != nil || env.Event == "" {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return nil, ErrMalformedPayload
	}

	deliveryID := strings.TrimSpace(d.EventID)
	claimed := false
	if deliveryID != "" && i.dedupe != nil {
		first, err := i.dedupe.ClaimIdempotencyKey(ctx, dedupeKey(deliveryID), i.window)
		if err != nil {
			// store down: forward without dedupe
			i.logger.Warn("Webhook dedupe unavailable", zap.String("event_id", deliveryID), zap.Error(err))
		} else if !first {
			util.WebhookEventsTotal.WithLabelValues(env.Event, "duplicate").Inc()
			i.logger.Info("Duplicate webhook delivery", zap.String("event_id", deliveryID), zap.String("event", env.Event))
			return &Result{Event: env.Event, Duplicate: true}, nil
		} else {
			claimed = true
		}
	}
	if deliveryID == "" {
		deliveryID = uuid.New().String()
	}

	event := &models.WebhookEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeWebhookReceived,
			Timestamp: time.Now(),
		},
		DeliveryID: deliveryID,
		Event:      env.Event,
		AccountID:  env.AccountID,
		CreatedAt:  env.CreatedAt,
		Payload:    env.Payload,
	}

	if err := i.publisher.PublishWebhookEvent(ctx, event); err != nil {
		util.FailSpan(span, err)
		util.WebhookEventsTotal.WithLabelValues(env.Event, "publish_failed").Inc()
		if claimed {
			if ferr := i.dedupe.ForgetIdempotencyKey(ctx, dedupeKey(deliveryID)); ferr != nil {
				i.logger.Error("Failed to release webhook dedupe key", zap.String("event_id", deliveryID), zap.Error(ferr))
			}
		}
		return nil, fmt.Errorf("failed to publish webhook %s: %w", env.Event, err)
	}

	util.WebhookEventsTotal.WithLabelValues(env.Event, "accepted").Inc()
	i.logger.Info("Webhook accepted", zap.String("event_id", deliveryID), zap.String("event", env.Event))
	return &Result{Event: env.Event}, nil
}

func dedupeKey(deliveryID string) string {
	return "razorpay-webhook:" + deliveryID
}
