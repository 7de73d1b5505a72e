package service

import (
	"context"
	"fmt"
	"time"

	"payment-gateway/internal/models"
	"payment-gateway/internal/processor"
	"payment-gateway/internal/signature"
	"payment-gateway/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VerificationState tracks a completion notice through verification
type VerificationState string

const (
	StateReceived         VerificationState = "RECEIVED"
	StateSignatureChecked VerificationState = "SIGNATURE_CHECKED"
	StateStatusFetched    VerificationState = "STATUS_FETCHED"
	StateVerified         VerificationState = "VERIFIED"
	StateRejected         VerificationState = "REJECTED"
)

// Rejection reasons
const (
	ReasonInvalidSignature = "invalid_signature"
	ReasonNotCaptured      = "not_captured"
)

// StatusAuthorized is reported when a subscription notice is accepted on its
// signature alone.
const StatusAuthorized = "AUTHORIZED"

// VerificationResult is the terminal outcome of Confirm
type VerificationResult struct {
	State   VerificationState `json:"state"`
	Payment *models.Payment   `json:"payment,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// Verified reports whether the notice reached the VERIFIED state
func (r *VerificationResult) Verified() bool {
	return r.State == StateVerified
}

// EventPublisher receives verified payments for downstream consumers
type EventPublisher interface {
	PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error
}

// OrderPaymentNotice is what checkout hands back after an order payment
type OrderPaymentNotice struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// SubscriptionPaymentNotice is what checkout hands back after a subscription
// charge
type SubscriptionPaymentNotice struct {
	PaymentID      string `json:"razorpay_payment_id"`
	SubscriptionID string `json:"razorpay_subscription_id"`
	Signature      string `json:"razorpay_signature"`
}

// SubscriptionVerification is the accepted outcome of a subscription notice.
// Payment is nil when the live status check is disabled.
type SubscriptionVerification struct {
	Status  string
	Payment *models.Payment
}

// PaymentVerifier authenticates completion notices. Subscription notices are
// additionally confirmed against the live payment status unless disabled.
type PaymentVerifier struct {
	processor        processor.Client
	secret           []byte
	publisher        EventPublisher
	verifyLiveStatus bool
	logger           *zap.Logger
}

// NewPaymentVerifier creates a verifier. publisher may be nil.
func NewPaymentVerifier(p processor.Client, secret []byte, publisher EventPublisher, verifyLiveStatus bool) *PaymentVerifier {
	return &PaymentVerifier{
		processor:        p,
		secret:           secret,
		publisher:        publisher,
		verifyLiveStatus: verifyLiveStatus,
		logger:           util.GetLogger(),
	}
}

// Confirm runs the status step of verification. An invalid signature is
// rejected without contacting the processor; a valid one is accepted only if
// the processor reports the payment as captured.
func (v *PaymentVerifier) Confirm(ctx context.Context, signatureValid bool, paymentID string) (*VerificationResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentVerifier.Confirm")
	defer span.End()

	if !signatureValid {
		return &VerificationResult{State: StateRejected, Reason: ReasonInvalidSignature}, nil
	}

	payment, err := v.processor.FetchPayment(ctx, paymentID)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
	}

	if payment.Status != models.PaymentStatusCaptured {
		v.logger.Warn("Signed payment is not captured",
			zap.String("payment_id", paymentID),
			zap.String("status", payment.Status))
		return &VerificationResult{State: StateRejected, Payment: payment, Reason: ReasonNotCaptured}, nil
	}

	return &VerificationResult{State: StateVerified, Payment: payment}, nil
}

// VerifyOrderPayment authenticates a standard checkout notice
func (v *PaymentVerifier) VerifyOrderPayment(ctx context.Context, n *OrderPaymentNotice) error {
	ctx, span := util.StartSpan(ctx, "PaymentVerifier.VerifyOrderPayment")
	defer span.End()

	if err := requireFields([][2]string{
		{"razorpay_order_id", n.OrderID},
		{"razorpay_payment_id", n.PaymentID},
		{"razorpay_signature", n.Signature},
	}); err != nil {
		util.VerificationsTotal.WithLabelValues("order", "invalid_request").Inc()
		return err
	}

	if !signature.VerifyOrderPayment(n.OrderID, n.PaymentID, n.Signature, v.secret) {
		util.VerificationsTotal.WithLabelValues("order", "signature_mismatch").Inc()
		v.logger.Warn("Order payment signature mismatch",
			zap.String("order_id", n.OrderID),
			zap.String("payment_id", n.PaymentID))
		util.FailSpan(span, ErrSignatureMismatch)
		return ErrSignatureMismatch
	}

	util.VerificationsTotal.WithLabelValues("order", "verified").Inc()
	v.logger.Info("Order payment verified",
		zap.String("order_id", n.OrderID),
		zap.String("payment_id", n.PaymentID))

	v.publish(ctx, &models.PaymentVerifiedEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentVerified),
		PaymentID: n.PaymentID,
		OrderID:   n.OrderID,
		Status:    StatusAuthorized,
	})
	return nil
}

// VerifySubscriptionPayment authenticates a subscription checkout notice and,
// when live status checking is on, confirms the charge was captured.
func (v *PaymentVerifier) VerifySubscriptionPayment(ctx context.Context, n *SubscriptionPaymentNotice) (*SubscriptionVerification, error) {
	ctx, span := util.StartSpan(ctx, "PaymentVerifier.VerifySubscriptionPayment")
	defer span.End()

	if err := requireFields([][2]string{
		{"razorpay_payment_id", n.PaymentID},
		{"razorpay_subscription_id", n.SubscriptionID},
		{"razorpay_signature", n.Signature},
	}); err != nil {
		util.VerificationsTotal.WithLabelValues("subscription", "invalid_request").Inc()
		return nil, err
	}

	valid := signature.VerifySubscriptionPayment(n.PaymentID, n.SubscriptionID, n.Signature, v.secret)

	var out *SubscriptionVerification
	if v.verifyLiveStatus {
		res, err := v.Confirm(ctx, valid, n.PaymentID)
		if err != nil {
			util.VerificationsTotal.WithLabelValues("subscription", "error").Inc()
			util.FailSpan(span, err)
			return nil, err
		}
		if !res.Verified() {
			return nil, v.rejected(n, res)
		}
		out = &SubscriptionVerification{Status: res.Payment.Status, Payment: res.Payment}
	} else {
		if !valid {
			return nil, v.rejected(n, &VerificationResult{State: StateRejected, Reason: ReasonInvalidSignature})
		}
		out = &SubscriptionVerification{Status: StatusAuthorized}
	}

	util.VerificationsTotal.WithLabelValues("subscription", "verified").Inc()
	v.logger.Info("Subscription payment verified",
		zap.String("payment_id", n.PaymentID),
		zap.String("subscription_id", n.SubscriptionID),
		zap.String("status", out.Status))

	v.publish(ctx, &models.PaymentVerifiedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeSubscriptionVerified),
		PaymentID:      n.PaymentID,
		SubscriptionID: n.SubscriptionID,
		Status:         out.Status,
	})
	return out, nil
}

func (v *PaymentVerifier) rejected(n *SubscriptionPaymentNotice, res *VerificationResult) error {
	if res.Reason == ReasonInvalidSignature {
		util.VerificationsTotal.WithLabelValues("subscription", "signature_mismatch").Inc()
		v.logger.Warn("Subscription payment signature mismatch",
			zap.String("payment_id", n.PaymentID),
			zap.String("subscription_id", n.SubscriptionID))
		return ErrSignatureMismatch
	}
	util.VerificationsTotal.WithLabelValues("subscription", "status_rejected").Inc()
	return &StatusError{PaymentID: n.PaymentID, Status: res.Payment.Status}
}

// publish is best effort: the caller already has its answer.
func (v *PaymentVerifier) publish(ctx context.Context, event *models.PaymentVerifiedEvent) {
	if v.publisher == nil {
		return
	}
	if err := v.publisher.PublishPaymentVerified(ctx, event); err != nil {
		v.logger.Error("Failed to publish payment verified event",
			zap.String("payment_id", event.PaymentID),
			zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
