// Package processor is the boundary to the payment processor. Everything the
// service knows about Razorpay's API lives behind Client.
package processor

import (
	"context"
	"errors"
	"fmt"

	"payment-gateway/internal/models"
)

// Client is the set of processor capabilities the service depends on.
type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*models.Order, error)
	ListCustomers(ctx context.Context, query CustomerQuery) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (*models.Customer, error)
	CreatePlan(ctx context.Context, req PlanRequest) (*models.Plan, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*models.Subscription, error)
	FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error)
}

// OrderRequest mirrors the order create payload. Amount is in minor units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Capture  bool
}

// CustomerQuery selects one page of customers.
type CustomerQuery struct {
	Email string
	Count int
	Skip  int
}

// CustomerRequest creates a customer. IdempotencyKey is derived from the
// identity tuple and recorded on the customer.
type CustomerRequest struct {
	Name           string
	Email          string
	Contact        string
	IdempotencyKey string
}

// PlanRequest creates a plan. Amount is in minor units.
type PlanRequest struct {
	Period   string
	Interval int
	ItemName string
	Amount   int64
	Currency string
}

type SubscriptionRequest struct {
	PlanID         string
	CustomerID     string
	TotalCount     int
	CustomerNotify bool
	Notes          map[string]string
}

// UpstreamError reports a failed processor call. Description carries the
// processor's own message and is safe to return to API callers.
type UpstreamError struct {
	Op          string
	Description string
	Err         error
}

func (e *UpstreamError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("razorpay %s: %s", e.Op, e.Description)
	}
	return fmt.Sprintf("razorpay %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err came from a processor call.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// Description extracts the processor description from err, or "" when err is
// not an upstream failure or carries none.
func Description(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Description
	}
	return ""
}
