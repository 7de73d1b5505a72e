package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-gateway/internal/models"
	"payment-gateway/internal/util"

	razorpay "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"
)

// RazorpayClient adapts the official SDK to Client. The SDK is synchronous and
// context-unaware, so each call runs in its own goroutine and the caller stops
// waiting once ctx is done.
type RazorpayClient struct {
	client *razorpay.Client
	logger *zap.Logger
}

var _ Client = (*RazorpayClient)(nil)

// NewRazorpayClient creates a client authenticated with the API key pair
func NewRazorpayClient(keyID, keySecret string) *RazorpayClient {
	return &RazorpayClient{
		client: razorpay.NewClient(keyID, keySecret),
		logger: util.GetLogger(),
	}
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	data := orderPayload(req)

	var order models.Order
	if err := c.call(ctx, "order.create", func() (map[string]interface{}, error) {
		return c.client.Order.Create(data, nil)
	}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *RazorpayClient) ListCustomers(ctx context.Context, query CustomerQuery) ([]models.Customer, error) {
	params := customerQueryParams(query)

	var page struct {
		Count int               `json:"count"`
		Items []models.Customer `json:"items"`
	}
	if err := c.call(ctx, "customer.all", func() (map[string]interface{}, error) {
		return c.client.Customer.All(params, nil)
	}, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *RazorpayClient) CreateCustomer(ctx context.Context, req CustomerRequest) (*models.Customer, error) {
	data := customerPayload(req)

	var customer models.Customer
	if err := c.call(ctx, "customer.create", func() (map[string]interface{}, error) {
		return c.client.Customer.Create(data, nil)
	}, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *RazorpayClient) CreatePlan(ctx context.Context, req PlanRequest) (*models.Plan, error) {
	data := planPayload(req)

	var plan models.Plan
	if err := c.call(ctx, "plan.create", func() (map[string]interface{}, error) {
		return c.client.Plan.Create(data, nil)
	}, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *RazorpayClient) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*models.Subscription, error) {
	data := subscriptionPayload(req)

	var sub models.Subscription
	if err := c.call(ctx, "subscription.create", func() (map[string]interface{}, error) {
		return c.client.Subscription.Create(data, nil)
	}, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := c.call(ctx, "payment.fetch", func() (map[string]interface{}, error) {
		return c.client.Payment.Fetch(paymentID, nil, nil)
	}, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

type sdkResult struct {
	body map[string]interface{}
	err  error
}

// call runs fn once, records latency and decodes the response into out. There
// is no retry: a failed call is returned to the caller as an UpstreamError.
func (c *RazorpayClient) call(ctx context.Context, op string, fn func() (map[string]interface{}, error), out interface{}) error {
	ctx, span := util.StartSpan(ctx, "razorpay."+op)
	defer span.End()

	start := time.Now()
	done := make(chan sdkResult, 1)
	go func() {
		body, err := fn()
		done <- sdkResult{body: body, err: err}
	}()

	var res sdkResult
	select {
	case <-ctx.Done():
		res = sdkResult{err: ctx.Err()}
	case res = <-done:
	}
	util.ProcessorLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if res.err != nil {
		util.UpstreamErrorsTotal.WithLabelValues(op).Inc()
		upstream := &UpstreamError{Op: op, Err: res.err}
		if ctx.Err() == nil {
			upstream.Description = res.err.Error()
		}
		c.logger.Warn("Processor call failed", zap.String("op", op), zap.Error(res.err))
		util.FailSpan(span, upstream)
		return upstream
	}

	if err := decode(res.body, out); err != nil {
		util.UpstreamErrorsTotal.WithLabelValues(op).Inc()
		util.FailSpan(span, err)
		return &UpstreamError{Op: op, Err: err}
	}
	return nil
}

// decode converts the SDK's generic map into a typed model.
func decode(body map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to re-encode response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unexpected response shape: %w", err)
	}
	return nil
}

func orderPayload(req OrderRequest) map[string]interface{} {
	capture := 0
	if req.Capture {
		capture = 1
	}
	return map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": capture,
	}
}

func customerQueryParams(q CustomerQuery) map[string]interface{} {
	params := map[string]interface{}{
		"count": q.Count,
		"skip":  q.Skip,
	}
	if q.Email != "" {
		params["email"] = q.Email
	}
	return params
}

func customerPayload(req CustomerRequest) map[string]interface{} {
	data := map[string]interface{}{
		"name":    req.Name,
		"email":   req.Email,
		"contact": req.Contact,
	}
	if req.IdempotencyKey != "" {
		data["notes"] = map[string]interface{}{"identity_key": req.IdempotencyKey}
	}
	return data
}

func planPayload(req PlanRequest) map[string]interface{} {
	return map[string]interface{}{
		"period":   req.Period,
		"interval": req.Interval,
		"item": map[string]interface{}{
			"name":     req.ItemName,
			"amount":   req.Amount,
			"currency": req.Currency,
		},
	}
}

func subscriptionPayload(req SubscriptionRequest) map[string]interface{} {
	notify := 0
	if req.CustomerNotify {
		notify = 1
	}
	data := map[string]interface{}{
		"plan_id":         req.PlanID,
		"customer_id":     req.CustomerID,
		"total_count":     req.TotalCount,
		"customer_notify": notify,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}
	return data
}
