package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment-gateway/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOrderPayload(t *testing.T) {
	data := orderPayload(OrderRequest{Amount: 50000, Currency: "INR", Receipt: "receipt_1", Capture: true})

	assert.Equal(t, int64(50000), data["amount"])
	assert.Equal(t, "INR", data["currency"])
	assert.Equal(t, "receipt_1", data["receipt"])
	assert.Equal(t, 1, data["payment_capture"])
}

func TestCustomerPayloadCarriesIdentityKey(t *testing.T) {
	data := customerPayload(CustomerRequest{Name: "Asha", Email: "asha@example.com", Contact: "+919900000000", IdempotencyKey: "k-1"})

	assert.Equal(t, "Asha", data["name"])
	assert.Equal(t, map[string]interface{}{"identity_key": "k-1"}, data["notes"])

	bare := customerPayload(CustomerRequest{Name: "Asha"})
	assert.NotContains(t, bare, "notes")
}

func TestCustomerQueryParams(t *testing.T) {
	params := customerQueryParams(CustomerQuery{Email: "a@b.c", Count: 100, Skip: 200})
	assert.Equal(t, map[string]interface{}{"email": "a@b.c", "count": 100, "skip": 200}, params)

	assert.NotContains(t, customerQueryParams(CustomerQuery{Count: 10}), "email")
}

func TestPlanAndSubscriptionPayloads(t *testing.T) {
	plan := planPayload(PlanRequest{Period: "monthly", Interval: 1, ItemName: "Pro", Amount: 49900, Currency: "INR"})
	assert.Equal(t, "monthly", plan["period"])
	item := plan["item"].(map[string]interface{})
	assert.Equal(t, int64(49900), item["amount"])

	sub := subscriptionPayload(SubscriptionRequest{PlanID: "plan_1", CustomerID: "cust_1", TotalCount: 12, CustomerNotify: true})
	assert.Equal(t, 1, sub["customer_notify"])
	assert.NotContains(t, sub, "notes")
}

func TestDecodeProcessorShapes(t *testing.T) {
	body := map[string]interface{}{
		"id":       "pay_1",
		"entity":   "payment",
		"amount":   float64(50000),
		"currency": "INR",
		"status":   "captured",
		"captured": true,
	}
	var p models.Payment
	require.NoError(t, decode(body, &p))
	assert.Equal(t, int64(50000), p.Amount)
	assert.Equal(t, models.PaymentStatusCaptured, p.Status)

	var c models.Customer
	require.NoError(t, decode(map[string]interface{}{"id": "cust_1", "notes": []interface{}{}}, &c))
	assert.Equal(t, "cust_1", c.ID)

	assert.Error(t, decode(map[string]interface{}{"amount": "lots"}, &p))
}

func TestCallWrapsSDKErrors(t *testing.T) {
	c := &RazorpayClient{logger: zap.NewNop()}

	err := c.call(context.Background(), "order.create", func() (map[string]interface{}, error) {
		return nil, errors.New("The amount must be atleast INR 1.00")
	}, &models.Order{})

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "order.create", ue.Op)
	assert.Equal(t, "The amount must be atleast INR 1.00", Description(err))
	assert.True(t, IsUpstream(err))
}

func TestCallStopsWaitingWhenContextEnds(t *testing.T) {
	c := &RazorpayClient{logger: zap.NewNop()}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	err := c.call(ctx, "payment.fetch", func() (map[string]interface{}, error) {
		<-release
		return map[string]interface{}{}, nil
	}, &models.Payment{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, Description(err))
}
