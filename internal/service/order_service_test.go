package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"payment-gateway/internal/processor"
	"payment-gateway/internal/processor/processortest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestCreateOrder(t *testing.T) {
	fake := processortest.New()
	svc := NewOrderService(fake, "")

	resp, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{Amount: int64p(50000)})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, int64(50000), resp.Amount)
	assert.Equal(t, "INR", resp.Currency)

	require.Len(t, fake.Orders, 1)
	sent := fake.Orders[0]
	assert.True(t, sent.Capture)
	assert.True(t, strings.HasPrefix(sent.Receipt, "receipt_"))
}

func TestCreateOrderKeepsCallerCurrency(t *testing.T) {
	fake := processortest.New()
	resp, err := NewOrderService(fake, "INR").CreateOrder(context.Background(), &CreateOrderRequest{Amount: int64p(1999), Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "USD", resp.Currency)
}

func TestCreateOrderMissingAmount(t *testing.T) {
	fake := processortest.New()
	_, err := NewOrderService(fake, "").CreateOrder(context.Background(), &CreateOrderRequest{})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"amount"}, ve.Fields)
	assert.Empty(t, fake.Orders)
}

func TestCreateOrderUpstreamError(t *testing.T) {
	fake := processortest.New()
	fake.OrderErr = "Order amount less than minimum amount allowed"

	_, err := NewOrderService(fake, "").CreateOrder(context.Background(), &CreateOrderRequest{Amount: int64p(1)})
	require.Error(t, err)
	assert.True(t, processor.IsUpstream(err))
}

func TestReceiptsAreUniqueUnderAFrozenClock(t *testing.T) {
	svc := NewOrderService(processortest.New(), "")
	frozen := time.Unix(1700000000, 0)
	svc.now = func() time.Time { return frozen }

	const n = 200
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := svc.receipt()
			mu.Lock()
			seen[r] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.True(t, seen["receipt_1700000000000000000"])
}
