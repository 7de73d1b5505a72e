package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"payment-gateway/internal/models"
	"payment-gateway/internal/processor"
	"payment-gateway/internal/util"

	"go.uber.org/zap"
)

// OrderService creates checkout orders on the processor
type OrderService struct {
	processor       processor.Client
	defaultCurrency string
	now             func() time.Time
	lastReceipt     atomic.Int64
	logger          *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(p processor.Client, defaultCurrency string) *OrderService {
	if defaultCurrency == "" {
		defaultCurrency = models.DefaultCurrency
	}
	return &OrderService{
		processor:       p,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
		logger:          util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order. Amount is in
// minor units and is passed through unvalidated.
type CreateOrderRequest struct {
	Amount   *int64 `json:"amount" binding:"required"`
	Currency string `json:"currency"`
}

// CreateOrderResponse is the normalized order returned to the client
type CreateOrderResponse struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateOrder creates an auto-captured order with a fresh receipt reference
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.Amount == nil {
		return nil, &ValidationError{Fields: []string{"amount"}}
	}

	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}

	order, err := s.processor.CreateOrder(ctx, processor.OrderRequest{
		Amount:   *req.Amount,
		Currency: currency,
		Receipt:  s.receipt(),
		Capture:  true,
	})
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Int64("amount", order.Amount),
		zap.String("currency", order.Currency))

	return &CreateOrderResponse{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
	}, nil
}

// receipt returns the prefix plus a nanosecond timestamp that is strictly
// increasing within the process, so concurrent calls never share a receipt.
func (s *OrderService) receipt() string {
	for {
		last := s.lastReceipt.Load()
		next := s.now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.lastReceipt.CompareAndSwap(last, next) {
			return models.ReceiptPrefix + strconv.FormatInt(next, 10)
		}
	}
}
