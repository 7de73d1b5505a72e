package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"payment-gateway/internal/models"
	"payment-gateway/internal/processor"
	"payment-gateway/internal/util"

	"go.uber.org/zap"
)

// Plan amounts arrive in rupees and are sent in paise
const (
	minorUnitsPerMajor = 100
	minorUnitDigits    = 2
)

// SubscriptionService provisions plans and subscriptions. Caller input is
// forwarded as-is; the processor is the validator of record.
type SubscriptionService struct {
	processor       processor.Client
	defaultCurrency string
	logger          *zap.Logger
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(p processor.Client, defaultCurrency string) *SubscriptionService {
	if defaultCurrency == "" {
		defaultCurrency = models.DefaultCurrency
	}
	return &SubscriptionService{
		processor:       p,
		defaultCurrency: defaultCurrency,
		logger:          util.GetLogger(),
	}
}

// CreatePlanRequest takes Amount in major units (e.g. rupees) with at most two
// decimal places.
type CreatePlanRequest struct {
	Period   string       `json:"period"`
	Interval int          `json:"interval"`
	PlanName string       `json:"plan_name"`
	Amount   *json.Number `json:"amount" binding:"required"`
	Currency string       `json:"currency"`
}

// CreateSubscriptionRequest links a plan to a resolved customer
type CreateSubscriptionRequest struct {
	PlanID     string            `json:"plan_id"`
	CustomerID string            `json:"customer_id"`
	TotalCount int               `json:"total_count"`
	Notes      map[string]string `json:"notes"`
}

// CreatePlan converts the amount to minor units and applies the monthly,
// interval 1 defaults.
func (s *SubscriptionService) CreatePlan(ctx context.Context, req *CreatePlanRequest) (*models.Plan, error) {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.CreatePlan")
	defer span.End()

	if req.Amount == nil {
		return nil, &ValidationError{Fields: []string{"amount"}}
	}
	minor, err := toMinorUnits(*req.Amount)
	if err != nil {
		return nil, err
	}

	period := strings.TrimSpace(req.Period)
	if period == "" {
		period = models.DefaultPlanPeriod
	}
	interval := req.Interval
	if interval == 0 {
		interval = models.DefaultInterval
	}
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}

	plan, err := s.processor.CreatePlan(ctx, processor.PlanRequest{
		Period:   period,
		Interval: interval,
		ItemName: req.PlanName,
		Amount:   minor,
		Currency: currency,
	})
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	util.PlansCreatedTotal.Inc()
	s.logger.Info("Plan created",
		zap.String("plan_id", plan.ID),
		zap.String("period", plan.Period),
		zap.Int64("amount", plan.Item.Amount))
	return plan, nil
}

// CreateSubscription always asks the processor to notify the customer
func (s *SubscriptionService) CreateSubscription(ctx context.Context, req *CreateSubscriptionRequest) (*models.Subscription, error) {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.CreateSubscription")
	defer span.End()

	sub, err := s.processor.CreateSubscription(ctx, processor.SubscriptionRequest{
		PlanID:         req.PlanID,
		CustomerID:     req.CustomerID,
		TotalCount:     req.TotalCount,
		CustomerNotify: true,
		Notes:          req.Notes,
	})
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	util.SubscriptionsCreatedTotal.Inc()
	s.logger.Info("Subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("plan_id", sub.PlanID),
		zap.String("customer_id", sub.CustomerID))
	return sub, nil
}

// toMinorUnits scales a decimal major-unit amount to minor units without going
// through floating point. Exponent notation and sub-paisa precision are
// rejected.
func toMinorUnits(major json.Number) (int64, error) {
	invalid := &ValidationError{Fields: []string{"amount"}, Reason: "must be a decimal with at most two fraction digits"}

	s := strings.TrimSpace(major.String())
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	whole, frac, hasPoint := strings.Cut(s, ".")
	if hasPoint {
		frac = strings.TrimRight(frac, "0")
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) || len(frac) > minorUnitDigits {
		return 0, invalid
	}
	frac += strings.Repeat("0", minorUnitDigits-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, &ValidationError{Fields: []string{"amount"}, Reason: "out of range"}
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	if w > (math.MaxInt64-f)/minorUnitsPerMajor {
		return 0, &ValidationError{Fields: []string{"amount"}, Reason: "out of range"}
	}

	minor := w*minorUnitsPerMajor + f
	if negative {
		minor = -minor
	}
	return minor, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
