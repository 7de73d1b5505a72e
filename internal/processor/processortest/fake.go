// Package processortest provides an in-memory processor.Client for tests.
package processortest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"payment-gateway/internal/models"
	"payment-gateway/internal/processor"
)

// Fake keeps processor entities in memory. Setting one of the *Err fields makes
// the matching operation fail with an UpstreamError carrying that description.
type Fake struct {
	mu sync.Mutex

	Customers     []models.Customer
	Payments      map[string]models.Payment
	Orders        []processor.OrderRequest
	Plans         []processor.PlanRequest
	Subscriptions []processor.SubscriptionRequest
	CustomerKeys  []string

	// FilterByEmail makes ListCustomers honour the email filter. When false the
	// fake pages through every customer, like an API that ignores the filter.
	FilterByEmail bool

	OrderErr        string
	ListErr         string
	CustomerErr     string
	PlanErr         string
	SubscriptionErr string
	FetchErr        string

	ListCalls           int
	CreateCustomerCalls int
	FetchCalls          int

	seq int
}

var _ processor.Client = (*Fake)(nil)

// New returns an empty fake that filters customers by email
func New() *Fake {
	return &Fake{Payments: map[string]models.Payment{}, FilterByEmail: true}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%06d", prefix, f.seq)
}

func upstream(op, desc string) error {
	return &processor.UpstreamError{Op: op, Description: desc, Err: errors.New(desc)}
}

func (f *Fake) CreateOrder(_ context.Context, req processor.OrderRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.OrderErr != "" {
		return nil, upstream("order.create", f.OrderErr)
	}
	f.Orders = append(f.Orders, req)
	return &models.Order{
		ID:       f.nextID("order"),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (f *Fake) ListCustomers(_ context.Context, q processor.CustomerQuery) ([]models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListCalls++
	if f.ListErr != "" {
		return nil, upstream("customer.all", f.ListErr)
	}

	var visible []models.Customer
	for _, c := range f.Customers {
		if f.FilterByEmail && q.Email != "" && c.Email != q.Email {
			continue
		}
		visible = append(visible, c)
	}

	if q.Skip >= len(visible) {
		return []models.Customer{}, nil
	}
	end := len(visible)
	if q.Count > 0 && q.Skip+q.Count < end {
		end = q.Skip + q.Count
	}
	page := make([]models.Customer, end-q.Skip)
	copy(page, visible[q.Skip:end])
	return page, nil
}

func (f *Fake) CreateCustomer(_ context.Context, req processor.CustomerRequest) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCustomerCalls++
	if f.CustomerErr != "" {
		return nil, upstream("customer.create", f.CustomerErr)
	}
	c := models.Customer{
		ID:      f.nextID("cust"),
		Name:    req.Name,
		Email:   req.Email,
		Contact: req.Contact,
		Notes:   models.Notes{"identity_key": req.IdempotencyKey},
	}
	f.Customers = append(f.Customers, c)
	f.CustomerKeys = append(f.CustomerKeys, req.IdempotencyKey)
	return &c, nil
}

func (f *Fake) CreatePlan(_ context.Context, req processor.PlanRequest) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PlanErr != "" {
		return nil, upstream("plan.create", f.PlanErr)
	}
	f.Plans = append(f.Plans, req)
	return &models.Plan{
		ID:       f.nextID("plan"),
		Period:   req.Period,
		Interval: req.Interval,
		Item: models.PlanItem{
			Name:     req.ItemName,
			Amount:   req.Amount,
			Currency: req.Currency,
		},
	}, nil
}

func (f *Fake) CreateSubscription(_ context.Context, req processor.SubscriptionRequest) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscriptionErr != "" {
		return nil, upstream("subscription.create", f.SubscriptionErr)
	}
	f.Subscriptions = append(f.Subscriptions, req)
	return &models.Subscription{
		ID:             f.nextID("sub"),
		PlanID:         req.PlanID,
		CustomerID:     req.CustomerID,
		Status:         "created",
		TotalCount:     req.TotalCount,
		CustomerNotify: req.CustomerNotify,
		Notes:          models.Notes(req.Notes),
	}, nil
}

func (f *Fake) FetchPayment(_ context.Context, paymentID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.FetchCalls++
	if f.FetchErr != "" {
		return nil, upstream("payment.fetch", f.FetchErr)
	}
	p, ok := f.Payments[paymentID]
	if !ok {
		return nil, upstream("payment.fetch", "The id provided does not exist")
	}
	return &p, nil
}

// AddPayment registers a payment the fake will return from FetchPayment
func (f *Fake) AddPayment(p models.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Payments[p.ID] = p
}

// AddCustomer seeds an existing customer and returns its id
func (f *Fake) AddCustomer(c models.Customer) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = f.nextID("cust")
	}
	f.Customers = append(f.Customers, c)
	return c.ID
}

// Counts returns call counters under the lock
func (f *Fake) Counts() (list, create, fetch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ListCalls, f.CreateCustomerCalls, f.FetchCalls
}
