package models

import (
	"bytes"
	"encoding/json"
)

// Notes is the free-form key/value map Razorpay attaches to most entities.
// The API renders an empty map as [], which a plain map refuses to decode.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.HasPrefix(trimmed, []byte("[")) {
		*n = Notes{}
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

// Order is a processor-side checkout order. Amount is in minor units (paise).
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status,omitempty"`
}

// Customer is a billing identity owned by the processor. Name, Email and
// Contact together form the deduplication key.
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Contact   string `json:"contact"`
	Notes     Notes  `json:"notes,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// PlanItem is the billable line of a plan. Amount is in minor units.
type PlanItem struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Plan is a recurring billing configuration.
type Plan struct {
	ID        string   `json:"id"`
	Period    string   `json:"period"`
	Interval  int      `json:"interval"`
	Item      PlanItem `json:"item"`
	CreatedAt int64    `json:"created_at,omitempty"`
}

type Subscription struct {
	ID             string `json:"id"`
	PlanID         string `json:"plan_id"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	TotalCount     int    `json:"total_count"`
	CustomerNotify bool   `json:"customer_notify"`
	ShortURL       string `json:"short_url,omitempty"`
	Notes          Notes  `json:"notes,omitempty"`
}

// Payment is the live processor view of a payment attempt.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id,omitempty"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method,omitempty"`
	Email    string `json:"email,omitempty"`
	Contact  string `json:"contact,omitempty"`
	Captured bool   `json:"captured"`
}

// Payment statuses reported by the processor
const (
	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusFailed     = "failed"
)

// Default billing values
const (
	DefaultCurrency   = "INR"
	DefaultPlanPeriod = "monthly"
	DefaultInterval   = 1
	ReceiptPrefix     = "receipt_"
)
