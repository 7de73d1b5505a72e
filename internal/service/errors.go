package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSignatureMismatch means the locally computed digest differs from the
	// submitted signature.
	ErrSignatureMismatch = errors.New("invalid signature")

	// ErrStatusRejected means the signature was valid but the processor does
	// not report the payment as captured.
	ErrStatusRejected = errors.New("payment not captured")

	// ErrResolutionInProgress means another request holds the lock for the
	// same customer identity for longer than the configured wait.
	ErrResolutionInProgress = errors.New("customer resolution already in progress")
)

// ValidationError lists required input fields that were missing or malformed.
// No processor call is made when one is returned.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid request: %s", e.Reason)
	}
	if e.Reason == "" {
		return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("invalid %s: %s", strings.Join(e.Fields, ", "), e.Reason)
}

// StatusError carries the live status that caused ErrStatusRejected.
type StatusError struct {
	PaymentID string
	Status    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("payment %s has status %q", e.PaymentID, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrStatusRejected
}

// requireFields returns a ValidationError naming every blank entry of fields,
// or nil when all are present. Keys are reported in the given order.
func requireFields(fields [][2]string) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
