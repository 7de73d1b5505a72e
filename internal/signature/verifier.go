// Package signature implements the HMAC-SHA256 scheme Razorpay uses to sign
// checkout completion notices and webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Separator joins notice fields before hashing.
const Separator = "|"

// Compute returns the lowercase hex HMAC-SHA256 of fields joined by Separator.
func Compute(fields []string, secret []byte) string {
	return sum([]byte(strings.Join(fields, Separator)), secret)
}

// Verify reports whether submitted is the signature of fields under secret.
// A blank field, signature or secret fails without hashing anything.
func Verify(fields []string, submitted string, secret []byte) bool {
	if len(fields) == 0 || submitted == "" || len(secret) == 0 {
		return false
	}
	for _, f := range fields {
		if f == "" {
			return false
		}
	}
	return equal(Compute(fields, secret), submitted)
}

// VerifyOrderPayment checks a standard checkout notice, signed over
// "order_id|payment_id".
func VerifyOrderPayment(orderID, paymentID, submitted string, secret []byte) bool {
	return Verify([]string{orderID, paymentID}, submitted, secret)
}

// VerifySubscriptionPayment checks a subscription checkout notice, signed over
// "payment_id|subscription_id".
func VerifySubscriptionPayment(paymentID, subscriptionID, submitted string, secret []byte) bool {
	return Verify([]string{paymentID, subscriptionID}, submitted, secret)
}

// VerifyWebhook checks the X-Razorpay-Signature header against the raw request
// body. body must be the bytes as received; re-encoded JSON will not match.
func VerifyWebhook(body []byte, submitted string, secret []byte) bool {
	if len(body) == 0 || submitted == "" || len(secret) == 0 {
		return false
	}
	return equal(sum(body, secret), submitted)
}

func sum(msg, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// equal compares in constant time with respect to the content of the inputs.
func equal(expected, submitted string) bool {
	return hmac.Equal([]byte(expected), []byte(submitted))
}
