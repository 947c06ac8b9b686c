// Package payments wraps the payment processors behind a small Gateway
// interface. Amounts cross the interface in major currency units.
package payments

import (
	"context"
	"fmt"
	"math"

	"careconnect-server/internal/config"
)

// Intent is a payment the client completes with ClientSecret. Canceled is
// terminal: the intent can no longer be paid.
type Intent struct {
	ID           string  `json:"paymentId"`
	ClientSecret string  `json:"clientSecret"`
	Amount       float64 `json:"amount"`
	Paid         bool    `json:"-"`
	Canceled     bool    `json:"-"`
}

// Gateway creates and inspects payment intents.
type Gateway interface {
	CreateIntent(ctx context.Context, amount float64, metadata map[string]string) (*Intent, error)
	FetchIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) error
}

// DeclineError is returned when the processor refused the payment method.
// Message is safe to show to the payer.
type DeclineError struct {
	Message string
	Err     error
}

func (e *DeclineError) Error() string {
	return "payment declined: " + e.Message
}

func (e *DeclineError) Unwrap() error {
	return e.Err
}

// New builds the gateway selected by cfg.Provider.
func New(cfg config.PaymentConfig) (Gateway, error) {
	switch cfg.Provider {
	case "stripe":
		return NewStripeGateway(cfg.StripeSecretKey, cfg.Currency), nil
	case "razorpay":
		return NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.Currency), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.Provider)
	}
}

// toMinor converts a major-unit amount to cents/paise.
func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinor(amount int64) float64 {
	return float64(amount) / 100
}

// SameAmount reports whether a and b are equal once rounded to minor units.
func SameAmount(a, b float64) bool {
	return toMinor(a) == toMinor(b)
}
