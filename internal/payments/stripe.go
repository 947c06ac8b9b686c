package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway creates Stripe PaymentIntents.
type StripeGateway struct {
	api      *client.API
	currency string
}

// NewStripeGateway creates a new StripeGateway.
func NewStripeGateway(secretKey, currency string) *StripeGateway {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{api: client.New(secretKey, nil), currency: currency}
}

// CreateIntent implements Gateway.
func (g *StripeGateway) CreateIntent(ctx context.Context, amount float64, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinor(amount)),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return stripeIntent(pi), nil
}

// FetchIntent implements Gateway.
func (g *StripeGateway) FetchIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return stripeIntent(pi), nil
}

// CancelIntent implements Gateway.
func (g *StripeGateway) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	if _, err := g.api.PaymentIntents.Cancel(id, params); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

func stripeIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       fromMinor(pi.Amount),
		Paid:         pi.Status == stripe.PaymentIntentStatusSucceeded,
		Canceled:     pi.Status == stripe.PaymentIntentStatusCanceled,
	}
}

// classifyStripeError separates card declines from everything else.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return &DeclineError{Message: stripeErr.Msg, Err: err}
	}
	return fmt.Errorf("stripe: %w", err)
}
