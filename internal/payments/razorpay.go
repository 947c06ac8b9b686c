package payments

import (
	"context"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayGateway creates Razorpay orders. The order id doubles as the
// client secret handed to Razorpay Checkout.
type RazorpayGateway struct {
	client   *razorpay.Client
	currency string
}

// NewRazorpayGateway creates a new RazorpayGateway.
func NewRazorpayGateway(keyID, keySecret, currency string) *RazorpayGateway {
	if currency == "" {
		currency = "inr"
	}
	return &RazorpayGateway{client: razorpay.NewClient(keyID, keySecret), currency: currency}
}

// CreateIntent implements Gateway. Orders are created before the payer
// enters card details, so failures here are never declines.
func (g *RazorpayGateway) CreateIntent(ctx context.Context, amount float64, metadata map[string]string) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notes := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":   toMinor(amount),
		"currency": strings.ToUpper(g.currency),
		"receipt":  metadata["appointment_id"],
		"notes":    notes,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: create order: %w", err)
	}
	return parseOrder(body)
}

// FetchIntent implements Gateway.
func (g *RazorpayGateway) FetchIntent(ctx context.Context, id string) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := g.client.Order.Fetch(id, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: fetch order: %w", err)
	}
	return parseOrder(body)
}

// CancelIntent implements Gateway. Unpaid Razorpay orders expire on their
// own and cannot be cancelled through the API.
func (g *RazorpayGateway) CancelIntent(ctx context.Context, id string) error {
	return nil
}

func parseOrder(body map[string]interface{}) (*Intent, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay: order response without id")
	}
	var amount float64
	switch v := body["amount"].(type) {
	case float64:
		amount = v
	case int64:
		amount = float64(v)
	case int:
		amount = float64(v)
	}
	status, _ := body["status"].(string)
	return &Intent{
		ID:           id,
		ClientSecret: id,
		Amount:       amount / 100,
		Paid:         status == "paid",
	}, nil
}
