package payments

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"careconnect-server/internal/config"
)

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1050), toMinor(10.5))
	assert.Equal(t, int64(3000), toMinor(30))
	assert.Equal(t, int64(1), toMinor(0.005))
	assert.InDelta(t, 12.34, fromMinor(1234), 1e-9)
}

func TestSameAmount(t *testing.T) {
	assert.True(t, SameAmount(50, 50.0))
	assert.True(t, SameAmount(0.1+0.2, 0.3))
	assert.False(t, SameAmount(50, 80))
	assert.False(t, SameAmount(10.5, 10.51))
}

func TestStripeIntent(t *testing.T) {
	intent := stripeIntent(&stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: 5000, Status: stripe.PaymentIntentStatusRequiresPaymentMethod})
	assert.Equal(t, "pi_1", intent.ID)
	assert.InDelta(t, 50.0, intent.Amount, 1e-9)
	assert.False(t, intent.Paid)
	assert.False(t, intent.Canceled)

	assert.True(t, stripeIntent(&stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded}).Paid)
	canceled := stripeIntent(&stripe.PaymentIntent{Status: stripe.PaymentIntentStatusCanceled})
	assert.True(t, canceled.Canceled)
	assert.False(t, canceled.Paid)
}

func TestClassifyStripeError(t *testing.T) {
	declined := classifyStripeError(&stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."})
	var decline *DeclineError
	require.True(t, errors.As(declined, &decline))
	assert.Equal(t, "Your card was declined.", decline.Message)

	other := classifyStripeError(&stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"})
	assert.False(t, errors.As(other, &decline))

	plain := classifyStripeError(errors.New("dial tcp: timeout"))
	assert.False(t, errors.As(plain, &decline))
	assert.Contains(t, plain.Error(), "timeout")
}

func TestParseOrder(t *testing.T) {
	intent, err := parseOrder(map[string]interface{}{
		"id":     "order_123",
		"amount": float64(4500),
		"status": "paid",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_123", intent.ID)
	assert.Equal(t, "order_123", intent.ClientSecret)
	assert.InDelta(t, 45.0, intent.Amount, 1e-9)
	assert.True(t, intent.Paid)

	intent, err = parseOrder(map[string]interface{}{"id": "order_124", "amount": float64(100), "status": "created"})
	require.NoError(t, err)
	assert.False(t, intent.Paid)

	_, err = parseOrder(map[string]interface{}{"status": "created"})
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	gw, err := New(config.PaymentConfig{Provider: "stripe", StripeSecretKey: "sk_test_x", Currency: "usd"})
	require.NoError(t, err)
	assert.IsType(t, &StripeGateway{}, gw)

	gw, err = New(config.PaymentConfig{Provider: "razorpay", RazorpayKeyID: "rzp", RazorpayKeySecret: "s"})
	require.NoError(t, err)
	assert.IsType(t, &RazorpayGateway{}, gw)

	_, err = New(config.PaymentConfig{Provider: "paypal"})
	assert.Error(t, err)
}
