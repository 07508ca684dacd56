package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeGateway creates Stripe PaymentIntents. The client secret is handed to the
// payer's checkout page; the intent id is the stored reference.
type StripeGateway struct {
	client *client.API
}

// NewStripeGateway creates a new StripeGateway with the provided secret key
func NewStripeGateway(apiKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{client: sc}
}

func (sg *StripeGateway) CreateIntent(ctx context.Context, req Request) (Intent, error) {
	if !req.Amount.IsPositive() {
		return Intent{}, ErrInvalidAmount
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.MinorAmount()),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String("Invoice " + req.Number),
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.AddMetadata("invoice_id", strconv.FormatUint(uint64(req.InvoiceID), 10))
	params.AddMetadata("tenant_id", req.TenantID)
	params.Context = ctx

	pi, err := sg.client.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, mapStripeError(err)
	}
	return Intent{
		Provider:     "stripe",
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// mapStripeError converts stripe errors into the package's errors.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", ErrProviderDown, stripeErr.Msg)
		}
		return fmt.Errorf("%w: %s (%s)", ErrRejected, stripeErr.Msg, stripeErr.Code)
	}
	return fmt.Errorf("stripe: %w", err)
}
