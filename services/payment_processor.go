package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// ChargeRequest asks the processor to collect an amount from a saved payment method
type ChargeRequest struct {
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

// RefundRequest returns part or all of an earlier charge
type RefundRequest struct {
	ChargeReference string
	Amount          decimal.Decimal
	IdempotencyKey  string
}

// PaymentProcessor is the card processor. Implementations return a
// *DeclinedError when the card was refused; any other error is transient.
type PaymentProcessor interface {
	Charge(ctx context.Context, req ChargeRequest) (reference string, err error)
	Refund(ctx context.Context, req RefundRequest) (reference string, err error)
}

// DeclinedError means the processor refused the payment. Retrying will not help.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return "payment declined: " + e.Reason
}

func IsDeclined(err error) bool {
	var d *DeclinedError
	return errors.As(err, &d)
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// StripeProcessor charges cards through Stripe payment intents
type StripeProcessor struct {
	api *client.API
}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	return &StripeProcessor{api: client.New(secretKey, nil)}
}

func (p *StripeProcessor) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	currency := req.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toCents(req.Amount)),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Description:   stripe.String(req.Description),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return "", stripeError(err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return intent.ID, nil
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return intent.ID, &DeclinedError{Reason: fmt.Sprintf("payment requires customer action (%s)", intent.Status)}
	default:
		return intent.ID, fmt.Errorf("unexpected payment intent status %s", intent.Status)
	}
}

func (p *StripeProcessor) Refund(ctx context.Context, req RefundRequest) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ChargeReference),
		Amount:        stripe.Int64(toCents(req.Amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	refund, err := p.api.Refunds.New(params)
	if err != nil {
		return "", stripeError(err)
	}
	return refund.ID, nil
}

func stripeError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
		return &DeclinedError{Reason: serr.Msg}
	}
	return fmt.Errorf("stripe request failed: %w", err)
}
