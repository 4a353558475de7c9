package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/domain"
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
)

// StripeVerifier checks the Stripe-Signature header over the raw webhook body.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: strings.TrimSpace(secret), tolerance: webhook.DefaultTolerance}
}

func (v *StripeVerifier) Verify(payload []byte, signature string) (domain.ProviderEvent, error) {
	if v.secret == "" {
		return domain.ProviderEvent{}, domain.Newf(domain.ErrInvalidSignature, "webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.ProviderEvent{}, &domain.Error{
			Kind:    domain.KindAuthentication,
			Code:    domain.CodeInvalidSignature,
			Message: "invalid provider signature",
			Err:     err,
		}
	}

	ev := domain.ProviderEvent{
		ID:        event.ID,
		Type:      string(event.Type),
		Kind:      domain.EventOther,
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}
	switch ev.Type {
	case eventIntentSucceeded:
		ev.Kind = domain.EventPaymentSucceeded
	case eventIntentFailed:
		ev.Kind = domain.EventPaymentFailed
	default:
		return ev, nil
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return domain.ProviderEvent{}, domain.Newf(domain.ErrInvalidSignature, "event %s has no payload object", event.ID)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return domain.ProviderEvent{}, &domain.Error{Kind: domain.KindValidation, Code: domain.CodeInvalidInput,
			Message: fmt.Sprintf("event %s carries a malformed payment intent", event.ID), Err: err}
	}
	ev.IntentID = intent.ID
	ev.Metadata = intent.Metadata
	return ev, nil
}

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	// Intents replaces the Stripe client, used by tests.
	Intents stripeIntentAPI
}

// StripeProvider creates payment intents with automatic payment methods.
type StripeProvider struct {
	intents stripeIntentAPI
}

var _ application.PaymentProvider = (*StripeProvider)(nil)

func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	intents := cfg.Intents
	if intents == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(key, cfg.Backends).PaymentIntents
	}
	return &StripeProvider{intents: intents}, nil
}

func (p *StripeProvider) CreateIntent(ctx context.Context, req application.IntentRequest) (domain.PaymentIntent, error) {
	if req.AmountCents <= 0 {
		return domain.PaymentIntent{}, domain.Validation("payment amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.intents.New(params)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return domain.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (p *StripeProvider) GetIntent(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.intents.Get(intentID, params)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("stripe: get payment intent %s: %w", intentID, err)
	}
	return domain.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

var errNotConfigured = errors.New("payments: provider is not configured")

// DisabledProvider stands in when no Stripe key is configured; every call fails as unavailable.
type DisabledProvider struct{}

func (DisabledProvider) CreateIntent(context.Context, application.IntentRequest) (domain.PaymentIntent, error) {
	return domain.PaymentIntent{}, errNotConfigured
}

func (DisabledProvider) GetIntent(context.Context, string) (domain.PaymentIntent, error) {
	return domain.PaymentIntent{}, errNotConfigured
}
