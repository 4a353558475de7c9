package payments

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/domain"
)

const testSecret = "whsec_test_secret"

func signedHeader(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

func eventJSON(id, typ, intentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": %q,
		"created": 1714567890,
		"data": {"object": {"id": %q, "object": "payment_intent", "metadata": {"orderNumber": "FS67890123042"}}}
	}`, id, typ, intentID))
}

func TestStripeVerifierDecodesIntentEvents(t *testing.T) {
	v := NewStripeVerifier(testSecret)
	now := time.Now()

	cases := []struct {
		typ  string
		kind domain.EventKind
	}{
		{"payment_intent.succeeded", domain.EventPaymentSucceeded},
		{"payment_intent.payment_failed", domain.EventPaymentFailed},
	}
	for _, tc := range cases {
		t.Run(tc.typ, func(t *testing.T) {
			payload := eventJSON("evt_1", tc.typ, "pi_123")
			ev, err := v.Verify(payload, signedHeader(payload, testSecret, now))
			require.NoError(t, err)
			assert.Equal(t, "evt_1", ev.ID)
			assert.Equal(t, tc.kind, ev.Kind)
			assert.Equal(t, "pi_123", ev.IntentID)
			assert.Equal(t, "FS67890123042", ev.Metadata["orderNumber"])
		})
	}
}

func TestStripeVerifierOtherEvents(t *testing.T) {
	v := NewStripeVerifier(testSecret)
	payload := eventJSON("evt_2", "charge.refunded", "ch_1")
	ev, err := v.Verify(payload, signedHeader(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, domain.EventOther, ev.Kind)
	assert.Empty(t, ev.IntentID)
}

func TestStripeVerifierRejectsBadSignatures(t *testing.T) {
	v := NewStripeVerifier(testSecret)
	payload := eventJSON("evt_3", "payment_intent.succeeded", "pi_1")

	cases := map[string]string{
		"wrong secret": signedHeader(payload, "whsec_other", time.Now()),
		"stale":        signedHeader(payload, testSecret, time.Now().Add(-time.Hour)),
		"garbage":      "t=1,v1=deadbeef",
		"empty":        "",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(payload, header)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
		})
	}

	tampered := eventJSON("evt_3", "payment_intent.succeeded", "pi_2")
	_, err := v.Verify(tampered, signedHeader(payload, testSecret, time.Now()))
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))

	_, err = NewStripeVerifier("").Verify(payload, signedHeader(payload, testSecret, time.Now()))
	assert.True(t, errors.Is(err, domain.ErrInvalidSignature))
}

type fakeIntents struct {
	last *stripe.PaymentIntentParams
	err  error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.last = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{ID: "pi_new", ClientSecret: "pi_new_secret"}, nil
}

func (f *fakeIntents) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return &stripe.PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func TestStripeProviderCreateIntent(t *testing.T) {
	api := &fakeIntents{}
	p, err := NewStripeProvider(StripeProviderConfig{Intents: api})
	require.NoError(t, err)

	pi, err := p.CreateIntent(context.Background(), application.IntentRequest{
		AmountCents:    5549,
		Currency:       "USD",
		Metadata:       map[string]string{"orderNumber": "FS67890123042"},
		IdempotencyKey: "order-intent-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_new", pi.ID)
	assert.Equal(t, "pi_new_secret", pi.ClientSecret)

	require.NotNil(t, api.last)
	assert.Equal(t, int64(5549), *api.last.Amount)
	assert.Equal(t, "usd", *api.last.Currency)
	assert.Equal(t, "FS67890123042", api.last.Metadata["orderNumber"])
	assert.Equal(t, "order-intent-1", *api.last.IdempotencyKey)
	assert.True(t, *api.last.AutomaticPaymentMethods.Enabled)

	got, err := p.GetIntent(context.Background(), "pi_old")
	require.NoError(t, err)
	assert.Equal(t, "pi_old_secret", got.ClientSecret)
}

func TestStripeProviderErrors(t *testing.T) {
	_, err := NewStripeProvider(StripeProviderConfig{})
	require.Error(t, err)

	p, err := NewStripeProvider(StripeProviderConfig{Intents: &fakeIntents{err: errors.New("card network down")}})
	require.NoError(t, err)
	_, err = p.CreateIntent(context.Background(), application.IntentRequest{AmountCents: 100, Currency: "usd"})
	require.Error(t, err)

	_, err = p.CreateIntent(context.Background(), application.IntentRequest{AmountCents: 0, Currency: "usd"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
