package application

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/metrics"
)

// EventVerifier authenticates a raw provider payload and decodes it.
type EventVerifier interface {
	Verify(payload []byte, signature string) (domain.ProviderEvent, error)
}

// Outcome reports what HandleProviderEvent did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnmatched Outcome = "unmatched"
)

// PaymentReconciler applies provider payment events to orders. Redelivered and out-of-order
// events never double-apply: each event id is recorded in the same transaction as its effect,
// and stale payment transitions are dropped by the state machine.
type PaymentReconciler struct {
	deps     Deps
	verifier EventVerifier
	notify   *notifier
}

func NewPaymentReconciler(d Deps, v EventVerifier) *PaymentReconciler {
	return &PaymentReconciler{deps: d, verifier: v, notify: newNotifier(d.Publisher)}
}

func (r *PaymentReconciler) Drain() {
	r.notify.drain()
}

// HandleProviderEvent verifies and applies one provider event. A nil error means the event may be
// acknowledged; it is returned only after the mutation is committed.
func (r *PaymentReconciler) HandleProviderEvent(ctx context.Context, payload []byte, signature string) (outcome Outcome, err error) {
	ev, err := r.verifier.Verify(payload, signature)
	if err != nil {
		metrics.ProviderEvents.WithLabelValues("unknown", "rejected").Inc()
		logger.Warn("provider event rejected", "err", err)
		if !errors.Is(err, domain.ErrInvalidSignature) {
			err = &domain.Error{Kind: domain.KindAuthentication, Code: domain.CodeInvalidSignature, Message: "invalid provider signature", Err: err}
		}
		return "", err
	}

	ctx, span := tracer.Start(ctx, "payments.reconcile", trace.WithAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.type", ev.Type),
	))
	defer func() {
		span.SetAttributes(attribute.String("event.outcome", string(outcome)))
		metrics.ProviderEvents.WithLabelValues(string(ev.Kind), string(outcomeLabel(outcome, err))).Inc()
		endSpan(span, err)
	}()

	return r.Apply(ctx, ev)
}

// Apply runs an already verified event through the reconciliation transaction.
func (r *PaymentReconciler) Apply(ctx context.Context, ev domain.ProviderEvent) (Outcome, error) {
	if ev.Kind != domain.EventPaymentSucceeded && ev.Kind != domain.EventPaymentFailed {
		logger.Debug("provider event ignored", "event_id", ev.ID, "type", ev.Type)
		return OutcomeIgnored, nil
	}
	if ev.IntentID == "" {
		logger.Warn("provider event without payment intent", "event_id", ev.ID, "type", ev.Type)
		return OutcomeIgnored, nil
	}

	var (
		outcome Outcome
		order   *domain.Order
		events  []string
	)
	err := r.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		outcome, order, events = "", nil, nil

		first, err := r.deps.Events.MarkProcessed(ctx, ev)
		if err != nil {
			return err
		}
		if !first {
			outcome = OutcomeDuplicate
			return nil
		}

		o, err := r.deps.Orders.FindByPaymentIntent(ctx, ev.IntentID, true)
		if errors.Is(err, domain.ErrOrderNotFound) {
			outcome = OutcomeUnmatched
			return nil
		}
		if err != nil {
			return err
		}

		now := r.deps.now()
		switch ev.Kind {
		case domain.EventPaymentSucceeded:
			changed, confirmed := o.CompletePayment(now)
			if !changed {
				outcome = OutcomeDuplicate
				return nil
			}
			if o.Status == domain.StatusCancelled {
				logger.Warn("payment completed for cancelled order", "order_number", o.OrderNumber, "event_id", ev.ID)
			}
			events = append(events, domain.OrderEventPaymentCompleted)
			if confirmed {
				events = append(events, domain.OrderEventStatusChanged)
			}
		case domain.EventPaymentFailed:
			if !o.ApplyPayment(domain.PaymentFailed, now) {
				outcome = OutcomeDuplicate
				return nil
			}
			events = append(events, domain.OrderEventPaymentFailed)
		}

		if err := r.deps.Orders.UpdateStatus(ctx, o); err != nil {
			return err
		}
		outcome, order = OutcomeApplied, o
		return nil
	})
	if err != nil {
		logger.Warn("provider event failed", "event_id", ev.ID, "intent_id", ev.IntentID, "err", err)
		return "", err
	}

	switch outcome {
	case OutcomeApplied:
		logger.Info("provider event applied", "event_id", ev.ID, "order_number", order.OrderNumber,
			"payment_status", order.PaymentStatus, "status", order.Status)
		now := r.deps.now()
		for _, t := range events {
			r.notify.publish(domain.NewOrderEvent(t, order, now))
		}
	case OutcomeUnmatched:
		logger.Warn("provider event for unknown payment intent", "event_id", ev.ID, "intent_id", ev.IntentID)
	default:
		logger.Debug("provider event already applied", "event_id", ev.ID)
	}
	return outcome, nil
}

func outcomeLabel(o Outcome, err error) Outcome {
	if err != nil {
		return "error"
	}
	return o
}
