package application

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/repository"
)

// IntentRequest asks the provider for a payment intent.
type IntentRequest struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentProvider creates and looks up payment intents.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (domain.PaymentIntent, error)
	GetIntent(ctx context.Context, intentID string) (domain.PaymentIntent, error)
}

// PaymentStatusView is the payment summary of one order.
type PaymentStatusView struct {
	OrderNumber     string               `json:"order_number"`
	Status          domain.Status        `json:"status"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	PaymentIntentID *string              `json:"payment_intent_id,omitempty"`
	Total           decimal.Decimal      `json:"total"`
}

type PaymentsService struct {
	orders   repository.OrderRepo
	provider PaymentProvider
	currency string
}

func NewPaymentsService(orders repository.OrderRepo, provider PaymentProvider, currency string) *PaymentsService {
	if currency == "" {
		currency = "usd"
	}
	return &PaymentsService{orders: orders, provider: provider, currency: strings.ToLower(currency)}
}

// CreatePaymentIntent returns the order's payment intent, creating it on first use. The intent
// reference is stored at most once; a repeated call reuses it.
func (s *PaymentsService) CreatePaymentIntent(ctx context.Context, req domain.Requester, orderNumber string) (domain.PaymentIntent, error) {
	o, err := s.orders.FindByNumber(ctx, orderNumber, false)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if err := domain.Authorize(req, domain.CapPayOrder, o.UserID); err != nil {
		return domain.PaymentIntent{}, err
	}
	if o.Status == domain.StatusCancelled {
		return domain.PaymentIntent{}, domain.Newf(domain.ErrPaymentNotAllowed, "order %s is cancelled", o.OrderNumber)
	}
	if o.PaymentStatus == domain.PaymentCompleted {
		return domain.PaymentIntent{}, domain.Newf(domain.ErrPaymentNotAllowed, "order %s is already paid", o.OrderNumber)
	}
	if s.provider == nil {
		return domain.PaymentIntent{}, domain.Transient(domain.CodeProviderUnavailable, "payment provider is not configured", nil)
	}
	if o.PaymentIntentID != nil {
		return s.existingIntent(ctx, o.OrderNumber, *o.PaymentIntentID)
	}

	pi, err := s.provider.CreateIntent(ctx, IntentRequest{
		AmountCents: o.Total.Round(2).Shift(2).IntPart(),
		Currency:    s.currency,
		Metadata: map[string]string{
			"orderId":     o.ID.String(),
			"orderNumber": o.OrderNumber,
		},
		IdempotencyKey: "order-intent-" + o.ID.String(),
	})
	if err != nil {
		logger.Warn("create payment intent failed", "order_number", o.OrderNumber, "err", err)
		return domain.PaymentIntent{}, providerErr(err)
	}

	set, err := s.orders.SetPaymentIntent(ctx, o.ID.String(), pi.ID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if !set {
		// Another request bound an intent first.
		cur, err := s.orders.FindByNumber(ctx, orderNumber, false)
		if err != nil {
			return domain.PaymentIntent{}, err
		}
		if cur.PaymentIntentID != nil && *cur.PaymentIntentID != pi.ID {
			return s.existingIntent(ctx, cur.OrderNumber, *cur.PaymentIntentID)
		}
	}
	logger.Info("payment intent created", "order_number", o.OrderNumber, "intent_id", pi.ID)
	return pi, nil
}

func (s *PaymentsService) existingIntent(ctx context.Context, orderNumber, intentID string) (domain.PaymentIntent, error) {
	pi, err := s.provider.GetIntent(ctx, intentID)
	if err != nil {
		logger.Warn("load payment intent failed", "order_number", orderNumber, "intent_id", intentID, "err", err)
		return domain.PaymentIntent{}, providerErr(err)
	}
	return pi, nil
}

// GetPaymentStatus follows the same access rule as GetOrder.
func (s *PaymentsService) GetPaymentStatus(ctx context.Context, req domain.Requester, orderNumber string) (PaymentStatusView, error) {
	o, err := s.orders.FindByNumber(ctx, orderNumber, false)
	if err != nil {
		return PaymentStatusView{}, err
	}
	if err := domain.Authorize(req, domain.CapReadPayment, o.UserID); err != nil {
		return PaymentStatusView{}, err
	}
	return PaymentStatusView{
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		PaymentIntentID: o.PaymentIntentID,
		Total:           o.Total,
	}, nil
}

func providerErr(err error) error {
	if domain.CodeOf(err) != "" {
		return err
	}
	return domain.Transient(domain.CodeProviderUnavailable, "payment provider unavailable", err)
}
