package presentation

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
)

const maxWebhookBytes = 64 << 10

type PaymentsUseCases interface {
	CreatePaymentIntent(ctx context.Context, req domain.Requester, orderNumber string) (domain.PaymentIntent, error)
	GetPaymentStatus(ctx context.Context, req domain.Requester, orderNumber string) (application.PaymentStatusView, error)
}

type ProviderEventHandler interface {
	HandleProviderEvent(ctx context.Context, payload []byte, signature string) (application.Outcome, error)
}

type PaymentsHandler struct {
	svc        PaymentsUseCases
	reconciler ProviderEventHandler
}

func NewPaymentsHandler(svc PaymentsUseCases, reconciler ProviderEventHandler) *PaymentsHandler {
	return &PaymentsHandler{svc: svc, reconciler: reconciler}
}

// Register mounts the authenticated payment routes.
func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments/create-intent", h.CreateIntent)
	r.Get("/payments/status/{orderNumber}", h.Status)
}

// RegisterWebhook mounts the provider callback, which authenticates by signature instead of a token.
func (h *PaymentsHandler) RegisterWebhook(r chi.Router) {
	r.Post("/payments/webhook", h.Webhook)
}

type createIntentBody struct {
	OrderNumber string `json:"order_number"`
}

type createIntentResponse struct {
	OrderNumber     string `json:"order_number"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
}

func (h *PaymentsHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var body createIntentBody
	if err := helpers.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	number := strings.ToUpper(strings.TrimSpace(body.OrderNumber))
	if !domain.ValidOrderNumber(number) {
		badRequest(w, "malformed order number")
		return
	}

	pi, err := h.svc.CreatePaymentIntent(r.Context(), RequesterFrom(r.Context()), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, createIntentResponse{
		OrderNumber:     number,
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
	})
}

type paymentStatusResponse struct {
	OrderNumber     string  `json:"order_number"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"payment_status"`
	PaymentIntentID *string `json:"payment_intent_id,omitempty"`
	Total           string  `json:"total"`
}

func (h *PaymentsHandler) Status(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumberParam(w, r)
	if !ok {
		return
	}
	v, err := h.svc.GetPaymentStatus(r.Context(), RequesterFrom(r.Context()), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, paymentStatusResponse{
		OrderNumber:     v.OrderNumber,
		Status:          string(v.Status),
		PaymentStatus:   string(v.PaymentStatus),
		PaymentIntentID: v.PaymentIntentID,
		Total:           v.Total.StringFixed(2),
	})
}

// Webhook answers 2xx only after the event has been applied or recognised as a no-op, so the
// provider redelivers anything that failed transiently.
func (h *PaymentsHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		badRequest(w, "webhook body too large or unreadable")
		return
	}

	outcome, err := h.reconciler.HandleProviderEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if domain.KindOf(err) != domain.KindTransient {
			logger.Warn("webhook rejected", "code", domain.CodeOf(err))
		}
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": outcome})
}
