package presentation

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
)

const maxBodyBytes = 1 << 20

// OrdersUseCases is the order core as seen by the transport.
type OrdersUseCases interface {
	CreateOrder(ctx context.Context, req domain.Requester, in application.CreateOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, req domain.Requester, orderNumber string) (*domain.Order, error)
	ListMyOrders(ctx context.Context, req domain.Requester, page domain.Page) (domain.OrderPage, error)
	ListAllOrders(ctx context.Context, req domain.Requester, status string, page domain.Page) (domain.OrderPage, error)
	CancelOrder(ctx context.Context, req domain.Requester, orderNumber string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, req domain.Requester, orderNumber, status string) (*domain.Order, error)
}

type OrdersHandler struct {
	svc         OrdersUseCases
	idempotency func(http.Handler) http.Handler
}

func NewOrdersHandler(svc OrdersUseCases, idempotency func(http.Handler) http.Handler) *OrdersHandler {
	return &OrdersHandler{svc: svc, idempotency: idempotency}
}

func (h *OrdersHandler) Register(r chi.Router) {
	create := http.Handler(http.HandlerFunc(h.CreateOrder))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/orders", create)
	r.Get("/orders", h.ListAllOrders)
	r.Get("/orders/my-orders", h.ListMyOrders)
	r.Get("/orders/{orderNumber}", h.GetOrder)
	r.Patch("/orders/{orderNumber}/status", h.UpdateStatus)
	r.Patch("/orders/{orderNumber}/cancel", h.CancelOrder)
}

type createOrderBody struct {
	AddressID    string               `json:"address_id"`
	Items        []domain.ItemRequest `json:"items"`
	DeliveryDate *string              `json:"delivery_date"`
	Notes        *string              `json:"notes"`
}

func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderBody
	if err := helpers.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}

	in := application.CreateOrderRequest{
		AddressID: strings.TrimSpace(body.AddressID),
		Items:     body.Items,
		Note:      body.Notes,
	}
	if body.DeliveryDate != nil && strings.TrimSpace(*body.DeliveryDate) != "" {
		d, err := parseDate(*body.DeliveryDate)
		if err != nil {
			badRequest(w, "delivery_date must be YYYY-MM-DD or RFC 3339")
			return
		}
		in.DeliveryDate = &d
	}

	o, err := h.svc.CreateOrder(r.Context(), RequesterFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, toOrderView(o))
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumberParam(w, r)
	if !ok {
		return
	}
	o, err := h.svc.GetOrder(r.Context(), RequesterFrom(r.Context()), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r)
	if !ok {
		return
	}
	p, err := h.svc.ListMyOrders(r.Context(), RequesterFrom(r.Context()), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toOrderPageView(p))
}

func (h *OrdersHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r)
	if !ok {
		return
	}
	p, err := h.svc.ListAllOrders(r.Context(), RequesterFrom(r.Context()), r.URL.Query().Get("status"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toOrderPageView(p))
}

type statusBody struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumberParam(w, r)
	if !ok {
		return
	}
	var body statusBody
	if err := helpers.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &body); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Status) == "" {
		badRequest(w, "status is required")
		return
	}
	o, err := h.svc.UpdateStatus(r.Context(), RequesterFrom(r.Context()), number, body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumberParam(w, r)
	if !ok {
		return
	}
	o, err := h.svc.CancelOrder(r.Context(), RequesterFrom(r.Context()), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toOrderView(o))
}

func orderNumberParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	number := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "orderNumber")))
	if !domain.ValidOrderNumber(number) {
		badRequest(w, "malformed order number")
		return "", false
	}
	return number, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (domain.Page, bool) {
	var p domain.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &p.Page, "limit": &p.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			badRequest(w, name+" must be a positive integer")
			return domain.Page{}, false
		}
		*dst = v
	}
	return p, true
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}
