package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/metrics"
	"github.com/RaikyD/storefront-orders/internal/repository"
)

var tracer = otel.Tracer("github.com/RaikyD/storefront-orders/internal/application")

// maxNumberAttempts bounds order-number regeneration after a unique-key collision.
const maxNumberAttempts = 5

const maxNoteLength = 1000

// NumberSource issues order numbers.
type NumberSource interface {
	Next() string
}

// Deps are the collaborators of the order core. Every handle is injected; nothing is global.
type Deps struct {
	Orders    repository.OrderRepo
	Tx        repository.TxManager
	Stock     repository.StockLedger
	Catalog   repository.CatalogReader
	Addresses repository.AddressReader
	Events    repository.EventLog
	Pricing   domain.PricingConfig
	Numbers   NumberSource
	Publisher Publisher
	Clock     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}

type OrdersService struct {
	deps   Deps
	notify *notifier
}

func NewOrdersService(d Deps) *OrdersService {
	if d.Numbers == nil {
		d.Numbers = domain.NewOrderNumberGenerator(nil, nil)
	}
	return &OrdersService{deps: d, notify: newNotifier(d.Publisher)}
}

// Drain waits for in-flight order event notifications.
func (s *OrdersService) Drain() {
	s.notify.drain()
}

// CreateOrderRequest is the input of CreateOrder.
type CreateOrderRequest struct {
	AddressID    string               `json:"address_id"`
	Items        []domain.ItemRequest `json:"items"`
	DeliveryDate *time.Time           `json:"delivery_date,omitempty"`
	Note         *string              `json:"notes,omitempty"`
}

func (r CreateOrderRequest) validate() error {
	if strings.TrimSpace(r.AddressID) == "" {
		return domain.Validation("address_id is required")
	}
	if len(r.Items) == 0 {
		return &domain.Error{Kind: domain.KindValidation, Code: domain.CodeEmptyOrder, Message: "order must contain at least one item"}
	}
	seen := make(map[string]struct{}, len(r.Items))
	for _, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return domain.Validation("product_id is required")
		}
		if it.Quantity < 1 {
			return domain.Newf(domain.ErrInvalidQuantity, "quantity for product %s must be at least 1", it.ProductID)
		}
		if _, dup := seen[it.ProductID]; dup {
			return domain.Newf(domain.ErrDuplicateProduct, "product %s is listed more than once", it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
	}
	if r.Note != nil && len(*r.Note) > maxNoteLength {
		return domain.Validation("notes must be at most %d characters", maxNoteLength)
	}
	return nil
}

// CreateOrder prices the requested items, reserves their stock and persists a PENDING/UNPAID
// order in one transaction. Nothing is persisted and stock is untouched when any step fails.
func (s *OrdersService) CreateOrder(ctx context.Context, req domain.Requester, in CreateOrderRequest) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.create", trace.WithAttributes(attribute.String("user.id", req.UserID)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.Newf(domain.ErrAccessDenied, "authentication required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	addr, err := s.deps.Addresses.FindAddress(ctx, in.AddressID)
	if err != nil {
		return nil, err
	}
	if addr.UserID != req.UserID {
		return nil, domain.Newf(domain.ErrAddressNotOwned, "address %s does not belong to the user", in.AddressID)
	}

	ids := make([]string, len(in.Items))
	for i, it := range in.Items {
		ids[i] = it.ProductID
	}
	catalog, err := s.deps.Catalog.FetchActiveProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(catalog) != len(ids) {
		for _, id := range ids {
			if _, ok := catalog[id]; !ok {
				return nil, domain.Newf(domain.ErrUnavailableProduct, "product %s is unavailable", id)
			}
		}
	}
	for _, it := range in.Items {
		if p := catalog[it.ProductID]; p.Stock < it.Quantity {
			metrics.StockConflicts.Inc()
			return nil, domain.Newf(domain.ErrInsufficientStock, "product %s: requested %d, available %d", it.ProductID, it.Quantity, p.Stock)
		}
	}

	lines, totals, err := s.deps.Pricing.Price(in.Items, catalog)
	if err != nil {
		return nil, err
	}

	err = s.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := reserveAll(ctx, s.deps.Stock, lines); err != nil {
			return err
		}
		o, err := s.insertWithFreshNumber(ctx, req.UserID, in, lines, totals)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			metrics.StockConflicts.Inc()
		}
		logger.Warn("create order failed", "user_id", req.UserID, "err", err)
		return nil, err
	}

	order.Address = addr
	metrics.OrdersCreated.Inc()
	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	logger.Info("order created", "order_number", order.OrderNumber, "total", order.Total.StringFixed(2))
	s.notify.publish(domain.NewOrderEvent(domain.OrderEventCreated, order, s.deps.now()))
	return order, nil
}

func (s *OrdersService) insertWithFreshNumber(ctx context.Context, userID string, in CreateOrderRequest, lines []domain.LineItem, totals domain.Totals) (*domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		o, err := domain.NewOrder(domain.NewOrderParams{
			ID:           uuid.New(),
			OrderNumber:  s.deps.Numbers.Next(),
			UserID:       userID,
			AddressID:    in.AddressID,
			Items:        lines,
			Totals:       totals,
			DeliveryDate: in.DeliveryDate,
			Note:         in.Note,
			Now:          s.deps.now(),
		})
		if err != nil {
			return nil, err
		}
		err = s.deps.Orders.Insert(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, domain.ErrOrderNumberCollision) {
			return nil, err
		}
		logger.Debug("order number collision, regenerating", "order_number", o.OrderNumber, "attempt", attempt+1)
		lastErr = err
	}
	return nil, fmt.Errorf("allocate order number: %w", lastErr)
}

// byProduct returns a copy of lines sorted by product id. Every stock mutation walks products in
// this order so concurrent orders lock product rows in the same sequence.
func byProduct(lines []domain.LineItem) []domain.LineItem {
	ordered := make([]domain.LineItem, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })
	return ordered
}

// reserveAll reserves every line in product-id order. When a reservation is refused the ones
// already made are released, so ledgers outside the surrounding transaction stay consistent.
// A transient failure aborts the transaction itself and its rollback restores the stock.
func reserveAll(ctx context.Context, ledger repository.StockLedger, lines []domain.LineItem) error {
	ordered := byProduct(lines)

	for i, li := range ordered {
		if err := ledger.Reserve(ctx, li.ProductID, li.Quantity); err != nil {
			logger.Warn("stock reservation failed", "product_id", li.ProductID, "qty", li.Quantity, "err", err)
			if domain.KindOf(err) == domain.KindTransient {
				return err
			}
			for j := i - 1; j >= 0; j-- {
				if rerr := ledger.Release(ctx, ordered[j].ProductID, ordered[j].Quantity); rerr != nil {
					logger.Error("compensating release failed", "product_id", ordered[j].ProductID, "qty", ordered[j].Quantity, "err", rerr)
				}
			}
			return err
		}
	}
	return nil
}

func releaseAll(ctx context.Context, ledger repository.StockLedger, o *domain.Order) error {
	for _, li := range byProduct(o.Items) {
		if err := ledger.Release(ctx, li.ProductID, li.Quantity); err != nil {
			logger.Warn("stock release failed", "order_number", o.OrderNumber, "product_id", li.ProductID, "err", err)
			return err
		}
	}
	return nil
}

// GetOrder returns the order to its owner or an elevated requester.
func (s *OrdersService) GetOrder(ctx context.Context, req domain.Requester, orderNumber string) (*domain.Order, error) {
	o, err := s.deps.Orders.FindByNumber(ctx, orderNumber, false)
	if err != nil {
		return nil, err
	}
	if err := domain.Authorize(req, domain.CapReadOrder, o.UserID); err != nil {
		return nil, err
	}
	s.hydrateAddress(ctx, o)
	return o, nil
}

func (s *OrdersService) hydrateAddress(ctx context.Context, o *domain.Order) {
	addr, err := s.deps.Addresses.FindAddress(ctx, o.AddressID)
	if err != nil {
		logger.Warn("order address unavailable", "order_number", o.OrderNumber, "err", err)
		return
	}
	o.Address = addr
}

// ListMyOrders pages through the requester's own orders, newest first.
func (s *OrdersService) ListMyOrders(ctx context.Context, req domain.Requester, page domain.Page) (domain.OrderPage, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return domain.OrderPage{}, domain.Newf(domain.ErrAccessDenied, "authentication required")
	}
	return s.list(ctx, domain.OrderFilter{UserID: req.UserID}, page)
}

// ListAllOrders pages through every order. status may be empty.
func (s *OrdersService) ListAllOrders(ctx context.Context, req domain.Requester, status string, page domain.Page) (domain.OrderPage, error) {
	if err := domain.Authorize(req, domain.CapListAllOrders, ""); err != nil {
		return domain.OrderPage{}, err
	}
	if page.Limit < 1 {
		page.Limit = domain.DefaultAdminPageLimit
	}
	filter := domain.OrderFilter{}
	if strings.TrimSpace(status) != "" {
		st, ok := domain.ParseStatus(status)
		if !ok {
			return domain.OrderPage{}, domain.Validation("unknown status %q", status)
		}
		filter.Status = st
	}
	return s.list(ctx, filter, page)
}

func (s *OrdersService) list(ctx context.Context, filter domain.OrderFilter, page domain.Page) (domain.OrderPage, error) {
	page = page.Normalize()
	orders, total, err := s.deps.Orders.List(ctx, filter, page)
	if err != nil {
		return domain.OrderPage{}, err
	}
	return domain.NewOrderPage(orders, page, total), nil
}

// CancelOrder moves the order to CANCELLED and releases every line item in the same transaction.
func (s *OrdersService) CancelOrder(ctx context.Context, req domain.Requester, orderNumber string) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.cancel", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer func() { endSpan(span, err) }()

	err = s.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.deps.Orders.FindByNumber(ctx, orderNumber, true)
		if err != nil {
			return err
		}
		if err := domain.Authorize(req, domain.CapCancelOrder, o.UserID); err != nil {
			return err
		}
		if err := s.cancelLocked(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		logger.Warn("cancel order failed", "order_number", orderNumber, "err", err)
		return nil, err
	}

	metrics.OrdersCancelled.Inc()
	logger.Info("order cancelled", "order_number", order.OrderNumber)
	s.notify.publish(domain.NewOrderEvent(domain.OrderEventCancelled, order, s.deps.now()))
	return order, nil
}

// cancelLocked expects o to be locked by the surrounding transaction.
func (s *OrdersService) cancelLocked(ctx context.Context, o *domain.Order) error {
	if err := o.Cancel(s.deps.now()); err != nil {
		return err
	}
	if err := releaseAll(ctx, s.deps.Stock, o); err != nil {
		return err
	}
	return s.deps.Orders.UpdateStatus(ctx, o)
}

// UpdateStatus moves an order along the lifecycle graph. CANCELLED goes through the cancel path
// so the stock is released.
func (s *OrdersService) UpdateStatus(ctx context.Context, req domain.Requester, orderNumber, status string) (order *domain.Order, err error) {
	if err := domain.Authorize(req, domain.CapUpdateStatus, ""); err != nil {
		return nil, err
	}
	target, ok := domain.ParseStatus(status)
	if !ok {
		return nil, domain.Validation("unknown status %q", status)
	}
	if target == domain.StatusCancelled {
		return s.CancelOrder(ctx, req, orderNumber)
	}

	ctx, span := tracer.Start(ctx, "orders.update_status", trace.WithAttributes(
		attribute.String("order.number", orderNumber),
		attribute.String("order.status", string(target)),
	))
	defer func() { endSpan(span, err) }()

	var from domain.Status
	err = s.deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.deps.Orders.FindByNumber(ctx, orderNumber, true)
		if err != nil {
			return err
		}
		from = o.Status
		if err := o.TransitionTo(target, s.deps.now()); err != nil {
			return err
		}
		if err := s.deps.Orders.UpdateStatus(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		logger.Warn("update order status failed", "order_number", orderNumber, "target", target, "err", err)
		return nil, err
	}

	logger.Info("order status changed", "order_number", orderNumber, "from", from, "to", target)
	s.notify.publish(domain.NewOrderEvent(domain.OrderEventStatusChanged, order, s.deps.now()))
	return order, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.PublicMessage(err))
		span.SetAttributes(attribute.String("error.kind", string(domain.KindOf(err))))
	}
	span.End()
}
