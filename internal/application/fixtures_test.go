package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/repository"
	"github.com/RaikyD/storefront-orders/internal/repository/memory"
)

var (
	customer = domain.Requester{UserID: "u1", Role: domain.RoleCustomer}
	stranger = domain.Requester{UserID: "u2", Role: domain.RoleCustomer}
	admin    = domain.Requester{UserID: "admin", Role: domain.RoleAdmin}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, ev domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// fakeVerifier accepts the signature "valid" and decodes a small JSON envelope.
type fakeVerifier struct{}

func (fakeVerifier) Verify(payload []byte, signature string) (domain.ProviderEvent, error) {
	if signature != "valid" {
		return domain.ProviderEvent{}, domain.Newf(domain.ErrInvalidSignature, "signature mismatch")
	}
	var env struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.ProviderEvent{}, domain.Newf(domain.ErrInvalidSignature, "malformed payload")
	}
	kind := domain.EventOther
	switch env.Type {
	case "payment_intent.succeeded":
		kind = domain.EventPaymentSucceeded
	case "payment_intent.payment_failed":
		kind = domain.EventPaymentFailed
	}
	return domain.ProviderEvent{ID: env.ID, Type: env.Type, Kind: kind, IntentID: env.Intent}, nil
}

func eventPayload(t *testing.T, id, typ, intent string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{"id": id, "type": typ, "intent": intent})
	require.NoError(t, err)
	return b
}

func tickingClock(start time.Time) func() time.Time {
	var (
		mu sync.Mutex
		n  int
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

// passThroughTx runs fn without any transaction, like a ledger that cannot join one.
type passThroughTx struct{}

func (passThroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	store      *memory.Store
	pub        *recordingPublisher
	deps       Deps
	orders     *OrdersService
	reconciler *PaymentReconciler
}

func newFixture(t *testing.T, stockA, stockB int, tweak ...func(*Deps)) *fixture {
	t.Helper()
	store := memory.New()
	store.AddProduct(domain.ProductSnapshot{ID: "A", Name: "Mug", Slug: "mug", Price: decimal.RequireFromString("10.00"), Stock: stockA, Active: true})
	store.AddProduct(domain.ProductSnapshot{ID: "B", Name: "Lamp", Slug: "lamp", Price: decimal.RequireFromString("25.00"), Stock: stockB, Active: true})
	store.AddProduct(domain.ProductSnapshot{ID: "OFF", Name: "Retired", Price: decimal.RequireFromString("1.00"), Stock: 100, Active: false})
	store.AddAddress(domain.Address{ID: "addr-1", UserID: "u1", Name: "Ann", Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"})
	store.AddAddress(domain.Address{ID: "addr-2", UserID: "u2", Name: "Bob", Street: "2 Oak Ave", City: "Shelbyville", PostalCode: "54321", Country: "US"})

	pub := &recordingPublisher{}
	deps := Deps{
		Orders:    store,
		Tx:        store,
		Stock:     store,
		Catalog:   store,
		Addresses: store,
		Events:    store,
		Pricing:   domain.DefaultPricing(),
		Publisher: pub,
		Clock:     tickingClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	return &fixture{
		store:      store,
		pub:        pub,
		deps:       deps,
		orders:     NewOrdersService(deps),
		reconciler: NewPaymentReconciler(deps, fakeVerifier{}),
	}
}

func (f *fixture) create(t *testing.T, items ...domain.ItemRequest) *domain.Order {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), customer, CreateOrderRequest{AddressID: "addr-1", Items: items})
	require.NoError(t, err)
	return o
}

func (f *fixture) bindIntent(t *testing.T, o *domain.Order, intentID string) {
	t.Helper()
	set, err := f.store.SetPaymentIntent(context.Background(), o.ID.String(), intentID)
	require.NoError(t, err)
	require.True(t, set)
}

func item(id string, qty int) domain.ItemRequest {
	return domain.ItemRequest{ProductID: id, Quantity: qty}
}

// failingLedger fails Reserve for one product and delegates everything else.
type failingLedger struct {
	repository.StockLedger
	failOn string
}

func (l failingLedger) Reserve(ctx context.Context, productID string, qty int) error {
	if productID == l.failOn {
		return domain.Newf(domain.ErrInsufficientStock, "product %s sold out", productID)
	}
	return l.StockLedger.Reserve(ctx, productID, qty)
}

type sequenceNumbers struct {
	mu   sync.Mutex
	next []string
}

func (s *sequenceNumbers) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next[0]
	if len(s.next) > 1 {
		s.next = s.next[1:]
	}
	return n
}

// recordingLedger logs every stock mutation in call order and can fail one reservation.
type recordingLedger struct {
	repository.StockLedger
	mu     sync.Mutex
	calls  []string
	failOn string
	fail   error
}

func (l *recordingLedger) Reserve(ctx context.Context, productID string, qty int) error {
	l.record("reserve:" + productID)
	if productID == l.failOn {
		return l.fail
	}
	return l.StockLedger.Reserve(ctx, productID, qty)
}

func (l *recordingLedger) Release(ctx context.Context, productID string, qty int) error {
	l.record("release:" + productID)
	return l.StockLedger.Release(ctx, productID, qty)
}

func (l *recordingLedger) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *recordingLedger) log() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}
