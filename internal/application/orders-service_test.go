package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

func TestCreateOrderPricesAndReserves(t *testing.T) {
	f := newFixture(t, 5, 5)

	o := f.create(t, item("A", 2), item("B", 1))

	assert.True(t, domain.ValidOrderNumber(o.OrderNumber))
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, domain.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, "45.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "4.50", o.Tax.StringFixed(2))
	assert.Equal(t, "5.99", o.DeliveryFee.StringFixed(2))
	assert.Equal(t, "55.49", o.Total.StringFixed(2))
	require.NotNil(t, o.Address)
	assert.Equal(t, "Springfield", o.Address.City)
	assert.Equal(t, 3, f.store.Stock("A"))
	assert.Equal(t, 4, f.store.Stock("B"))

	f.orders.Drain()
	assert.Equal(t, []string{domain.OrderEventCreated}, f.pub.types())
}

func TestCreateOrderRejectsInput(t *testing.T) {
	f := newFixture(t, 5, 5)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.Requester
		in   CreateOrderRequest
		want *domain.Error
	}{
		{"unknown address", customer, CreateOrderRequest{AddressID: "nope", Items: []domain.ItemRequest{item("A", 1)}}, domain.ErrAddressNotFound},
		{"foreign address", customer, CreateOrderRequest{AddressID: "addr-2", Items: []domain.ItemRequest{item("A", 1)}}, domain.ErrAddressNotOwned},
		{"inactive product", customer, CreateOrderRequest{AddressID: "addr-1", Items: []domain.ItemRequest{item("OFF", 1)}}, domain.ErrUnavailableProduct},
		{"missing product", customer, CreateOrderRequest{AddressID: "addr-1", Items: []domain.ItemRequest{item("ghost", 1)}}, domain.ErrUnavailableProduct},
		{"zero quantity", customer, CreateOrderRequest{AddressID: "addr-1", Items: []domain.ItemRequest{item("A", 0)}}, domain.ErrInvalidQuantity},
		{"duplicate product", customer, CreateOrderRequest{AddressID: "addr-1", Items: []domain.ItemRequest{item("A", 1), item("A", 2)}}, domain.ErrDuplicateProduct},
		{"too many", customer, CreateOrderRequest{AddressID: "addr-1", Items: []domain.ItemRequest{item("A", 6)}}, domain.ErrInsufficientStock},
		{"anonymous", domain.Requester{}, CreateOrderRequest{AddressID: "addr-1", Items: []domain.ItemRequest{item("A", 1)}}, domain.ErrAccessDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, tc.req, tc.in)
			require.Error(t, err)
			assert.Truef(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	_, err := f.orders.CreateOrder(ctx, customer, CreateOrderRequest{AddressID: "addr-1"})
	assert.Equal(t, domain.CodeEmptyOrder, domain.CodeOf(err))

	assert.Equal(t, 5, f.store.Stock("A"))
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestFailedReservationLeavesStockUntouched(t *testing.T) {
	f := newFixture(t, 5, 5, func(d *Deps) {
		d.Stock = failingLedger{StockLedger: d.Stock, failOn: "B"}
		d.Tx = passThroughTx{}
	})

	_, err := f.orders.CreateOrder(context.Background(), customer, CreateOrderRequest{
		AddressID: "addr-1",
		Items:     []domain.ItemRequest{item("A", 2), item("B", 1)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.Equal(t, 5, f.store.Stock("A"))
	assert.Equal(t, 5, f.store.Stock("B"))
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestStockMutationsFollowProductOrder(t *testing.T) {
	ledger := &recordingLedger{}
	f := newFixture(t, 5, 5, func(d *Deps) {
		ledger.StockLedger = d.Stock
		d.Stock = ledger
	})

	o := f.create(t, item("B", 1), item("A", 2))
	_, err := f.orders.CancelOrder(context.Background(), customer, o.OrderNumber)
	require.NoError(t, err)

	assert.Equal(t, []string{"reserve:A", "reserve:B", "release:A", "release:B"}, ledger.log())
	assert.Equal(t, 5, f.store.Stock("A"))
	assert.Equal(t, 5, f.store.Stock("B"))
}

func TestReservationCompensation(t *testing.T) {
	cases := []struct {
		name string
		fail error
		want []string
	}{
		{
			name: "refused reservation releases earlier lines",
			fail: domain.Newf(domain.ErrInsufficientStock, "sold out"),
			want: []string{"reserve:A", "reserve:B", "release:A"},
		},
		{
			name: "storage failure leaves it to the rollback",
			fail: domain.Transient(domain.CodeStorageUnavailable, "reserve stock", errors.New("connection reset")),
			want: []string{"reserve:A", "reserve:B"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ledger := &recordingLedger{failOn: "B", fail: tc.fail}
			f := newFixture(t, 5, 5, func(d *Deps) {
				ledger.StockLedger = d.Stock
				d.Stock = ledger
			})

			_, err := f.orders.CreateOrder(context.Background(), customer, CreateOrderRequest{
				AddressID: "addr-1",
				Items:     []domain.ItemRequest{item("B", 1), item("A", 2)},
			})
			require.Error(t, err)
			assert.Equal(t, domain.KindOf(tc.fail), domain.KindOf(err))
			assert.Equal(t, tc.want, ledger.log())
			assert.Equal(t, 5, f.store.Stock("A"))
			assert.Equal(t, 0, f.store.OrderCount())
		})
	}
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	const stock, callers = 5, 25
	f := newFixture(t, stock, 100)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.CreateOrder(context.Background(), customer, CreateOrderRequest{
				AddressID: "addr-1",
				Items:     []domain.ItemRequest{item("A", 1)},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, callers-stock, conflicts)
	assert.Equal(t, 0, f.store.Stock("A"))
	assert.Equal(t, stock, f.store.OrderCount())
}

func TestOrderNumberCollisionIsRetried(t *testing.T) {
	numbers := &sequenceNumbers{next: []string{"FS00000000001", "FS00000000001", "FS00000000002"}}
	f := newFixture(t, 5, 5, func(d *Deps) { d.Numbers = numbers })

	first := f.create(t, item("A", 1))
	second := f.create(t, item("A", 1))

	assert.Equal(t, "FS00000000001", first.OrderNumber)
	assert.Equal(t, "FS00000000002", second.OrderNumber)
	assert.Equal(t, 3, f.store.Stock("A"))
}

func TestGetOrderAccess(t *testing.T) {
	f := newFixture(t, 5, 5)
	ctx := context.Background()
	o := f.create(t, item("A", 1))

	got, err := f.orders.GetOrder(ctx, customer, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, "Mug", got.Items[0].ProductName)
	require.NotNil(t, got.Address)

	_, err = f.orders.GetOrder(ctx, admin, o.OrderNumber)
	require.NoError(t, err)

	_, err = f.orders.GetOrder(ctx, stranger, o.OrderNumber)
	assert.True(t, errors.Is(err, domain.ErrAccessDenied))

	_, err = f.orders.GetOrder(ctx, customer, "FS99999999999")
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture(t, 5, 5)
	ctx := context.Background()
	o := f.create(t, item("A", 2), item("B", 3))
	require.Equal(t, 3, f.store.Stock("A"))

	_, err := f.orders.CancelOrder(ctx, stranger, o.OrderNumber)
	assert.True(t, errors.Is(err, domain.ErrAccessDenied))
	assert.Equal(t, 3, f.store.Stock("A"))

	cancelled, err := f.orders.CancelOrder(ctx, customer, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.store.Stock("A"))
	assert.Equal(t, 5, f.store.Stock("B"))

	_, err = f.orders.CancelOrder(ctx, admin, o.OrderNumber)
	assert.True(t, errors.Is(err, domain.ErrAlreadyCancelled))
	assert.Equal(t, 5, f.store.Stock("A"))

	f.orders.Drain()
	assert.Equal(t, []string{domain.OrderEventCreated, domain.OrderEventCancelled}, f.pub.types())
}

func TestDeliveredOrderCannotBeCancelled(t *testing.T) {
	f := newFixture(t, 5, 5)
	ctx := context.Background()
	o := f.create(t, item("A", 1))

	for _, st := range []string{"CONFIRMED", "PROCESSING", "SHIPPED", "DELIVERED"} {
		_, err := f.orders.UpdateStatus(ctx, admin, o.OrderNumber, st)
		require.NoError(t, err, st)
	}

	_, err := f.orders.CancelOrder(ctx, customer, o.OrderNumber)
	assert.True(t, errors.Is(err, domain.ErrAlreadyDelivered))
	assert.Equal(t, 4, f.store.Stock("A"))

	got, err := f.orders.GetOrder(ctx, customer, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, got.Status)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, 5, 5)
	ctx := context.Background()
	o := f.create(t, item("A", 1))

	_, err := f.orders.UpdateStatus(ctx, customer, o.OrderNumber, "CONFIRMED")
	assert.True(t, errors.Is(err, domain.ErrAccessDenied))

	_, err = f.orders.UpdateStatus(ctx, admin, o.OrderNumber, "teleported")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	for _, st := range []string{"confirmed", "processing", "shipped"} {
		_, err := f.orders.UpdateStatus(ctx, admin, o.OrderNumber, st)
		require.NoError(t, err)
	}

	_, err = f.orders.UpdateStatus(ctx, admin, o.OrderNumber, "PENDING")
	assert.True(t, errors.Is(err, domain.ErrIllegalTransition))
	got, err := f.orders.GetOrder(ctx, admin, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, got.Status)

	cancelled, err := f.orders.UpdateStatus(ctx, admin, o.OrderNumber, "CANCELLED")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.store.Stock("A"))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t, 10, 10)
	ctx := context.Background()
	first := f.create(t, item("A", 1))
	second := f.create(t, item("A", 1))
	third := f.create(t, item("B", 1))
	_, err := f.orders.CancelOrder(ctx, customer, second.OrderNumber)
	require.NoError(t, err)

	page, err := f.orders.ListMyOrders(ctx, customer, domain.Page{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, third.OrderNumber, page.Orders[0].OrderNumber)
	assert.Equal(t, second.OrderNumber, page.Orders[1].OrderNumber)
	for _, o := range page.Orders {
		require.NotNil(t, o.Address, o.OrderNumber)
		assert.Equal(t, "Springfield", o.Address.City)
	}

	page, err = f.orders.ListMyOrders(ctx, customer, domain.Page{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, first.OrderNumber, page.Orders[0].OrderNumber)

	page, err = f.orders.ListMyOrders(ctx, stranger, domain.Page{})
	require.NoError(t, err)
	assert.Empty(t, page.Orders)
	assert.Equal(t, domain.DefaultPageLimit, page.Limit)

	_, err = f.orders.ListAllOrders(ctx, customer, "", domain.Page{})
	assert.True(t, errors.Is(err, domain.ErrAccessDenied))

	page, err = f.orders.ListAllOrders(ctx, admin, "", domain.Page{})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAdminPageLimit, page.Limit)
	require.Len(t, page.Orders, 3)
	require.NotNil(t, page.Orders[0].Address)

	page, err = f.orders.ListAllOrders(ctx, admin, "cancelled", domain.Page{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, second.OrderNumber, page.Orders[0].OrderNumber)

	_, err = f.orders.ListAllOrders(ctx, admin, "lost", domain.Page{})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
