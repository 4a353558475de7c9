package repository

import (
	"context"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

// TxManager runs fn as one unit of work. Repositories called with the ctx passed to fn join the
// transaction; fn's error rolls everything back.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderRepo interface {
	// Insert stores a new order with its line items. A taken order number yields
	// domain.ErrOrderNumberCollision and leaves the surrounding transaction usable.
	Insert(ctx context.Context, o *domain.Order) error
	FindByNumber(ctx context.Context, orderNumber string, forUpdate bool) (*domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string, forUpdate bool) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter, page domain.Page) ([]domain.Order, int, error)
	UpdateStatus(ctx context.Context, o *domain.Order) error
	// SetPaymentIntent assigns the intent only if none is set yet and reports whether it did.
	SetPaymentIntent(ctx context.Context, orderID, intentID string) (bool, error)
}

// StockLedger adjusts product stock atomically per product.
type StockLedger interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
}

// CatalogReader returns the active subset of the requested products.
type CatalogReader interface {
	FetchActiveProducts(ctx context.Context, ids []string) (domain.Catalog, error)
}

type AddressReader interface {
	FindAddress(ctx context.Context, id string) (*domain.Address, error)
}

// EventLog remembers processed provider events.
type EventLog interface {
	// MarkProcessed records the event and reports whether this was the first time it was seen.
	MarkProcessed(ctx context.Context, ev domain.ProviderEvent) (bool, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ TxManager     = (*PgTxManager)(nil)
	_ Pinger        = (*PgTxManager)(nil)
	_ OrderRepo     = (*OrderRepository)(nil)
	_ StockLedger   = (*PgStockLedger)(nil)
	_ CatalogReader = (*PgCatalogReader)(nil)
	_ AddressReader = (*PgAddressReader)(nil)
	_ EventLog      = (*PgEventLog)(nil)
)
