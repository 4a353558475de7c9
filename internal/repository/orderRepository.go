package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
)

const orderColumns = `id, order_number, user_id, address_id, subtotal, tax, delivery_fee, total,
	status, payment_status, payment_intent_id, delivery_date, notes, created_at, updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(p *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: p}
}

func (p *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	// A savepoint inside a running transaction, a plain transaction otherwise.
	tx, err := conn(ctx, p.pool).Begin(ctx)
	if err != nil {
		return storageErr("begin order insert", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders
			(id, order_number, user_id, address_id, subtotal, tax, delivery_fee, total,
			 status, payment_status, payment_intent_id, delivery_date, notes, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8,
			 $9, $10, $11, $12, $13, $14, $15)
	`,
		o.ID,
		o.OrderNumber,
		o.UserID,
		o.AddressID,
		o.Subtotal,
		o.Tax,
		o.DeliveryFee,
		o.Total,
		string(o.Status),
		string(o.PaymentStatus),
		o.PaymentIntentID,
		o.DeliveryDate,
		o.Note,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return domain.Newf(domain.ErrOrderNumberCollision, "order number %s is taken", o.OrderNumber)
		}
		logger.Warn("insert order failed", "order_number", o.OrderNumber, "err", err)
		return storageErr("insert order", err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, o.ID, i, it.ProductID, it.Quantity, it.UnitPrice)
	}
	br := tx.SendBatch(ctx, batch)
	if err = br.Close(); err != nil {
		logger.Warn("insert order items failed", "order_number", o.OrderNumber, "err", err)
		return storageErr("insert order items", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return storageErr("commit order insert", err)
	}
	tx = nil
	return nil
}

func (p *OrderRepository) FindByNumber(ctx context.Context, orderNumber string, forUpdate bool) (*domain.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	o, err := p.findOne(ctx, q, orderNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Newf(domain.ErrOrderNotFound, "order %s not found", orderNumber)
	}
	return o, err
}

func (p *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string, forUpdate bool) (*domain.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE payment_intent_id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	o, err := p.findOne(ctx, q, intentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Newf(domain.ErrOrderNotFound, "no order for payment intent %s", intentID)
	}
	return o, err
}

func (p *OrderRepository) findOne(ctx context.Context, q string, arg string) (*domain.Order, error) {
	db := conn(ctx, p.pool)
	o, err := scanOrder(db.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, storageErr("select order", err)
	}
	items, err := p.loadItems(ctx, db, []uuid.UUID{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (p *OrderRepository) List(ctx context.Context, filter domain.OrderFilter, page domain.Page) ([]domain.Order, int, error) {
	db := conn(ctx, p.pool)
	page = page.Normalize()

	var total int
	err := db.QueryRow(ctx, `
		SELECT count(*) FROM orders
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
	`, filter.UserID, string(filter.Status)).Scan(&total)
	if err != nil {
		return nil, 0, storageErr("count orders", err)
	}

	rows, err := db.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, filter.UserID, string(filter.Status), page.Limit, page.Offset())
	if err != nil {
		return nil, 0, storageErr("list orders", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		ids    []uuid.UUID
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, storageErr("scan order", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list orders", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return orders, total, nil
	}
	items, err := p.loadItems(ctx, db, ids)
	if err != nil {
		return nil, 0, err
	}
	addresses, err := loadAddresses(ctx, db, orders)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if a, ok := addresses[orders[i].AddressID]; ok {
			orders[i].Address = &a
		}
	}
	return orders, total, nil
}

// loadAddresses fetches the delivery addresses of a page of orders in one query.
func loadAddresses(ctx context.Context, db querier, orders []domain.Order) (map[string]domain.Address, error) {
	seen := make(map[string]struct{}, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.AddressID]; ok {
			continue
		}
		seen[o.AddressID] = struct{}{}
		ids = append(ids, o.AddressID)
	}

	rows, err := db.Query(ctx, `
		SELECT id, user_id, name, street, city, state, postal_code, country, phone
		FROM addresses WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, storageErr("select addresses", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Address, len(ids))
	for rows.Next() {
		var a domain.Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Street, &a.City, &a.State,
			&a.PostalCode, &a.Country, &a.Phone); err != nil {
			return nil, storageErr("scan address", err)
		}
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("select addresses", err)
	}
	return out, nil
}

func (p *OrderRepository) UpdateStatus(ctx context.Context, o *domain.Order) error {
	tag, err := conn(ctx, p.pool).Exec(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, updated_at = $4 WHERE id = $1
	`, o.ID, string(o.Status), string(o.PaymentStatus), o.UpdatedAt)
	if err != nil {
		logger.Warn("update order status failed", "order_number", o.OrderNumber, "err", err)
		return storageErr("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Newf(domain.ErrOrderNotFound, "order %s not found", o.OrderNumber)
	}
	return nil
}

func (p *OrderRepository) SetPaymentIntent(ctx context.Context, orderID, intentID string) (bool, error) {
	tag, err := conn(ctx, p.pool).Exec(ctx, `
		UPDATE orders SET payment_intent_id = $2, updated_at = $3
		WHERE id = $1 AND payment_intent_id IS NULL
	`, orderID, intentID, time.Now().UTC())
	if err != nil {
		return false, storageErr("set payment intent", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *OrderRepository) loadItems(ctx context.Context, db querier, ids []uuid.UUID) (map[uuid.UUID][]domain.LineItem, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	rows, err := db.Query(ctx, `
		SELECT oi.order_id, oi.product_id, oi.quantity, oi.price,
		       COALESCE(p.name, ''), COALESCE(p.slug, ''), COALESCE(p.image_url, '')
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1::uuid[])
		ORDER BY oi.order_id, oi.position
	`, keys)
	if err != nil {
		return nil, storageErr("select order items", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.LineItem, len(ids))
	for rows.Next() {
		var (
			orderID uuid.UUID
			it      domain.LineItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice,
			&it.ProductName, &it.ProductSlug, &it.ProductImageURL); err != nil {
			return nil, storageErr("scan order item", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("select order items", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o             domain.Order
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.AddressID,
		&o.Subtotal,
		&o.Tax,
		&o.DeliveryFee,
		&o.Total,
		&status,
		&paymentStatus,
		&o.PaymentIntentID,
		&o.DeliveryDate,
		&o.Note,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if !o.Subtotal.Add(o.Tax).Add(o.DeliveryFee).Equal(o.Total) {
		return nil, fmt.Errorf("order %s: stored totals are inconsistent", o.OrderNumber)
	}
	return &o, nil
}
