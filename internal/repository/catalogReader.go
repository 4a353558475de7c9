package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

type PgCatalogReader struct {
	pool *pgxpool.Pool
}

func NewCatalogReader(p *pgxpool.Pool) *PgCatalogReader {
	return &PgCatalogReader{pool: p}
}

// FetchActiveProducts omits unknown and inactive ids from the result.
func (c *PgCatalogReader) FetchActiveProducts(ctx context.Context, ids []string) (domain.Catalog, error) {
	out := make(domain.Catalog, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := conn(ctx, c.pool).Query(ctx, `
		SELECT id, name, slug, image_url, price, stock
		FROM products
		WHERE id = ANY($1) AND is_active
	`, ids)
	if err != nil {
		return nil, storageErr("select products", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := domain.ProductSnapshot{Active: true}
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.ImageURL, &p.Price, &p.Stock); err != nil {
			return nil, storageErr("scan product", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("select products", err)
	}
	return out, nil
}

type PgAddressReader struct {
	pool *pgxpool.Pool
}

func NewAddressReader(p *pgxpool.Pool) *PgAddressReader {
	return &PgAddressReader{pool: p}
}

func (a *PgAddressReader) FindAddress(ctx context.Context, id string) (*domain.Address, error) {
	var addr domain.Address
	err := conn(ctx, a.pool).QueryRow(ctx, `
		SELECT id, user_id, name, street, city, state, postal_code, country, phone
		FROM addresses WHERE id = $1
	`, id).Scan(&addr.ID, &addr.UserID, &addr.Name, &addr.Street, &addr.City, &addr.State,
		&addr.PostalCode, &addr.Country, &addr.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Newf(domain.ErrAddressNotFound, "address %s not found", id)
	}
	if err != nil {
		return nil, storageErr("select address", err)
	}
	return &addr, nil
}
