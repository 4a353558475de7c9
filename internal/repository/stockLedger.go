package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
)

// PgStockLedger keeps products.stock with conditional updates, so two reservations of the same
// product serialise on the row and stock never goes below zero.
type PgStockLedger struct {
	pool *pgxpool.Pool
}

func NewStockLedger(p *pgxpool.Pool) *PgStockLedger {
	return &PgStockLedger{pool: p}
}

func (l *PgStockLedger) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return domain.Newf(domain.ErrInvalidQuantity, "quantity for product %s must be positive", productID)
	}
	db := conn(ctx, l.pool)
	tag, err := db.Exec(ctx, `
		UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
	`, productID, qty)
	if err != nil {
		logger.Warn("reserve stock failed", "product_id", productID, "err", err)
		return storageErr("reserve stock", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Newf(domain.ErrProductNotFound, "product %s not found", productID)
	}
	if err != nil {
		return storageErr("read stock", err)
	}
	return domain.Newf(domain.ErrInsufficientStock, "product %s: requested %d, available %d", productID, qty, available)
}

func (l *PgStockLedger) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return domain.Newf(domain.ErrInvalidQuantity, "quantity for product %s must be positive", productID)
	}
	tag, err := conn(ctx, l.pool).Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, productID, qty)
	if err != nil {
		logger.Warn("release stock failed", "product_id", productID, "err", err)
		return storageErr("release stock", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Newf(domain.ErrProductNotFound, "product %s not found", productID)
	}
	return nil
}
