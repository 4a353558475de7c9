package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

// PgEventLog is the inbox of provider events, keyed by event id.
type PgEventLog struct {
	pool *pgxpool.Pool
}

func NewEventLog(p *pgxpool.Pool) *PgEventLog {
	return &PgEventLog{pool: p}
}

func (e *PgEventLog) MarkProcessed(ctx context.Context, ev domain.ProviderEvent) (bool, error) {
	tag, err := conn(ctx, e.pool).Exec(ctx, `
		INSERT INTO processed_events (event_id, kind, intent_id, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, ev.ID, string(ev.Kind), ev.IntentID, time.Now().UTC())
	if err != nil {
		return false, storageErr("record provider event", err)
	}
	return tag.RowsAffected() == 1, nil
}
