package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/domain/repository"
)

var _ repository.RetryMarkerRepository = (*RetryMarkerRepo)(nil)

// RetryMarkerRepo marcas de reintento por orden (tabla inventory_updates).
type RetryMarkerRepo struct {
	q Querier
}

// NewRetryMarkerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewRetryMarkerRepository(q Querier) *RetryMarkerRepo {
	return &RetryMarkerRepo{q: q}
}

const markerColumns = `order_id, idempotency_key, status, retry_count, last_attempt, created_at`

// Upsert crea la marca con retry_count = 1 o incrementa la existente.
func (r *RetryMarkerRepo) Upsert(ctx context.Context, m *entity.RetryMarker) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = m.LastAttempt
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO inventory_updates (order_id, idempotency_key, status, retry_count, last_attempt, created_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (order_id) DO UPDATE SET
			idempotency_key = EXCLUDED.idempotency_key,
			status = EXCLUDED.status,
			last_attempt = EXCLUDED.last_attempt,
			retry_count = inventory_updates.retry_count + 1
		RETURNING retry_count, created_at`,
		m.OrderID, m.IdempotencyKey, m.Status, m.LastAttempt, created,
	).Scan(&m.RetryCount, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert retry marker: %w", err)
	}
	return nil
}

// GetByOrderID devuelve la marca de la orden o nil.
func (r *RetryMarkerRepo) GetByOrderID(ctx context.Context, orderID string) (*entity.RetryMarker, error) {
	rows, err := r.q.Query(ctx, `SELECT `+markerColumns+` FROM inventory_updates WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get retry marker: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, scanMarker)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get retry marker: %w", err)
	}
	return m, nil
}

// SetStatus cambia el estado; domain.ErrNotFound si la orden no tiene marca.
func (r *RetryMarkerRepo) SetStatus(ctx context.Context, orderID, status string) error {
	tag, err := r.q.Exec(ctx, `UPDATE inventory_updates SET status = $2 WHERE order_id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("set retry marker status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete elimina la marca; domain.ErrNotFound si no existía.
func (r *RetryMarkerRepo) Delete(ctx context.Context, orderID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM inventory_updates WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete retry marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus marcas en el estado indicado, más antiguas primero.
func (r *RetryMarkerRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*entity.RetryMarker, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+markerColumns+` FROM inventory_updates
		WHERE status = $1 ORDER BY created_at, order_id LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list retry markers: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanMarker)
	if err != nil {
		return nil, fmt.Errorf("scan retry markers: %w", err)
	}
	return out, nil
}

func scanMarker(row pgx.CollectableRow) (*entity.RetryMarker, error) {
	var m entity.RetryMarker
	err := row.Scan(&m.OrderID, &m.IdempotencyKey, &m.Status, &m.RetryCount, &m.LastAttempt, &m.CreatedAt)
	return &m, err
}
