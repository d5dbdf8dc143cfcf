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

var _ repository.IdempotencyRepository = (*IdempotencyRepo)(nil)

// IdempotencyRepo ledger de peticiones procesadas (tabla processed_requests).
type IdempotencyRepo struct {
	q Querier
}

// NewIdempotencyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIdempotencyRepository(q Querier) *IdempotencyRepo {
	return &IdempotencyRepo{q: q}
}

// Get devuelve el registro de la clave o nil si no existe.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*entity.IdempotencyRecord, error) {
	var rec entity.IdempotencyRecord
	var response string
	err := r.q.QueryRow(ctx, `
		SELECT idempotency_key, order_id, response, processed_at
		FROM processed_requests WHERE idempotency_key = $1`, key,
	).Scan(&rec.IdempotencyKey, &rec.OrderID, &response, &rec.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get processed request: %w", err)
	}
	rec.StoredResult = []byte(response)
	return &rec, nil
}

// Lock toma un advisory lock de transacción por clave: las peticiones concurrentes con la
// misma clave se serializan hasta el commit o rollback. Solo tiene efecto dentro de una tx.
func (r *IdempotencyRepo) Lock(ctx context.Context, key string) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("lock idempotency key: %w", err)
	}
	return nil
}

// Insert registra la clave con su resultado; domain.ErrDuplicate si ya existía.
func (r *IdempotencyRepo) Insert(ctx context.Context, record *entity.IdempotencyRecord) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO processed_requests (idempotency_key, order_id, response, processed_at)
		VALUES ($1, $2, $3, $4)`,
		record.IdempotencyKey, record.OrderID, string(record.StoredResult), record.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert processed request: %w", err)
	}
	return nil
}
