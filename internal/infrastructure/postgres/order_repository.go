package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/domain/repository"
)

var _ repository.OrderRepository = (*OrderRepo)(nil)

// OrderRepo órdenes y sus líneas (tablas orders y order_items).
type OrderRepo struct {
	q Querier
}

// NewOrderRepository construye el adaptador. Pasar pool o tx (Querier).
func NewOrderRepository(q Querier) *OrderRepo {
	return &OrderRepo{q: q}
}

// Create inserta la orden y sus líneas en una sola transacción.
func (r *OrderRepo) Create(ctx context.Context, o *entity.Order) error {
	return pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (order_id, user_id, status, total_amount, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, o.UserID, o.Status, o.TotalAmount, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicate
			}
			return fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(`
				INSERT INTO order_items (order_id, line_no, product_id, quantity, price)
				VALUES ($1, $2, $3, $4, $5)`,
				o.ID, i, it.ProductID, it.Quantity, it.Price)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
}

// GetByID obtiene la orden con sus líneas en el orden original; nil si no existe.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	var o entity.Order
	err := r.q.QueryRow(ctx, `
		SELECT order_id, user_id, status, total_amount, created_at, updated_at
		FROM orders WHERE order_id = $1`, id,
	).Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT product_id, quantity, price FROM order_items
		WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.OrderItem, error) {
		var it entity.OrderItem
		err := row.Scan(&it.ProductID, &it.Quantity, &it.Price)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan order items: %w", err)
	}
	return &o, nil
}

// TransitionStatus cambia el estado solo si el actual es from (compare-and-set).
func (r *OrderRepo) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE order_id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// lockPending bloquea la fila de la orden (FOR UPDATE) y dice si sigue pending.
func lockPending(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE order_id = $1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock order: %w", err)
	}
	return status == entity.OrderStatusPending, nil
}

// ClaimShip toma el lock de la orden y deja su marca (inventory_updates) en in_flight.
func (r *OrderRepo) ClaimShip(ctx context.Context, id, key string, at time.Time) (string, bool, error) {
	var prev string
	var claimed bool
	err := pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		ok, err := lockPending(ctx, tx, id)
		if err != nil || !ok {
			return err
		}
		err = tx.QueryRow(ctx, `SELECT status FROM inventory_updates WHERE order_id = $1`, id).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read retry marker: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO inventory_updates (order_id, idempotency_key, status, retry_count, last_attempt, created_at)
			VALUES ($1, $2, $3, 0, $4, $4)
			ON CONFLICT (order_id) DO UPDATE SET
				idempotency_key = EXCLUDED.idempotency_key,
				status = EXCLUDED.status,
				last_attempt = EXCLUDED.last_attempt`,
			id, key, entity.RetryStatusInFlight, at)
		if err != nil {
			return fmt.Errorf("claim ship: %w", err)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return prev, claimed, nil
}

// CancelIfIdle toma el mismo lock que ClaimShip; la marca se lee en una sentencia posterior
// al lock para ver cualquier reclamo ya confirmado.
func (r *OrderRepo) CancelIfIdle(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	err := pgx.BeginFunc(ctx, r.q, func(tx pgx.Tx) error {
		ok, err := lockPending(ctx, tx, id)
		if err != nil || !ok {
			return err
		}
		var active bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM inventory_updates WHERE order_id = $1 AND status <> $2)`,
			id, entity.RetryStatusCompleted).Scan(&active)
		if err != nil {
			return fmt.Errorf("read retry marker: %w", err)
		}
		if active {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET status = $2, updated_at = now() WHERE order_id = $1`,
			id, entity.OrderStatusCancelled); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return cancelled, nil
}
