package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/domain/repository"
)

var _ repository.AuditRepository = (*AuditRepo)(nil)

// AuditRepo bitácora append-only (tabla inventory_audit_log).
type AuditRepo struct {
	q Querier
}

// NewAuditRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAuditRepository(q Querier) *AuditRepo {
	return &AuditRepo{q: q}
}

// Append inserta la entrada y completa su ID.
func (r *AuditRepo) Append(ctx context.Context, e *entity.AuditEntry) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO inventory_audit_log (product_id, order_id, action, quantity_before, quantity_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.ProductID, e.OrderID, e.Action, e.QuantityBefore, e.QuantityAfter, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByOrder entradas de una orden en orden de escritura.
func (r *AuditRepo) ListByOrder(ctx context.Context, orderID string) ([]*entity.AuditEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, COALESCE(order_id, ''), action, quantity_before, quantity_after, created_at
		FROM inventory_audit_log WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list audit by order: %w", err)
	}
	return scanAudit(rows)
}

// ListByProduct entradas de un producto, más recientes primero.
func (r *AuditRepo) ListByProduct(ctx context.Context, productID string, limit, offset int) ([]*entity.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, product_id, COALESCE(order_id, ''), action, quantity_before, quantity_after, created_at
		FROM inventory_audit_log WHERE product_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit by product: %w", err)
	}
	return scanAudit(rows)
}

func scanAudit(rows pgx.Rows) ([]*entity.AuditEntry, error) {
	defer rows.Close()
	var out []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.OrderID, &e.Action, &e.QuantityBefore, &e.QuantityAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
