package repository

import (
	"context"

	"github.com/jhoicas/inventario-saga/internal/domain/entity"
)

// AuditRepository bitácora append-only de mutaciones de stock.
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error
	ListByOrder(ctx context.Context, orderID string) ([]*entity.AuditEntry, error)
	ListByProduct(ctx context.Context, productID string, limit, offset int) ([]*entity.AuditEntry, error)
}
