package repository

import (
	"context"

	"github.com/jhoicas/inventario-saga/internal/domain/entity"
)

// StockRepository define el puerto para consultar/actualizar stock por producto.
// Usado dentro de transacciones para garantizar consistencia.
type StockRepository interface {
	// Get devuelve nil, nil si el producto no existe.
	Get(ctx context.Context, productID string) (*entity.Stock, error)
	// GetForUpdate bloquea la fila hasta el fin de la transacción (SELECT FOR UPDATE).
	GetForUpdate(ctx context.Context, productID string) (*entity.Stock, error)
	UpdateQuantity(ctx context.Context, productID string, quantity int) error
	Upsert(ctx context.Context, stock *entity.Stock) error
}
