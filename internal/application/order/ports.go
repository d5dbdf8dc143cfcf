package order

import (
	"context"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/retry"
)

// InventoryClient llamada síncrona al procesador de inventario. Los errores transitorios
// envuelven domain.ErrInventoryUnavailable; los de negocio se devuelven tal cual.
type InventoryClient interface {
	UpdateStock(ctx context.Context, req dto.UpdateInventoryRequest) (*dto.InventoryResult, error)
}

// RetryPublisher publica en el canal de reintentos de forma durable.
type RetryPublisher interface {
	Publish(ctx context.Context, msg retry.Message) error
}
