package repository

import (
	"context"

	"github.com/jhoicas/inventario-saga/internal/domain/entity"
)

// IdempotencyRepository es el ledger de claves ya procesadas.
type IdempotencyRepository interface {
	// Get devuelve nil, nil si la clave no existe.
	Get(ctx context.Context, key string) (*entity.IdempotencyRecord, error)
	// Lock serializa, hasta el fin de la transacción, a todos los que usen la misma clave.
	Lock(ctx context.Context, key string) error
	// Insert devuelve domain.ErrDuplicate si la clave ya existe.
	Insert(ctx context.Context, record *entity.IdempotencyRecord) error
}
