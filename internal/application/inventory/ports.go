package inventory

import (
	"context"

	"github.com/jhoicas/inventario-saga/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Garantiza atomicidad para el procesador: stock, bitácora y ledger se confirman juntos o nada.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		stockRepo repository.StockRepository,
		ledgerRepo repository.IdempotencyRepository,
		auditRepo repository.AuditRepository,
	) error) error
}

// Applier aplica una mutación de stock identificada por su clave de idempotencia.
// Lo implementa Processor y lo envuelven los inyectores de fallos.
type Applier interface {
	Apply(ctx context.Context, cmd Command) (*Outcome, error)
}
