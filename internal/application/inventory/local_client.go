package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/domain"
)

// LocalClient expone un Applier con la misma semántica de errores que el cliente HTTP:
// el llamador abandona al vencer su contexto, pero la aplicación sigue y puede confirmar.
type LocalClient struct {
	applier Applier
}

// NewLocalClient construye el cliente en proceso.
func NewLocalClient(applier Applier) *LocalClient {
	return &LocalClient{applier: applier}
}

type applyResult struct {
	out *Outcome
	err error
}

// UpdateStock envía la mutación y espera el resultado o el vencimiento de ctx.
func (c *LocalClient) UpdateStock(ctx context.Context, req dto.UpdateInventoryRequest) (*dto.InventoryResult, error) {
	done := make(chan applyResult, 1)
	go func() {
		out, err := c.applier.Apply(context.WithoutCancel(ctx), Command{
			OrderID:        req.OrderID,
			Items:          req.Items,
			IdempotencyKey: req.IdempotencyKey,
		})
		done <- applyResult{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", domain.ErrInventoryUnavailable, ctx.Err())
	case r := <-done:
		switch {
		case r.err == nil:
			res := r.out.Result
			return &res, nil
		case domain.IsBusiness(r.err):
			return nil, r.err
		case errors.Is(r.err, domain.ErrInvalidInput):
			return nil, fmt.Errorf("%w: %v", domain.ErrInventoryRejected, r.err)
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrInventoryUnavailable, r.err)
		}
	}
}
