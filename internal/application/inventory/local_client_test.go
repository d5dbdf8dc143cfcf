package inventory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/inventory"
	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
)

type applierFunc func(ctx context.Context, c inventory.Command) (*inventory.Outcome, error)

func (f applierFunc) Apply(ctx context.Context, c inventory.Command) (*inventory.Outcome, error) {
	return f(ctx, c)
}

func TestLocalClient_Exito(t *testing.T) {
	p, _ := newProcessor(t, entity.Stock{ProductID: "p1", Quantity: 10})
	c := inventory.NewLocalClient(p)

	res, err := c.UpdateStock(context.Background(), dto.UpdateInventoryRequest{OrderID: "o1", Items: []dto.ItemQuantity{item("p1", 2)}, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

// Al vencer el plazo el llamador abandona, pero la mutación sigue y confirma.
func TestLocalClient_TimeoutNoImpideElCommit(t *testing.T) {
	p, store := newProcessor(t, entity.Stock{ProductID: "p1", Quantity: 10})
	release := make(chan struct{})
	done := make(chan struct{})
	slow := applierFunc(func(ctx context.Context, c inventory.Command) (*inventory.Outcome, error) {
		<-release
		defer close(done)
		return p.Apply(ctx, c)
	})
	c := inventory.NewLocalClient(slow)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.UpdateStock(ctx, dto.UpdateInventoryRequest{OrderID: "o1", Items: []dto.ItemQuantity{item("p1", 1)}, IdempotencyKey: "k1"})
	assert.ErrorIs(t, err, domain.ErrInventoryUnavailable)
	assert.True(t, domain.IsTransient(err))

	close(release)
	<-done
	q, _ := store.Quantity("p1")
	assert.Equal(t, 9, q)
}

func TestLocalClient_ClasificaErrores(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"negocio", domain.ErrInsufficientStock, domain.ErrInsufficientStock},
		{"inexistente", domain.ErrProductNotFound, domain.ErrProductNotFound},
		{"inválido", domain.ErrInvalidInput, domain.ErrInventoryRejected},
		{"interno", errors.New("db down"), domain.ErrInventoryUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := inventory.NewLocalClient(applierFunc(func(context.Context, inventory.Command) (*inventory.Outcome, error) {
				return nil, tc.err
			}))
			_, err := c.UpdateStock(context.Background(), dto.UpdateInventoryRequest{})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
