package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/inventory"
	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/postgres"
	"github.com/jhoicas/inventario-saga/pkg/config"
)

// testPool abre un pool contra TEST_DATABASE_URL; la base debe tener migrations/001_init.sql aplicado.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL no definido")
	}
	pool, err := postgres.NewPool(context.Background(), config.DBConfig{DatabaseURL: url})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func uniq(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestProcessor_PostgresConcurrenciaMismaClave(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	stocks := postgres.NewStockRepository(pool)
	productID := uniq("p")
	require.NoError(t, stocks.Upsert(ctx, &entity.Stock{ProductID: productID, ProductName: "test", Quantity: 10}))

	audit := postgres.NewAuditRepository(pool)
	p := inventory.NewProcessor(postgres.NewTxRunner(pool), postgres.NewIdempotencyRepository(pool), stocks, audit, zerolog.Nop())
	orderID, key := uniq("o"), uniq("k")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = p.Apply(ctx, inventory.Command{OrderID: orderID, IdempotencyKey: key, Items: []dto.ItemQuantity{{ProductID: productID, Quantity: 3}}})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	s, err := stocks.Get(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Quantity)
	entries, err := audit.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessor_PostgresStockInsuficiente(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	stocks := postgres.NewStockRepository(pool)
	productID := uniq("p")
	require.NoError(t, stocks.Upsert(ctx, &entity.Stock{ProductID: productID, ProductName: "test", Quantity: 5}))

	ledger := postgres.NewIdempotencyRepository(pool)
	p := inventory.NewProcessor(postgres.NewTxRunner(pool), ledger, stocks, postgres.NewAuditRepository(pool), zerolog.Nop())
	key := uniq("k")

	_, err := p.Apply(ctx, inventory.Command{OrderID: uniq("o"), IdempotencyKey: key, Items: []dto.ItemQuantity{{ProductID: productID, Quantity: 20}}})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	rec, err := ledger.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, rec)
	s, err := stocks.Get(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Quantity)
}

func TestOrderRepo_CreateYTransicion(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	orders := postgres.NewOrderRepository(pool)
	markers := postgres.NewRetryMarkerRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &entity.Order{
		ID: uniq("ORD"), UserID: "u1", Status: entity.OrderStatusPending,
		Items: []entity.OrderItem{
			{ProductID: "b", Quantity: 1, Price: decimal.RequireFromString("2.50")},
			{ProductID: "a", Quantity: 2, Price: decimal.RequireFromString("1.00")},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	o.TotalAmount = o.ComputeTotal()
	require.NoError(t, orders.Create(ctx, o))
	assert.ErrorIs(t, orders.Create(ctx, o), domain.ErrDuplicate)

	got, err := orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "b", got.Items[0].ProductID)
	assert.True(t, decimal.RequireFromString("4.50").Equal(got.TotalAmount))

	m := &entity.RetryMarker{OrderID: o.ID, IdempotencyKey: "ship-" + o.ID, Status: entity.RetryStatusQueued, LastAttempt: now}
	require.NoError(t, markers.Upsert(ctx, m))
	assert.Equal(t, 1, m.RetryCount)
	require.NoError(t, markers.Upsert(ctx, m))
	assert.Equal(t, 2, m.RetryCount)

	ok, err := orders.TransitionStatus(ctx, o.ID, entity.OrderStatusPending, entity.OrderStatusShipped)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = orders.TransitionStatus(ctx, o.ID, entity.OrderStatusPending, entity.OrderStatusShipped)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderRepo_ReclamoDeEnvioBloqueaCancelacion(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	orders := postgres.NewOrderRepository(pool)
	markers := postgres.NewRetryMarkerRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &entity.Order{
		ID: uniq("ORD"), UserID: "u1", Status: entity.OrderStatusPending,
		Items:     []entity.OrderItem{{ProductID: "a", Quantity: 1, Price: decimal.RequireFromString("1.00")}},
		CreatedAt: now, UpdatedAt: now,
	}
	o.TotalAmount = o.ComputeTotal()
	require.NoError(t, orders.Create(ctx, o))

	prev, ok, err := orders.ClaimShip(ctx, o.ID, "ship-"+o.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, prev)

	m, err := markers.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, entity.RetryStatusInFlight, m.Status)
	assert.Equal(t, 0, m.RetryCount)

	cancelled, err := orders.CancelIfIdle(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, cancelled, "no debe cancelar con el envío reclamado")

	require.NoError(t, markers.Delete(ctx, o.ID))
	assert.ErrorIs(t, markers.Delete(ctx, o.ID), domain.ErrNotFound)

	cancelled, err = orders.CancelIfIdle(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	_, ok, err = orders.ClaimShip(ctx, o.ID, "ship-"+o.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "una orden cancelada no se reclama")
}
