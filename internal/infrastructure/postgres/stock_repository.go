package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/domain/repository"
)

var _ repository.StockRepository = (*StockRepo)(nil)

// StockRepo implementación de StockRepository sobre PostgreSQL (usable con pool o tx).
type StockRepo struct {
	q Querier
}

// NewStockRepository construye el adaptador de stock. Pasar pool o tx (Querier).
func NewStockRepository(q Querier) *StockRepo {
	return &StockRepo{q: q}
}

const stockColumns = `product_id, product_name, quantity, reserved_quantity, updated_at`

// Get obtiene el stock actual de un producto; nil si no existe.
func (r *StockRepo) Get(ctx context.Context, productID string) (*entity.Stock, error) {
	return r.get(ctx, `SELECT `+stockColumns+` FROM inventory WHERE product_id = $1`, productID)
}

// GetForUpdate obtiene el stock y bloquea la fila hasta el fin de la tx (SELECT FOR UPDATE).
func (r *StockRepo) GetForUpdate(ctx context.Context, productID string) (*entity.Stock, error) {
	return r.get(ctx, `SELECT `+stockColumns+` FROM inventory WHERE product_id = $1 FOR UPDATE`, productID)
}

func (r *StockRepo) get(ctx context.Context, query, productID string) (*entity.Stock, error) {
	var s entity.Stock
	err := r.q.QueryRow(ctx, query, productID).Scan(
		&s.ProductID, &s.ProductName, &s.Quantity, &s.ReservedQuantity, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return &s, nil
}

// UpdateQuantity fija la cantidad de un producto existente.
func (r *StockRepo) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE inventory SET quantity = $2, updated_at = now() WHERE product_id = $1`,
		productID, quantity)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("update stock %s: %w", productID, domain.ErrInsufficientStock)
		}
		return fmt.Errorf("update stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update stock: %w: %s", domain.ErrProductNotFound, productID)
	}
	return nil
}

// Upsert inserta o actualiza un producto con su cantidad.
func (r *StockRepo) Upsert(ctx context.Context, stock *entity.Stock) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inventory (product_id, product_name, quantity, reserved_quantity, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (product_id)
		DO UPDATE SET product_name = EXCLUDED.product_name, quantity = EXCLUDED.quantity,
			reserved_quantity = EXCLUDED.reserved_quantity, updated_at = now()`,
		stock.ProductID, stock.ProductName, stock.Quantity, stock.ReservedQuantity)
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	return nil
}
