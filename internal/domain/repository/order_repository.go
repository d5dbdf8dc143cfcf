package repository

import (
	"context"
	"time"

	"github.com/jhoicas/inventario-saga/internal/domain/entity"
)

// OrderRepository define el puerto de persistencia para órdenes y sus líneas.
type OrderRepository interface {
	// Create persiste la orden y sus líneas en una sola unidad atómica.
	Create(ctx context.Context, order *entity.Order) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	// TransitionStatus cambia el estado solo si el actual es from; devuelve false si no aplicó.
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
	// ClaimShip, serializado con CancelIfIdle sobre la orden, deja la marca en in_flight si la
	// orden sigue pending. Devuelve el estado previo de la marca ("" si no existía) y false si
	// la orden ya no está pending. No incrementa RetryCount.
	ClaimShip(ctx context.Context, id, idempotencyKey string, at time.Time) (prevStatus string, ok bool, err error)
	// CancelIfIdle cancela la orden solo si está pending y sin marca activa.
	CancelIfIdle(ctx context.Context, id string) (bool, error)
}

// RetryMarkerRepository persiste la marca "esperando reintento" por orden.
type RetryMarkerRepository interface {
	// Upsert crea la marca o, si existe, actualiza estado/clave e incrementa RetryCount.
	Upsert(ctx context.Context, marker *entity.RetryMarker) error
	GetByOrderID(ctx context.Context, orderID string) (*entity.RetryMarker, error)
	SetStatus(ctx context.Context, orderID, status string) error
	// Delete elimina la marca; domain.ErrNotFound si no existía.
	Delete(ctx context.Context, orderID string) error
	ListByStatus(ctx context.Context, status string, limit int) ([]*entity.RetryMarker, error)
}
