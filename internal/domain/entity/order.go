package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una orden. "pending-retry" no es un estado propio: la orden sigue
// pending y existe un RetryMarker activo.
const (
	OrderStatusPending   = "pending"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

// Order pertenece exclusivamente al saga de órdenes; inventario nunca la modifica.
type Order struct {
	ID          string
	UserID      string
	Status      string
	TotalAmount decimal.Decimal
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderItem línea de la orden, en el orden en que llegó.
type OrderItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// ComputeTotal suma price*quantity de todas las líneas.
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
