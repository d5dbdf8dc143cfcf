package entity

import "time"

// Acciones registradas en la bitácora de inventario.
const (
	AuditActionUpdate  = "update"  // decremento por envío de orden
	AuditActionReserve = "reserve" // reservado para uso futuro
	AuditActionRelease = "release"
)

// AuditEntry es un registro append-only por cada mutación exitosa de stock.
// Nunca se actualiza ni se elimina.
type AuditEntry struct {
	ID             int64     `json:"id"`
	ProductID      string    `json:"productId"`
	OrderID        string    `json:"orderId"`
	Action         string    `json:"action"`
	QuantityBefore int       `json:"quantityBefore"`
	QuantityAfter  int       `json:"quantityAfter"`
	CreatedAt      time.Time `json:"createdAt"`
}
