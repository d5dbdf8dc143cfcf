package entity

import "time"

// Stock representa la existencia de un producto. Quantity nunca es negativa y solo
// se decrementa a través del procesador de inventario.
type Stock struct {
	ProductID        string    `json:"productId"`
	ProductName      string    `json:"productName"`
	Quantity         int       `json:"quantity"`
	ReservedQuantity int       `json:"reservedQuantity"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
