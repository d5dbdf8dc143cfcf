package dto

import "encoding/json"

// ItemQuantity línea mínima que viaja a inventario: producto y cantidad a descontar.
type ItemQuantity struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// UpdateInventoryRequest body para POST /api/inventory/update.
type UpdateInventoryRequest struct {
	OrderID        string         `json:"orderId"`
	Items          []ItemQuantity `json:"items"`
	IdempotencyKey string         `json:"idempotencyKey"`
}

// InventoryResult resultado derivado la primera vez y guardado en el ledger.
type InventoryResult struct {
	OrderID string         `json:"orderId"`
	Items   []ItemQuantity `json:"items"`
	Success bool           `json:"success"`
}

// UpdateInventoryResponse sobre de respuesta del endpoint de actualización.
// Data contiene los bytes guardados en el ledger, sin re-serializar.
type UpdateInventoryResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Cached  bool            `json:"cached,omitempty"`
	Data    json.RawMessage `json:"data"`
}
