package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderItem línea del body de creación de orden.
type CreateOrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CreateOrderRequest body para POST /api/orders.
type CreateOrderRequest struct {
	UserID string            `json:"userId"`
	Items  []CreateOrderItem `json:"items"`
}

// OrderResponse representación pública de una orden.
type OrderResponse struct {
	OrderID     string               `json:"orderId"`
	UserID      string               `json:"userId"`
	Status      string               `json:"status"`
	TotalAmount decimal.Decimal      `json:"totalAmount"`
	Items       []CreateOrderItem    `json:"items"`
	Retry       *RetryMarkerResponse `json:"retry,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// RetryMarkerResponse estado del reintento asíncrono, si lo hay.
type RetryMarkerResponse struct {
	IdempotencyKey string    `json:"idempotencyKey"`
	Status         string    `json:"status"`
	RetryCount     int       `json:"retryCount"`
	LastAttempt    time.Time `json:"lastAttempt"`
}

// ShipResponse resultado del envío: inmediato (shipped) o diferido (willRetry).
type ShipResponse struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	WillRetry bool   `json:"willRetry,omitempty"`
}

// UpdateStatusRequest body del callback PATCH /api/orders/:orderId.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}
