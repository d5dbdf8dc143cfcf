package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrInvalidState      = errors.New("transición de estado no permitida")
	ErrProductNotFound   = errors.New("producto no encontrado")
	ErrInsufficientStock = errors.New("stock insuficiente")

	// ErrInventoryUnavailable agrupa timeouts, conexiones caídas y 5xx del servicio de inventario.
	// Siempre se difiere al canal de reintentos, nunca es un fallo final para la orden.
	ErrInventoryUnavailable = errors.New("servicio de inventario no disponible")
	// ErrInventoryRejected: el inventario respondió 4xx sin ser un fallo de negocio conocido.
	ErrInventoryRejected = errors.New("petición rechazada por inventario")
)

// IsBusiness indica si err es un fallo de regla de negocio (terminal, no se reintenta).
func IsBusiness(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrInsufficientStock)
}

// IsTransient indica si err es un fallo de transporte que debe pasar al canal de reintentos.
func IsTransient(err error) bool {
	return errors.Is(err, ErrInventoryUnavailable)
}
