package entity

import "time"

// IdempotencyRecord guarda la respuesta exacta devuelta la primera vez para una clave.
// A lo sumo un registro por clave; una vez escrito es inmutable.
type IdempotencyRecord struct {
	IdempotencyKey string
	OrderID        string
	StoredResult   []byte // JSON tal cual se devolvió, se reenvía byte a byte
	ProcessedAt    time.Time
}
