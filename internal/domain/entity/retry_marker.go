package entity

import "time"

// Estados del marcador de reintento.
const (
	RetryStatusInFlight      = "in_flight"      // llamada síncrona al inventario en curso
	RetryStatusQueued        = "queued"         // publicado en el canal de reintentos
	RetryStatusPublishFailed = "publish_failed" // pendiente de re-publicar por el relay
	RetryStatusCompleted     = "completed"
)

// RetryMarker marca local "esperando reintento" de una orden cuyo envío se difirió.
type RetryMarker struct {
	OrderID        string
	IdempotencyKey string
	Status         string
	RetryCount     int
	LastAttempt    time.Time
	CreatedAt      time.Time
}

// Active indica si la orden tiene un reintento en curso.
func (m *RetryMarker) Active() bool {
	return m != nil && m.Status != RetryStatusCompleted
}
