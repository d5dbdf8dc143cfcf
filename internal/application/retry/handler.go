package retry

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-saga/internal/application/inventory"
	"github.com/jhoicas/inventario-saga/internal/domain"
)

// Disposition decisión sobre una entrega.
type Disposition int

const (
	// Ack la mutación quedó aplicada (nueva o repetida).
	Ack Disposition = iota
	// RejectBusiness producto inexistente o stock insuficiente; nunca se reencola.
	RejectBusiness
	// RejectInvalid mensaje ilegible o incompleto; va a la cola de muertos.
	RejectInvalid
	// RejectInternal fallo interno (almacenamiento caído, etc.); va a la cola de muertos.
	RejectInternal
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case RejectBusiness:
		return "reject_business"
	case RejectInvalid:
		return "reject_invalid"
	case RejectInternal:
		return "reject_internal"
	default:
		return "unknown"
	}
}

// Notifier avisa al saga de órdenes que una orden quedó enviada. No debe bloquear la entrega.
type Notifier interface {
	Notify(ctx context.Context, orderID string)
}

// Handler procesa entregas del canal. No deduplica por su cuenta: la idempotencia la da el Applier.
type Handler struct {
	applier  inventory.Applier
	notifier Notifier
	log      zerolog.Logger
}

// NewHandler construye el manejador.
func NewHandler(applier inventory.Applier, notifier Notifier, log zerolog.Logger) *Handler {
	return &Handler{
		applier:  applier,
		notifier: notifier,
		log:      log.With().Str("component", "retry_handler").Logger(),
	}
}

// Handle decodifica, aplica y decide. Tras un éxito avisa al saga sin esperar respuesta
// y confirma la entrega aunque el aviso falle después.
func (h *Handler) Handle(ctx context.Context, body []byte) Disposition {
	msg, err := Decode(body)
	if err != nil {
		h.log.Error().Err(err).Msg("mensaje de reintento inválido")
		return RejectInvalid
	}
	log := h.log.With().Str("order_id", msg.OrderID).Str("idempotency_key", msg.IdempotencyKey).Logger()
	log.Info().Int("items", len(msg.Items)).Msg("reintento recibido")

	out, err := h.applier.Apply(ctx, inventory.Command{
		OrderID:        msg.OrderID,
		Items:          msg.Items,
		IdempotencyKey: msg.IdempotencyKey,
	})
	switch {
	case err == nil:
	case domain.IsBusiness(err):
		log.Warn().Err(err).Msg("reintento rechazado por regla de negocio")
		return RejectBusiness
	case errors.Is(err, domain.ErrInvalidInput):
		log.Error().Err(err).Msg("reintento rechazado por datos inválidos")
		return RejectInvalid
	default:
		log.Error().Err(err).Msg("fallo interno procesando reintento")
		return RejectInternal
	}

	log.Info().Bool("cached", out.Cached).Msg("reintento procesado")
	h.notifier.Notify(ctx, msg.OrderID)
	return Ack
}
