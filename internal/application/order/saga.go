// Package order orquesta el ciclo de vida de la orden: creación, envío síncrono con tiempo
// acotado y traspaso al canal de reintentos cuando el inventario no responde.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/retry"
	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/domain/repository"
)

// DefaultTimeout tiempo máximo de la llamada síncrona al inventario.
const DefaultTimeout = 3 * time.Second

// ShipKey clave de idempotencia de la intención de envío de una orden. Es la misma para la
// llamada síncrona, cada mensaje de reintento y cualquier reenvío manual.
func ShipKey(orderID string) string {
	return "ship-" + orderID
}

// Saga casos de uso de órdenes.
type Saga struct {
	orders    repository.OrderRepository
	markers   repository.RetryMarkerRepository
	inventory InventoryClient
	publisher RetryPublisher
	timeout   time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// Option ajusta el saga.
type Option func(*Saga)

// WithTimeout fija el tiempo máximo de la llamada síncrona.
func WithTimeout(d time.Duration) Option {
	return func(s *Saga) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock reemplaza el reloj (pruebas).
func WithClock(now func() time.Time) Option {
	return func(s *Saga) { s.now = now }
}

// NewSaga construye el saga.
func NewSaga(
	orders repository.OrderRepository,
	markers repository.RetryMarkerRepository,
	inventory InventoryClient,
	publisher RetryPublisher,
	log zerolog.Logger,
	opts ...Option,
) *Saga {
	s := &Saga{
		orders:    orders,
		markers:   markers,
		inventory: inventory,
		publisher: publisher,
		timeout:   DefaultTimeout,
		log:       log.With().Str("component", "order_saga").Logger(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateOrder valida y persiste una orden nueva en estado pending.
func (s *Saga) CreateOrder(ctx context.Context, in dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	if strings.TrimSpace(in.UserID) == "" || len(in.Items) == 0 {
		return nil, domain.ErrInvalidInput
	}
	items := make([]entity.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" || it.Quantity <= 0 || it.Price.LessThan(decimal.Zero) {
			return nil, domain.ErrInvalidInput
		}
		items = append(items, entity.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}

	now := s.now()
	o := &entity.Order{
		ID:        newOrderID(now),
		UserID:    in.UserID,
		Status:    entity.OrderStatusPending,
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.TotalAmount = o.ComputeTotal()
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}
	s.log.Info().Str("order_id", o.ID).Str("user_id", o.UserID).Str("total", o.TotalAmount.String()).Msg("orden creada")
	return toOrderResponse(o, nil), nil
}

// GetOrder devuelve la orden con su marca de reintento, si la hay.
func (s *Saga) GetOrder(ctx context.Context, orderID string) (*dto.OrderResponse, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.ErrNotFound
	}
	m, err := s.markers.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(o, m), nil
}

// Ship intenta el descuento síncrono. Éxito: la orden pasa a shipped. Fallo transitorio: se
// publica un reintento con la misma clave y la orden sigue pending (WillRetry). Fallo de
// negocio: se devuelve el error sin reintentar. Durante la llamada la marca queda en
// in_flight, así Cancel no puede adelantarse a un commit en curso.
func (s *Saga) Ship(ctx context.Context, orderID string) (*dto.ShipResponse, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.ErrNotFound
	}
	if o.Status != entity.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrInvalidState, o.ID, o.Status)
	}

	key := ShipKey(o.ID)
	log := s.log.With().Str("order_id", o.ID).Str("idempotency_key", key).Logger()

	prev, claimed, err := s.orders.ClaimShip(ctx, o.ID, key, s.now())
	if err != nil {
		return nil, fmt.Errorf("claim ship: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: order %s is no longer pending", domain.ErrInvalidState, o.ID)
	}
	log.Info().Msg("intentando envío")

	req := dto.UpdateInventoryRequest{OrderID: o.ID, Items: itemQuantities(o.Items), IdempotencyKey: key}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err = s.inventory.UpdateStock(callCtx, req)
	cancel()

	switch {
	case err == nil:
		if err := s.MarkShipped(ctx, o.ID); err != nil {
			return nil, err
		}
		return &dto.ShipResponse{Success: true, OrderID: o.ID, Status: entity.OrderStatusShipped, Message: "Orden enviada"}, nil
	case domain.IsTransient(err):
		log.Warn().Err(err).Msg("inventario no respondió, se difiere al canal de reintentos")
		if err := s.handOff(ctx, req); err != nil {
			return nil, err
		}
		return &dto.ShipResponse{
			Success:   false,
			OrderID:   o.ID,
			Status:    entity.OrderStatusPending,
			Message:   "Inventario no disponible, el envío se reintentará",
			WillRetry: true,
		}, nil
	default:
		log.Info().Err(err).Msg("envío rechazado")
		s.releaseShip(ctx, o.ID, prev)
		return nil, err
	}
}

// releaseShip devuelve la marca al estado previo al reclamo tras un envío rechazado.
func (s *Saga) releaseShip(ctx context.Context, orderID, prev string) {
	var err error
	if prev == "" {
		err = s.markers.Delete(ctx, orderID)
	} else {
		err = s.markers.SetStatus(ctx, orderID, prev)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.log.Error().Err(err).Str("order_id", orderID).Str("prev_status", prev).Msg("no se pudo liberar la marca de envío")
	}
}

// handOff escribe la marca antes de publicar; si la publicación falla la marca queda en
// publish_failed para el relay. Solo un fallo al escribir la marca es error del llamador.
func (s *Saga) handOff(ctx context.Context, req dto.UpdateInventoryRequest) error {
	now := s.now()
	m := &entity.RetryMarker{
		OrderID:        req.OrderID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         entity.RetryStatusQueued,
		LastAttempt:    now,
		CreatedAt:      now,
	}
	if err := s.markers.Upsert(ctx, m); err != nil {
		return fmt.Errorf("record retry marker: %w", err)
	}

	msg := retry.Message{OrderID: req.OrderID, Items: req.Items, IdempotencyKey: req.IdempotencyKey, Timestamp: now}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("order_id", req.OrderID).Str("idempotency_key", req.IdempotencyKey).Msg("falló la publicación del reintento")
		if serr := s.markers.SetStatus(ctx, req.OrderID, entity.RetryStatusPublishFailed); serr != nil {
			return fmt.Errorf("mark retry publish failed: %w", serr)
		}
		return nil
	}
	s.log.Info().Str("order_id", req.OrderID).Int("retry_count", m.RetryCount).Msg("reintento publicado")
	return nil
}

// MarkShipped pasa la orden de pending a shipped y cierra su marca de reintento. Es idempotente:
// una orden ya enviada no es error.
func (s *Saga) MarkShipped(ctx context.Context, orderID string) error {
	ok, err := s.orders.TransitionStatus(ctx, orderID, entity.OrderStatusPending, entity.OrderStatusShipped)
	if err != nil {
		return err
	}
	if !ok {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.ErrNotFound
		}
		if o.Status != entity.OrderStatusShipped {
			s.log.Error().Str("order_id", orderID).Str("status", o.Status).Msg("stock descontado para una orden que no se puede enviar")
			return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidState, orderID, o.Status)
		}
	} else {
		s.log.Info().Str("order_id", orderID).Msg("orden enviada")
	}

	if err := s.markers.SetStatus(ctx, orderID, entity.RetryStatusCompleted); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("complete retry marker: %w", err)
	}
	return nil
}

// UpdateStatus aplica el callback de estado. Solo se aceptan shipped y cancelled.
func (s *Saga) UpdateStatus(ctx context.Context, orderID, status string) (*dto.OrderResponse, error) {
	var err error
	switch status {
	case entity.OrderStatusShipped:
		err = s.MarkShipped(ctx, orderID)
	case entity.OrderStatusCancelled:
		err = s.Cancel(ctx, orderID)
	default:
		return nil, domain.ErrInvalidInput
	}
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// Cancel cancela una orden pending sin reintento pendiente. Con un reintento en vuelo la
// mutación de stock aún puede confirmarse, así que se rechaza.
func (s *Saga) Cancel(ctx context.Context, orderID string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return domain.ErrNotFound
	}
	if o.Status == entity.OrderStatusCancelled {
		return nil
	}
	m, err := s.markers.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if m.Active() {
		return fmt.Errorf("%w: order %s has a ship in flight (%s)", domain.ErrInvalidState, orderID, m.Status)
	}
	ok, err := s.orders.CancelIfIdle(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order %s is no longer pending or has a ship in flight", domain.ErrInvalidState, orderID)
	}
	s.log.Info().Str("order_id", orderID).Msg("orden cancelada")
	return nil
}

// RelayPending re-publica hasta limit marcas en publish_failed con su clave original.
// Se detiene en el primer fallo de publicación (el broker probablemente sigue caído).
func (s *Saga) RelayPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.markers.ListByStatus(ctx, entity.RetryStatusPublishFailed, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, m := range pending {
		o, err := s.orders.GetByID(ctx, m.OrderID)
		if err != nil {
			return sent, err
		}
		if o == nil || o.Status != entity.OrderStatusPending {
			if err := s.markers.SetStatus(ctx, m.OrderID, entity.RetryStatusCompleted); err != nil {
				return sent, err
			}
			continue
		}
		msg := retry.Message{OrderID: o.ID, Items: itemQuantities(o.Items), IdempotencyKey: m.IdempotencyKey, Timestamp: s.now()}
		if err := s.publisher.Publish(ctx, msg); err != nil {
			return sent, fmt.Errorf("relay retry for %s: %w", o.ID, err)
		}
		if err := s.markers.SetStatus(ctx, o.ID, entity.RetryStatusQueued); err != nil {
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		s.log.Info().Int("count", sent).Msg("reintentos re-publicados")
	}
	return sent, nil
}

// RunRelay ejecuta RelayPending cada interval hasta que ctx termine.
func (s *Saga) RunRelay(ctx context.Context, interval time.Duration, batch int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RelayPending(ctx, batch); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("relay de reintentos incompleto")
			}
		}
	}
}

func newOrderID(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func itemQuantities(items []entity.OrderItem) []dto.ItemQuantity {
	out := make([]dto.ItemQuantity, 0, len(items))
	for _, it := range items {
		out = append(out, dto.ItemQuantity{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func toOrderResponse(o *entity.Order, m *entity.RetryMarker) *dto.OrderResponse {
	resp := &dto.OrderResponse{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Items:       make([]dto.CreateOrderItem, 0, len(o.Items)),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, dto.CreateOrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	if m != nil {
		resp.Retry = &dto.RetryMarkerResponse{
			IdempotencyKey: m.IdempotencyKey,
			Status:         m.Status,
			RetryCount:     m.RetryCount,
			LastAttempt:    m.LastAttempt,
		}
	}
	return resp
}
