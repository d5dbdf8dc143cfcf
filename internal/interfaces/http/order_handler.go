package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/order"
	"github.com/jhoicas/inventario-saga/internal/domain"
)

// ShipObserver cuenta resultados de envío (shipped, will_retry, rejected, error).
type ShipObserver interface {
	ObserveShip(outcome string)
}

// OrderHandler maneja las peticiones HTTP del servicio de órdenes.
type OrderHandler struct {
	saga     *order.Saga
	observer ShipObserver
}

// NewOrderHandler construye el handler. observer puede ser nil.
func NewOrderHandler(saga *order.Saga, observer ShipObserver) *OrderHandler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &OrderHandler{saga: saga, observer: observer}
}

// Create godoc
// @Summary      Crear orden
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateOrderRequest  true  "userId, items"
// @Success      201  {object}  dto.OrderResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/orders [post]
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateOrderRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.saga.CreateOrder(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Get godoc
// @Summary      Obtener orden con su estado de reintento
// @Tags         orders
// @Produce      json
// @Param        orderId  path  string  true  "ID de la orden"
// @Success      200  {object}  dto.OrderResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/orders/{orderId} [get]
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	out, err := h.saga.GetOrder(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Ship godoc
// @Summary      Enviar orden (descuento síncrono con respaldo asíncrono)
// @Tags         orders
// @Produce      json
// @Param        orderId  path  string  true  "ID de la orden"
// @Success      200  {object}  dto.ShipResponse  "enviada"
// @Success      202  {object}  dto.ShipResponse  "diferida, willRetry=true"
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/orders/{orderId}/ship [post]
func (h *OrderHandler) Ship(c *fiber.Ctx) error {
	out, err := h.saga.Ship(c.UserContext(), c.Params("orderId"))
	if err != nil {
		if domain.IsBusiness(err) || errors.Is(err, domain.ErrInventoryRejected) {
			h.observer.ObserveShip("rejected")
		} else {
			h.observer.ObserveShip("error")
		}
		return writeError(c, err)
	}
	if out.WillRetry {
		h.observer.ObserveShip("will_retry")
		return c.Status(fiber.StatusAccepted).JSON(out)
	}
	h.observer.ObserveShip("shipped")
	return c.Status(fiber.StatusOK).JSON(out)
}

// UpdateStatus godoc
// @Summary      Callback de estado (shipped | cancelled)
// @Tags         orders
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        orderId  path  string                   true  "ID de la orden"
// @Param        body     body  dto.UpdateStatusRequest  true  "status"
// @Success      200  {object}  dto.OrderResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/orders/{orderId} [patch]
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	var in dto.UpdateStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.saga.UpdateStatus(c.UserContext(), c.Params("orderId"), in.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Cancel godoc
// @Summary      Cancelar orden pendiente sin reintento en curso
// @Tags         orders
// @Produce      json
// @Param        orderId  path  string  true  "ID de la orden"
// @Success      200  {object}  dto.OrderResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/orders/{orderId}/cancel [post]
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("orderId")
	if err := h.saga.Cancel(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	out, err := h.saga.GetOrder(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}
