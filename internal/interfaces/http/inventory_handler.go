package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/application/inventory"
	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/faults"
)

// StockReader consultas de solo lectura del inventario. Lo implementa *inventory.Processor.
type StockReader interface {
	GetStock(ctx context.Context, productID string) (*entity.Stock, error)
	AuditTrail(ctx context.Context, orderID string) ([]*entity.AuditEntry, error)
	ProductHistory(ctx context.Context, productID string, limit, offset int) ([]*entity.AuditEntry, error)
}

// ApplyObserver cuenta resultados de mutación (applied, cached, business, crash, error).
type ApplyObserver interface {
	ObserveApply(outcome string)
}

// InventoryHandler maneja las peticiones HTTP del servicio de inventario.
type InventoryHandler struct {
	applier  inventory.Applier
	reader   StockReader
	observer ApplyObserver
	log      zerolog.Logger
}

// NewInventoryHandler construye el handler. observer puede ser nil.
func NewInventoryHandler(applier inventory.Applier, reader StockReader, observer ApplyObserver, log zerolog.Logger) *InventoryHandler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &InventoryHandler{applier: applier, reader: reader, observer: observer, log: log}
}

// Update godoc
// @Summary      Descontar stock de una orden (idempotente)
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                      false  "Clave; si falta se usa idempotencyKey del body"
// @Param        body             body    dto.UpdateInventoryRequest  true   "orderId, items, idempotencyKey"
// @Success      200  {object}  dto.UpdateInventoryResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/inventory/update [post]
func (h *InventoryHandler) Update(c *fiber.Ctx) error {
	var in dto.UpdateInventoryRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = c.Get("Idempotency-Key")
	}

	out, err := h.applier.Apply(c.UserContext(), inventory.Command{
		OrderID:        in.OrderID,
		Items:          in.Items,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, faults.ErrSimulatedCrash) {
			// El commit ya ocurrió: el llamador no debe recibir respuesta alguna.
			h.observer.ObserveApply("crash")
			_ = c.Context().Conn().Close()
			return nil
		}
		if domain.IsBusiness(err) {
			h.observer.ObserveApply("business")
		} else {
			h.observer.ObserveApply("error")
			if !errors.Is(err, domain.ErrInvalidInput) {
				h.log.Error().Err(err).Str("order_id", in.OrderID).Msg("fallo actualizando inventario")
			}
		}
		return writeError(c, err)
	}

	resp := dto.UpdateInventoryResponse{Success: true, Message: "Inventory updated successfully", Data: out.Raw}
	if out.Cached {
		h.observer.ObserveApply("cached")
		resp.Message = "Already processed"
		resp.Cached = true
	} else {
		h.observer.ObserveApply("applied")
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// GetStock godoc
// @Summary      Existencia de un producto
// @Tags         inventory
// @Produce      json
// @Param        productId  path  string  true  "ID del producto"
// @Success      200  {object}  entity.Stock
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/{productId} [get]
func (h *InventoryHandler) GetStock(c *fiber.Ctx) error {
	s, err := h.reader.GetStock(c.UserContext(), c.Params("productId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": s})
}

// AuditTrail godoc
// @Summary      Bitácora de movimientos de una orden
// @Tags         inventory
// @Produce      json
// @Param        orderId  path  string  true  "ID de la orden"
// @Success      200  {array}  entity.AuditEntry
// @Router       /api/inventory/orders/{orderId}/audit [get]
func (h *InventoryHandler) AuditTrail(c *fiber.Ctx) error {
	entries, err := h.reader.AuditTrail(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return writeError(c, err)
	}
	if entries == nil {
		entries = []*entity.AuditEntry{}
	}
	return c.JSON(fiber.Map{"success": true, "data": entries})
}

// ProductHistory godoc
// @Summary      Movimientos de un producto, más recientes primero
// @Tags         inventory
// @Produce      json
// @Param        productId  path   string  true   "ID del producto"
// @Param        limit      query  int     false  "máximo de entradas (default 50, máx 200)"
// @Param        offset     query  int     false  "desplazamiento"
// @Success      200  {array}  entity.AuditEntry
// @Router       /api/inventory/{productId}/audit [get]
func (h *InventoryHandler) ProductHistory(c *fiber.Ctx) error {
	entries, err := h.reader.ProductHistory(c.UserContext(), c.Params("productId"), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return writeError(c, err)
	}
	if entries == nil {
		entries = []*entity.AuditEntry{}
	}
	return c.JSON(fiber.Map{"success": true, "data": entries})
}

type nopObserver struct{}

func (nopObserver) ObserveApply(string) {}
func (nopObserver) ObserveShip(string)  {}
