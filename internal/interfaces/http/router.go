package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-saga/internal/application/inventory"
	"github.com/jhoicas/inventario-saga/internal/application/order"
)

// HealthCheck reporta una dependencia caída (base de datos, broker).
type HealthCheck func(ctx context.Context) error

// InventoryRouterDeps dependencias del servicio de inventario.
type InventoryRouterDeps struct {
	Applier  inventory.Applier // ruta de actualización, con inyección de fallos si está activa
	Reader   StockReader
	Observer ApplyObserver
	Log      zerolog.Logger
}

// OrderRouterDeps dependencias del servicio de órdenes.
type OrderRouterDeps struct {
	Saga          *order.Saga
	Observer      ShipObserver
	ServiceSecret string
	ServiceIssuer string
}

// OpsDeps rutas operativas comunes: salud y métricas.
type OpsDeps struct {
	Service  string
	Checks   map[string]HealthCheck
	Recorder RequestRecorder
	Metrics  http.Handler
}

// InventoryRouter registra las rutas del servicio de inventario.
func InventoryRouter(app *fiber.App, deps InventoryRouterDeps) {
	h := NewInventoryHandler(deps.Applier, deps.Reader, deps.Observer, deps.Log)

	inv := app.Group("/api/inventory")
	inv.Post("/update", h.Update)
	inv.Get("/orders/:orderId/audit", h.AuditTrail)
	inv.Get("/:productId/audit", h.ProductHistory)
	inv.Get("/:productId", h.GetStock)
}

// OrderRouter registra las rutas del servicio de órdenes. El callback PATCH exige token de servicio.
func OrderRouter(app *fiber.App, deps OrderRouterDeps) {
	h := NewOrderHandler(deps.Saga, deps.Observer)

	orders := app.Group("/api/orders")
	orders.Post("/", h.Create)
	orders.Get("/:orderId", h.Get)
	orders.Post("/:orderId/ship", h.Ship)
	orders.Post("/:orderId/cancel", h.Cancel)
	orders.Patch("/:orderId", ServiceAuthMiddleware(deps.ServiceSecret, deps.ServiceIssuer), h.UpdateStatus)
}

// OpsRouter registra /health y /metrics. Debe llamarse antes de las rutas de negocio
// para que el middleware de métricas las cubra.
func OpsRouter(app *fiber.App, deps OpsDeps) {
	if deps.Recorder != nil {
		app.Use(MetricsMiddleware(deps.Recorder))
	}
	app.Get("/health", healthHandler(deps.Service, deps.Checks))
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}
}

func healthHandler(service string, checks map[string]HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := fiber.StatusOK
		deps := fiber.Map{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = fiber.StatusServiceUnavailable
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}
		state := "ok"
		if status != fiber.StatusOK {
			state = "degraded"
		}
		return c.Status(status).JSON(fiber.Map{"status": state, "service": service, "dependencies": deps})
	}
}
