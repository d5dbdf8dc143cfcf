package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestRecorder recibe inicio y fin de cada petición. Lo implementa *metrics.Metrics.
type RequestRecorder interface {
	RequestStarted()
	RequestFinished(method, route string, status int, elapsed time.Duration)
}

// MetricsMiddleware mide duración, total y peticiones activas por método, ruta y status.
func MetricsMiddleware(rec RequestRecorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		rec.RequestStarted()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		rec.RequestFinished(c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}
