package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/inventario-saga/internal/application/order"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/httpclient"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/metrics"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/postgres"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/rabbitmq"
	httpRouter "github.com/jhoicas/inventario-saga/internal/interfaces/http"
	"github.com/jhoicas/inventario-saga/pkg/config"
	"github.com/jhoicas/inventario-saga/pkg/logger"
)

func main() {
	cfg, err := config.Load("order-service", 3005)
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("inventory_url", cfg.Inventory.BaseURL).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	broker := rabbitmq.NewBroker(cfg.Broker, log.Zerolog())
	if err := broker.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("conexión a RabbitMQ")
	}
	publisher := rabbitmq.NewPublisher(broker, log.Zerolog())

	// El timeout del saga acota la llamada; el del cliente es solo una red de seguridad.
	inventoryClient := httpclient.NewInventoryClient(cfg.Inventory.BaseURL, &http.Client{Timeout: 2 * cfg.Inventory.Timeout})
	saga := order.NewSaga(
		postgres.NewOrderRepository(pool),
		postgres.NewRetryMarkerRepository(pool),
		inventoryClient,
		publisher,
		log.Zerolog(),
		order.WithTimeout(cfg.Inventory.Timeout),
	)

	m := metrics.New()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.OpsRouter(app, httpRouter.OpsDeps{
		Service: cfg.App.Name,
		Checks: map[string]httpRouter.HealthCheck{
			"database": pool.Ping,
			"broker": func(context.Context) error {
				if !broker.Healthy() {
					return errors.New("sin conexión")
				}
				return nil
			},
		},
		Recorder: m,
		Metrics:  m.Handler(),
	})
	httpRouter.OrderRouter(app, httpRouter.OrderRouterDeps{
		Saga:          saga,
		Observer:      m,
		ServiceSecret: cfg.ServiceJWT.Secret,
		ServiceIssuer: cfg.ServiceJWT.Issuer,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(cfg.HTTP.Addr())
	})
	g.Go(func() error {
		return saga.RunRelay(gctx, cfg.Relay.Interval, cfg.Relay.Batch)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("servicio finalizado con error")
	}

	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("cierre del publicador")
	}
	if err := broker.Close(); err != nil {
		log.Warn().Err(err).Msg("cierre de la conexión a RabbitMQ")
	}
	log.Info().Msg("aplicación detenida")
}
