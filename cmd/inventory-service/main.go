package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/inventario-saga/internal/application/inventory"
	"github.com/jhoicas/inventario-saga/internal/application/retry"
	"github.com/jhoicas/inventario-saga/internal/faults"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/httpclient"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/metrics"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/postgres"
	"github.com/jhoicas/inventario-saga/internal/infrastructure/rabbitmq"
	httpRouter "github.com/jhoicas/inventario-saga/internal/interfaces/http"
	"github.com/jhoicas/inventario-saga/pkg/config"
	"github.com/jhoicas/inventario-saga/pkg/logger"
)

func main() {
	cfg, err := config.Load("inventory-service", 3002)
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
		Bool("chaos", cfg.Chaos.Enabled).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	processor := inventory.NewProcessor(
		postgres.NewTxRunner(pool),
		postgres.NewIdempotencyRepository(pool),
		postgres.NewStockRepository(pool),
		postgres.NewAuditRepository(pool),
		log.Zerolog(),
	)

	// Solo la ruta HTTP sufre fallos inyectados; el consumidor usa el procesador directo.
	var httpApplier inventory.Applier = processor
	if cfg.Chaos.Enabled {
		seed := cfg.Chaos.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		delayed := faults.NewDelayed(processor, faults.NewLatency(cfg.Chaos.LatencyEvery, cfg.Chaos.LatencyDelay), log.Zerolog())
		httpApplier = faults.NewCrashAfterCommit(delayed, faults.NewProbabilityDecider(cfg.Chaos.CrashProbability, seed), log.Zerolog())
		log.Warn().
			Float64("crash_probability", cfg.Chaos.CrashProbability).
			Uint64("seed", seed).
			Int("latency_every", cfg.Chaos.LatencyEvery).
			Dur("latency_delay", cfg.Chaos.LatencyDelay).
			Msg("inyección de fallos activa")
	}

	m := metrics.New()

	broker := rabbitmq.NewBroker(cfg.Broker, log.Zerolog())
	if err := broker.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("conexión a RabbitMQ")
	}

	statusClient := httpclient.NewStatusClient(cfg.Callback.OrderServiceURL, cfg.App.Name, cfg.ServiceJWT, cfg.Callback.Timeout)
	notifier := retry.NewAsyncNotifier(statusClient, cfg.Callback.Attempts, cfg.Callback.Backoff, cfg.Callback.Concurrency, log.Zerolog())
	handler := retry.NewHandler(processor, notifier, log.Zerolog())
	consumer := rabbitmq.NewConsumer(broker, handler, cfg.Broker.Prefetch, m.ObserveRetry, log.Zerolog())

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
	httpRouter.InventoryRouter(app, httpRouter.InventoryRouterDeps{
		Applier:  httpApplier,
		Reader:   processor,
		Observer: m,
		Log:      log.Component("inventory_http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Listen(cfg.HTTP.Addr())
	})
	g.Go(func() error {
		return consumer.Run(gctx)
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

	// El consumidor ya salió: ningún aviso nuevo puede llegar al notificador.
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := notifier.Close(closeCtx); err != nil {
		log.Warn().Err(err).Msg("avisos de estado pendientes descartados")
	}
	if err := broker.Close(); err != nil {
		log.Warn().Err(err).Msg("cierre de la conexión a RabbitMQ")
	}
	log.Info().Msg("aplicación detenida")
}
