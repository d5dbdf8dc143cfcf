package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-saga/internal/application/retry"
)

// DeliveryHandler decide qué hacer con el cuerpo de cada entrega.
type DeliveryHandler interface {
	Handle(ctx context.Context, body []byte) retry.Disposition
}

// Consumer drena la cola de reintentos con ack manual. Los rechazos nunca se reencolan:
// la cola principal los desvía al dead-letter exchange.
type Consumer struct {
	broker   *Broker
	handler  DeliveryHandler
	prefetch int
	tag      string
	observe  func(retry.Disposition)
	log      zerolog.Logger
}

// NewConsumer construye el consumidor. observe puede ser nil.
func NewConsumer(broker *Broker, handler DeliveryHandler, prefetch int, observe func(retry.Disposition), log zerolog.Logger) *Consumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if observe == nil {
		observe = func(retry.Disposition) {}
	}
	return &Consumer{
		broker:   broker,
		handler:  handler,
		prefetch: prefetch,
		tag:      "inventory-consumer-" + uuid.NewString(),
		observe:  observe,
		log:      log.With().Str("component", "retry_consumer").Logger(),
	}
}

// Run consume hasta que ctx termine. Si el canal se cae, espera la reconexión del Broker y
// vuelve a suscribirse.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Msg("suscripción interrumpida, reintentando")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.broker.minB):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	ch, err := c.broker.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		return err
	}
	deliveries, err := ch.ConsumeWithContext(ctx, retry.QueueName, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info().Str("queue", retry.QueueName).Int("prefetch", c.prefetch).Msg("consumidor de reintentos esperando mensajes")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			// Una entrega en curso termina aunque se esté apagando el servicio.
			c.dispatch(context.WithoutCancel(ctx), d)
		}
	}
}

// dispatch procesa una entrega y la confirma o rechaza sin reencolar.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	disp := c.handler.Handle(ctx, d.Body)
	c.observe(disp)

	var err error
	if disp == retry.Ack {
		err = d.Ack(false)
	} else {
		err = d.Reject(false)
	}
	if err != nil {
		c.log.Error().Err(err).Str("disposition", disp.String()).Uint64("delivery_tag", d.DeliveryTag).Msg("no se pudo confirmar la entrega")
	}
}
