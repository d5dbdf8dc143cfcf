package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-saga/internal/application/retry"
)

// ErrNacked el broker no confirmó la publicación.
var ErrNacked = errors.New("rabbitmq: publish not confirmed")

// Publisher publica mensajes de reintento persistentes y espera la confirmación del broker.
// El canal se abre bajo demanda y se descarta ante cualquier error.
type Publisher struct {
	broker *Broker
	log    zerolog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher construye el publicador.
func NewPublisher(broker *Broker, log zerolog.Logger) *Publisher {
	return &Publisher{broker: broker, log: log.With().Str("component", "retry_publisher").Logger()}
}

// Publish envía msg al exchange de reintentos con la routing key fija.
func (p *Publisher) Publish(ctx context.Context, msg retry.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode retry message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, retry.ExchangeName, retry.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.IdempotencyKey,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish retry message: %w", err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		p.reset()
		return fmt.Errorf("wait publish confirm: %w", err)
	}
	if !acked {
		return ErrNacked
	}
	p.log.Debug().Str("order_id", msg.OrderID).Str("idempotency_key", msg.IdempotencyKey).Msg("reintento confirmado por el broker")
	return nil
}

func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.broker.Channel(ctx)
	if err != nil {
		return nil, fmt.Errorf("publisher channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Close cierra el canal del publicador; la conexión es del Broker.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
