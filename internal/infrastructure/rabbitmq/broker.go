// Package rabbitmq implementa el canal de reintentos sobre RabbitMQ: un Broker con ciclo de
// vida explícito y reconexión supervisada, un Publisher en modo confirmación y un Consumer
// con ack manual.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-saga/internal/application/retry"
	"github.com/jhoicas/inventario-saga/pkg/config"
)

// ErrClosed el broker fue cerrado.
var ErrClosed = errors.New("rabbitmq: broker closed")

// Broker es dueño de la conexión AMQP. Connect la abre y declara la topología; si la conexión
// se pierde, un bucle supervisado reconecta con backoff exponencial hasta Close.
type Broker struct {
	url    string
	minB   time.Duration
	maxB   time.Duration
	log    zerolog.Logger
	dial   func(url string) (*amqp.Connection, error)
	closed chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu    sync.RWMutex
	conn  *amqp.Connection
	ready chan struct{} // cerrado mientras hay conexión
}

// NewBroker construye el broker sin conectar.
func NewBroker(cfg config.BrokerConfig, log zerolog.Logger) *Broker {
	minB, maxB := cfg.ReconnectMin, cfg.ReconnectMax
	if minB <= 0 {
		minB = 500 * time.Millisecond
	}
	if maxB < minB {
		maxB = minB
	}
	return &Broker{
		url:    cfg.URL,
		minB:   minB,
		maxB:   maxB,
		log:    log.With().Str("component", "rabbitmq").Logger(),
		dial:   amqp.Dial,
		closed: make(chan struct{}),
		ready:  make(chan struct{}),
	}
}

// Connect abre la conexión (reintentando con backoff hasta que ctx venza), declara la topología
// y arranca la supervisión. Se llama una sola vez.
func (b *Broker) Connect(ctx context.Context) error {
	conn, err := b.connectWithBackoff(ctx)
	if err != nil {
		return err
	}
	b.setConn(conn)
	b.wg.Add(1)
	go b.supervise(conn)
	return nil
}

func (b *Broker) connectWithBackoff(ctx context.Context) (*amqp.Connection, error) {
	wait := b.minB
	for attempt := 1; ; attempt++ {
		conn, err := b.dialAndDeclare()
		if err == nil {
			b.log.Info().Int("attempt", attempt).Msg("conectado a RabbitMQ")
			return conn, nil
		}
		b.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("no se pudo conectar a RabbitMQ")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect rabbitmq: %w", errors.Join(ctx.Err(), err))
		case <-b.closed:
			return nil, ErrClosed
		case <-time.After(wait):
		}
		wait = NextBackoff(wait, b.minB, b.maxB)
	}
}

func (b *Broker) dialAndDeclare() (*amqp.Connection, error) {
	conn, err := b.dial(b.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := DeclareTopology(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// supervise espera el cierre de la conexión y reconecta hasta que el broker se cierre.
func (b *Broker) supervise(conn *amqp.Connection) {
	defer b.wg.Done()
	for {
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		var reason *amqp.Error
		select {
		case <-b.closed:
			return
		case reason = <-notify:
		}
		if b.isClosed() {
			return
		}
		b.log.Warn().Interface("reason", reason).Msg("conexión a RabbitMQ perdida, reconectando")
		b.clearConn()

		next, err := b.connectWithBackoff(context.Background())
		if err != nil {
			return
		}
		if b.isClosed() {
			_ = next.Close()
			return
		}
		b.setConn(next)
		conn = next
	}
}

func (b *Broker) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

func (b *Broker) setConn(conn *amqp.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = conn
	close(b.ready)
}

func (b *Broker) clearConn() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = nil
	b.ready = make(chan struct{})
}

// Channel abre un canal nuevo; si no hay conexión espera la reconexión hasta que ctx venza.
func (b *Broker) Channel(ctx context.Context) (*amqp.Channel, error) {
	for {
		b.mu.RLock()
		conn, ready := b.conn, b.ready
		b.mu.RUnlock()

		if conn != nil && !conn.IsClosed() {
			ch, err := conn.Channel()
			if err == nil {
				return ch, nil
			}
			if !errors.Is(err, amqp.ErrClosed) {
				return nil, fmt.Errorf("open channel: %w", err)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.closed:
			return nil, ErrClosed
		case <-ready:
		case <-time.After(b.minB):
		}
	}
}

// Healthy indica si hay una conexión abierta.
func (b *Broker) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil && !b.conn.IsClosed()
}

// Close detiene la supervisión y cierra la conexión.
func (b *Broker) Close() error {
	var err error
	b.once.Do(func() {
		close(b.closed)
		b.mu.Lock()
		conn := b.conn
		b.conn = nil
		b.mu.Unlock()
		if conn != nil && !conn.IsClosed() {
			err = conn.Close()
		}
		b.wg.Wait()
	})
	return err
}

// DeclareTopology declara el exchange, la cola durable enlazada por la routing key y la cola
// de muertos. Productor y consumidor llaman a la misma función.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(retry.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(retry.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(retry.DeadLetterQueue, "", retry.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if err := ch.ExchangeDeclare(retry.ExchangeName, retry.ExchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	args := amqp.Table{"x-dead-letter-exchange": retry.DeadLetterExchange}
	if _, err := ch.QueueDeclare(retry.QueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(retry.QueueName, retry.RoutingKey, retry.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// NextBackoff duplica cur acotado a [minB, maxB].
func NextBackoff(cur, minB, maxB time.Duration) time.Duration {
	if cur < minB {
		return minB
	}
	next := cur * 2
	if maxB > 0 && next > maxB {
		return maxB
	}
	return next
}
