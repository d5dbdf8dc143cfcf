package retry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// StatusUpdater llamada real al saga para marcar la orden como enviada.
type StatusUpdater interface {
	MarkShipped(ctx context.Context, orderID string) error
}

// AsyncNotifier ejecuta el aviso en segundo plano con reintentos acotados. Un fallo definitivo
// solo se registra: la mutación de stock ya está confirmada.
type AsyncNotifier struct {
	updater  StatusUpdater
	attempts int
	backoff  time.Duration
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	log      zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
}

var _ Notifier = (*AsyncNotifier)(nil)

// NewAsyncNotifier construye el notificador. concurrency acota los avisos en vuelo.
func NewAsyncNotifier(updater StatusUpdater, attempts int, backoff time.Duration, concurrency int, log zerolog.Logger) *AsyncNotifier {
	if attempts < 1 {
		attempts = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncNotifier{
		updater:  updater,
		attempts: attempts,
		backoff:  backoff,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		log:      log.With().Str("component", "status_notifier").Logger(),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Notify programa el aviso. Solo bloquea si ya hay concurrency avisos en vuelo.
func (n *AsyncNotifier) Notify(ctx context.Context, orderID string) {
	if err := n.sem.Acquire(ctx, 1); err != nil {
		n.log.Warn().Err(err).Str("order_id", orderID).Msg("aviso de estado descartado")
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.sem.Release(1)
		n.deliver(orderID)
	}()
}

func (n *AsyncNotifier) deliver(orderID string) {
	wait := n.backoff
	for attempt := 1; ; attempt++ {
		err := n.updater.MarkShipped(n.baseCtx, orderID)
		if err == nil {
			n.log.Info().Str("order_id", orderID).Int("attempt", attempt).Msg("orden marcada como enviada")
			return
		}
		if attempt >= n.attempts {
			n.log.Warn().Err(err).Str("order_id", orderID).Int("attempts", attempt).Msg("falló el aviso de estado, se ignora")
			return
		}
		n.log.Warn().Err(err).Str("order_id", orderID).Int("attempt", attempt).Dur("backoff", wait).Msg("reintentando aviso de estado")
		select {
		case <-n.baseCtx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// Close espera los avisos en vuelo hasta que ctx venza; entonces los cancela.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-done
		return ctx.Err()
	}
}
