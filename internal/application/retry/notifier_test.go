package retry_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-saga/internal/application/retry"
)

type flakyUpdater struct {
	failures int32
	calls    atomic.Int32
	mu       sync.Mutex
	shipped  []string
}

func (f *flakyUpdater) MarkShipped(_ context.Context, orderID string) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("order service down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shipped = append(f.shipped, orderID)
	return nil
}

func TestAsyncNotifier_ReintentaHastaLograrlo(t *testing.T) {
	u := &flakyUpdater{failures: 2}
	n := retry.NewAsyncNotifier(u, 3, time.Millisecond, 4, zerolog.Nop())

	n.Notify(context.Background(), "o1")
	require.NoError(t, n.Close(context.Background()))

	assert.Equal(t, int32(3), u.calls.Load())
	assert.Equal(t, []string{"o1"}, u.shipped)
}

func TestAsyncNotifier_AbandonaTrasLosIntentos(t *testing.T) {
	u := &flakyUpdater{failures: 100}
	n := retry.NewAsyncNotifier(u, 3, time.Millisecond, 1, zerolog.Nop())

	n.Notify(context.Background(), "o1")
	n.Notify(context.Background(), "o2")
	require.NoError(t, n.Close(context.Background()))

	assert.Equal(t, int32(6), u.calls.Load())
	assert.Empty(t, u.shipped)
}

func TestAsyncNotifier_CloseCancelaAlVencer(t *testing.T) {
	u := &flakyUpdater{failures: 100}
	n := retry.NewAsyncNotifier(u, 10, time.Hour, 1, zerolog.Nop())

	n.Notify(context.Background(), "o1")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := n.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), u.calls.Load())
}
