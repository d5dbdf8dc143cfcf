package faults

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-saga/internal/application/inventory"
)

// ErrSimulatedCrash indica que la mutación se confirmó pero el proceso "murió" antes de responder.
// Los adaptadores de transporte deben traducirlo a no responder en absoluto.
var ErrSimulatedCrash = errors.New("simulated crash after commit")

var (
	_ inventory.Applier = (*CrashAfterCommit)(nil)
	_ inventory.Applier = (*Delayed)(nil)
)

// CrashAfterCommit envuelve un Applier: tras una aplicación nueva y confirmada, si el decider
// lo indica, descarta el resultado y devuelve ErrSimulatedCrash. Las repeticiones desde el
// ledger nunca se "caen" porque no hubo commit.
type CrashAfterCommit struct {
	next    inventory.Applier
	decider Decider
	log     zerolog.Logger
}

// NewCrashAfterCommit construye el envoltorio.
func NewCrashAfterCommit(next inventory.Applier, decider Decider, log zerolog.Logger) *CrashAfterCommit {
	return &CrashAfterCommit{next: next, decider: decider, log: log.With().Str("component", "fault_injector").Logger()}
}

func (c *CrashAfterCommit) Apply(ctx context.Context, cmd inventory.Command) (*inventory.Outcome, error) {
	out, err := c.next.Apply(ctx, cmd)
	if err != nil || out.Cached {
		return out, err
	}
	if c.decider.ShouldCrash() {
		c.log.Error().Str("order_id", cmd.OrderID).Str("idempotency_key", cmd.IdempotencyKey).Msg("caída simulada después del commit")
		return nil, ErrSimulatedCrash
	}
	return out, nil
}

// Delayed retrasa la aplicación según Latency. El retraso no respeta el contexto del llamador:
// una llamada abandonada por timeout sigue y puede confirmar.
type Delayed struct {
	next    inventory.Applier
	latency *Latency
	log     zerolog.Logger
	sleep   func(time.Duration)
}

// NewDelayed construye el envoltorio.
func NewDelayed(next inventory.Applier, latency *Latency, log zerolog.Logger) *Delayed {
	return &Delayed{next: next, latency: latency, log: log.With().Str("component", "fault_injector").Logger(), sleep: time.Sleep}
}

func (d *Delayed) Apply(ctx context.Context, cmd inventory.Command) (*inventory.Outcome, error) {
	if n, delay := d.latency.Next(); delay > 0 {
		d.log.Warn().Int64("request", n).Dur("delay", delay).Str("order_id", cmd.OrderID).Msg("latencia inyectada")
		d.sleep(delay)
	}
	return d.next.Apply(ctx, cmd)
}
