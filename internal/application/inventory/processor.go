package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/inventario-saga/internal/application/dto"
	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/domain/repository"
)

var _ Applier = (*Processor)(nil)

// Command entrada del procesador: orden, líneas a descontar y clave de idempotencia.
type Command struct {
	OrderID        string
	Items          []dto.ItemQuantity
	IdempotencyKey string
}

// Outcome resultado del procesador. Raw son los bytes guardados en el ledger;
// Cached es true cuando se devolvió un resultado ya registrado.
type Outcome struct {
	Result dto.InventoryResult
	Raw    json.RawMessage
	Cached bool
}

// Processor aplica decrementos de stock de forma atómica junto con la bitácora y el ledger
// de idempotencia. Es la unidad que hace seguros los reintentos.
type Processor struct {
	txRunner  TxRunner
	ledger    repository.IdempotencyRepository
	stockRepo repository.StockRepository
	auditRepo repository.AuditRepository
	log       zerolog.Logger
	now       func() time.Time
}

// NewProcessor construye el procesador. ledger, stockRepo y auditRepo son las versiones
// fuera de transacción (pool); las de la transacción las entrega txRunner.
func NewProcessor(
	txRunner TxRunner,
	ledger repository.IdempotencyRepository,
	stockRepo repository.StockRepository,
	auditRepo repository.AuditRepository,
	log zerolog.Logger,
) *Processor {
	return &Processor{
		txRunner:  txRunner,
		ledger:    ledger,
		stockRepo: stockRepo,
		auditRepo: auditRepo,
		log:       log.With().Str("component", "inventory_processor").Logger(),
		now:       time.Now,
	}
}

// Apply consulta el ledger; si la clave ya existe devuelve el resultado guardado sin recalcularlo.
// Si no, en una sola transacción: bloquea la clave, verifica y descuenta cada línea, escribe una
// entrada de bitácora por línea e inserta el registro de idempotencia. Cualquier fallo de
// suficiencia aborta la unidad completa.
func (p *Processor) Apply(ctx context.Context, cmd Command) (*Outcome, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	rec, err := p.ledger.Get(ctx, cmd.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if rec != nil {
		return p.replay(cmd, rec)
	}

	var out *Outcome
	err = p.txRunner.Run(ctx, func(
		stockRepo repository.StockRepository,
		ledgerRepo repository.IdempotencyRepository,
		auditRepo repository.AuditRepository,
	) error {
		if err := ledgerRepo.Lock(ctx, cmd.IdempotencyKey); err != nil {
			return err
		}
		// Otra petición con la misma clave pudo confirmar entre la consulta y el bloqueo.
		existing, err := ledgerRepo.Get(ctx, cmd.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			out, err = p.replay(cmd, existing)
			return err
		}

		now := p.now()
		if err := p.decrement(ctx, stockRepo, auditRepo, cmd, now); err != nil {
			return err
		}

		result := dto.InventoryResult{
			OrderID: cmd.OrderID,
			Items:   append([]dto.ItemQuantity(nil), cmd.Items...),
			Success: true,
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		if err := ledgerRepo.Insert(ctx, &entity.IdempotencyRecord{
			IdempotencyKey: cmd.IdempotencyKey,
			OrderID:        cmd.OrderID,
			StoredResult:   raw,
			ProcessedAt:    now,
		}); err != nil {
			return err
		}
		out = &Outcome{Result: result, Raw: raw}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicate) {
		// Perdimos la carrera por la clave: el ganador ya confirmó, devolvemos lo suyo.
		rec, gerr := p.ledger.Get(ctx, cmd.IdempotencyKey)
		if gerr != nil {
			return nil, fmt.Errorf("lookup idempotency key after conflict: %w", gerr)
		}
		if rec != nil {
			return p.replay(cmd, rec)
		}
	}
	if err != nil {
		if domain.IsBusiness(err) {
			p.log.Info().Err(err).Str("order_id", cmd.OrderID).Str("idempotency_key", cmd.IdempotencyKey).Msg("mutación rechazada")
		}
		return nil, err
	}

	if !out.Cached {
		p.log.Info().Str("order_id", cmd.OrderID).Str("idempotency_key", cmd.IdempotencyKey).Int("items", len(cmd.Items)).Msg("stock actualizado")
	}
	return out, nil
}

// decrement bloquea cada producto en orden ascendente de ID (evita deadlocks entre órdenes
// con los mismos productos) y aplica las líneas en el orden recibido.
func (p *Processor) decrement(
	ctx context.Context,
	stockRepo repository.StockRepository,
	auditRepo repository.AuditRepository,
	cmd Command,
	now time.Time,
) error {
	ids := make([]string, 0, len(cmd.Items))
	seen := make(map[string]bool, len(cmd.Items))
	for _, it := range cmd.Items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	sort.Strings(ids)

	locked := make(map[string]*entity.Stock, len(ids))
	for _, id := range ids {
		s, err := stockRepo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
		locked[id] = s
	}

	entries := make([]*entity.AuditEntry, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		s := locked[it.ProductID]
		if s.Quantity < it.Quantity {
			return fmt.Errorf("%w: product %s has %d, requested %d", domain.ErrInsufficientStock, it.ProductID, s.Quantity, it.Quantity)
		}
		before := s.Quantity
		s.Quantity -= it.Quantity
		entries = append(entries, &entity.AuditEntry{
			ProductID:      it.ProductID,
			OrderID:        cmd.OrderID,
			Action:         entity.AuditActionUpdate,
			QuantityBefore: before,
			QuantityAfter:  s.Quantity,
			CreatedAt:      now,
		})
	}

	for _, id := range ids {
		if err := stockRepo.UpdateQuantity(ctx, id, locked[id].Quantity); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := auditRepo.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// replay decodifica el resultado guardado. Nunca se vuelve a derivar contra el stock actual.
func (p *Processor) replay(cmd Command, rec *entity.IdempotencyRecord) (*Outcome, error) {
	var result dto.InventoryResult
	if err := json.Unmarshal(rec.StoredResult, &result); err != nil {
		return nil, fmt.Errorf("decode stored result for %s: %w", rec.IdempotencyKey, err)
	}
	if rec.OrderID != cmd.OrderID {
		p.log.Warn().Str("idempotency_key", rec.IdempotencyKey).Str("stored_order_id", rec.OrderID).Str("order_id", cmd.OrderID).Msg("clave reutilizada con otra orden, se devuelve el resultado original")
	} else {
		p.log.Info().Str("idempotency_key", rec.IdempotencyKey).Str("order_id", rec.OrderID).Msg("petición ya procesada")
	}
	return &Outcome{Result: result, Raw: json.RawMessage(rec.StoredResult), Cached: true}, nil
}

// GetStock devuelve la existencia de un producto o domain.ErrProductNotFound.
func (p *Processor) GetStock(ctx context.Context, productID string) (*entity.Stock, error) {
	s, err := p.stockRepo.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return s, nil
}

// AuditTrail lista las entradas de bitácora escritas para una orden.
func (p *Processor) AuditTrail(ctx context.Context, orderID string) ([]*entity.AuditEntry, error) {
	return p.auditRepo.ListByOrder(ctx, orderID)
}

// ProductHistory pagina la bitácora de un producto, más recientes primero.
func (p *Processor) ProductHistory(ctx context.Context, productID string, limit, offset int) ([]*entity.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return p.auditRepo.ListByProduct(ctx, productID, limit, offset)
}

func (c Command) validate() error {
	if c.OrderID == "" || c.IdempotencyKey == "" || len(c.Items) == 0 {
		return domain.ErrInvalidInput
	}
	for _, it := range c.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return domain.ErrInvalidInput
		}
	}
	return nil
}
