// Package memory implementa los puertos de persistencia en memoria con transacciones
// serializables: un único mutex cubre toda la transacción y los cambios se aplican sobre
// una copia que solo reemplaza al estado confirmado en el commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/inventario-saga/internal/application/inventory"
	"github.com/jhoicas/inventario-saga/internal/domain"
	"github.com/jhoicas/inventario-saga/internal/domain/entity"
	"github.com/jhoicas/inventario-saga/internal/domain/repository"
)

var (
	_ inventory.TxRunner               = (*Store)(nil)
	_ repository.StockRepository       = (*stockRepo)(nil)
	_ repository.IdempotencyRepository = (*ledgerRepo)(nil)
	_ repository.AuditRepository       = (*auditRepo)(nil)
	_ repository.OrderRepository       = (*orderRepo)(nil)
	_ repository.RetryMarkerRepository = (*markerRepo)(nil)
)

type data struct {
	stock   map[string]entity.Stock
	ledger  map[string]entity.IdempotencyRecord
	audit   []entity.AuditEntry
	orders  map[string]entity.Order
	markers map[string]entity.RetryMarker
}

func (d *data) clone() *data {
	c := &data{
		stock:   make(map[string]entity.Stock, len(d.stock)),
		ledger:  make(map[string]entity.IdempotencyRecord, len(d.ledger)),
		audit:   append([]entity.AuditEntry(nil), d.audit...),
		orders:  d.orders,
		markers: d.markers,
	}
	for k, v := range d.stock {
		c.stock[k] = v
	}
	for k, v := range d.ledger {
		c.ledger[k] = v
	}
	return c
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// Store estado en memoria compartido por todos los repositorios.
type Store struct {
	mu        sync.Mutex
	d         *data
	commitErr error
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{d: &data{
		stock:   map[string]entity.Stock{},
		ledger:  map[string]entity.IdempotencyRecord{},
		orders:  map[string]entity.Order{},
		markers: map[string]entity.RetryMarker{},
	}}
}

// Run ejecuta fn con repositorios atados a una copia del estado; confirma solo si fn no falla.
func (s *Store) Run(ctx context.Context, fn func(
	stockRepo repository.StockRepository,
	ledgerRepo repository.IdempotencyRepository,
	auditRepo repository.AuditRepository,
) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := s.d.clone()
	if err := fn(&stockRepo{d: tx, l: noLock{}}, &ledgerRepo{d: tx, l: noLock{}}, &auditRepo{d: tx, l: noLock{}}); err != nil {
		return err
	}
	if s.commitErr != nil {
		err := s.commitErr
		s.commitErr = nil
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.d = tx
	return nil
}

// Stocks repositorio de stock fuera de transacción.
func (s *Store) Stocks() repository.StockRepository { return &stockRepo{d: nil, s: s, l: &s.mu} }

// Ledger repositorio de idempotencia fuera de transacción.
func (s *Store) Ledger() repository.IdempotencyRepository { return &ledgerRepo{s: s, l: &s.mu} }

// Audit repositorio de bitácora fuera de transacción.
func (s *Store) Audit() repository.AuditRepository { return &auditRepo{s: s, l: &s.mu} }

// Orders repositorio de órdenes.
func (s *Store) Orders() repository.OrderRepository { return &orderRepo{s: s} }

// RetryMarkers repositorio de marcadores de reintento.
func (s *Store) RetryMarkers() repository.RetryMarkerRepository { return &markerRepo{s: s} }

// FailNextCommit hace que la próxima transacción falle al confirmar y se revierta.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// Seed inserta o reemplaza existencias.
func (s *Store) Seed(stocks ...entity.Stock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stocks {
		s.d.stock[st.ProductID] = st
	}
}

// Quantity devuelve la cantidad confirmada de un producto.
func (s *Store) Quantity(productID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.d.stock[productID]
	return st.Quantity, ok
}

// AuditEntries copia de la bitácora confirmada.
func (s *Store) AuditEntries() []entity.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.AuditEntry(nil), s.d.audit...)
}

// LedgerSize número de claves registradas.
func (s *Store) LedgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.ledger)
}

// current devuelve el estado a usar: el de la tx si existe, si no el confirmado.
func current(d *data, s *Store) *data {
	if d != nil {
		return d
	}
	return s.d
}

type stockRepo struct {
	d *data
	s *Store
	l sync.Locker
}

func (r *stockRepo) Get(_ context.Context, productID string) (*entity.Stock, error) {
	r.l.Lock()
	defer r.l.Unlock()
	st, ok := current(r.d, r.s).stock[productID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *stockRepo) GetForUpdate(ctx context.Context, productID string) (*entity.Stock, error) {
	return r.Get(ctx, productID)
}

func (r *stockRepo) UpdateQuantity(_ context.Context, productID string, quantity int) error {
	r.l.Lock()
	defer r.l.Unlock()
	d := current(r.d, r.s)
	st, ok := d.stock[productID]
	if !ok {
		return fmt.Errorf("update stock: %w", domain.ErrProductNotFound)
	}
	if quantity < 0 {
		return fmt.Errorf("update stock: negative quantity %d", quantity)
	}
	st.Quantity = quantity
	d.stock[productID] = st
	return nil
}

func (r *stockRepo) Upsert(_ context.Context, stock *entity.Stock) error {
	r.l.Lock()
	defer r.l.Unlock()
	current(r.d, r.s).stock[stock.ProductID] = *stock
	return nil
}

type ledgerRepo struct {
	d *data
	s *Store
	l sync.Locker
}

func (r *ledgerRepo) Get(_ context.Context, key string) (*entity.IdempotencyRecord, error) {
	r.l.Lock()
	defer r.l.Unlock()
	rec, ok := current(r.d, r.s).ledger[key]
	if !ok {
		return nil, nil
	}
	rec.StoredResult = append([]byte(nil), rec.StoredResult...)
	return &rec, nil
}

// Lock no hace nada: el mutex de Run ya serializa las transacciones.
func (r *ledgerRepo) Lock(context.Context, string) error { return nil }

func (r *ledgerRepo) Insert(_ context.Context, record *entity.IdempotencyRecord) error {
	r.l.Lock()
	defer r.l.Unlock()
	d := current(r.d, r.s)
	if _, ok := d.ledger[record.IdempotencyKey]; ok {
		return domain.ErrDuplicate
	}
	rec := *record
	rec.StoredResult = append([]byte(nil), record.StoredResult...)
	d.ledger[record.IdempotencyKey] = rec
	return nil
}

type auditRepo struct {
	d *data
	s *Store
	l sync.Locker
}

func (r *auditRepo) Append(_ context.Context, entry *entity.AuditEntry) error {
	r.l.Lock()
	defer r.l.Unlock()
	d := current(r.d, r.s)
	entry.ID = int64(len(d.audit) + 1)
	d.audit = append(d.audit, *entry)
	return nil
}

func (r *auditRepo) ListByOrder(_ context.Context, orderID string) ([]*entity.AuditEntry, error) {
	r.l.Lock()
	defer r.l.Unlock()
	var out []*entity.AuditEntry
	for _, e := range current(r.d, r.s).audit {
		if e.OrderID == orderID {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r *auditRepo) ListByProduct(_ context.Context, productID string, limit, offset int) ([]*entity.AuditEntry, error) {
	r.l.Lock()
	defer r.l.Unlock()
	audit := current(r.d, r.s).audit
	var out []*entity.AuditEntry
	for i := len(audit) - 1; i >= 0; i-- {
		if e := audit[i]; e.ProductID == productID {
			out = append(out, &e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(_ context.Context, order *entity.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.orders[order.ID]; ok {
		return domain.ErrDuplicate
	}
	o := *order
	o.Items = append([]entity.OrderItem(nil), order.Items...)
	r.s.d.orders[order.ID] = o
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.d.orders[id]
	if !ok {
		return nil, nil
	}
	o.Items = append([]entity.OrderItem(nil), o.Items...)
	return &o, nil
}

func (r *orderRepo) TransitionStatus(_ context.Context, id, from, to string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.d.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	r.s.d.orders[id] = o
	return true, nil
}

func (r *orderRepo) ClaimShip(_ context.Context, id, key string, at time.Time) (string, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.d.orders[id]
	if !ok || o.Status != entity.OrderStatusPending {
		return "", false, nil
	}
	m, exists := r.s.d.markers[id]
	prev := ""
	if exists {
		prev = m.Status
	} else {
		m = entity.RetryMarker{OrderID: id, CreatedAt: at}
	}
	m.IdempotencyKey = key
	m.Status = entity.RetryStatusInFlight
	m.LastAttempt = at
	r.s.d.markers[id] = m
	return prev, true, nil
}

func (r *orderRepo) CancelIfIdle(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.d.orders[id]
	if !ok || o.Status != entity.OrderStatusPending {
		return false, nil
	}
	if m, exists := r.s.d.markers[id]; exists && m.Active() {
		return false, nil
	}
	o.Status = entity.OrderStatusCancelled
	r.s.d.orders[id] = o
	return true, nil
}

type markerRepo struct{ s *Store }

func (r *markerRepo) Upsert(_ context.Context, marker *entity.RetryMarker) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.d.markers[marker.OrderID]
	if !ok {
		m = *marker
		m.RetryCount = 1
		if m.CreatedAt.IsZero() {
			m.CreatedAt = marker.LastAttempt
		}
	} else {
		m.IdempotencyKey = marker.IdempotencyKey
		m.Status = marker.Status
		m.LastAttempt = marker.LastAttempt
		m.RetryCount++
	}
	r.s.d.markers[marker.OrderID] = m
	marker.RetryCount = m.RetryCount
	return nil
}

func (r *markerRepo) GetByOrderID(_ context.Context, orderID string) (*entity.RetryMarker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.d.markers[orderID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *markerRepo) SetStatus(_ context.Context, orderID, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.d.markers[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = status
	r.s.d.markers[orderID] = m
	return nil
}

func (r *markerRepo) Delete(_ context.Context, orderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.markers[orderID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.d.markers, orderID)
	return nil
}

func (r *markerRepo) ListByStatus(_ context.Context, status string, limit int) ([]*entity.RetryMarker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.RetryMarker
	for _, m := range r.s.d.markers {
		if m.Status == status {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
