package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"

	"counter-system/internal/domain"
	"counter-system/internal/logger"
)

var (
	// ErrInvalidTransition rejects a status change outside the allowed set
	// before any persistence call is made.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownOrder      = errors.New("unknown order")
)

// Store is the persistence surface the manager needs. The pgx-backed
// implementation lives in internal/store; tests use an in-memory fake.
type Store interface {
	CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status) error
	UpdateCustomerName(ctx context.Context, id int64, name string) error
	ArchiveAll(ctx context.Context) ([]domain.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// Manager owns one terminal's in-memory view of the order set and applies
// the state machine. All cache mutations are whole-record replaces under
// the lock, so concurrent readers never see a half-updated order.
type Manager struct {
	store Store
	lg    *logger.Logger

	mu    sync.RWMutex
	cache map[int64]domain.Order

	onCreated func(domain.Order)
}

func NewManager(store Store, lg *logger.Logger) *Manager {
	return &Manager{store: store, lg: lg, cache: make(map[int64]domain.Order)}
}

// OnCreated registers a same-terminal hook fired after a successful create,
// so an embedded display updates without waiting for the feed round-trip.
func (m *Manager) OnCreated(fn func(domain.Order)) { m.onCreated = fn }

// Create validates the draft, persists it with status pending and returns
// the stored record including its store-assigned id.
func (m *Manager) Create(ctx context.Context, o domain.Order) (domain.Order, error) {
	if len(o.Items) == 0 {
		return domain.Order{}, errors.New("order has no items")
	}
	for _, it := range o.Items {
		if it.Qty < 1 {
			return domain.Order{}, fmt.Errorf("item %q: qty must be at least 1", it.Name)
		}
	}
	if o.CustomerName == "" {
		o.CustomerName = "Customer"
	}
	if o.Number == "" {
		o.Number = NewOrderNumber(100, 999)
	}
	o.Status = domain.StatusPending

	stored, err := m.store.CreateOrder(ctx, o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	m.put(stored)
	m.lg.Info("order_created", map[string]any{"order_id": stored.ID, "order_number": stored.Number})
	if m.onCreated != nil {
		m.onCreated(stored)
	}
	return stored, nil
}

// Advance moves an order to target. Invalid transitions are rejected before
// any I/O. The local cache is updated optimistically; a persistence failure
// is returned for a retry affordance but the optimistic value stays, the
// next refresh pulls the authoritative state either way.
func (m *Manager) Advance(ctx context.Context, id int64, target domain.Status) error {
	m.mu.Lock()
	o, ok := m.cache[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownOrder
	}
	if !domain.AllowedTransition(o.Status, target) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
	}
	o.Status = target
	m.cache[id] = o
	m.mu.Unlock()

	if err := m.store.UpdateStatus(ctx, id, target); err != nil {
		m.lg.Error("status_persist_failed", err, map[string]any{"order_id": id, "status": string(target)})
		return fmt.Errorf("persist status: %w", err)
	}
	m.lg.Debug("order_advanced", map[string]any{"order_id": id, "status": string(target)})
	return nil
}

// ArchiveAll finishes every non-finished order in one persistence call.
// Used to clear a board at shift boundaries without losing history.
func (m *Manager) ArchiveAll(ctx context.Context) error {
	archived, err := m.store.ArchiveAll(ctx)
	if err != nil {
		return fmt.Errorf("archive orders: %w", err)
	}
	m.mu.Lock()
	for _, o := range archived {
		m.cache[o.ID] = o
	}
	m.mu.Unlock()
	m.lg.Info("orders_archived", map[string]any{"count": len(archived)})
	return nil
}

// Rename updates only the display name, independent of the state machine.
func (m *Manager) Rename(ctx context.Context, id int64, name string) error {
	m.mu.Lock()
	o, ok := m.cache[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownOrder
	}
	o.CustomerName = name
	m.cache[id] = o
	m.mu.Unlock()

	if err := m.store.UpdateCustomerName(ctx, id, name); err != nil {
		return fmt.Errorf("persist name: %w", err)
	}
	return nil
}

// Delete is the administrative hard delete. Irreversible.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if err := m.store.DeleteOrder(ctx, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	m.mu.Lock()
	delete(m.cache, id)
	m.mu.Unlock()
	return nil
}

// Merge applies one change-feed event. Replace-or-add by id for inserts and
// updates, remove for deletes; applying the same event twice is a no-op
// beyond the first.
func (m *Manager) Merge(ev domain.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Kind {
	case domain.EventDelete:
		delete(m.cache, ev.Order.ID)
	default:
		m.cache[ev.Order.ID] = ev.Order
	}
}

// Reconcile replaces the cache with the authoritative active set from a
// full refresh. Fixes missed feed events and is itself idempotent.
func (m *Manager) Reconcile(orders []domain.Order) {
	next := make(map[int64]domain.Order, len(orders))
	for _, o := range orders {
		next[o.ID] = o
	}
	m.mu.Lock()
	m.cache = next
	m.mu.Unlock()
}

func (m *Manager) Get(id int64) (domain.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.cache[id]
	return o, ok
}

// Active returns the non-finished orders sorted by creation time, the set a
// display board renders.
func (m *Manager) Active() []domain.Order {
	m.mu.RLock()
	out := make([]domain.Order, 0, len(m.cache))
	for _, o := range m.cache {
		if o.Status != domain.StatusFinished {
			out = append(out, o)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) put(o domain.Order) {
	m.mu.Lock()
	m.cache[o.ID] = o
	m.mu.Unlock()
}

// NewOrderNumber returns a short display number in [min, max]. Collisions
// are tolerated; the number is only for display and spoken pickup calls.
func NewOrderNumber(min, max int) string {
	return strconv.Itoa(min + rand.Intn(max-min+1))
}
