package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"counter-system/internal/domain"
	"counter-system/internal/logger"
)

// EventPublisher broadcasts a change event after a successful mutation.
// Publishing is best-effort: a failure is logged and the periodic refresh on
// every terminal repairs whatever was missed.
type EventPublisher interface {
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}

// Orders is the persistence contract for order records. It carries no
// business logic; the lifecycle manager decides what may be written.
type Orders struct {
	pool *pgxpool.Pool
	pub  EventPublisher
	lg   *logger.Logger
}

func NewOrders(pool *pgxpool.Pool, pub EventPublisher, lg *logger.Logger) *Orders {
	return &Orders{pool: pool, pub: pub, lg: lg}
}

const orderColumns = `id, order_number, customer_name, items, total, status, cashier_name, payment_method, observation, created_at`

func (s *Orders) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return domain.Order{}, fmt.Errorf("encode items: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO orders (order_number, customer_name, items, total, status, cashier_name, payment_method, observation)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at
`, o.Number, o.CustomerName, items, o.Total, string(o.Status), o.CashierName, o.PaymentMethod, o.Observation)
	if err := row.Scan(&o.ID, &o.CreatedAt); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	s.publish(ctx, domain.EventInsert, o)
	return o, nil
}

func (s *Orders) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	o, err := s.mutate(ctx, `
UPDATE orders SET status=$2, updated_at=now() WHERE id=$1
RETURNING `+orderColumns, id, string(status))
	if err != nil {
		return err
	}
	s.publish(ctx, domain.EventUpdate, o)
	return nil
}

func (s *Orders) UpdateCustomerName(ctx context.Context, id int64, name string) error {
	o, err := s.mutate(ctx, `
UPDATE orders SET customer_name=$2, updated_at=now() WHERE id=$1
RETURNING `+orderColumns, id, name)
	if err != nil {
		return err
	}
	s.publish(ctx, domain.EventUpdate, o)
	return nil
}

// ArchiveAll moves every non-finished order to finished in one statement and
// returns the affected records. History survives; nothing is deleted.
func (s *Orders) ArchiveAll(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
UPDATE orders SET status='finished', updated_at=now()
WHERE status <> 'finished'
RETURNING `+orderColumns)
	if err != nil {
		return nil, fmt.Errorf("archive orders: %w", err)
	}
	archived, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	for _, o := range archived {
		s.publish(ctx, domain.EventUpdate, o)
	}
	return archived, nil
}

// DeleteOrder is the administrative hard delete. Terminal and irreversible.
func (s *Orders) DeleteOrder(ctx context.Context, id int64) error {
	o, err := s.mutate(ctx, `DELETE FROM orders WHERE id=$1 RETURNING `+orderColumns, id)
	if err != nil {
		return err
	}
	s.publish(ctx, domain.EventDelete, o)
	return nil
}

// ListActive returns every order that still belongs on a display board.
func (s *Orders) ListActive(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+orderColumns+` FROM orders
WHERE status <> 'finished'
ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return collectOrders(rows)
}

// ListByCashierSince backs the register's daily history view.
func (s *Orders) ListByCashierSince(ctx context.Context, cashier string, since time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+orderColumns+` FROM orders
WHERE cashier_name = $1 AND created_at >= $2
ORDER BY created_at DESC`, cashier, since)
	if err != nil {
		return nil, fmt.Errorf("list cashier orders: %w", err)
	}
	return collectOrders(rows)
}

func (s *Orders) mutate(ctx context.Context, sql string, args ...any) (domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, sql, args...))
	if err == pgx.ErrNoRows {
		return domain.Order{}, fmt.Errorf("order not found")
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("mutate order: %w", err)
	}
	return o, nil
}

func (s *Orders) publish(ctx context.Context, kind domain.EventKind, o domain.Order) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishChange(ctx, domain.ChangeEvent{Kind: kind, Order: o}); err != nil {
		s.lg.Warn("change_publish_failed", err, map[string]any{"order_id": o.ID, "kind": string(kind)})
	}
}

type rowScanner interface{ Scan(dest ...any) error }

func scanOrder(r rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		items  []byte
		status string
	)
	if err := r.Scan(&o.ID, &o.Number, &o.CustomerName, &items, &o.Total, &status,
		&o.CashierName, &o.PaymentMethod, &o.Observation, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.Status(status)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return domain.Order{}, fmt.Errorf("decode items: %w", err)
		}
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
