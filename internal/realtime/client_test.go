package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"counter-system/internal/domain"
	"counter-system/internal/lifecycle"
	"counter-system/internal/logger"
)

type fakeLister struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
}

func (f *fakeLister) set(orders []domain.Order) {
	f.mu.Lock()
	f.orders = orders
	f.mu.Unlock()
}

func (f *fakeLister) ListActive(context.Context) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Order(nil), f.orders...), nil
}

type fakeFeed struct {
	ch  chan domain.ChangeEvent
	err error
}

func (f *fakeFeed) Subscribe(context.Context, string) (<-chan domain.ChangeEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func order(id int64, status domain.Status) domain.Order {
	return domain.Order{ID: id, Number: "100", Status: status, CreatedAt: time.Unix(id, 0)}
}

func startClient(t *testing.T, lister *fakeLister, feed *fakeFeed) (*lifecycle.Manager, *Client, *atomic.Int32) {
	t.Helper()
	lg := logger.New("test")
	m := lifecycle.NewManager(nil, lg)
	c := NewClient(m, lister, feed, "test-terminal", 10*time.Millisecond, lg)

	var alerts atomic.Int32
	c.OnNewOrder(func(domain.Order) { alerts.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, c, &alerts
}

func TestColdStartIsSilent(t *testing.T) {
	lister := &fakeLister{orders: []domain.Order{order(1, domain.StatusPending), order(2, domain.StatusPreparing)}}
	m, _, alerts := startClient(t, lister, &fakeFeed{ch: make(chan domain.ChangeEvent)})

	require.Eventually(t, func() bool { return len(m.Active()) == 2 }, time.Second, 5*time.Millisecond)
	// let a few refresh ticks pass; pre-existing orders never chime
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, alerts.Load())
}

func TestFeedInsertAlertsExactlyOnce(t *testing.T) {
	feed := &fakeFeed{ch: make(chan domain.ChangeEvent, 8)}
	lister := &fakeLister{}
	m, _, alerts := startClient(t, lister, feed)

	require.Eventually(t, func() bool { return len(m.Active()) == 0 }, time.Second, 5*time.Millisecond)

	o := order(5, domain.StatusPending)
	ev := domain.ChangeEvent{Kind: domain.EventInsert, Order: o}
	feed.ch <- ev
	feed.ch <- ev // at-least-once delivery duplicates the event

	// the refresh also reports it now; still only one chime
	lister.set([]domain.Order{o})

	require.Eventually(t, func() bool { return alerts.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), alerts.Load())
	require.Len(t, m.Active(), 1)
}

func TestUpdateNeverAlerts(t *testing.T) {
	feed := &fakeFeed{ch: make(chan domain.ChangeEvent, 8)}
	o := order(3, domain.StatusPending)
	lister := &fakeLister{orders: []domain.Order{o}}
	m, _, alerts := startClient(t, lister, feed)

	require.Eventually(t, func() bool { return len(m.Active()) == 1 }, time.Second, 5*time.Millisecond)

	o.Status = domain.StatusReady
	lister.set([]domain.Order{o})
	feed.ch <- domain.ChangeEvent{Kind: domain.EventUpdate, Order: o}

	require.Eventually(t, func() bool {
		got, ok := m.Get(3)
		return ok && got.Status == domain.StatusReady
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, alerts.Load())
}

func TestInsertAlertsWhenInitialRefreshFails(t *testing.T) {
	feed := &fakeFeed{ch: make(chan domain.ChangeEvent, 8)}
	lister := &fakeLister{err: errors.New("db starting up")}
	m, _, alerts := startClient(t, lister, feed)

	feed.ch <- domain.ChangeEvent{Kind: domain.EventInsert, Order: order(8, domain.StatusPending)}

	require.Eventually(t, func() bool { return alerts.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Len(t, m.Active(), 1)
}

func TestUpdateBeforeFirstRefreshStaysSilent(t *testing.T) {
	feed := &fakeFeed{ch: make(chan domain.ChangeEvent, 8)}
	lister := &fakeLister{err: errors.New("db starting up")}
	m, _, alerts := startClient(t, lister, feed)

	// a pre-existing order touched by another terminal while this one boots
	feed.ch <- domain.ChangeEvent{Kind: domain.EventUpdate, Order: order(9, domain.StatusPreparing)}

	require.Eventually(t, func() bool { return len(m.Active()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, alerts.Load())
}

func TestDeleteEventRemovesOrder(t *testing.T) {
	feed := &fakeFeed{ch: make(chan domain.ChangeEvent, 8)}
	o := order(9, domain.StatusPending)
	lister := &fakeLister{orders: []domain.Order{o}}
	m, _, alerts := startClient(t, lister, feed)

	require.Eventually(t, func() bool { return len(m.Active()) == 1 }, time.Second, 5*time.Millisecond)

	lister.set(nil)
	feed.ch <- domain.ChangeEvent{Kind: domain.EventDelete, Order: o}

	require.Eventually(t, func() bool { return len(m.Active()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, alerts.Load())
}

func TestDegradesToRefreshOnlyWhenFeedFails(t *testing.T) {
	lister := &fakeLister{}
	m, _, alerts := startClient(t, lister, &fakeFeed{err: errors.New("broker unreachable")})

	require.Eventually(t, func() bool { return len(m.Active()) == 0 }, time.Second, 5*time.Millisecond)

	lister.set([]domain.Order{order(4, domain.StatusPending)})
	require.Eventually(t, func() bool { return len(m.Active()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), alerts.Load())
}

func TestClosedFeedFallsBackToRefresh(t *testing.T) {
	feed := &fakeFeed{ch: make(chan domain.ChangeEvent)}
	lister := &fakeLister{}
	m, _, _ := startClient(t, lister, feed)

	require.Eventually(t, func() bool { return len(m.Active()) == 0 }, time.Second, 5*time.Millisecond)
	close(feed.ch)

	lister.set([]domain.Order{order(6, domain.StatusPending)})
	require.Eventually(t, func() bool { return len(m.Active()) == 1 }, time.Second, 5*time.Millisecond)
}
