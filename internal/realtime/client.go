package realtime

import (
	"context"
	"time"

	"counter-system/internal/domain"
	"counter-system/internal/logger"
)

// Cache is the merge surface of the lifecycle manager.
type Cache interface {
	Merge(domain.ChangeEvent)
	Reconcile([]domain.Order)
}

// Lister fetches the authoritative active set for the periodic refresh.
type Lister interface {
	ListActive(ctx context.Context) ([]domain.Order, error)
}

// Feed delivers change events until the context is canceled.
type Feed interface {
	Subscribe(ctx context.Context, terminal string) (<-chan domain.ChangeEvent, error)
}

// Client keeps one terminal's cache eventually consistent with the store:
// it merges feed events as they arrive and runs a periodic full refresh as
// a safety net against missed events. No ordering is assumed from the feed;
// merging is commutative per id, so out-of-order delivery can only show a
// transiently stale status until the next refresh.
type Client struct {
	cache    Cache
	lister   Lister
	feed     Feed
	lg       *logger.Logger
	terminal string
	interval time.Duration

	onNewOrder func(domain.Order)

	// seen tracks order ids already observed. Refresh loads fill it
	// silently until the cold-start load succeeds; feed inserts always
	// alert on first sight. Run owns it single-threaded.
	seen        map[int64]struct{}
	coldStarted bool
}

func NewClient(cache Cache, lister Lister, feed Feed, terminal string, interval time.Duration, lg *logger.Logger) *Client {
	return &Client{
		cache:    cache,
		lister:   lister,
		feed:     feed,
		lg:       lg,
		terminal: terminal,
		interval: interval,
		seen:     make(map[int64]struct{}),
	}
}

// OnNewOrder registers the alert hook (the kitchen chime). Called from the
// Run goroutine.
func (c *Client) OnNewOrder(fn func(domain.Order)) { c.onNewOrder = fn }

// Run blocks until ctx is canceled. Losing the feed subscription is not
// fatal; the client degrades to refresh-only operation.
func (c *Client) Run(ctx context.Context) error {
	c.refresh(ctx)

	var events <-chan domain.ChangeEvent
	if ev, err := c.feed.Subscribe(ctx, c.terminal); err != nil {
		c.lg.Error("feed_subscribe_failed", err, map[string]any{"terminal": c.terminal})
	} else {
		events = ev
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil // feed gone, refresh carries on
				c.lg.Warn("feed_closed", nil, map[string]any{"terminal": c.terminal})
				continue
			}
			c.apply(ev)
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Client) apply(ev domain.ChangeEvent) {
	c.cache.Merge(ev)
	switch ev.Kind {
	case domain.EventInsert:
		c.observe(ev.Order, true)
	case domain.EventUpdate:
		c.observe(ev.Order, false)
	}
}

func (c *Client) refresh(ctx context.Context) {
	orders, err := c.lister.ListActive(ctx)
	if err != nil {
		c.lg.Error("refresh_failed", err, map[string]any{"terminal": c.terminal})
		return
	}
	c.cache.Reconcile(orders)
	for _, o := range orders {
		c.observe(o, false)
	}
	c.coldStarted = true
}

// observe records an id and fires the alert the first time the id shows up.
// Orders loaded by a refresh only alert after the cold-start load succeeded;
// a feed insert is a brand-new order and alerts regardless, so a slow store
// at boot cannot swallow the chime. Each id alerts at most once.
func (c *Client) observe(o domain.Order, inserted bool) {
	if _, ok := c.seen[o.ID]; ok {
		return
	}
	c.seen[o.ID] = struct{}{}
	if (c.coldStarted || inserted) && c.onNewOrder != nil {
		c.onNewOrder(o)
	}
}
