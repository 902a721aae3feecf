package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"counter-system/internal/config"
	"counter-system/internal/domain"
	"counter-system/internal/logger"
)

// changeExchange fans every order mutation out to all subscribed terminals.
const changeExchange = "orders_fanout"

// Feed is the change-feed side of the store: terminals publish an event
// after each successful mutation and every terminal consumes the full
// stream through its own exclusive queue.
type Feed struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	acks <-chan amqp.Confirmation
	mu   sync.Mutex // serializes publish while waiting on confirms

	lg *logger.Logger
}

func DialFeed(cfg config.RabbitMQ, lg *logger.Logger) (*Feed, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.VHost)
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(changeExchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", changeExchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &Feed{conn: conn, ch: ch, acks: acks, lg: lg}, nil
}

func (f *Feed) Close() {
	if f == nil {
		return
	}
	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.conn != nil {
		_ = f.conn.Close()
	}
}

func (f *Feed) Ping() error {
	if f.conn == nil || f.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// PublishChange broadcasts one event and waits for the broker ack.
func (f *Feed) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err = f.ch.PublishWithContext(ctx, changeExchange, "", false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     uuid.NewString(),
		CorrelationId: ev.Order.Number,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}

	select {
	case conf := <-f.acks:
		if !conf.Ack {
			return errors.New("publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe binds a fresh exclusive queue to the fanout exchange and decodes
// deliveries into typed events until ctx is canceled or the channel dies.
// The returned channel is closed on teardown either way.
func (f *Feed) Subscribe(ctx context.Context, terminal string) (<-chan domain.ChangeEvent, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("subscribe channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare feed queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", changeExchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind feed queue: %w", err)
	}

	tag := terminal + "-" + uuid.NewString()[:8]
	deliveries, err := ch.Consume(q.Name, tag, true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume feed: %w", err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				_ = ch.Cancel(tag, false)
				return
			case e := <-closed:
				if e != nil {
					f.lg.Error("feed_channel_closed", e, map[string]any{"consumer": tag})
				}
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var ev domain.ChangeEvent
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					f.lg.Warn("feed_decode_failed", err, map[string]any{"consumer": tag})
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					_ = ch.Cancel(tag, false)
					return
				}
			}
		}
	}()
	return out, nil
}
