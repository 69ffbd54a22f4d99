// Package redis carries claim change notifications over Redis pub/sub, so a
// server and any number of clients in other processes can share them.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmynk/splitclaim/internal/realtime"
)

// Channel format: splitclaim:claims:<bill_id>
const channelPrefix = "splitclaim:claims:"

const (
	subscriberBuffer = 64
	defaultPing      = 5 * time.Second
)

// Ensure Broker implements realtime.Channel and realtime.Publisher
var (
	_ realtime.Channel   = (*Broker)(nil)
	_ realtime.Publisher = (*Broker)(nil)
)

// Config selects the Redis server carrying the change feed.
type Config struct {
	Addr string
	DB   int

	// PingTimeout bounds the connectivity check in Dial. Defaults to 5s.
	PingTimeout time.Duration
}

// Broker publishes and subscribes to claim events on Redis.
// Reconnects after a dropped connection are handled by go-redis.
type Broker struct {
	client *redis.Client
	owned  bool
}

// NewBroker creates a Broker on an existing client. Close leaves the client
// open.
func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

// Dial connects to Redis, checks the server answers a ping and returns a
// Broker that owns the connection.
func Dial(ctx context.Context, cfg Config) (*Broker, error) {
	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPing
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Broker{client: client, owned: true}, nil
}

// Close releases the connection if the Broker opened it.
func (b *Broker) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}

// Publish sends the event to the bill's channel.
func (b *Broker) Publish(ctx context.Context, event realtime.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode claim event: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(event.BillID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe listens on the bill's channel. It returns once Redis has confirmed
// the subscription, so no event published afterwards is missed.
func (b *Broker) Subscribe(ctx context.Context, billID string) (realtime.Subscription, error) {
	ps := b.client.Subscribe(ctx, channelName(billID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &subscription{
		pubsub: ps,
		events: make(chan realtime.Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	events chan realtime.Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan realtime.Event {
	return s.events
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.events)

	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				slog.Warn("Ignoring malformed claim event", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			case <-ctx.Done():
				_ = s.Close()
				return
			}
		}
	}
}

func channelName(billID string) string {
	return channelPrefix + billID
}

// decodeEvent parses a published payload and checks it names a row to apply.
func decodeEvent(payload string) (realtime.Event, error) {
	var event realtime.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return realtime.Event{}, fmt.Errorf("decode claim event: %w", err)
	}
	switch event.Type {
	case realtime.EventInsert, realtime.EventDelete:
	default:
		return realtime.Event{}, fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.Claim() == nil {
		return realtime.Event{}, fmt.Errorf("%s event without a row", event.Type)
	}
	return event, nil
}
