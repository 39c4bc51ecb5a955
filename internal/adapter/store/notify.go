package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/docsight/docsight/internal/port"
)

// Notifier carries document change events from writers to subscribers.
type Notifier interface {
	Publish(ctx context.Context, evt port.ChangeEvent) error
	Subscribe(collection string, fn func(port.ChangeEvent)) (port.UnsubscribeFunc, error)
	Close() error
}

const channelPrefix = "docsight:changes:"

// RedisNotifier implements Notifier on Redis pub/sub so change events reach
// every running instance, not just the one that performed the write.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier connects to Redis and returns a notifier.
func NewRedisNotifier(redisURL string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisNotifier{client: client}, nil
}

// NewRedisNotifierWithClient wraps an existing Redis client.
func NewRedisNotifierWithClient(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Publish broadcasts a change event on the collection channel.
func (n *RedisNotifier) Publish(ctx context.Context, evt port.ChangeEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := n.client.Publish(ctx, channelPrefix+evt.Collection, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe listens on the collection channel and invokes fn for each event
// in delivery order. The returned unsubscribe is idempotent and guarantees
// fn is never invoked after it returns.
func (n *RedisNotifier) Subscribe(collection string, fn func(port.ChangeEvent)) (port.UnsubscribeFunc, error) {
	pubsub := n.client.Subscribe(context.Background(), channelPrefix+collection)

	// Wait for the subscription to be confirmed so no event is missed.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	go func() {
		for msg := range pubsub.Channel() {
			var evt port.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				slog.Error("decode change event", "collection", collection, "error", err)
				continue
			}

			mu.Lock()
			if !closed {
				fn(evt)
			}
			mu.Unlock()
		}
	}()

	unsubscribe := func() {
		once.Do(func() {
			mu.Lock()
			closed = true
			mu.Unlock()
			if err := pubsub.Close(); err != nil {
				slog.Error("close pubsub", "collection", collection, "error", err)
			}
		})
	}
	return unsubscribe, nil
}

// Close closes the Redis connection.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// LocalNotifier fans change events out within a single process. It backs
// single-instance deployments that run without Redis; events never reach
// other instances.
type LocalNotifier struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(port.ChangeEvent)
}

// NewLocalNotifier returns an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[int]func(port.ChangeEvent))}
}

// Publish dispatches the event to every subscriber of its collection on the
// caller's goroutine.
func (n *LocalNotifier) Publish(_ context.Context, evt port.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, fn := range n.subs[evt.Collection] {
		fn(evt)
	}
	return nil
}

// Subscribe registers fn for a collection. Holding the notifier lock during
// dispatch means fn is never invoked after unsubscribe returns.
func (n *LocalNotifier) Subscribe(collection string, fn func(port.ChangeEvent)) (port.UnsubscribeFunc, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs[collection] == nil {
		n.subs[collection] = make(map[int]func(port.ChangeEvent))
	}
	id := n.next
	n.next++
	n.subs[collection][id] = fn

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[collection], id)
			n.mu.Unlock()
		})
	}
	return unsubscribe, nil
}

// Close drops all subscribers.
func (n *LocalNotifier) Close() error {
	n.mu.Lock()
	n.subs = make(map[string]map[int]func(port.ChangeEvent))
	n.mu.Unlock()
	return nil
}
