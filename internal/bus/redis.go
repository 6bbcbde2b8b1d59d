package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collabtext/realtime-docs/internal/logging"
)

// RedisAdapter is the production Adapter backed by Redis, grounded on the
// teacher's per-room redis.Subscribe/Publish loop in main.go and its
// redis hash presence pattern in models/session.go.
type RedisAdapter struct {
	client *redis.Client
	log    *logging.Logger

	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

func NewRedisAdapter(client *redis.Client, log *logging.Logger) *RedisAdapter {
	return &RedisAdapter{client: client, log: log, subs: make(map[string]context.CancelFunc)}
}

func (a *RedisAdapter) Publish(ctx context.Context, channel, jsonPayload string) error {
	return a.client.Publish(ctx, channel, jsonPayload).Err()
}

// Subscribe is idempotent: subscribing to an already-subscribed channel is a
// no-op, enforced by the caller-visible subscription registry in
// room.Manager. This adapter additionally guards its own goroutine
// bookkeeping so a double call here never leaks a second listener.
func (a *RedisAdapter) Subscribe(ctx context.Context, channel string, handler Handler) error {
	a.mu.Lock()
	if _, exists := a.subs[channel]; exists {
		a.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(context.Background())
	a.subs[channel] = cancel
	a.mu.Unlock()

	pubsub := a.client.Subscribe(subCtx, channel)
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Payload)
			}
		}
	}()

	return nil
}

func (a *RedisAdapter) Unsubscribe(_ context.Context, channel string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cancel, ok := a.subs[channel]; ok {
		cancel()
		delete(a.subs, channel)
	}
	return nil
}

func (a *RedisAdapter) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	return a.client.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err()
}

func (a *RedisAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := a.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (a *RedisAdapter) Del(ctx context.Context, key string) error {
	return a.client.Del(ctx, key).Err()
}

func (a *RedisAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	return a.client.Keys(ctx, pattern).Result()
}

// Options mirrors the config.busOptions shape of spec.md §6.
type Options struct {
	Addr     string
	Password string
	DB       int
}

func Connect(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// PresenceKey builds the presence:<documentId>:<userId> key of spec.md §6.
func PresenceKey(documentID, userID string) string {
	return fmt.Sprintf("presence:%s:%s", documentID, userID)
}

// PresencePattern builds a glob matching all presence keys for a document.
func PresencePattern(documentID string) string {
	return fmt.Sprintf("presence:%s:*", documentID)
}

// DocChannel and PresenceChannel build the two channel names of spec.md §6.
func DocChannel(documentID string) string      { return "doc:" + documentID }
func PresenceChannel(documentID string) string { return "presence:" + documentID }
