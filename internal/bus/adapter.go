// Package bus defines the Pub/Sub Bus Adapter (spec.md §6): publish/subscribe
// JSON messages on per-document channels, and a TTL'd key-value side used for
// presence entries.
package bus

import "context"

// Handler receives a raw JSON payload published on a subscribed channel.
type Handler func(payload string)

// Adapter is the full bus contract consumed by the core.
type Adapter interface {
	Publish(ctx context.Context, channel, jsonPayload string) error
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Unsubscribe(ctx context.Context, channel string) error

	Set(ctx context.Context, key, value string, ttlSeconds int) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}
