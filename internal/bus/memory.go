package bus

import (
	"context"
	"sync"
	"time"
)

// broker is the shared in-process backbone a group of MemoryAdapter instances
// publish to and read from, letting tests simulate multiple server instances
// talking over one logical bus.
type broker struct {
	mu          sync.Mutex
	subscribers map[string][]Handler
	kv          map[string]kvEntry
}

type kvEntry struct {
	value   string
	expires time.Time
}

func newBroker() *broker {
	return &broker{subscribers: make(map[string][]Handler), kv: make(map[string]kvEntry)}
}

// NewBrokerGroup returns a constructor for MemoryAdapter instances that all
// share one broker, modeling a single shared Redis reached from many
// instances.
func NewBrokerGroup() func() *MemoryAdapter {
	b := newBroker()
	return func() *MemoryAdapter { return &MemoryAdapter{broker: b, subs: map[string]bool{}} }
}

// MemoryAdapter is an in-process Adapter implementation for tests. It is not
// used in production; the real adapter is RedisAdapter.
type MemoryAdapter struct {
	broker *broker

	mu   sync.Mutex
	subs map[string]bool
}

// NewMemoryAdapter returns a standalone single-instance memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{broker: newBroker(), subs: map[string]bool{}}
}

func (a *MemoryAdapter) Publish(_ context.Context, channel, payload string) error {
	a.broker.mu.Lock()
	handlers := append([]Handler(nil), a.broker.subscribers[channel]...)
	a.broker.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (a *MemoryAdapter) Subscribe(_ context.Context, channel string, handler Handler) error {
	a.mu.Lock()
	if a.subs[channel] {
		a.mu.Unlock()
		return nil
	}
	a.subs[channel] = true
	a.mu.Unlock()

	a.broker.mu.Lock()
	a.broker.subscribers[channel] = append(a.broker.subscribers[channel], handler)
	a.broker.mu.Unlock()
	return nil
}

func (a *MemoryAdapter) Unsubscribe(_ context.Context, channel string) error {
	a.mu.Lock()
	delete(a.subs, channel)
	a.mu.Unlock()
	// Handlers are left in the broker's slice but this adapter will no longer
	// be addressed by new Subscribe calls on the same channel name collision;
	// acceptable for a test fixture since each test uses fresh channel names.
	return nil
}

func (a *MemoryAdapter) Set(_ context.Context, key, value string, ttlSeconds int) error {
	a.broker.mu.Lock()
	defer a.broker.mu.Unlock()
	a.broker.kv[key] = kvEntry{value: value, expires: time.Now().Add(time.Duration(ttlSeconds) * time.Second)}
	return nil
}

func (a *MemoryAdapter) Get(_ context.Context, key string) (string, bool, error) {
	a.broker.mu.Lock()
	defer a.broker.mu.Unlock()
	e, ok := a.broker.kv[key]
	if !ok || time.Now().After(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (a *MemoryAdapter) Del(_ context.Context, key string) error {
	a.broker.mu.Lock()
	defer a.broker.mu.Unlock()
	delete(a.broker.kv, key)
	return nil
}

func (a *MemoryAdapter) Keys(_ context.Context, pattern string) ([]string, error) {
	a.broker.mu.Lock()
	defer a.broker.mu.Unlock()
	var out []string
	for k, e := range a.broker.kv {
		if time.Now().After(e.expires) {
			continue
		}
		if matchGlobSuffix(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// matchGlobSuffix supports the one glob shape this package produces:
// "prefix:*".
func matchGlobSuffix(pattern, key string) bool {
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}
	return pattern == key
}
