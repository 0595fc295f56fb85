package pubsub

import (
	"context"
	"path"
	"sync"
)

// MemoryPubSub is an in-process PubSub. It backs single-instance and
// degraded deployments where no shared broker is reachable, and tests.
type MemoryPubSub struct {
	mu     sync.RWMutex
	subs   map[string]*memorySubscription
	closed bool
}

type memorySubscription struct {
	pattern bool
	ch      chan *Event
	once    sync.Once
}

func (s *memorySubscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewMemoryPubSub creates an empty in-memory bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string]*memorySubscription)}
}

// Publish fans the event out to every matching subscriber without blocking.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for key, sub := range m.subs {
		if sub.pattern {
			if ok, _ := path.Match(key, channel); !ok {
				continue
			}
		} else if key != channel {
			continue
		}
		cp := *event
		select {
		case sub.ch <- &cp:
		default:
		}
	}
	return nil
}

// Subscribe subscribes to a specific channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.subscribe(ctx, channel, false)
}

// SubscribePattern subscribes to channels matching a glob pattern.
func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	return m.subscribe(ctx, pattern, true)
}

func (m *MemoryPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	sub := &memorySubscription{pattern: pattern, ch: make(chan *Event, 100)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.close()
		return sub.ch, nil
	}
	if existing, ok := m.subs[key]; ok {
		existing.close()
	}
	m.subs[key] = sub
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.remove(key, sub)
	}()

	return sub.ch, nil
}

func (m *MemoryPubSub) remove(key string, sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[key] == sub {
		delete(m.subs, key)
	}
	sub.close()
}

// Unsubscribe unsubscribes from a channel or pattern.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[channel]; ok {
		delete(m.subs, channel)
		sub.close()
	}
	return nil
}

// Close closes every subscription.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, sub := range m.subs {
		sub.close()
		delete(m.subs, key)
	}
	m.closed = true
	return nil
}
