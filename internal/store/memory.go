package store

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memorySub struct {
	pattern string
	ch      chan Message
}

// Memory is an in-process Store used by tests and single-process dev mode.
// Expiry is evaluated lazily against the injected clock so tests can advance
// time deterministically.
type Memory struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
	subs    []*memorySub
}

// NewMemory returns a Memory store on the real clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(clockwork.NewRealClock())
}

// NewMemoryWithClock returns a Memory store whose expiry checks use clock.
func NewMemoryWithClock(clock clockwork.Clock) *Memory {
	return &Memory{
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

// live returns the entry at key if present and unexpired. Expired entries
// are removed. Caller must hold mu.
func (m *Memory) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *Memory) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live(key); ok {
		return false, nil
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
	return true, nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *Memory) Scan(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := m.live(k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Publish holds mu across the sends so a concurrent cancel cannot close a
// channel mid-delivery; the sends are non-blocking so publishers never stall.
func (m *Memory) Publish(ctx context.Context, channel, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- Message{Channel: channel, Payload: payload}:
		default:
			// Slow subscriber, drop rather than block the publisher.
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, pattern string) (<-chan Message, func()) {
	sub := &memorySub{pattern: pattern, ch: make(chan Message, 64)}
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	var once sync.Once
	stopped := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			// Remove and close under the same lock Publish sends under.
			m.mu.Lock()
			for i, s := range m.subs {
				if s == sub {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					break
				}
			}
			close(sub.ch)
			m.mu.Unlock()
			close(stopped)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stopped:
		}
	}()

	return sub.ch, cancel
}
