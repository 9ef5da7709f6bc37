package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Storage for tests and session-only fallback
// when durable storage is unavailable. Watch callbacks run synchronously on
// the writer's goroutine, so several "tabs" sharing one MemoryStore observe
// each other's writes the way browser tabs share storage events.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[int]func(key string)
	nextID   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   map[string][]byte{},
		watchers: map[int]func(string){},
	}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	value, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), value...), true, nil
}

func (s *MemoryStore) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	s.values[key] = append([]byte(nil), value...)
	s.mu.Unlock()

	s.notify(key)
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if existed {
		s.notify(key)
	}
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, fn func(key string)) error {
	if fn == nil {
		return nil
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}()

	return nil
}

func (s *MemoryStore) notify(key string) {
	s.mu.RLock()
	watchers := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range watchers {
		fn(key)
	}
}
