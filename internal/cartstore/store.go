// Package cartstore holds the canonical in-memory cart for one process and
// its serialization to durable storage. Every mutation funnels through Store;
// nothing else writes the cart key.
package cartstore

import (
	"sync"
	"time"

	"github.com/nikolayk812/cartsync/internal/bus"
	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

// Store provides atomic cart mutations. Each mutating operation restores the
// cart invariants (unique item ids, quantity >= 1), then persists through the
// adapter and publishes on the bus before returning, so no consumer in this
// process can observe a partial update.
//
// Concurrent callers are safe; ordering between them is whatever the lock
// hands out. Across processes the model stays last-write-wins: the watcher in
// each process converges everyone to the value written last.
type Store struct {
	mu   sync.Mutex
	cart domain.Cart
	seq  uint64

	persistMu    sync.Mutex
	persistedSeq uint64

	adapter *Adapter
	bus     *bus.Bus
}

// New seeds the store from the adapter's persisted value.
func New(adapter *Adapter, b *bus.Bus) *Store {
	return &Store{
		cart:    adapter.LoadCart(),
		adapter: adapter,
		bus:     b,
	}
}

// Snapshot returns a read-only copy of the current cart.
func (s *Store) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

func (s *Store) Total() decimal.Decimal {
	return s.Snapshot().Total()
}

// AddOrIncrement adds line.Quantity to an existing line with the same item
// id, inserting the line when absent. The quantity is a signed delta: the
// "decrement" UI action is a negative delta, and a resulting quantity <= 0
// removes the line entirely. It is the single primitive behind both the
// add-to-cart and quantity-stepper surfaces, which is what keeps the
// no-duplicate-line invariant uniform.
func (s *Store) AddOrIncrement(line domain.CartLine) domain.Cart {
	return s.mutate(func(cart *domain.Cart) bool {
		for i := range cart.Lines {
			if cart.Lines[i].ItemID != line.ItemID {
				continue
			}
			if line.Quantity == 0 {
				return false
			}
			quantity := cart.Lines[i].Quantity + line.Quantity
			if quantity <= 0 {
				cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
			} else {
				cart.Lines[i].Quantity = quantity
			}
			return true
		}

		if line.Quantity <= 0 {
			return false
		}
		inserted := line.Clone()
		if inserted.AddedAt.IsZero() {
			inserted.AddedAt = time.Now()
		}
		cart.Lines = append(cart.Lines, inserted)
		return true
	})
}

// SetQuantity sets an absolute quantity; quantity <= 0 removes the line.
// An unknown item id is a no-op, not an error.
func (s *Store) SetQuantity(itemID string, quantity int64) domain.Cart {
	return s.mutate(func(cart *domain.Cart) bool {
		for i := range cart.Lines {
			if cart.Lines[i].ItemID != itemID {
				continue
			}
			if quantity <= 0 {
				cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
				return true
			}
			if cart.Lines[i].Quantity == quantity {
				return false
			}
			cart.Lines[i].Quantity = quantity
			return true
		}
		return false
	})
}

// Remove deletes the line if present; removing an absent id is a no-op.
func (s *Store) Remove(itemID string) domain.Cart {
	return s.mutate(func(cart *domain.Cart) bool {
		for i := range cart.Lines {
			if cart.Lines[i].ItemID == itemID {
				cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
				return true
			}
		}
		return false
	})
}

// Clear empties the cart. Clearing an empty cart changes nothing and
// publishes nothing.
func (s *Store) Clear() domain.Cart {
	return s.mutate(func(cart *domain.Cart) bool {
		if cart.IsEmpty() {
			return false
		}
		cart.Lines = nil
		return true
	})
}

// ReplaceAll swaps in a wholesale replacement; it is reserved for the merge
// resolver. Input lines are normalized the same way the adapter normalizes
// persisted data. Replacing with an equal cart is a no-op.
func (s *Store) ReplaceAll(lines []domain.CartLine) domain.Cart {
	replacement := normalize(lines)

	return s.mutate(func(cart *domain.Cart) bool {
		if cart.Equal(replacement) {
			return false
		}
		*cart = replacement.Clone()
		return true
	})
}

// ApplyObserved replays a cart another process wrote to shared storage.
// Memory and subscribers update, but nothing is written back: storage
// already holds the value, and an echo write from an observer could clobber
// a newer one that landed in between. Applying an equal cart is a no-op,
// which is what stops a process from replaying its own writes forever.
func (s *Store) ApplyObserved(lines []domain.CartLine) domain.Cart {
	replacement := normalize(lines)

	s.mu.Lock()
	if s.cart.Equal(replacement) {
		snapshot := s.cart.Clone()
		s.mu.Unlock()
		return snapshot
	}
	s.cart = replacement.Clone()
	snapshot := s.cart.Clone()
	s.mu.Unlock()

	s.bus.Publish(bus.TopicCart)
	return snapshot
}

// mutate applies fn under the lock, then runs persistence and notification
// outside it so that bus handlers and storage watchers can read the store
// without deadlocking. Both side effects complete before mutate returns.
func (s *Store) mutate(fn func(*domain.Cart) bool) domain.Cart {
	s.mu.Lock()
	changed := fn(&s.cart)
	snapshot := s.cart.Clone()
	var seq uint64
	if changed {
		s.seq++
		seq = s.seq
	}
	s.mu.Unlock()

	if changed {
		s.persist(seq, snapshot)
		s.bus.Publish(bus.TopicCart)
	}
	return snapshot
}

// persist serializes saves in mutation order. A snapshot whose save lost the
// race to a newer mutation's save is dropped: writing it would leave storage
// older than memory, and the next watch notification would roll the cart
// back.
func (s *Store) persist(seq uint64, snapshot domain.Cart) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if seq <= s.persistedSeq {
		return
	}
	s.persistedSeq = seq
	s.adapter.SaveCart(snapshot)
}

func normalize(lines []domain.CartLine) domain.Cart {
	var cart domain.Cart
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ItemID == "" || line.Quantity < 1 {
			continue
		}
		if _, dup := seen[line.ItemID]; dup {
			continue
		}
		seen[line.ItemID] = struct{}{}
		cart.Lines = append(cart.Lines, line)
	}
	return cart
}
