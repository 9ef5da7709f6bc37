// Package tabsync converges this process with cart and identity writes made
// by other processes sharing the same durable storage.
package tabsync

import (
	"context"
	"log/slog"

	"github.com/nikolayk812/cartsync/internal/bus"
	"github.com/nikolayk812/cartsync/internal/cartstore"
	"github.com/nikolayk812/cartsync/internal/merge"
	"github.com/nikolayk812/cartsync/internal/port"
)

// Listener replays storage-change notifications into the local store. There
// is no cross-process locking anywhere in this path: two processes mutating
// concurrently race, the one whose write lands in storage last wins, and
// every process converges to that value after its next notification. That
// last-write-wins model is deliberate for a single-user, single-device
// context and must not be "fixed" with locks.
type Listener struct {
	storage  port.Storage
	adapter  *cartstore.Adapter
	store    *cartstore.Store
	resolver *merge.Resolver
	bus      *bus.Bus
	logger   *slog.Logger
}

func New(storage port.Storage, adapter *cartstore.Adapter, store *cartstore.Store, resolver *merge.Resolver, b *bus.Bus, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		storage:  storage,
		adapter:  adapter,
		store:    store,
		resolver: resolver,
		bus:      b,
		logger:   logger,
	}
}

// Start begins watching; it returns once the watch is established and stops
// when ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	return l.storage.Watch(ctx, func(key string) {
		l.handle(ctx, key)
	})
}

func (l *Listener) handle(ctx context.Context, key string) {
	switch key {
	case l.adapter.CartKey():
		// Reload and apply without writing back: this process only observed
		// the change, and an echo write could clobber a newer value written
		// in between. A notification for our own write replays an equal
		// cart, which ApplyObserved drops, so nothing echoes forever.
		cart := l.adapter.LoadCart()
		l.store.ApplyObserved(cart.Lines)

	case l.adapter.UserKey():
		identity := l.adapter.LoadIdentity()
		l.resolver.OnIdentityChanged(ctx, identity)
		l.bus.Publish(bus.TopicIdentity)
	}
}
