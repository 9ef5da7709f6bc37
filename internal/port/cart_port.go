package port

import (
	"context"

	"github.com/nikolayk812/cartsync/internal/domain"
)

// CartRepository is the server-held cart for an authenticated owner. Both the
// Postgres repository and the storefront HTTP client implement it. Calls are
// fallible and retryable; the merge resolver treats failures as "merge
// deferred", never as fatal.
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (domain.Cart, error)
	ReplaceCart(ctx context.Context, ownerID string, lines []domain.CartLine) error
	AddItem(ctx context.Context, ownerID string, line domain.CartLine) error
	DeleteItem(ctx context.Context, ownerID string, itemID string) (bool, error)
}

// ProductCatalog resolves a product id into display fields.
type ProductCatalog interface {
	Product(ctx context.Context, productID string) (domain.Product, error)
}

// Storage is durable per-session key/value storage shared across processes,
// the localStorage of this system. Watch delivers change notifications for
// writes made by any process sharing the same storage, including this one.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error

	// Watch invokes fn with the changed key until ctx is done. It returns
	// once watching is established; delivery happens on a background
	// goroutine owned by the Storage.
	Watch(ctx context.Context, fn func(key string)) error
}
