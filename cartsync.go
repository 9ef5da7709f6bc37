// Package cartsync keeps a shopping cart consistent across durable storage,
// an in-memory store consumed by independent UI surfaces, and server-held
// cart state attached to an authenticated user. Several processes sharing
// the same storage converge on a last-write-wins basis via storage-change
// notifications.
package cartsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/cartsync/internal/bus"
	"github.com/nikolayk812/cartsync/internal/cartstore"
	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/nikolayk812/cartsync/internal/merge"
	"github.com/nikolayk812/cartsync/internal/port"
	"github.com/nikolayk812/cartsync/internal/remote"
	"github.com/nikolayk812/cartsync/internal/repository"
	"github.com/nikolayk812/cartsync/internal/storage"
	"github.com/nikolayk812/cartsync/internal/tabsync"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Domain types, aliased so consumers never import internal packages.
type (
	Cart           = domain.Cart
	CartLine       = domain.CartLine
	BuildComponent = domain.BuildComponent
	Money          = domain.Money
	Identity       = domain.Identity
	Product        = domain.Product

	Storage        = port.Storage
	CartRepository = port.CartRepository
	ProductCatalog = port.ProductCatalog

	Topic   = bus.Topic
	Handler = bus.Handler

	LogoutPolicy = merge.LogoutPolicy
	RemoteOption = remote.Option
)

const (
	TopicCart     = bus.TopicCart
	TopicIdentity = bus.TopicIdentity

	ClearOnLogout = merge.ClearOnLogout
	PreserveLocal = merge.PreserveLocal
)

func Guest() Identity { return domain.Guest() }

func Authenticated(userID string) Identity { return domain.Authenticated(userID) }

// NewCustomBuildLine assembles a line for a user-configured build: the
// PC-customizer's "add configured build" action.
func NewCustomBuildLine(name string, components []BuildComponent) CartLine {
	return domain.NewCustomBuildLine(name, components)
}

// NewFileStorage returns durable storage backed by one file per key under
// dir, with cross-process change notifications.
func NewFileStorage(dir string, logger *slog.Logger) (Storage, error) {
	return storage.NewFileStore(dir, logger)
}

// NewMemoryStorage returns session-only storage; handy for tests and as a
// fallback when the filesystem is unavailable.
func NewMemoryStorage() Storage {
	return storage.NewMemoryStore()
}

// NewPostgresCartRepository is the server-side cart over a pgx pool.
func NewPostgresCartRepository(pool *pgxpool.Pool) (CartRepository, error) {
	return repository.NewCart(pool)
}

// NewHTTPCartRepository is the server-side cart over the storefront REST API.
func NewHTTPCartRepository(baseURL string, opts ...RemoteOption) (CartRepository, error) {
	return remote.NewCartClient(baseURL, opts...)
}

// NewHTTPProductCatalog resolves product ids over the storefront REST API.
func NewHTTPProductCatalog(baseURL string, opts ...RemoteOption) (ProductCatalog, error) {
	return remote.NewCatalogClient(baseURL, opts...)
}

type Option func(*config)

type config struct {
	cartKey  string
	userKey  string
	currency currency.Unit
	logger   *slog.Logger
	server   port.CartRepository
	catalog  port.ProductCatalog
	policy   merge.LogoutPolicy
}

func WithCartKey(key string) Option { return func(c *config) { c.cartKey = key } }

func WithUserKey(key string) Option { return func(c *config) { c.userKey = key } }

func WithCurrency(unit currency.Unit) Option { return func(c *config) { c.currency = unit } }

func WithLogger(logger *slog.Logger) Option { return func(c *config) { c.logger = logger } }

// WithServerCart wires the server-held cart collaborator; without it, login
// keeps the guest cart and records the merge as deferred.
func WithServerCart(server CartRepository) Option { return func(c *config) { c.server = server } }

// WithCatalog enables AddProduct display enrichment.
func WithCatalog(catalog ProductCatalog) Option { return func(c *config) { c.catalog = catalog } }

func WithLogoutPolicy(policy LogoutPolicy) Option { return func(c *config) { c.policy = policy } }

// Client is one process's ("tab's") view of the cart. Construct one per
// process; instances are independent and share state only through storage.
type Client struct {
	store    *cartstore.Store
	adapter  *cartstore.Adapter
	bus      *bus.Bus
	resolver *merge.Resolver
	listener *tabsync.Listener
	catalog  port.ProductCatalog
	logger   *slog.Logger
}

func New(store Storage, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is nil")
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	b := bus.New()
	adapter := cartstore.NewAdapter(store, cfg.cartKey, cfg.userKey, cfg.currency, cfg.logger)
	cartStore := cartstore.New(adapter, b)
	resolver := merge.New(cartStore, cfg.server, adapter.LoadIdentity(), cfg.policy, cfg.logger)
	listener := tabsync.New(store, adapter, cartStore, resolver, b, cfg.logger)

	return &Client{
		store:    cartStore,
		adapter:  adapter,
		bus:      b,
		resolver: resolver,
		listener: listener,
		catalog:  cfg.catalog,
		logger:   cfg.logger,
	}, nil
}

// Start begins watching storage for writes by other processes. The client is
// fully usable without it; only cross-process convergence needs the watch.
func (c *Client) Start(ctx context.Context) error {
	if err := c.listener.Start(ctx); err != nil {
		return fmt.Errorf("listener.Start: %w", err)
	}
	return nil
}

func (c *Client) Snapshot() Cart { return c.store.Snapshot() }

func (c *Client) Total() decimal.Decimal { return c.store.Total() }

// AddOrIncrement applies a signed quantity delta for line.ItemID; see the
// store for the exact semantics.
func (c *Client) AddOrIncrement(line CartLine) Cart { return c.store.AddOrIncrement(line) }

// AddProduct looks the product up in the catalog and adds it with the given
// quantity. The lookup enriches display fields only; the price it returns
// becomes the line's snapshot price.
func (c *Client) AddProduct(ctx context.Context, productID string, quantity int64) (Cart, error) {
	if c.catalog == nil {
		return Cart{}, fmt.Errorf("no product catalog configured")
	}

	product, err := c.catalog.Product(ctx, productID)
	if err != nil {
		return Cart{}, fmt.Errorf("catalog.Product: %w", err)
	}

	return c.store.AddOrIncrement(product.CartLine(quantity)), nil
}

func (c *Client) SetQuantity(itemID string, quantity int64) Cart {
	return c.store.SetQuantity(itemID, quantity)
}

func (c *Client) Remove(itemID string) Cart { return c.store.Remove(itemID) }

func (c *Client) Clear() Cart { return c.store.Clear() }

// Subscribe registers a change handler; call the returned disposer on
// unmount.
func (c *Client) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	return c.bus.Subscribe(topic, h)
}

func (c *Client) Identity() Identity { return c.resolver.Current() }

// SetIdentity records a local identity transition (login or logout),
// persists the signal for other processes, and kicks off merge resolution.
func (c *Client) SetIdentity(ctx context.Context, identity Identity) {
	c.adapter.SaveIdentity(identity)
	c.resolver.OnIdentityChanged(ctx, identity)
	c.bus.Publish(bus.TopicIdentity)
}

// MergeDeferred reports whether the last login merge is still pending; call
// SetIdentity again with the same identity to retry.
func (c *Client) MergeDeferred() bool { return c.resolver.MergeDeferred() }

// Wait blocks until in-flight merge fetches settle. Shutdown and test hook.
func (c *Client) Wait() { c.resolver.Wait() }
