package cartstore

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/nikolayk812/cartsync/internal/port"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	DefaultCartKey = "cart"
	DefaultUserKey = "user"
)

// Adapter serializes the cart and the identity signal to durable storage.
// It is the single place that resolves the historical itemId/_id/productId
// naming drift into the canonical itemId field.
//
// Load never fails: an absent, unparsable or structurally invalid value
// degrades to an empty cart (or Guest). Save never fails from the caller's
// perspective: write errors are logged and the in-memory store stays
// authoritative for the session.
type Adapter struct {
	storage  port.Storage
	cartKey  string
	userKey  string
	currency currency.Unit
	logger   *slog.Logger
}

func NewAdapter(storage port.Storage, cartKey, userKey string, unit currency.Unit, logger *slog.Logger) *Adapter {
	if cartKey == "" {
		cartKey = DefaultCartKey
	}
	if userKey == "" {
		userKey = DefaultUserKey
	}
	if (unit == currency.Unit{}) {
		unit = domain.DefaultCurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		storage:  storage,
		cartKey:  cartKey,
		userKey:  userKey,
		currency: unit,
		logger:   logger,
	}
}

func (a *Adapter) CartKey() string { return a.cartKey }
func (a *Adapter) UserKey() string { return a.userKey }

// LoadCart deserializes the persisted cart. Elements that cannot be resolved
// to a valid line (no id, non-positive quantity, duplicate id) are dropped
// rather than reported; corruption silently degrades to "no cart".
func (a *Adapter) LoadCart() domain.Cart {
	raw, ok, err := a.storage.Get(a.cartKey)
	if err != nil {
		a.logger.Warn("reading persisted cart", "key", a.cartKey, "error", err)
		return domain.Cart{}
	}
	if !ok {
		return domain.Cart{}
	}

	var persisted []persistedLine
	if err := json.Unmarshal(raw, &persisted); err != nil {
		a.logger.Warn("persisted cart is not a valid JSON array, starting empty", "key", a.cartKey, "error", err)
		return domain.Cart{}
	}

	var cart domain.Cart
	seen := make(map[string]struct{}, len(persisted))
	for _, p := range persisted {
		line, ok := a.toDomainLine(p)
		if !ok {
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

// SaveCart serializes and writes the cart in the canonical shape. A write
// failure is logged, never surfaced: losing persistence must not crash the
// mutation path.
func (a *Adapter) SaveCart(cart domain.Cart) {
	persisted := make([]persistedLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		persisted = append(persisted, fromDomainLine(line))
	}

	raw, err := json.Marshal(persisted)
	if err != nil {
		a.logger.Error("marshaling cart", "key", a.cartKey, "error", err)
		return
	}

	if err := a.storage.Set(a.cartKey, raw); err != nil {
		a.logger.Warn("persisting cart, in-memory state stays session-only", "key", a.cartKey, "error", err)
	}
}

// LoadIdentity reads the identity signal from the user key. Absence or
// corruption means Guest.
func (a *Adapter) LoadIdentity() domain.Identity {
	raw, ok, err := a.storage.Get(a.userKey)
	if err != nil {
		a.logger.Warn("reading persisted user", "key", a.userKey, "error", err)
		return domain.Guest()
	}
	if !ok {
		return domain.Guest()
	}

	var user persistedUser
	if err := json.Unmarshal(raw, &user); err != nil {
		a.logger.Warn("persisted user is not valid JSON, treating as guest", "key", a.userKey, "error", err)
		return domain.Guest()
	}

	id := user.LegacyID
	if id == "" {
		id = user.ID
	}
	if id == "" {
		return domain.Guest()
	}

	return domain.Authenticated(id)
}

// SaveIdentity writes (or, for Guest, removes) the identity signal so other
// processes observe the transition through their storage watch.
func (a *Adapter) SaveIdentity(identity domain.Identity) {
	if identity.IsGuest() {
		if err := a.storage.Delete(a.userKey); err != nil {
			a.logger.Warn("removing persisted user", "key", a.userKey, "error", err)
		}
		return
	}

	raw, err := json.Marshal(persistedUser{LegacyID: identity.UserID})
	if err != nil {
		a.logger.Error("marshaling user", "key", a.userKey, "error", err)
		return
	}

	if err := a.storage.Set(a.userKey, raw); err != nil {
		a.logger.Warn("persisting user", "key", a.userKey, "error", err)
	}
}

// persistedLine accepts every field spelling that has appeared in stored
// carts over time; only the canonical spelling is ever written back.
type persistedLine struct {
	ItemID        string               `json:"itemId,omitempty"`
	LegacyID      string               `json:"_id,omitempty"`
	ProductID     string               `json:"productId,omitempty"`
	Name          string               `json:"name,omitempty"`
	UnitPrice     *decimal.Decimal     `json:"unitPrice,omitempty"`
	LegacyPrice   *decimal.Decimal     `json:"price,omitempty"`
	Currency      string               `json:"currency,omitempty"`
	Quantity      int64                `json:"quantity"`
	Image         string               `json:"image,omitempty"`
	IsCustomBuild bool                 `json:"isCustomBuild,omitempty"`
	Components    []persistedComponent `json:"components,omitempty"`
	AddedAt       time.Time            `json:"addedAt,omitzero"`
}

type persistedComponent struct {
	Category string           `json:"category,omitempty"`
	SourceID string           `json:"productId,omitempty"`
	Name     string           `json:"name,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Currency string           `json:"currency,omitempty"`
}

type persistedUser struct {
	ID       string `json:"id,omitempty"`
	LegacyID string `json:"_id,omitempty"`
}

func (a *Adapter) toDomainLine(p persistedLine) (domain.CartLine, bool) {
	id := firstNonEmpty(p.ItemID, p.LegacyID, p.ProductID)
	if id == "" || p.Quantity < 1 {
		return domain.CartLine{}, false
	}

	amount := decimal.Zero
	switch {
	case p.UnitPrice != nil:
		amount = *p.UnitPrice
	case p.LegacyPrice != nil:
		amount = *p.LegacyPrice
	}
	if amount.IsNegative() {
		return domain.CartLine{}, false
	}

	components := make([]domain.BuildComponent, 0, len(p.Components))
	for _, comp := range p.Components {
		price := decimal.Zero
		if comp.Price != nil {
			price = *comp.Price
		}
		components = append(components, domain.BuildComponent{
			Category:     comp.Category,
			SourceItemID: comp.SourceID,
			Name:         comp.Name,
			Price:        domain.Money{Amount: price, Currency: a.parseCurrency(comp.Currency)},
		})
	}
	if len(components) == 0 {
		components = nil
	}

	return domain.CartLine{
		ItemID:        id,
		Name:          p.Name,
		UnitPrice:     domain.Money{Amount: amount, Currency: a.parseCurrency(p.Currency)},
		Quantity:      p.Quantity,
		Image:         p.Image,
		IsCustomBuild: p.IsCustomBuild,
		Components:    components,
		AddedAt:       p.AddedAt,
	}, true
}

func fromDomainLine(line domain.CartLine) persistedLine {
	components := make([]persistedComponent, 0, len(line.Components))
	for _, comp := range line.Components {
		price := comp.Price.Amount
		components = append(components, persistedComponent{
			Category: comp.Category,
			SourceID: comp.SourceItemID,
			Name:     comp.Name,
			Price:    &price,
			Currency: comp.Price.Currency.String(),
		})
	}
	if len(components) == 0 {
		components = nil
	}

	amount := line.UnitPrice.Amount
	return persistedLine{
		ItemID:        line.ItemID,
		Name:          line.Name,
		UnitPrice:     &amount,
		Currency:      line.UnitPrice.Currency.String(),
		Quantity:      line.Quantity,
		Image:         line.Image,
		IsCustomBuild: line.IsCustomBuild,
		Components:    components,
		AddedAt:       line.AddedAt,
	}
}

func (a *Adapter) parseCurrency(code string) currency.Unit {
	if code == "" {
		return a.currency
	}

	unit, err := currency.ParseISO(code)
	if err != nil {
		return a.currency
	}
	return unit
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
