package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is one entry in a cart, keyed by ItemID: a catalog product id, or
// a synthesized id for an ad-hoc custom build. UnitPrice is a snapshot taken
// when the line was added, not a live catalog value.
type CartLine struct {
	ItemID        string
	Name          string
	UnitPrice     Money
	Quantity      int64
	Image         string
	IsCustomBuild bool
	Components    []BuildComponent

	AddedAt time.Time
}

// BuildComponent describes one part of a user-assembled configuration.
type BuildComponent struct {
	Category     string
	SourceItemID string
	Name         string
	Price        Money
}

// Cart is an ordered collection of lines. Order is preserved for display
// only; identity is by ItemID, and no two lines share one.
type Cart struct {
	Lines []CartLine
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Amount.Mul(decimal.NewFromInt(l.Quantity))
}

// Total derives the cart total from its lines; it is never stored.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

func (c Cart) Find(itemID string) (CartLine, bool) {
	for _, line := range c.Lines {
		if line.ItemID == itemID {
			return line, true
		}
	}
	return CartLine{}, false
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c Cart) Clone() Cart {
	if len(c.Lines) == 0 {
		return Cart{}
	}

	lines := make([]CartLine, len(c.Lines))
	for i, line := range c.Lines {
		lines[i] = line.Clone()
	}
	return Cart{Lines: lines}
}

func (l CartLine) Clone() CartLine {
	out := l
	if len(l.Components) > 0 {
		out.Components = append([]BuildComponent(nil), l.Components...)
	}
	return out
}

// Equal compares carts by content, ignoring AddedAt timestamps.
func (c Cart) Equal(other Cart) bool {
	if len(c.Lines) != len(other.Lines) {
		return false
	}
	for i, line := range c.Lines {
		if !line.equal(other.Lines[i]) {
			return false
		}
	}
	return true
}

func (l CartLine) equal(other CartLine) bool {
	if l.ItemID != other.ItemID ||
		l.Name != other.Name ||
		l.Quantity != other.Quantity ||
		l.Image != other.Image ||
		l.IsCustomBuild != other.IsCustomBuild ||
		!l.UnitPrice.Equal(other.UnitPrice) ||
		len(l.Components) != len(other.Components) {
		return false
	}

	for i, comp := range l.Components {
		otherComp := other.Components[i]
		if comp.Category != otherComp.Category ||
			comp.SourceItemID != otherComp.SourceItemID ||
			comp.Name != otherComp.Name ||
			!comp.Price.Equal(otherComp.Price) {
			return false
		}
	}
	return true
}

// Merge combines a guest cart with a server-held cart: quantities sum for
// ids present on both sides, lines present on one side only are kept as-is.
// Guest lines come first, server-only lines are appended.
func Merge(guest, server Cart) Cart {
	merged := guest.Clone()

	index := make(map[string]int, len(merged.Lines))
	for i, line := range merged.Lines {
		index[line.ItemID] = i
	}

	for _, line := range server.Lines {
		if i, ok := index[line.ItemID]; ok {
			merged.Lines[i].Quantity += line.Quantity
			continue
		}
		merged.Lines = append(merged.Lines, line.Clone())
	}

	return merged
}

// NewCustomBuildLine assembles a cart line for a user-configured build.
// The item id is synthesized, the price is the component sum, and the
// component list travels with the line.
func NewCustomBuildLine(name string, components []BuildComponent) CartLine {
	price := decimal.Zero
	unit := DefaultCurrency
	for i, comp := range components {
		price = price.Add(comp.Price.Amount)
		if i == 0 {
			unit = comp.Price.Currency
		}
	}

	return CartLine{
		ItemID:        "custom-" + uuid.NewString(),
		Name:          name,
		UnitPrice:     Money{Amount: price, Currency: unit},
		Quantity:      1,
		IsCustomBuild: true,
		Components:    append([]BuildComponent(nil), components...),
		AddedAt:       time.Now(),
	}
}
