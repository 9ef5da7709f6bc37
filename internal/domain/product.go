package domain

import "time"

// Product is a catalog lookup result, used only to enrich display lines.
// Totals never depend on it since prices are snapshotted at add time.
type Product struct {
	ID    string
	Name  string
	Price Money
	Image string
}

func (p Product) CartLine(quantity int64) CartLine {
	return CartLine{
		ItemID:    p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  quantity,
		Image:     p.Image,
		AddedAt:   time.Now(),
	}
}
