package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/nikolayk812/cartsync/internal/port"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// cartRepository is the server-held cart behind port.CartRepository, one row
// per (owner, item). AddItem increments on conflict, mirroring the signed
// add-or-increment primitive of the client store; ReplaceCart swaps the whole
// cart in one transaction, which is what the merge resolver emits.
type cartRepository struct {
	pool *pgxpool.Pool
}

func NewCart(pool *pgxpool.Pool) (port.CartRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &cartRepository{pool: pool}, nil
}

const selectCart = `
SELECT item_id, name, unit_price::text, currency, quantity, image, is_custom_build, components, added_at
FROM cart_lines
WHERE owner_id = $1
ORDER BY added_at, item_id`

func (r *cartRepository) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	if ownerID == "" {
		return domain.Cart{}, fmt.Errorf("ownerID is empty")
	}

	rows, err := r.pool.Query(ctx, selectCart, ownerID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("pool.Query: %w", err)
	}
	defer rows.Close()

	var cart domain.Cart
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("scanCartLine: %w", err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("rows.Err: %w", err)
	}

	return cart, nil
}

const upsertLine = `
INSERT INTO cart_lines (owner_id, item_id, name, unit_price, currency, quantity, image, is_custom_build, components)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (owner_id, item_id) DO UPDATE
SET quantity = cart_lines.quantity + EXCLUDED.quantity`

func (r *cartRepository) AddItem(ctx context.Context, ownerID string, line domain.CartLine) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}
	if line.ItemID == "" {
		return fmt.Errorf("itemID is empty")
	}
	if line.Quantity < 1 {
		return fmt.Errorf("quantity[%d] is not positive", line.Quantity)
	}

	args, err := lineArgs(ownerID, line)
	if err != nil {
		return fmt.Errorf("lineArgs: %w", err)
	}

	if _, err := r.pool.Exec(ctx, upsertLine, args...); err != nil {
		return fmt.Errorf("pool.Exec: %w", err)
	}
	return nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, ownerID string, itemID string) (bool, error) {
	if ownerID == "" {
		return false, fmt.Errorf("ownerID is empty")
	}
	if itemID == "" {
		return false, fmt.Errorf("itemID is empty")
	}

	tag, err := r.pool.Exec(ctx,
		"DELETE FROM cart_lines WHERE owner_id = $1 AND item_id = $2", ownerID, itemID)
	if err != nil {
		return false, fmt.Errorf("pool.Exec: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *cartRepository) ReplaceCart(ctx context.Context, ownerID string, lines []domain.CartLine) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}

	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		var zero struct{}

		if _, err := tx.Exec(ctx, "DELETE FROM cart_lines WHERE owner_id = $1", ownerID); err != nil {
			return zero, fmt.Errorf("tx.Exec delete: %w", err)
		}

		batch := &pgx.Batch{}
		for _, line := range lines {
			if line.ItemID == "" || line.Quantity < 1 {
				continue
			}
			args, err := lineArgs(ownerID, line)
			if err != nil {
				return zero, fmt.Errorf("lineArgs: %w", err)
			}
			batch.Queue(upsertLine, args...)
		}

		if batch.Len() == 0 {
			return zero, nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return zero, fmt.Errorf("tx.SendBatch: %w", err)
		}
		return zero, nil
	})
	if err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

// dbComponent is the JSONB shape of one build component; field spelling
// matches the client's persisted form.
type dbComponent struct {
	Category string          `json:"category,omitempty"`
	SourceID string          `json:"productId,omitempty"`
	Name     string          `json:"name,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency,omitempty"`
}

func lineArgs(ownerID string, line domain.CartLine) ([]any, error) {
	var components []byte
	if len(line.Components) > 0 {
		dbComponents := make([]dbComponent, 0, len(line.Components))
		for _, comp := range line.Components {
			dbComponents = append(dbComponents, dbComponent{
				Category: comp.Category,
				SourceID: comp.SourceItemID,
				Name:     comp.Name,
				Price:    comp.Price.Amount,
				Currency: comp.Price.Currency.String(),
			})
		}

		raw, err := json.Marshal(dbComponents)
		if err != nil {
			return nil, fmt.Errorf("json.Marshal: %w", err)
		}
		components = raw
	}

	return []any{
		ownerID,
		line.ItemID,
		line.Name,
		line.UnitPrice.Amount.String(),
		line.UnitPrice.Currency.String(),
		line.Quantity,
		line.Image,
		line.IsCustomBuild,
		components,
	}, nil
}

func scanCartLine(rows pgx.Rows) (domain.CartLine, error) {
	var (
		line          domain.CartLine
		unitPrice     string
		currencyCode  string
		componentsRaw []byte
		addedAt       time.Time
	)

	err := rows.Scan(&line.ItemID, &line.Name, &unitPrice, &currencyCode,
		&line.Quantity, &line.Image, &line.IsCustomBuild, &componentsRaw, &addedAt)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("rows.Scan: %w", err)
	}

	amount, err := decimal.NewFromString(unitPrice)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("decimal.NewFromString[%s]: %w", unitPrice, err)
	}

	parsedCurrency, err := currency.ParseISO(currencyCode)
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("currency[%s] is not valid: %w", currencyCode, err)
	}

	line.UnitPrice = domain.Money{Amount: amount, Currency: parsedCurrency}
	line.AddedAt = addedAt

	if len(componentsRaw) > 0 {
		var dbComponents []dbComponent
		if err := json.Unmarshal(componentsRaw, &dbComponents); err != nil {
			return domain.CartLine{}, fmt.Errorf("json.Unmarshal components: %w", err)
		}

		for _, comp := range dbComponents {
			unit, err := currency.ParseISO(comp.Currency)
			if err != nil {
				unit = parsedCurrency
			}
			line.Components = append(line.Components, domain.BuildComponent{
				Category:     comp.Category,
				SourceItemID: comp.SourceID,
				Name:         comp.Name,
				Price:        domain.Money{Amount: comp.Price, Currency: unit},
			})
		}
	}

	return line, nil
}
