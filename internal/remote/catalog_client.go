package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

// CatalogClient resolves product ids into display fields via
// GET /products/{id}.
type CatalogClient struct {
	baseURL string
	opts    options
}

func NewCatalogClient(baseURL string, opts ...Option) (*CatalogClient, error) {
	trimmed, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &CatalogClient{baseURL: trimmed, opts: buildOptions(opts)}, nil
}

type wireProduct struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency,omitempty"`
	Image    string          `json:"image,omitempty"`
}

func (c *CatalogClient) Product(ctx context.Context, productID string) (domain.Product, error) {
	if productID == "" {
		return domain.Product{}, fmt.Errorf("productID is empty")
	}

	var wire wireProduct
	err := doJSON(ctx, c.opts, http.MethodGet, c.baseURL+"/products/"+url.PathEscape(productID), nil, &wire)
	if err != nil {
		return domain.Product{}, fmt.Errorf("doJSON: %w", err)
	}

	id := wire.ID
	if id == "" {
		id = productID
	}

	return domain.Product{
		ID:    id,
		Name:  wire.Name,
		Price: domain.Money{Amount: wire.Price, Currency: parseCurrency(wire.Currency)},
		Image: wire.Image,
	}, nil
}
