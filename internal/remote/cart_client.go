// Package remote implements the storefront REST API collaborators: the
// server-held cart and the product catalog. Responses arrive in the
// {success, message, data} envelope the API has always used.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var ErrNotFound = errors.New("not found")

type Option func(*options)

type options struct {
	httpClient *http.Client
	token      string
}

// WithHTTPClient overrides the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithToken attaches a bearer token; the API resolves the cart owner from it.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

func buildOptions(opts []Option) options {
	o := options{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CartClient talks to GET/POST/DELETE /cart.
type CartClient struct {
	baseURL string
	opts    options
}

func NewCartClient(baseURL string, opts ...Option) (*CartClient, error) {
	trimmed, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &CartClient{baseURL: trimmed, opts: buildOptions(opts)}, nil
}

func (c *CartClient) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	if ownerID == "" {
		return domain.Cart{}, fmt.Errorf("ownerID is empty")
	}

	var wire []wireLine
	if err := doJSON(ctx, c.opts, http.MethodGet, c.baseURL+"/cart", nil, &wire); err != nil {
		return domain.Cart{}, fmt.Errorf("doJSON: %w", err)
	}

	var cart domain.Cart
	for _, w := range wire {
		line, ok := w.toDomain()
		if !ok {
			continue
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart, nil
}

func (c *CartClient) AddItem(ctx context.Context, ownerID string, line domain.CartLine) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}
	if line.ItemID == "" {
		return fmt.Errorf("itemID is empty")
	}

	if err := doJSON(ctx, c.opts, http.MethodPost, c.baseURL+"/cart", fromDomain(line), nil); err != nil {
		return fmt.Errorf("doJSON: %w", err)
	}
	return nil
}

func (c *CartClient) DeleteItem(ctx context.Context, ownerID string, itemID string) (bool, error) {
	if ownerID == "" {
		return false, fmt.Errorf("ownerID is empty")
	}
	if itemID == "" {
		return false, fmt.Errorf("itemID is empty")
	}

	err := doJSON(ctx, c.opts, http.MethodDelete, c.baseURL+"/cart/"+url.PathEscape(itemID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("doJSON: %w", err)
	}
	return true, nil
}

// ReplaceCart clears the server cart and re-adds every line. The API has no
// bulk replace, so this is two round trip kinds; the merge resolver treats
// the whole call as best-effort either way.
func (c *CartClient) ReplaceCart(ctx context.Context, ownerID string, lines []domain.CartLine) error {
	if ownerID == "" {
		return fmt.Errorf("ownerID is empty")
	}

	if err := doJSON(ctx, c.opts, http.MethodDelete, c.baseURL+"/cart", nil, nil); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("doJSON clear: %w", err)
	}

	for _, line := range lines {
		if line.ItemID == "" || line.Quantity < 1 {
			continue
		}
		if err := c.AddItem(ctx, ownerID, line); err != nil {
			return fmt.Errorf("c.AddItem[%s]: %w", line.ItemID, err)
		}
	}
	return nil
}

// wireLine is the API's cart item shape, which still spells the id `_id` and
// the snapshot price `price`.
type wireLine struct {
	ID            string          `json:"_id"`
	Name          string          `json:"name,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency,omitempty"`
	Quantity      int64           `json:"quantity"`
	Image         string          `json:"image,omitempty"`
	IsCustomBuild bool            `json:"isCustomBuild,omitempty"`
	Components    []wireComponent `json:"components,omitempty"`
}

type wireComponent struct {
	Category string          `json:"category,omitempty"`
	SourceID string          `json:"productId,omitempty"`
	Name     string          `json:"name,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency,omitempty"`
}

func (w wireLine) toDomain() (domain.CartLine, bool) {
	if w.ID == "" || w.Quantity < 1 {
		return domain.CartLine{}, false
	}

	var components []domain.BuildComponent
	for _, comp := range w.Components {
		components = append(components, domain.BuildComponent{
			Category:     comp.Category,
			SourceItemID: comp.SourceID,
			Name:         comp.Name,
			Price:        domain.Money{Amount: comp.Price, Currency: parseCurrency(comp.Currency)},
		})
	}

	return domain.CartLine{
		ItemID:        w.ID,
		Name:          w.Name,
		UnitPrice:     domain.Money{Amount: w.Price, Currency: parseCurrency(w.Currency)},
		Quantity:      w.Quantity,
		Image:         w.Image,
		IsCustomBuild: w.IsCustomBuild,
		Components:    components,
	}, true
}

func fromDomain(line domain.CartLine) wireLine {
	var components []wireComponent
	for _, comp := range line.Components {
		components = append(components, wireComponent{
			Category: comp.Category,
			SourceID: comp.SourceItemID,
			Name:     comp.Name,
			Price:    comp.Price.Amount,
			Currency: comp.Price.Currency.String(),
		})
	}

	return wireLine{
		ID:            line.ItemID,
		Name:          line.Name,
		Price:         line.UnitPrice.Amount,
		Currency:      line.UnitPrice.Currency.String(),
		Quantity:      line.Quantity,
		Image:         line.Image,
		IsCustomBuild: line.IsCustomBuild,
		Components:    components,
	}
}

func parseCurrency(code string) currency.Unit {
	if code == "" {
		return domain.DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return domain.DefaultCurrency
	}
	return unit
}

func normalizeBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", fmt.Errorf("baseURL is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return "", fmt.Errorf("url.Parse: %w", err)
	}
	return strings.TrimRight(baseURL, "/"), nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(ctx context.Context, o options, method, rawURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpClient.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("io.ReadAll: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 400 {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return fmt.Errorf("json.Unmarshal envelope: %w", err)
		}
	}

	if resp.StatusCode >= 400 || (len(raw) > 0 && !env.Success) {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("api: %s (status %d)", msg, resp.StatusCode)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("json.Unmarshal data: %w", err)
	}
	return nil
}
