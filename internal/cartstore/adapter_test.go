package cartstore_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nikolayk812/cartsync/internal/cartstore"
	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/nikolayk812/cartsync/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func newTestAdapter(t *testing.T) (*cartstore.Adapter, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	adapter := cartstore.NewAdapter(store, "", "", currency.Unit{}, slog.New(slog.DiscardHandler))
	return adapter, store
}

func TestLoadCartDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "absent"},
		{name: "not JSON", raw: "{{{"},
		{name: "not an array", raw: `{"cart": []}`},
		{name: "elements missing ids", raw: `[{"name":"x","quantity":2}]`},
		{name: "non-positive quantities", raw: `[{"_id":"a","quantity":0},{"_id":"b","quantity":-3}]`},
		{name: "negative price", raw: `[{"_id":"a","price":-5,"quantity":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, store := newTestAdapter(t)
			if tt.raw != "" {
				require.NoError(t, store.Set(adapter.CartKey(), []byte(tt.raw)))
			}

			assert.True(t, adapter.LoadCart().IsEmpty())
		})
	}
}

func TestLoadCartNormalizesLegacyFields(t *testing.T) {
	adapter, store := newTestAdapter(t)

	raw := `[
		{"_id":"legacy","name":"Legacy","price":10,"quantity":2},
		{"productId":"by-product","price":5.5,"quantity":1},
		{"itemId":"canonical","unitPrice":"3.25","quantity":4},
		{"_id":"legacy","price":10,"quantity":7}
	]`
	require.NoError(t, store.Set(adapter.CartKey(), []byte(raw)))

	cart := adapter.LoadCart()
	require.Len(t, cart.Lines, 3, "duplicate id must be dropped")

	legacy, ok := cart.Find("legacy")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(10).Equal(legacy.UnitPrice.Amount))
	assert.EqualValues(t, 2, legacy.Quantity, "first occurrence wins")
	assert.Equal(t, "USD", legacy.UnitPrice.Currency.String())

	byProduct, ok := cart.Find("by-product")
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(5.5).Equal(byProduct.UnitPrice.Amount))

	canonical, ok := cart.Find("canonical")
	require.True(t, ok)
	assert.True(t, decimal.NewFromFloat(3.25).Equal(canonical.UnitPrice.Amount))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	cart := domain.Cart{Lines: []domain.CartLine{
		randomCartLine(),
		randomCartLine(),
		{
			ItemID:        "custom-" + gofakeit.UUID(),
			Name:          "Custom Gaming PC",
			UnitPrice:     randomMoney(),
			Quantity:      1,
			IsCustomBuild: true,
			Components: []domain.BuildComponent{
				{Category: "CPU", SourceItemID: gofakeit.UUID(), Name: "CPU X", Price: randomMoney()},
				{Category: "GPU", SourceItemID: gofakeit.UUID(), Name: "GPU Y", Price: randomMoney()},
			},
			AddedAt: time.Now(),
		},
	}}

	adapter.SaveCart(cart)
	loaded := adapter.LoadCart()

	assertCartsEqual(t, cart, loaded)
}

func TestSaveCartWriteFailureIsSilent(t *testing.T) {
	store := failingStorage{storage.NewMemoryStore()}
	adapter := cartstore.NewAdapter(store, "", "", currency.Unit{}, slog.New(slog.DiscardHandler))

	assert.NotPanics(t, func() {
		adapter.SaveCart(domain.Cart{Lines: []domain.CartLine{randomCartLine()}})
	})
}

func TestLoadIdentity(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Identity
	}{
		{name: "absent", want: domain.Guest()},
		{name: "corrupt", raw: "{{{", want: domain.Guest()},
		{name: "no id field", raw: `{"name":"someone"}`, want: domain.Guest()},
		{name: "legacy _id", raw: `{"_id":"u1","name":"someone"}`, want: domain.Authenticated("u1")},
		{name: "plain id", raw: `{"id":"u2"}`, want: domain.Authenticated("u2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, store := newTestAdapter(t)
			if tt.raw != "" {
				require.NoError(t, store.Set(adapter.UserKey(), []byte(tt.raw)))
			}

			assert.Equal(t, tt.want, adapter.LoadIdentity())
		})
	}
}

func TestSaveIdentityRoundTrip(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	adapter.SaveIdentity(domain.Authenticated("u1"))
	assert.Equal(t, domain.Authenticated("u1"), adapter.LoadIdentity())

	adapter.SaveIdentity(domain.Guest())
	assert.Equal(t, domain.Guest(), adapter.LoadIdentity())
}

func assertCartsEqual(t *testing.T, expected, actual domain.Cart) {
	t.Helper()

	moneyComparer := cmp.Comparer(func(x, y domain.Money) bool {
		return x.Equal(y)
	})

	opts := cmp.Options{
		cmpopts.IgnoreFields(domain.CartLine{}, "AddedAt"),
		moneyComparer,
	}

	diff := cmp.Diff(expected, actual, opts)
	assert.Empty(t, diff)
}

func randomCartLine() domain.CartLine {
	return domain.CartLine{
		ItemID:    gofakeit.UUID(),
		Name:      gofakeit.ProductName(),
		UnitPrice: randomMoney(),
		Quantity:  int64(gofakeit.Number(1, 9)),
		Image:     gofakeit.URL(),
		AddedAt:   time.Now(),
	}
}

func randomMoney() domain.Money {
	return domain.Money{
		Amount:   decimal.NewFromFloat(gofakeit.Price(1, 100)),
		Currency: currency.USD,
	}
}

// failingStorage rejects every write.
type failingStorage struct {
	*storage.MemoryStore
}

func (failingStorage) Set(string, []byte) error {
	return assert.AnError
}
