package repository_test

import (
	"sort"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/cartsync/internal/domain"
	"github.com/nikolayk812/cartsync/internal/port"
	"github.com/nikolayk812/cartsync/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/text/currency"
)

type cartRepositorySuite struct {
	suite.Suite

	repo port.CartRepository
	pool *pgxpool.Pool
}

// entry point to run the tests in the suite
func TestCartRepositorySuite(t *testing.T) {
	suite.Run(t, new(cartRepositorySuite))
}

// before all tests in the suite
func (suite *cartRepositorySuite) SetupSuite() {
	ctx := suite.T().Context()

	_, connStr, err := startPostgres(ctx)
	suite.NoError(err)

	suite.pool, err = pgxpool.New(ctx, connStr)
	suite.NoError(err)

	suite.repo, err = repository.NewCart(suite.pool)
	suite.NoError(err)
}

// after all tests in the suite
func (suite *cartRepositorySuite) TearDownSuite() {
	if suite.pool != nil {
		suite.pool.Close()
	}
}

func (suite *cartRepositorySuite) TestAddItem() {
	defer suite.deleteAll()

	tests := []struct {
		name      string
		ownerID   string
		line      domain.CartLine
		wantError string
	}{
		{
			name:    "add line to cart: ok",
			ownerID: gofakeit.UUID(),
			line:    randomCartLine(),
		},
		{
			name:      "add line with empty owner ID: error",
			ownerID:   "",
			line:      randomCartLine(),
			wantError: "ownerID is empty",
		},
		{
			name:    "add line with empty item ID: error",
			ownerID: gofakeit.UUID(),
			line: domain.CartLine{
				ItemID:    "",
				UnitPrice: randomMoney(),
				Quantity:  1,
			},
			wantError: "itemID is empty",
		},
		{
			name:    "add line with zero quantity: error",
			ownerID: gofakeit.UUID(),
			line: domain.CartLine{
				ItemID:    gofakeit.UUID(),
				UnitPrice: randomMoney(),
				Quantity:  0,
			},
			wantError: "quantity[0] is not positive",
		},
		{
			name:    "add line with zero price amount: ok",
			ownerID: gofakeit.UUID(),
			line: domain.CartLine{
				ItemID: gofakeit.UUID(),
				UnitPrice: domain.Money{
					Amount:   decimal.Zero,
					Currency: randomCurrency(),
				},
				Quantity: 1,
			},
		},
		{
			name:    "add custom build line with components: ok",
			ownerID: gofakeit.UUID(),
			line: domain.CartLine{
				ItemID:        "custom-" + gofakeit.UUID(),
				Name:          "Custom PC",
				UnitPrice:     randomMoney(),
				Quantity:      1,
				IsCustomBuild: true,
				Components: []domain.BuildComponent{
					{
						Category:     "CPU",
						SourceItemID: gofakeit.UUID(),
						Name:         gofakeit.ProductName(),
						Price:        randomMoney(),
					},
					{
						Category:     "GPU",
						SourceItemID: gofakeit.UUID(),
						Name:         gofakeit.ProductName(),
						Price:        randomMoney(),
					},
				},
			},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			err := suite.repo.AddItem(ctx, tt.ownerID, tt.line)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			// Verify the line was added
			cart, err := suite.repo.GetCart(ctx, tt.ownerID)
			require.NoError(t, err)

			require.Len(t, cart.Lines, 1)
			assertCartLine(t, tt.line, cart.Lines[0])
		})
	}
}

func (suite *cartRepositorySuite) TestAddItemIncrementsOnConflict() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	ownerID := gofakeit.UUID()
	line := randomCartLine()
	line.Quantity = 2

	require.NoError(t, suite.repo.AddItem(ctx, ownerID, line))

	again := line
	again.Quantity = 3
	require.NoError(t, suite.repo.AddItem(ctx, ownerID, again))

	cart, err := suite.repo.GetCart(ctx, ownerID)
	require.NoError(t, err)

	require.Len(t, cart.Lines, 1)
	assert.EqualValues(t, 5, cart.Lines[0].Quantity)
}

func (suite *cartRepositorySuite) TestDeleteItem() {
	defer suite.deleteAll()

	tests := []struct {
		name        string
		ownerID     string
		itemID      string
		setupLines  []domain.CartLine
		wantDeleted bool
		wantError   string
	}{
		{
			name:    "delete existing line: ok",
			ownerID: gofakeit.UUID(),
			itemID:  gofakeit.UUID(),
			setupLines: []domain.CartLine{
				randomCartLine(),
			},
			wantDeleted: true,
		},
		{
			name:    "delete non-existing line: not found",
			ownerID: gofakeit.UUID(),
			itemID:  gofakeit.UUID(),
			setupLines: []domain.CartLine{
				randomCartLine(),
			},
			wantDeleted: false,
		},
		{
			name:        "delete from empty cart: not found",
			ownerID:     gofakeit.UUID(),
			itemID:      gofakeit.UUID(),
			setupLines:  []domain.CartLine{},
			wantDeleted: false,
		},
		{
			name:      "delete with empty owner ID: error",
			ownerID:   "",
			itemID:    gofakeit.UUID(),
			wantError: "ownerID is empty",
		},
		{
			name:      "delete with empty item ID: error",
			ownerID:   gofakeit.UUID(),
			itemID:    "",
			wantError: "itemID is empty",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			// Setup: add lines to cart
			for i, line := range tt.setupLines {
				// Use the itemID from test case for the first line in "delete existing" test
				if tt.name == "delete existing line: ok" && i == 0 {
					line.ItemID = tt.itemID
				}
				err := suite.repo.AddItem(ctx, tt.ownerID, line)
				require.NoError(t, err)
			}

			// Test the deletion
			deleted, err := suite.repo.DeleteItem(ctx, tt.ownerID, tt.itemID)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDeleted, deleted)
		})
	}
}

func (suite *cartRepositorySuite) TestGetCart() {
	defer suite.deleteAll()

	tests := []struct {
		name       string
		ownerID    string
		setupLines []domain.CartLine
		wantError  string
	}{
		{
			name:    "get cart with lines: ok",
			ownerID: gofakeit.UUID(),
			setupLines: []domain.CartLine{
				randomCartLine(),
				randomCartLine(),
			},
		},
		{
			name:       "get empty cart: ok",
			ownerID:    gofakeit.UUID(),
			setupLines: []domain.CartLine{},
		},
		{
			name:      "get cart with empty owner ID: error",
			ownerID:   "",
			wantError: "ownerID is empty",
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()
			ctx := t.Context()

			// Setup: add lines to cart
			for _, line := range tt.setupLines {
				err := suite.repo.AddItem(ctx, tt.ownerID, line)
				require.NoError(t, err)
			}

			// Test getting the cart
			cart, err := suite.repo.GetCart(ctx, tt.ownerID)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)

			require.Len(t, cart.Lines, len(tt.setupLines))

			// Rows with equal added_at sort by item_id, so compare as sets
			expected := append([]domain.CartLine(nil), tt.setupLines...)
			actual := append([]domain.CartLine(nil), cart.Lines...)
			sort.Slice(expected, func(i, j int) bool { return expected[i].ItemID < expected[j].ItemID })
			sort.Slice(actual, func(i, j int) bool { return actual[i].ItemID < actual[j].ItemID })

			for i, expectedLine := range expected {
				assertCartLine(t, expectedLine, actual[i])
			}
		})
	}
}

func (suite *cartRepositorySuite) TestReplaceCart() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	ownerID := gofakeit.UUID()
	require.NoError(t, suite.repo.AddItem(ctx, ownerID, randomCartLine()))
	require.NoError(t, suite.repo.AddItem(ctx, ownerID, randomCartLine()))

	// lines without an item ID or a positive quantity are skipped
	replacement := []domain.CartLine{
		randomCartLine(),
		{ItemID: "", UnitPrice: randomMoney(), Quantity: 1},
		{ItemID: gofakeit.UUID(), UnitPrice: randomMoney(), Quantity: 0},
	}
	require.NoError(t, suite.repo.ReplaceCart(ctx, ownerID, replacement))

	cart, err := suite.repo.GetCart(ctx, ownerID)
	require.NoError(t, err)

	require.Len(t, cart.Lines, 1)
	assertCartLine(t, replacement[0], cart.Lines[0])
}

func (suite *cartRepositorySuite) TestReplaceCartWithEmptyClears() {
	defer suite.deleteAll()

	t := suite.T()
	ctx := t.Context()

	ownerID := gofakeit.UUID()
	require.NoError(t, suite.repo.AddItem(ctx, ownerID, randomCartLine()))

	require.NoError(t, suite.repo.ReplaceCart(ctx, ownerID, nil))

	cart, err := suite.repo.GetCart(ctx, ownerID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func (suite *cartRepositorySuite) deleteAll() {
	_, err := suite.pool.Exec(suite.T().Context(), "TRUNCATE TABLE cart_lines CASCADE")
	suite.NoError(err)
}

func randomCartLine() domain.CartLine {
	return domain.CartLine{
		ItemID:    gofakeit.UUID(),
		Name:      gofakeit.ProductName(),
		UnitPrice: randomMoney(),
		Quantity:  int64(gofakeit.Number(1, 5)),
		Image:     gofakeit.URL(),
	}
}

func randomMoney() domain.Money {
	return domain.Money{
		Amount:   decimal.NewFromFloat(gofakeit.Price(1, 100)),
		Currency: randomCurrency(),
	}
}

func randomCurrency() currency.Unit {
	var (
		result currency.Unit
		err    error
	)

	for {
		// tag is not a recognized currency
		result, err = currency.ParseISO(gofakeit.CurrencyShort())
		if err == nil {
			break
		}
	}

	return result
}

func assertCartLine(t *testing.T, expected, actual domain.CartLine) {
	t.Helper()

	currencyComparer := cmp.Comparer(func(x, y currency.Unit) bool {
		return x.String() == y.String()
	})

	// Ignore the AddedAt field in CartLine
	opts := cmp.Options{
		cmpopts.IgnoreFields(domain.CartLine{}, "AddedAt"),
		currencyComparer,
	}

	diff := cmp.Diff(expected, actual, opts)
	assert.Empty(t, diff)

	assert.False(t, actual.AddedAt.IsZero())
}
