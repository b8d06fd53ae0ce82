package cart_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrv/cafeorder/internal/domain/cart"
	"github.com/mkrv/cafeorder/internal/domain/menu"
	"github.com/mkrv/cafeorder/internal/domain/money"
	"github.com/mkrv/cafeorder/internal/storage/memory"
)

const telegramID = int64(100500)

func newFixture(t *testing.T) (*cart.Service, *memory.MenuRepository) {
	t.Helper()
	catalog := memory.NewMenuRepository()
	ctx := context.Background()
	for _, it := range []menu.Item{
		{ID: "cappuccino", CategoryID: "coffee", Name: "Cappuccino", Price: money.FromKopecks(35000), Available: true},
		{ID: "croissant", CategoryID: "bakery", Name: "Croissant", Price: money.FromKopecks(16000), Available: true},
		{ID: "tiramisu", CategoryID: "desserts", Name: "Tiramisu", Price: money.FromKopecks(42000), Available: false},
	} {
		it := it
		require.NoError(t, catalog.UpsertItem(ctx, &it))
	}
	svc := cart.NewService(memory.NewCartRepository(), catalog, memory.NewUserRepository())
	return svc, catalog
}

func TestService_GetOrCreateCart(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateCart(ctx, telegramID)
	require.NoError(t, err)
	assert.True(t, first.IsEmpty())

	second, err := svc.GetOrCreateCart(ctx, telegramID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same user gets the same cart")
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshots name and price", func(t *testing.T) {
		svc, _ := newFixture(t)

		c, err := svc.AddItem(ctx, telegramID, "cappuccino", 2, "")
		require.NoError(t, err)

		line := c.Items["cappuccino"]
		assert.Equal(t, "Cappuccino", line.Name)
		assert.Equal(t, money.FromKopecks(35000), line.UnitPrice)
		assert.Equal(t, 2, line.Quantity)
	})

	t.Run("price change after add does not reprice the cart", func(t *testing.T) {
		svc, catalog := newFixture(t)

		_, err := svc.AddItem(ctx, telegramID, "cappuccino", 1, "")
		require.NoError(t, err)

		repriced := menu.Item{ID: "cappuccino", CategoryID: "coffee", Name: "Cappuccino", Price: money.FromKopecks(99000), Available: true}
		require.NoError(t, catalog.UpsertItem(ctx, &repriced))

		total, err := svc.Total(ctx, telegramID)
		require.NoError(t, err)
		assert.Equal(t, money.FromKopecks(35000), total)
	})

	t.Run("merges repeat adds", func(t *testing.T) {
		svc, _ := newFixture(t)

		_, err := svc.AddItem(ctx, telegramID, "croissant", 1, "")
		require.NoError(t, err)
		c, err := svc.AddItem(ctx, telegramID, "croissant", 2, "")
		require.NoError(t, err)

		assert.Len(t, c.Items, 1)
		assert.Equal(t, 3, c.Items["croissant"].Quantity)
	})

	t.Run("unknown item", func(t *testing.T) {
		svc, _ := newFixture(t)

		_, err := svc.AddItem(ctx, telegramID, "borscht", 1, "")
		assert.ErrorIs(t, err, menu.ErrItemNotFound)
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		svc, _ := newFixture(t)

		_, err := svc.AddItem(ctx, telegramID, "cappuccino", 0, "")
		assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
		_, err = svc.AddItem(ctx, telegramID, "cappuccino", -1, "")
		assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
	})
}

func TestService_UpdateQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	_, err := svc.AddItem(ctx, telegramID, "cappuccino", 2, "")
	require.NoError(t, err)

	c, err := svc.UpdateQuantity(ctx, telegramID, "cappuccino", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Items["cappuccino"].Quantity)

	c, err = svc.UpdateQuantity(ctx, telegramID, "cappuccino", 0)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty(), "zero quantity removes the line")

	_, err = svc.UpdateQuantity(ctx, telegramID, "cappuccino", -1)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
}

func TestService_Clear(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	cleared, err := svc.Clear(ctx, telegramID)
	require.NoError(t, err)
	assert.False(t, cleared, "no cart yet")

	_, err = svc.AddItem(ctx, telegramID, "cappuccino", 1, "")
	require.NoError(t, err)

	cleared, err = svc.Clear(ctx, telegramID)
	require.NoError(t, err)
	assert.True(t, cleared)

	c, err := svc.GetOrCreateCart(ctx, telegramID)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty or missing cart", func(t *testing.T) {
		svc, _ := newFixture(t)

		ok, err := svc.Validate(ctx, telegramID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = svc.GetOrCreateCart(ctx, telegramID)
		require.NoError(t, err)
		ok, err = svc.Validate(ctx, telegramID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("valid cart", func(t *testing.T) {
		svc, _ := newFixture(t)

		_, err := svc.AddItem(ctx, telegramID, "cappuccino", 1, "")
		require.NoError(t, err)

		ok, err := svc.Validate(ctx, telegramID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("item made unavailable after add", func(t *testing.T) {
		svc, catalog := newFixture(t)

		_, err := svc.AddItem(ctx, telegramID, "cappuccino", 1, "")
		require.NoError(t, err)
		require.NoError(t, catalog.SetAvailability(ctx, "cappuccino", false))

		ok, err := svc.Validate(ctx, telegramID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
