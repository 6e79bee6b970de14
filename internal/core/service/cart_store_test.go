package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/food-flow/internal/core/domain"
)

var (
	salmonRoll = domain.MenuItem{ID: "101", Name: "Salmon Roll", PriceCents: 899}
	ramenBowl  = domain.MenuItem{ID: "201", Name: "Tonkotsu Ramen", PriceCents: 1299}
)

func newTestCart(t *testing.T, storage *memCarts) *CartStore {
	t.Helper()
	return NewCartStore(context.Background(), storage, "ws-1", domain.DefaultPricing)
}

func TestCartStore_AddItemMergesRepeatedItem(t *testing.T) {
	ctx := context.Background()
	cart := newTestCart(t, newMemCarts())

	for i := 0; i < 5; i++ {
		cart.AddItem(ctx, salmonRoll)
	}

	snap := cart.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "101", snap.Lines[0].ItemID)
	assert.Equal(t, 5, snap.Lines[0].Quantity)
	assert.Equal(t, 5, snap.ItemCount)
}

func TestCartStore_ConcurrentAddsAreSerialized(t *testing.T) {
	ctx := context.Background()
	storage := newMemCarts()
	cart := newTestCart(t, storage)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cart.AddItem(ctx, ramenBowl)
		}()
	}
	wg.Wait()

	snap := cart.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 50, snap.Lines[0].Quantity)

	reloaded := newTestCart(t, storage).Snapshot()
	assert.Equal(t, snap.Lines, reloaded.Lines)
}

func TestCartStore_SetQuantityZeroEqualsRemove(t *testing.T) {
	ctx := context.Background()

	a := newTestCart(t, newMemCarts())
	a.AddItem(ctx, salmonRoll)
	a.AddItem(ctx, ramenBowl)
	viaQuantity := a.SetQuantity(ctx, "101", 0)

	b := newTestCart(t, newMemCarts())
	b.AddItem(ctx, salmonRoll)
	b.AddItem(ctx, ramenBowl)
	viaRemove := b.RemoveItem(ctx, "101")

	assert.Equal(t, viaRemove, viaQuantity)
	require.Len(t, viaQuantity.Lines, 1)
	assert.Equal(t, "201", viaQuantity.Lines[0].ItemID)
}

func TestCartStore_NegativeQuantityRemoves(t *testing.T) {
	ctx := context.Background()
	cart := newTestCart(t, newMemCarts())
	cart.AddItem(ctx, salmonRoll)

	snap := cart.SetQuantity(ctx, "101", -3)
	assert.True(t, snap.IsEmpty())
}

func TestCartStore_UnknownItemIsNoop(t *testing.T) {
	ctx := context.Background()
	storage := newMemCarts()
	cart := newTestCart(t, storage)
	cart.AddItem(ctx, salmonRoll)
	saves := storage.saves

	cart.RemoveItem(ctx, "999")
	snap := cart.SetQuantity(ctx, "999", 4)

	require.Len(t, snap.Lines, 1)
	assert.Equal(t, saves, storage.saves)
}

func TestCartStore_Totals(t *testing.T) {
	ctx := context.Background()
	cart := newTestCart(t, newMemCarts())

	cart.AddItem(ctx, salmonRoll)
	cart.AddItem(ctx, ramenBowl)
	snap := cart.SetQuantity(ctx, "201", 2)

	assert.Equal(t, int64(3497), snap.SubtotalCents)
	assert.Equal(t, int64(299), snap.DeliveryFeeCents)
	assert.Equal(t, int64(3796), snap.TotalCents)
	assert.Equal(t, "$34.97", domain.FormatCents(snap.SubtotalCents))
	assert.Equal(t, "$37.96", domain.FormatCents(snap.TotalCents))
	assert.Equal(t, 3, snap.ItemCount)
}

func TestCartStore_TaxIsAddedWhenConfigured(t *testing.T) {
	ctx := context.Background()
	cart := NewCartStore(ctx, newMemCarts(), "ws-tax", domain.Pricing{DeliveryFeeCents: 299, TaxBasisPoints: 800})

	cart.AddItem(ctx, salmonRoll)
	snap := cart.SetQuantity(ctx, "101", 1)

	// 8% of 8.99 is 0.7192, rounded to 0.72.
	assert.Equal(t, int64(72), snap.TaxCents)
	assert.Equal(t, int64(899+299+72), snap.TotalCents)
}

func TestCartStore_Clear(t *testing.T) {
	ctx := context.Background()
	cart := newTestCart(t, newMemCarts())
	cart.AddItem(ctx, salmonRoll)
	cart.AddItem(ctx, ramenBowl)

	snap := cart.Clear(ctx)

	assert.Empty(t, snap.Lines)
	assert.Zero(t, snap.SubtotalCents)
	assert.Zero(t, snap.ItemCount)
	assert.Equal(t, int64(299), snap.TotalCents)
}

func TestCartStore_TakeEmptiesCartAtomically(t *testing.T) {
	ctx := context.Background()
	storage := newMemCarts()
	cart := newTestCart(t, storage)
	cart.AddItem(ctx, salmonRoll)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cart.AddItem(ctx, ramenBowl)
	}()
	taken := cart.Take(ctx)
	wg.Wait()

	// The concurrent add is either in the taken snapshot or still in the cart.
	total := taken.ItemCount + cart.Snapshot().ItemCount
	assert.Equal(t, 2, total)
	assert.Equal(t, cart.Snapshot().Lines, newTestCart(t, storage).Snapshot().Lines)
}

func TestCartStore_TakeOnEmptyCartDoesNotWrite(t *testing.T) {
	storage := newMemCarts()
	cart := newTestCart(t, storage)

	assert.True(t, cart.Take(context.Background()).IsEmpty())
	assert.Zero(t, storage.saves)
}

func TestCartStore_RestoreMergesItemsAddedMeanwhile(t *testing.T) {
	ctx := context.Background()
	cart := newTestCart(t, newMemCarts())
	cart.AddItem(ctx, salmonRoll)
	cart.AddItem(ctx, ramenBowl)

	taken := cart.Take(ctx)
	cart.AddItem(ctx, ramenBowl)
	snap := cart.Restore(ctx, taken.Lines)

	require.Len(t, snap.Lines, 2)
	assert.Equal(t, "101", snap.Lines[0].ItemID)
	assert.Equal(t, "201", snap.Lines[1].ItemID)
	assert.Equal(t, 2, snap.Lines[1].Quantity)
	assert.Equal(t, 3, snap.ItemCount)
}

func TestCartStore_RoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	storage := newMemCarts()

	cart := newTestCart(t, storage)
	cart.AddItem(ctx, ramenBowl)
	cart.AddItem(ctx, salmonRoll)
	cart.AddItem(ctx, ramenBowl)

	reloaded := newTestCart(t, storage)
	assert.Equal(t, cart.Snapshot().Lines, reloaded.Snapshot().Lines)
	assert.Equal(t, "201", reloaded.Snapshot().Lines[0].ItemID)
}

func TestCartStore_CorruptedStorageYieldsEmptyCart(t *testing.T) {
	storage := newMemCarts()
	storage.data["ws-1"] = []byte("{not json")

	cart := newTestCart(t, storage)
	assert.True(t, cart.Snapshot().IsEmpty())
}

func TestCartStore_InvalidStoredLinesAreDropped(t *testing.T) {
	storage := newMemCarts()
	data, err := json.Marshal([]domain.CartLine{
		{ItemID: "101", UnitPriceCents: 899, Quantity: 2},
		{ItemID: "101", UnitPriceCents: 899, Quantity: 1},
		{ItemID: "", UnitPriceCents: 100, Quantity: 1},
		{ItemID: "201", UnitPriceCents: 1299, Quantity: 0},
	})
	require.NoError(t, err)
	storage.data["ws-1"] = data

	snap := newTestCart(t, storage).Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)
}

func TestCartStore_StorageFailuresDoNotBreakCart(t *testing.T) {
	ctx := context.Background()
	storage := newMemCarts()
	storage.loadErr = errBackend
	storage.saveErr = errBackend

	cart := newTestCart(t, storage)
	snap := cart.AddItem(ctx, salmonRoll)

	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 1, storage.saves)
}
