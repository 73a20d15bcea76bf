package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestPurchaseCreateIncreasesExistingProduct(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 2, 80)
	item := repo.addPurchaseItem(1, "Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ApplyPurchaseCreate(context.Background(), testTenant, 1, "INV-1", []LineItem{
		{PurchaseItemID: item.ID, Name: "Shirt", Quantity: 5, Price: dec(100)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Zero(t, result.Created)
	require.Empty(t, result.Errors)

	require.Equal(t, int64(7), repo.products[product.ID].CurrentQuantity)
	require.True(t, repo.products[product.ID].LastPurchasePrice.Equal(dec(100)))

	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionIncrease, logs[0].Action)
	require.Equal(t, int64(5), logs[0].Quantity)
	require.Equal(t, int64(2), logs[0].OldQuantity)
	require.Equal(t, int64(7), logs[0].NewQuantity)
	require.Equal(t, "Invoice: INV-1", logs[0].Reference)
	require.NotNil(t, logs[0].PurchaseItemID)

	require.NotNil(t, repo.items[item.ID].ProductID)
	require.Equal(t, product.ID, *repo.items[item.ID].ProductID)
}

func TestPurchaseCreateAutoCreatesUnknownProduct(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addPurchaseItem(1, "Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ApplyPurchaseCreate(context.Background(), testTenant, 1, "INV-1", []LineItem{
		{PurchaseItemID: item.ID, Name: "Shirt", Quantity: 5, Price: dec(100)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)

	created, err := repo.GetProductByName(context.Background(), testTenant, "shirt")
	require.NoError(t, err)
	require.Equal(t, int64(5), created.CurrentQuantity)
	require.True(t, created.LastPurchasePrice.Equal(dec(100)))
	require.True(t, created.CurrentRetailPrice.Equal(dec(150)))

	logs := repo.logsFor(created.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionCreate, logs[0].Action)
	require.Equal(t, int64(5), logs[0].Quantity)
	require.NotNil(t, logs[0].NewPrice)
}

func TestPurchaseCreateCollectsMalformedItems(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("Shirt", 0, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ApplyPurchaseCreate(context.Background(), testTenant, 1, "INV-1", []LineItem{
		{Name: "", Quantity: 3, Price: dec(10)},
		{Name: "Shirt", Quantity: -1, Price: dec(10)},
		{Name: "Shirt", Quantity: 2, Price: dec(10)},
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	require.Equal(t, 1, result.Updated)
}

func TestPurchaseEditQuantityOnlyWritesSingleDelta(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	oldItems := []LineItem{{Name: "Shirt", Quantity: 5, Price: dec(100)}}
	newItems := []LineItem{{Name: "Shirt", Quantity: 8, Price: dec(100)}}
	result, err := svc.ApplyPurchaseEdit(context.Background(), testTenant, 1, "INV-1", oldItems, newItems)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	require.Equal(t, int64(8), repo.products[product.ID].CurrentQuantity)
	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionIncrease, logs[0].Action)
	require.Equal(t, int64(3), logs[0].Quantity)
	require.Equal(t, logs[0].OldQuantity+logs[0].Quantity, logs[0].NewQuantity)
}

func TestPurchaseEditPriceOnlyWritesPriceUpdateLog(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	oldItems := []LineItem{{Name: "Shirt", Quantity: 5, Price: dec(100)}}
	newItems := []LineItem{{Name: "Shirt", Quantity: 5, Price: dec(120)}}
	_, err := svc.ApplyPurchaseEdit(context.Background(), testTenant, 1, "INV-1", oldItems, newItems)
	require.NoError(t, err)

	require.Equal(t, int64(5), repo.products[product.ID].CurrentQuantity)
	require.True(t, repo.products[product.ID].LastPurchasePrice.Equal(dec(120)))
	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionPriceUpdate, logs[0].Action)
	require.Zero(t, logs[0].Quantity)
	require.NotNil(t, logs[0].OldPrice)
	require.True(t, logs[0].OldPrice.Equal(dec(100)))
	require.NotNil(t, logs[0].NewPrice)
	require.True(t, logs[0].NewPrice.Equal(dec(120)))
}

func TestPurchaseEditRePairsReorderedItemsByNameAndPrice(t *testing.T) {
	repo := newMemoryRepo()
	shirt := repo.addProduct("Shirt", 5, 100)
	pants := repo.addProduct("Pants", 3, 50)
	svc := newTestService(t, repo, DefaultServiceConfig())

	oldItems := []LineItem{
		{Name: "Shirt", Quantity: 5, Price: dec(100)},
		{Name: "Pants", Quantity: 3, Price: dec(50)},
	}
	// Same content, reordered, one price off by less than the tolerance.
	newItems := []LineItem{
		{Name: "Pants", Quantity: 3, Price: dec(50.005)},
		{Name: "Shirt", Quantity: 5, Price: dec(100)},
	}
	result, err := svc.ApplyPurchaseEdit(context.Background(), testTenant, 1, "INV-1", oldItems, newItems)
	require.NoError(t, err)
	require.Zero(t, result.Updated)
	require.Empty(t, repo.logsFor(shirt.ID))
	require.Empty(t, repo.logsFor(pants.ID))
	require.Equal(t, int64(5), repo.products[shirt.ID].CurrentQuantity)
	require.Equal(t, int64(3), repo.products[pants.ID].CurrentQuantity)
}

func TestPurchaseEditIdentityTransferWritesTwoLogs(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	v1 := repo.addVariant(product.ID, "red", 6)
	v2 := repo.addVariant(product.ID, "blue", 1)
	item := repo.addPurchaseItem(1, "Shirt", 6, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	oldItems := []LineItem{{PurchaseItemID: item.ID, VariantID: ptr(v1.ID), Name: "Shirt", Quantity: 6, Price: dec(100)}}
	newItems := []LineItem{{PurchaseItemID: item.ID, VariantID: ptr(v2.ID), Name: "Shirt", Quantity: 4, Price: dec(100)}}
	result, err := svc.ApplyPurchaseEdit(context.Background(), testTenant, 1, "INV-1", oldItems, newItems)
	require.NoError(t, err)
	require.Equal(t, 2, result.Updated)

	require.Equal(t, int64(0), repo.variants[v1.ID].CurrentQuantity)
	require.Equal(t, int64(5), repo.variants[v2.ID].CurrentQuantity)

	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 2)
	require.Equal(t, LogActionDecrease, logs[0].Action)
	require.Equal(t, int64(-6), logs[0].Quantity)
	require.Equal(t, v1.ID, *logs[0].ProductVariantID)
	require.Equal(t, LogActionIncrease, logs[1].Action)
	require.Equal(t, int64(4), logs[1].Quantity)
	require.Equal(t, v2.ID, *logs[1].ProductVariantID)
}

func TestPurchaseEditRemovedAndAddedItems(t *testing.T) {
	repo := newMemoryRepo()
	shirt := repo.addProduct("Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	oldItems := []LineItem{{Name: "Shirt", Quantity: 5, Price: dec(100)}}
	newItems := []LineItem{{Name: "Pants", Quantity: 3, Price: dec(50)}}
	result, err := svc.ApplyPurchaseEdit(context.Background(), testTenant, 1, "INV-1", oldItems, newItems)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, 1, result.Created)

	require.Equal(t, int64(0), repo.products[shirt.ID].CurrentQuantity)
	pants, err := repo.GetProductByName(context.Background(), testTenant, "pants")
	require.NoError(t, err)
	require.Equal(t, int64(3), pants.CurrentQuantity)
}

func TestPurchaseDeleteConservation(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addPurchaseItem(1, "Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	_, err := svc.ApplyPurchaseCreate(context.Background(), testTenant, 1, "INV-1", []LineItem{
		{PurchaseItemID: item.ID, Name: "Shirt", Quantity: 5, Price: dec(100)},
	})
	require.NoError(t, err)

	result, err := svc.ReversePurchase(context.Background(), testTenant, 1, "INV-1", "supplier dispute")
	require.NoError(t, err)
	require.Equal(t, 1, result.Reversed)

	product, err := repo.GetProductByName(context.Background(), testTenant, "shirt")
	require.NoError(t, err)
	require.Equal(t, int64(0), product.CurrentQuantity)

	// History for the invoice is purged; only the reversal log, which does
	// not reference the purchase item, survives.
	for _, log := range repo.logs {
		require.Nil(t, log.PurchaseItemID)
	}
	require.True(t, repo.items[item.ID].IsDeleted)
	require.True(t, repo.invoiceDeleted[1])
}

func TestPurchaseRestoreSymmetry(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addPurchaseItem(1, "Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	_, err := svc.ApplyPurchaseCreate(context.Background(), testTenant, 1, "INV-1", []LineItem{
		{PurchaseItemID: item.ID, Name: "Shirt", Quantity: 5, Price: dec(100)},
	})
	require.NoError(t, err)
	_, err = svc.ReversePurchase(context.Background(), testTenant, 1, "INV-1", "")
	require.NoError(t, err)

	result, err := svc.ReapplyPurchase(context.Background(), testTenant, 1, "INV-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Restored)

	product, err := repo.GetProductByName(context.Background(), testTenant, "shirt")
	require.NoError(t, err)
	require.Equal(t, int64(5), product.CurrentQuantity)
	require.False(t, repo.items[item.ID].IsDeleted)

	restorationLogs, err := repo.LogsByReference(context.Background(), testTenant, "Invoice Restoration: INV-1")
	require.NoError(t, err)
	require.Len(t, restorationLogs, 1)
	require.Equal(t, LogActionIncrease, restorationLogs[0].Action)
}

func TestPurchaseDeleteResolvesByNameOnly(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	variant := repo.addVariant(product.ID, "red", 10)
	item := repo.addPurchaseItem(1, "Shirt", 4, 100)
	item.ProductID = ptr(product.ID)
	item.ProductVariantID = ptr(variant.ID)
	svc := newTestService(t, repo, DefaultServiceConfig())

	_, err := svc.ReversePurchase(context.Background(), testTenant, 1, "INV-1", "")
	require.NoError(t, err)

	// Name-only resolution lands on the product, not the linked variant.
	require.Equal(t, int64(6), repo.products[product.ID].CurrentQuantity)
	require.Equal(t, int64(10), repo.variants[variant.ID].CurrentQuantity)
}

func TestPurchaseDeleteFollowsLinksWhenFlagOff(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	variant := repo.addVariant(product.ID, "red", 10)
	item := repo.addPurchaseItem(1, "Shirt", 4, 100)
	item.ProductID = ptr(product.ID)
	item.ProductVariantID = ptr(variant.ID)
	cfg := DefaultServiceConfig()
	cfg.ReversalResolvesByName = false
	svc := newTestService(t, repo, cfg)

	_, err := svc.ReversePurchase(context.Background(), testTenant, 1, "INV-1", "")
	require.NoError(t, err)

	require.Equal(t, int64(6), repo.variants[variant.ID].CurrentQuantity)
	require.Equal(t, int64(10), repo.products[product.ID].CurrentQuantity)
}

func TestClampAtZeroRecordsAppliedDelta(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 3, 100)
	item := repo.addPurchaseItem(1, "Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	_, err := svc.ReversePurchase(context.Background(), testTenant, 1, "INV-1", "")
	require.NoError(t, err)

	require.Equal(t, int64(0), repo.products[product.ID].CurrentQuantity)
	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, int64(-3), logs[0].Quantity)
	require.Equal(t, logs[0].OldQuantity+logs[0].Quantity, logs[0].NewQuantity)
	_ = item
}

func TestNegativeStockAllowedWhenConfigured(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 3, 100)
	repo.addPurchaseItem(1, "Shirt", 5, 100)
	cfg := DefaultServiceConfig()
	cfg.AllowNegativeStock = true
	svc := newTestService(t, repo, cfg)

	_, err := svc.ReversePurchase(context.Background(), testTenant, 1, "INV-1", "")
	require.NoError(t, err)
	require.Equal(t, int64(-2), repo.products[product.ID].CurrentQuantity)
}

func TestPurchaseCreatePostsBalancedEntry(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("Shirt", 0, 100)
	cfg := DefaultServiceConfig()
	cfg.Accounts = Accounts{Inventory: 1300, Payable: 2100, SalesReturns: 4200}
	svc := newTestService(t, repo, cfg)

	_, err := svc.ApplyPurchaseCreate(context.Background(), testTenant, 1, "INV-1", []LineItem{
		{Name: "Shirt", Quantity: 5, Price: dec(100)},
	})
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.NoError(t, entry.Validate())
	require.Len(t, entry.Lines, 2)
	require.True(t, entry.Lines[0].Debit.Equal(dec(500)))
	require.Equal(t, int64(1300), entry.Lines[0].AccountID)
	require.True(t, entry.Lines[1].Credit.Equal(dec(500)))
	require.Equal(t, int64(2100), entry.Lines[1].AccountID)
}

func TestJournalFailureRollsBackStock(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 2, 100)
	repo.failJournal = true
	cfg := DefaultServiceConfig()
	cfg.Accounts = Accounts{Inventory: 1300, Payable: 2100}
	svc := newTestService(t, repo, cfg)

	_, err := svc.ApplyPurchaseCreate(context.Background(), testTenant, 1, "INV-1", []LineItem{
		{Name: "Shirt", Quantity: 5, Price: dec(100)},
	})
	require.Error(t, err)

	require.Equal(t, int64(2), repo.products[product.ID].CurrentQuantity)
	require.Empty(t, repo.logsFor(product.ID))
	require.Empty(t, repo.entries)
}

func TestShirtLifecycleScenario(t *testing.T) {
	repo := newMemoryRepo()
	item := repo.addPurchaseItem(1, "Shirt", 5, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())
	ctx := context.Background()

	_, err := svc.ApplyPurchaseCreate(ctx, testTenant, 1, "INV-7", []LineItem{
		{PurchaseItemID: item.ID, Name: "Shirt", Quantity: 5, Price: dec(100)},
	})
	require.NoError(t, err)

	product, err := repo.GetProductByName(ctx, testTenant, "shirt")
	require.NoError(t, err)
	require.Equal(t, int64(5), product.CurrentQuantity)
	require.True(t, product.LastPurchasePrice.Equal(dec(100)))
	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionCreate, logs[0].Action)

	_, err = svc.ApplyPurchaseEdit(ctx, testTenant, 1, "INV-7",
		[]LineItem{{PurchaseItemID: item.ID, Name: "Shirt", Quantity: 5, Price: dec(100)}},
		[]LineItem{{PurchaseItemID: item.ID, Name: "Shirt", Quantity: 8, Price: dec(100)}},
	)
	require.NoError(t, err)
	product, err = repo.GetProductByName(ctx, testTenant, "shirt")
	require.NoError(t, err)
	require.Equal(t, int64(8), product.CurrentQuantity)
	logs = repo.logsFor(product.ID)
	require.Len(t, logs, 2)
	require.Equal(t, LogActionIncrease, logs[1].Action)
	require.Equal(t, int64(3), logs[1].Quantity)

	repo.items[item.ID].Quantity = 8
	_, err = svc.ReversePurchase(ctx, testTenant, 1, "INV-7", "")
	require.NoError(t, err)
	product, err = repo.GetProductByName(ctx, testTenant, "shirt")
	require.NoError(t, err)
	require.Equal(t, int64(0), product.CurrentQuantity)
	for _, log := range repo.logs {
		require.Nil(t, log.PurchaseItemID)
	}
}
