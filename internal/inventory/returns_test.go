package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSupplierReturnDecreasesStock(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ApplyReturn(context.Background(), testTenant, ReturnDirectionSupplier, "RET-1", []LineItem{
		{Name: "Shirt", Quantity: 4, Price: dec(100)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	require.Equal(t, int64(6), repo.products[product.ID].CurrentQuantity)
	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionDecrease, logs[0].Action)
	require.Equal(t, int64(-4), logs[0].Quantity)
	require.Equal(t, "Return: RET-1", logs[0].Reference)
	// Return logs never reference purchase items, so they survive a later
	// deletion of the originating invoice.
	require.Nil(t, logs[0].PurchaseItemID)
}

func TestCustomerReturnIncreasesStock(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ApplyReturn(context.Background(), testTenant, ReturnDirectionCustomer, "RET-2", []LineItem{
		{Name: "Shirt", Quantity: 3, Price: dec(100)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, int64(13), repo.products[product.ID].CurrentQuantity)
	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionIncrease, logs[0].Action)
}

func TestReturnTargetsVariantWhenReferenced(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	variant := repo.addVariant(product.ID, "red", 5)
	svc := newTestService(t, repo, DefaultServiceConfig())

	_, err := svc.ApplyReturn(context.Background(), testTenant, ReturnDirectionSupplier, "RET-3", []LineItem{
		{VariantID: ptr(variant.ID), Name: "Shirt", Quantity: 2, Price: dec(100)},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), repo.variants[variant.ID].CurrentQuantity)
	require.Equal(t, int64(10), repo.products[product.ID].CurrentQuantity)
}

func TestSupplierReturnClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 2, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ApplyReturn(context.Background(), testTenant, ReturnDirectionSupplier, "RET-4", []LineItem{
		{Name: "Shirt", Quantity: 5, Price: dec(100)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, int64(0), repo.products[product.ID].CurrentQuantity)
	logs := repo.logsFor(product.ID)
	require.Equal(t, int64(-2), logs[0].Quantity)
}

func TestReturnUnresolvedItemIsReportedNotFatal(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ApplyReturn(context.Background(), testTenant, ReturnDirectionSupplier, "RET-5", []LineItem{
		{Name: "Ghost", Quantity: 2, Price: dec(10)},
		{Name: "Shirt", Quantity: 1, Price: dec(100)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "Ghost", result.Errors[0].Name)
	require.Equal(t, int64(9), repo.products[product.ID].CurrentQuantity)
}

func TestReturnEditInvertsDeltaSign(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	// Supplier return grows from 2 to 5: three more units leave stock.
	oldItems := []LineItem{{Name: "Shirt", Quantity: 2, Price: dec(100)}}
	newItems := []LineItem{{Name: "Shirt", Quantity: 5, Price: dec(100)}}
	result, err := svc.ApplyReturnEdit(context.Background(), testTenant, ReturnDirectionSupplier, "RET-6", oldItems, newItems)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, int64(7), repo.products[product.ID].CurrentQuantity)
	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionDecrease, logs[0].Action)
	require.Equal(t, int64(-3), logs[0].Quantity)
}

func TestReturnEditShrinkRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	oldItems := []LineItem{{Name: "Shirt", Quantity: 5, Price: dec(100)}}
	newItems := []LineItem{{Name: "Shirt", Quantity: 2, Price: dec(100)}}
	_, err := svc.ApplyReturnEdit(context.Background(), testTenant, ReturnDirectionSupplier, "RET-7", oldItems, newItems)
	require.NoError(t, err)
	require.Equal(t, int64(13), repo.products[product.ID].CurrentQuantity)
}

func TestReturnEditRemovedItemUndoesEffect(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	// A customer-return line is dropped entirely: its increase is undone.
	oldItems := []LineItem{{Name: "Shirt", Quantity: 4, Price: dec(100)}}
	_, err := svc.ApplyReturnEdit(context.Background(), testTenant, ReturnDirectionCustomer, "RET-8", oldItems, nil)
	require.NoError(t, err)
	require.Equal(t, int64(6), repo.products[product.ID].CurrentQuantity)
}

func TestCustomerReturnPostsAgainstSalesReturns(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("Shirt", 10, 100)
	cfg := DefaultServiceConfig()
	cfg.Accounts = Accounts{Inventory: 1300, Payable: 2100, SalesReturns: 4200}
	svc := newTestService(t, repo, cfg)

	_, err := svc.ApplyReturn(context.Background(), testTenant, ReturnDirectionCustomer, "RET-9", []LineItem{
		{Name: "Shirt", Quantity: 2, Price: dec(100)},
	})
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.NoError(t, entry.Validate())
	require.Equal(t, int64(1300), entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(dec(200)))
	require.Equal(t, int64(4200), entry.Lines[1].AccountID)
	require.True(t, entry.Lines[1].Credit.Equal(dec(200)))
}

func TestSupplierReturnPostsReliefOfPayable(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct("Shirt", 10, 100)
	cfg := DefaultServiceConfig()
	cfg.Accounts = Accounts{Inventory: 1300, Payable: 2100, SalesReturns: 4200}
	svc := newTestService(t, repo, cfg)

	_, err := svc.ApplyReturn(context.Background(), testTenant, ReturnDirectionSupplier, "RET-10", []LineItem{
		{Name: "Shirt", Quantity: 2, Price: dec(100)},
	})
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.NoError(t, entry.Validate())
	require.Equal(t, int64(2100), entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(dec(200)))
	require.Equal(t, int64(1300), entry.Lines[1].AccountID)
	require.True(t, entry.Lines[1].Credit.Equal(dec(200)))
}
