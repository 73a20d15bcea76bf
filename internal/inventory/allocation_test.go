package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateOrderStockAgainstAllocations(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	repo.addOrder(1, OrderStatusConfirmed, OrderLine{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 4})
	svc := newTestService(t, repo, DefaultServiceConfig())

	// 10 on hand, 4 allocated: 7 must fail with available 6, 6 must pass.
	result, err := svc.ValidateOrderStock(context.Background(), testTenant, []OrderLine{
		{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 7},
	}, 0)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	require.Equal(t, int64(6), result.Errors[0].Available)
	require.Equal(t, int64(7), result.Errors[0].Requested)

	result, err = svc.ValidateOrderStock(context.Background(), testTenant, []OrderLine{
		{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 6},
	}, 0)
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestValidateOrderStockSelfExclusionOnEdit(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	repo.addOrder(1, OrderStatusConfirmed, OrderLine{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 4})
	svc := newTestService(t, repo, DefaultServiceConfig())

	// Editing order 1 from 4 to 6 excludes its own allocation: available 10.
	result, err := svc.ValidateOrderStock(context.Background(), testTenant, []OrderLine{
		{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 6},
	}, 1)
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestValidateOrderStockPendingOrdersDoNotAllocate(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	repo.addOrder(1, OrderStatusPending, OrderLine{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 9})
	repo.addOrder(2, OrderStatusCancelled, OrderLine{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 9})
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ValidateOrderStock(context.Background(), testTenant, []OrderLine{
		{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 10},
	}, 0)
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestValidateOrderStockUnresolvedProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ValidateOrderStock(context.Background(), testTenant, []OrderLine{
		{Name: "Ghost", Quantity: 1},
	}, 0)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, "product not found", result.Errors[0].Reason)
}

func TestValidateOrderStockVariantAllocation(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 50, 100)
	variant := repo.addVariant(product.ID, "red", 5)
	repo.addOrder(1, OrderStatusDispatched, OrderLine{VariantID: ptr(variant.ID), Name: "Shirt", Quantity: 3})
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ValidateOrderStock(context.Background(), testTenant, []OrderLine{
		{VariantID: ptr(variant.ID), Name: "Shirt", Quantity: 3},
	}, 0)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, int64(2), result.Errors[0].Available)
}

func TestApplyOrderConfirmDecreasesStock(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	repo.addOrder(5, OrderStatusPending, OrderLine{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 4})
	svc := newTestService(t, repo, DefaultServiceConfig())

	result, err := svc.ApplyOrderConfirm(context.Background(), testTenant, 5, "ORD-5")
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, int64(6), repo.products[product.ID].CurrentQuantity)

	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionDecrease, logs[0].Action)
	require.Equal(t, "Order: ORD-5", logs[0].Reference)
}

func TestApplyOrderEditAppliesNetDelta(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	oldLines := []OrderLine{{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 4}}
	newLines := []OrderLine{{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 6}}
	result, err := svc.ApplyOrderEdit(context.Background(), testTenant, 5, "ORD-5", oldLines, newLines)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	// Two more units ordered: stock drops by exactly the net delta.
	require.Equal(t, int64(8), repo.products[product.ID].CurrentQuantity)
	logs := repo.logsFor(product.ID)
	require.Len(t, logs, 1)
	require.Equal(t, LogActionDecrease, logs[0].Action)
	require.Equal(t, int64(-2), logs[0].Quantity)
}

func TestApplyOrderEditNoOpWritesNothing(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 10, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	lines := []OrderLine{{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 4}}
	result, err := svc.ApplyOrderEdit(context.Background(), testTenant, 5, "ORD-5", lines, lines)
	require.NoError(t, err)
	require.Zero(t, result.Updated)
	require.Empty(t, repo.logsFor(product.ID))
	require.Equal(t, int64(10), repo.products[product.ID].CurrentQuantity)
}

func TestApplyOrderEditDroppedLineRestoresStock(t *testing.T) {
	repo := newMemoryRepo()
	product := repo.addProduct("Shirt", 6, 100)
	svc := newTestService(t, repo, DefaultServiceConfig())

	oldLines := []OrderLine{{ProductID: ptr(product.ID), Name: "Shirt", Quantity: 4}}
	result, err := svc.ApplyOrderEdit(context.Background(), testTenant, 5, "ORD-5", oldLines, nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, int64(10), repo.products[product.ID].CurrentQuantity)
	logs := repo.logsFor(product.ID)
	require.Equal(t, LogActionIncrease, logs[0].Action)
	require.Equal(t, int64(4), logs[0].Quantity)
}

func TestNormalizeLegacySelection(t *testing.T) {
	lines := NormalizeLegacySelection(LegacySelection{
		Products: []LegacySelectedProduct{
			{ProductID: ptr(int64(7)), Name: "Shirt"},
			{Name: "Pants"},
			{ProductID: ptr(int64(9)), Name: "Hat"},
		},
		Quantities: map[string]int64{"7": 3, "Pants": 2},
	})
	require.Len(t, lines, 3)
	require.Equal(t, int64(3), lines[0].Quantity)
	require.Equal(t, int64(2), lines[1].Quantity)
	// Missing quantity defaults to one unit.
	require.Equal(t, int64(1), lines[2].Quantity)
}
