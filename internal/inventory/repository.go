package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/ledger"
)

// Lookup is the read surface the entity resolver needs. It is implemented
// twice: with row locks inside a transaction (TxRepository) and without
// locks for the pure availability check (RepositoryPort).
type Lookup interface {
	GetProduct(ctx context.Context, tenantID uuid.UUID, productID int64) (Product, error)
	GetProductByName(ctx context.Context, tenantID uuid.UUID, foldedName string) (Product, error)
	// GetVariant returns the variant together with its parent product,
	// scoped to the tenant through the parent.
	GetVariant(ctx context.Context, tenantID uuid.UUID, variantID int64) (ProductVariant, Product, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Lookup
	// WithTx runs fn inside one RepeatableRead transaction holding the
	// tenant's posting lock, so two documents of the same tenant never
	// reconcile concurrently.
	WithTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context, TxRepository) error) error
	// AllocatedQuantity sums the quantity committed to allocation-relevant
	// orders for one product/variant, optionally excluding a single order.
	AllocatedQuantity(ctx context.Context, tenantID uuid.UUID, productID int64, variantID *int64, excludeOrderID int64) (int64, error)
	OrderLines(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]OrderLine, error)
	LogsByReference(ctx context.Context, tenantID uuid.UUID, reference string) ([]ProductLog, error)
}

// TxRepository exposes the transactional operations used by reconcilers.
// All lookups here take FOR UPDATE row locks.
type TxRepository interface {
	Lookup

	CreateProduct(ctx context.Context, p Product) (int64, error)
	UpdateProductQuantity(ctx context.Context, productID int64, qty int64) error
	UpdateVariantQuantity(ctx context.Context, variantID int64, qty int64) error
	// UpdateProductPrices refreshes last purchase price and, when non-nil,
	// the retail price. Also bumps updated_at for reporting continuity.
	UpdateProductPrices(ctx context.Context, productID int64, purchase decimal.Decimal, retail *decimal.Decimal) error
	// TouchProduct bumps the parent product's purchase price and timestamp
	// when a variant-targeted mutation happens.
	TouchProduct(ctx context.Context, productID int64, purchase decimal.Decimal) error

	InsertProductLog(ctx context.Context, log ProductLog) (int64, error)
	// DeleteLogsByPurchaseItems purges audit rows referencing the given
	// purchase items. Return-caused logs carry no purchase item id and
	// therefore survive.
	DeleteLogsByPurchaseItems(ctx context.Context, tenantID uuid.UUID, purchaseItemIDs []int64) error

	PurchaseItemsByInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID int64, includeDeleted bool) ([]PurchaseItem, error)
	LinkPurchaseItem(ctx context.Context, purchaseItemID int64, productID *int64, variantID *int64) error
	MarkInvoiceDeleted(ctx context.Context, tenantID uuid.UUID, invoiceID int64, reason string, at time.Time) error
	MarkInvoiceRestored(ctx context.Context, tenantID uuid.UUID, invoiceID int64) error

	OrderLines(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]OrderLine, error)

	// InsertJournalEntry posts a validated double-entry journal entry in
	// the same transaction as the stock mutation it accounts for.
	InsertJournalEntry(ctx context.Context, entry ledger.EntryInput) (int64, error)
}
