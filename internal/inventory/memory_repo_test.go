package inventory

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/ledger"
)

var testTenant = uuid.MustParse("3f6c3e9a-5b0e-4d7a-9a71-2f6f1f1c9d01")

type memOrder struct {
	status OrderStatus
	lines  []OrderLine
}

// memoryRepo implements RepositoryPort and TxRepository in memory. WithTx
// snapshots state before running the callback and restores it on error, so
// rollback behavior is observable in tests.
type memoryRepo struct {
	products       map[int64]*Product
	variants       map[int64]*ProductVariant
	logs           []ProductLog
	items          map[int64]*PurchaseItem
	invoiceDeleted map[int64]bool
	orders         map[int64]*memOrder
	entries        []ledger.EntryInput
	nextID         int64
	failJournal    bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:       make(map[int64]*Product),
		variants:       make(map[int64]*ProductVariant),
		items:          make(map[int64]*PurchaseItem),
		invoiceDeleted: make(map[int64]bool),
		orders:         make(map[int64]*memOrder),
		nextID:         100,
	}
}

func (r *memoryRepo) addProduct(name string, qty int64, price float64) *Product {
	r.nextID++
	p := &Product{
		ID:                 r.nextID,
		TenantID:           testTenant,
		Name:               name,
		CurrentQuantity:    qty,
		LastPurchasePrice:  decimal.NewFromFloat(price),
		CurrentRetailPrice: decimal.NewFromFloat(price * 1.5),
		IsActive:           true,
	}
	r.products[p.ID] = p
	return p
}

func (r *memoryRepo) addVariant(productID int64, color string, qty int64) *ProductVariant {
	r.nextID++
	v := &ProductVariant{ID: r.nextID, ProductID: productID, Color: color, CurrentQuantity: qty}
	r.variants[v.ID] = v
	return v
}

func (r *memoryRepo) addPurchaseItem(invoiceID int64, name string, qty int64, price float64) *PurchaseItem {
	r.nextID++
	item := &PurchaseItem{
		ID:            r.nextID,
		InvoiceID:     invoiceID,
		Name:          name,
		PurchasePrice: decimal.NewFromFloat(price),
		Quantity:      qty,
	}
	r.items[item.ID] = item
	return item
}

func (r *memoryRepo) addOrder(orderID int64, status OrderStatus, lines ...OrderLine) {
	r.orders[orderID] = &memOrder{status: status, lines: lines}
}

func (r *memoryRepo) snapshot() *memoryRepo {
	clone := newMemoryRepo()
	clone.nextID = r.nextID
	clone.failJournal = r.failJournal
	for id, p := range r.products {
		cp := *p
		clone.products[id] = &cp
	}
	for id, v := range r.variants {
		cv := *v
		clone.variants[id] = &cv
	}
	for id, item := range r.items {
		ci := *item
		clone.items[id] = &ci
	}
	for id, deleted := range r.invoiceDeleted {
		clone.invoiceDeleted[id] = deleted
	}
	for id, o := range r.orders {
		co := memOrder{status: o.status, lines: append([]OrderLine(nil), o.lines...)}
		clone.orders[id] = &co
	}
	clone.logs = append([]ProductLog(nil), r.logs...)
	clone.entries = append([]ledger.EntryInput(nil), r.entries...)
	return clone
}

func (r *memoryRepo) restore(snap *memoryRepo) {
	r.products = snap.products
	r.variants = snap.variants
	r.items = snap.items
	r.invoiceDeleted = snap.invoiceDeleted
	r.orders = snap.orders
	r.logs = snap.logs
	r.entries = snap.entries
	r.nextID = snap.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, tenantID uuid.UUID, productID int64) (Product, error) {
	p, ok := r.products[productID]
	if !ok || p.TenantID != tenantID {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

func (r *memoryRepo) GetProductByName(ctx context.Context, tenantID uuid.UUID, foldedName string) (Product, error) {
	for _, p := range r.products {
		if p.TenantID == tenantID && FoldName(p.Name) == foldedName {
			return *p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (r *memoryRepo) GetVariant(ctx context.Context, tenantID uuid.UUID, variantID int64) (ProductVariant, Product, error) {
	v, ok := r.variants[variantID]
	if !ok {
		return ProductVariant{}, Product{}, ErrVariantNotFound
	}
	p, ok := r.products[v.ProductID]
	if !ok || p.TenantID != tenantID {
		return ProductVariant{}, Product{}, ErrVariantNotFound
	}
	return *v, *p, nil
}

func (r *memoryRepo) AllocatedQuantity(ctx context.Context, tenantID uuid.UUID, productID int64, variantID *int64, excludeOrderID int64) (int64, error) {
	product, ok := r.products[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	var sum int64
	for orderID, o := range r.orders {
		if orderID == excludeOrderID || !AllocationRelevant(o.status) {
			continue
		}
		for _, line := range o.lines {
			if !lineMatches(line, product, variantID) {
				continue
			}
			sum += line.Quantity
		}
	}
	return sum, nil
}

func lineMatches(line OrderLine, product *Product, variantID *int64) bool {
	if variantID != nil {
		return line.VariantID != nil && *line.VariantID == *variantID
	}
	if line.VariantID != nil {
		return false
	}
	if line.ProductID != nil {
		return *line.ProductID == product.ID
	}
	return FoldName(line.Name) == FoldName(product.Name)
}

func (r *memoryRepo) LogsByReference(ctx context.Context, tenantID uuid.UUID, reference string) ([]ProductLog, error) {
	var out []ProductLog
	for _, log := range r.logs {
		if log.TenantID == tenantID && log.Reference == reference {
			out = append(out, log)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p Product) (int64, error) {
	r.nextID++
	p.ID = r.nextID
	r.products[p.ID] = &p
	return p.ID, nil
}

func (r *memoryRepo) UpdateProductQuantity(ctx context.Context, productID int64, qty int64) error {
	p, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.CurrentQuantity = qty
	return nil
}

func (r *memoryRepo) UpdateVariantQuantity(ctx context.Context, variantID int64, qty int64) error {
	v, ok := r.variants[variantID]
	if !ok {
		return ErrVariantNotFound
	}
	v.CurrentQuantity = qty
	return nil
}

func (r *memoryRepo) UpdateProductPrices(ctx context.Context, productID int64, purchase decimal.Decimal, retail *decimal.Decimal) error {
	p, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.LastPurchasePrice = purchase
	if retail != nil {
		p.CurrentRetailPrice = *retail
	}
	return nil
}

func (r *memoryRepo) TouchProduct(ctx context.Context, productID int64, purchase decimal.Decimal) error {
	p, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.LastPurchasePrice = purchase
	return nil
}

func (r *memoryRepo) InsertProductLog(ctx context.Context, log ProductLog) (int64, error) {
	r.nextID++
	log.ID = r.nextID
	r.logs = append(r.logs, log)
	return log.ID, nil
}

func (r *memoryRepo) DeleteLogsByPurchaseItems(ctx context.Context, tenantID uuid.UUID, purchaseItemIDs []int64) error {
	ids := make(map[int64]bool, len(purchaseItemIDs))
	for _, id := range purchaseItemIDs {
		ids[id] = true
	}
	kept := r.logs[:0]
	for _, log := range r.logs {
		if log.PurchaseItemID != nil && ids[*log.PurchaseItemID] {
			continue
		}
		kept = append(kept, log)
	}
	r.logs = kept
	return nil
}

func (r *memoryRepo) PurchaseItemsByInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID int64, includeDeleted bool) ([]PurchaseItem, error) {
	var items []PurchaseItem
	for _, item := range r.items {
		if item.InvoiceID != invoiceID {
			continue
		}
		if item.IsDeleted && !includeDeleted {
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

func (r *memoryRepo) LinkPurchaseItem(ctx context.Context, purchaseItemID int64, productID *int64, variantID *int64) error {
	item, ok := r.items[purchaseItemID]
	if !ok {
		return errors.New("purchase item not found")
	}
	item.ProductID = productID
	item.ProductVariantID = variantID
	return nil
}

func (r *memoryRepo) MarkInvoiceDeleted(ctx context.Context, tenantID uuid.UUID, invoiceID int64, reason string, at time.Time) error {
	for _, item := range r.items {
		if item.InvoiceID == invoiceID && !item.IsDeleted {
			item.IsDeleted = true
			deletedAt := at
			item.DeletedAt = &deletedAt
		}
	}
	r.invoiceDeleted[invoiceID] = true
	return nil
}

func (r *memoryRepo) MarkInvoiceRestored(ctx context.Context, tenantID uuid.UUID, invoiceID int64) error {
	for _, item := range r.items {
		if item.InvoiceID == invoiceID {
			item.IsDeleted = false
			item.DeletedAt = nil
		}
	}
	r.invoiceDeleted[invoiceID] = false
	return nil
}

func (r *memoryRepo) OrderLines(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]OrderLine, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	return append([]OrderLine(nil), o.lines...), nil
}

func (r *memoryRepo) InsertJournalEntry(ctx context.Context, entry ledger.EntryInput) (int64, error) {
	if r.failJournal {
		return 0, errors.New("journal store unavailable")
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	r.entries = append(r.entries, entry)
	return int64(len(r.entries)), nil
}

func (r *memoryRepo) logsFor(productID int64) []ProductLog {
	var out []ProductLog
	for _, log := range r.logs {
		if log.ProductID == productID {
			out = append(out, log)
		}
	}
	return out
}

func newTestService(t *testing.T, repo *memoryRepo, cfg ServiceConfig) *Service {
	t.Helper()
	svc := NewService(repo, nil, nil, slog.Default(), cfg)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

func ptr[T any](v T) *T { return &v }
