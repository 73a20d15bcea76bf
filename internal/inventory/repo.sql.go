package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/ledger"
	"github.com/ledgerkeep/ledgerkeep/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, tenant_id, name, current_quantity, last_purchase_price, current_retail_price,
	COALESCE(min_stock_level,0), COALESCE(max_stock_level,0), is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.CurrentQuantity, &p.LastPurchasePrice,
		&p.CurrentRetailPrice, &p.MinStockLevel, &p.MaxStockLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// GetProduct looks a product up by id, tenant scoped.
func (r *Repository) GetProduct(ctx context.Context, tenantID uuid.UUID, productID int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID))
}

// GetProductByName matches a case-folded exact name, tenant scoped.
func (r *Repository) GetProductByName(ctx context.Context, tenantID uuid.UUID, foldedName string) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND LOWER(name)=$2`, tenantID, foldedName))
}

// GetVariant returns the variant with its parent product, tenant scoped
// through the parent.
func (r *Repository) GetVariant(ctx context.Context, tenantID uuid.UUID, variantID int64) (ProductVariant, Product, error) {
	return getVariant(ctx, r.pool, tenantID, variantID, "")
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getVariant(ctx context.Context, q rowQuerier, tenantID uuid.UUID, variantID int64, lock string) (ProductVariant, Product, error) {
	var v ProductVariant
	var p Product
	err := q.QueryRow(ctx, `
		SELECT v.id, v.product_id, COALESCE(v.color,''), COALESCE(v.size,''), v.current_quantity, v.created_at, v.updated_at,
			p.id, p.tenant_id, p.name, p.current_quantity, p.last_purchase_price, p.current_retail_price,
			COALESCE(p.min_stock_level,0), COALESCE(p.max_stock_level,0), p.is_active, p.created_at, p.updated_at
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE p.tenant_id=$1 AND v.id=$2`+lock,
		tenantID, variantID,
	).Scan(
		&v.ID, &v.ProductID, &v.Color, &v.Size, &v.CurrentQuantity, &v.CreatedAt, &v.UpdatedAt,
		&p.ID, &p.TenantID, &p.Name, &p.CurrentQuantity, &p.LastPurchasePrice, &p.CurrentRetailPrice,
		&p.MinStockLevel, &p.MaxStockLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductVariant{}, Product{}, ErrVariantNotFound
		}
		return ProductVariant{}, Product{}, err
	}
	return v, p, nil
}

// WithTx wraps fn in a repeatable-read transaction holding the tenant's
// posting lock so no two documents of one tenant reconcile concurrently.
func (r *Repository) WithTx(ctx context.Context, tenantID uuid.UUID, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := shared.AcquirePostingLock(ctx, tx, tenantID); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// AllocatedQuantity sums quantities committed to allocation-relevant orders
// for one product (or one of its variants), optionally excluding an order.
func (r *Repository) AllocatedQuantity(ctx context.Context, tenantID uuid.UUID, productID int64, variantID *int64, excludeOrderID int64) (int64, error) {
	var allocated int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(oi.quantity),0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.tenant_id=$1
		  AND o.status = ANY($2)
		  AND oi.product_id = $3
		  AND (oi.product_variant_id = $4 OR ($4::bigint IS NULL AND oi.product_variant_id IS NULL))
		  AND o.id <> $5`,
		tenantID,
		[]string{string(OrderStatusConfirmed), string(OrderStatusDispatched), string(OrderStatusCompleted)},
		productID, variantID, excludeOrderID,
	).Scan(&allocated)
	return allocated, err
}

// OrderLines returns the stored line items of an order.
func (r *Repository) OrderLines(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]OrderLine, error) {
	return queryOrderLines(ctx, r.pool, tenantID, orderID)
}

type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryOrderLines(ctx context.Context, q rowsQuerier, tenantID uuid.UUID, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT oi.product_id, oi.product_variant_id, oi.name, oi.quantity
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.tenant_id=$1 AND o.id=$2
		ORDER BY oi.id`, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ProductID, &line.VariantID, &line.Name, &line.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// LogsByReference lists audit entries for one document reference, oldest
// first. Used by the integrity scan and the log lookup endpoint.
func (r *Repository) LogsByReference(ctx context.Context, tenantID uuid.UUID, reference string) ([]ProductLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, action, quantity, old_quantity, new_quantity, old_price, new_price,
			reason, reference, product_id, product_variant_id, purchase_item_id, created_at
		FROM product_logs
		WHERE tenant_id=$1 AND reference=$2
		ORDER BY id`, tenantID, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ProductLog
	for rows.Next() {
		var l ProductLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.Action, &l.Quantity, &l.OldQuantity, &l.NewQuantity,
			&l.OldPrice, &l.NewPrice, &l.Reason, &l.Reference, &l.ProductID, &l.ProductVariantID,
			&l.PurchaseItemID, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

// Lookups inside the transaction take row locks; the delta computation is a
// read-modify-write and must not race another document on the same rows.

func (t *txRepo) GetProduct(ctx context.Context, tenantID uuid.UUID, productID int64) (Product, error) {
	return scanProduct(t.tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, productID))
}

func (t *txRepo) GetProductByName(ctx context.Context, tenantID uuid.UUID, foldedName string) (Product, error) {
	return scanProduct(t.tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND LOWER(name)=$2 FOR UPDATE`, tenantID, foldedName))
}

func (t *txRepo) GetVariant(ctx context.Context, tenantID uuid.UUID, variantID int64) (ProductVariant, Product, error) {
	return getVariant(ctx, t.tx, tenantID, variantID, " FOR UPDATE OF v, p")
}

func (t *txRepo) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO products (tenant_id, name, current_quantity, last_purchase_price, current_retail_price,
			min_stock_level, max_stock_level, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		RETURNING id`,
		p.TenantID, p.Name, p.CurrentQuantity, p.LastPurchasePrice, p.CurrentRetailPrice,
		p.MinStockLevel, p.MaxStockLevel, p.IsActive, p.CreatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateProductQuantity(ctx context.Context, productID int64, qty int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE products SET current_quantity=$2, updated_at=NOW() WHERE id=$1`, productID, qty)
	return err
}

func (t *txRepo) UpdateVariantQuantity(ctx context.Context, variantID int64, qty int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE product_variants SET current_quantity=$2, updated_at=NOW() WHERE id=$1`, variantID, qty)
	return err
}

func (t *txRepo) UpdateProductPrices(ctx context.Context, productID int64, purchase decimal.Decimal, retail *decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE products
		SET last_purchase_price=$2,
		    current_retail_price=COALESCE($3, current_retail_price),
		    updated_at=NOW()
		WHERE id=$1`, productID, purchase, retail)
	return err
}

func (t *txRepo) TouchProduct(ctx context.Context, productID int64, purchase decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE products SET last_purchase_price=$2, updated_at=NOW() WHERE id=$1`, productID, purchase)
	return err
}

func (t *txRepo) InsertProductLog(ctx context.Context, log ProductLog) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO product_logs (tenant_id, action, quantity, old_quantity, new_quantity, old_price, new_price,
			reason, reference, product_id, product_variant_id, purchase_item_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		log.TenantID, log.Action, log.Quantity, log.OldQuantity, log.NewQuantity, log.OldPrice, log.NewPrice,
		log.Reason, log.Reference, log.ProductID, log.ProductVariantID, log.PurchaseItemID, log.CreatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) DeleteLogsByPurchaseItems(ctx context.Context, tenantID uuid.UUID, purchaseItemIDs []int64) error {
	if len(purchaseItemIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx,
		`DELETE FROM product_logs WHERE tenant_id=$1 AND purchase_item_id = ANY($2)`, tenantID, purchaseItemIDs)
	return err
}

func (t *txRepo) PurchaseItemsByInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID int64, includeDeleted bool) ([]PurchaseItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT pi.id, pi.invoice_id, pi.name, pi.purchase_price, pi.quantity,
			pi.product_id, pi.product_variant_id, pi.is_deleted, pi.deleted_at
		FROM purchase_items pi
		JOIN purchase_invoices inv ON inv.id = pi.invoice_id
		WHERE inv.tenant_id=$1 AND pi.invoice_id=$2 AND (pi.is_deleted = FALSE OR $3)
		ORDER BY pi.id`, tenantID, invoiceID, includeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PurchaseItem
	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Name, &item.PurchasePrice, &item.Quantity,
			&item.ProductID, &item.ProductVariantID, &item.IsDeleted, &item.DeletedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepo) LinkPurchaseItem(ctx context.Context, purchaseItemID int64, productID *int64, variantID *int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE purchase_items SET product_id=$2, product_variant_id=$3 WHERE id=$1`,
		purchaseItemID, productID, variantID)
	return err
}

func (t *txRepo) MarkInvoiceDeleted(ctx context.Context, tenantID uuid.UUID, invoiceID int64, reason string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE purchase_items SET is_deleted=TRUE, deleted_at=$3
		WHERE invoice_id=$2 AND is_deleted=FALSE
		  AND EXISTS (SELECT 1 FROM purchase_invoices WHERE id=$2 AND tenant_id=$1)`,
		tenantID, invoiceID, at)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE purchase_invoices SET is_deleted=TRUE, deleted_at=$3, deletion_reason=NULLIF($4,'')
		WHERE tenant_id=$1 AND id=$2`,
		tenantID, invoiceID, at, reason)
	return err
}

func (t *txRepo) MarkInvoiceRestored(ctx context.Context, tenantID uuid.UUID, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE purchase_items SET is_deleted=FALSE, deleted_at=NULL
		WHERE invoice_id=$2
		  AND EXISTS (SELECT 1 FROM purchase_invoices WHERE id=$2 AND tenant_id=$1)`,
		tenantID, invoiceID)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE purchase_invoices SET is_deleted=FALSE, deleted_at=NULL, deletion_reason=NULL
		WHERE tenant_id=$1 AND id=$2`,
		tenantID, invoiceID)
	return err
}

func (t *txRepo) OrderLines(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]OrderLine, error) {
	return queryOrderLines(ctx, t.tx, tenantID, orderID)
}

func (t *txRepo) InsertJournalEntry(ctx context.Context, entry ledger.EntryInput) (int64, error) {
	return ledger.InsertEntry(ctx, t.tx, entry)
}
