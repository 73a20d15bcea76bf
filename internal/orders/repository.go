package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, tenant_id, reference, customer_name, status, total, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.TenantID, &o.Reference, &o.CustomerName, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// Create inserts the order with its items in one transaction.
func (r *Repository) Create(ctx context.Context, o Order, items []Item) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (tenant_id, reference, customer_name, status, total, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		RETURNING id`,
		o.TenantID, o.Reference, o.CustomerName, o.Status, o.Total, o.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := insertItems(ctx, tx, id, items); err != nil {
		return 0, err
	}
	return id, tx.Commit(ctx)
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID int64, items []Item) error {
	for _, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, product_variant_id, name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			orderID, item.ProductID, item.VariantID, item.Name, item.Quantity, item.Price)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get returns one order, tenant scoped.
func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID, orderID int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 AND id=$2`, tenantID, orderID))
}

// Items returns the order's line items.
func (r *Repository) Items(ctx context.Context, tenantID uuid.UUID, orderID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.product_variant_id, oi.name, oi.quantity, oi.price
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.tenant_id=$1 AND o.id=$2
		ORDER BY oi.id`, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns a page of orders, newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id=$1 AND ($2 = '' OR status = $2)
		ORDER BY id DESC
		LIMIT $3 OFFSET $4`, tenantID, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// Update rewrites the order header and replaces its items in one
// transaction.
func (r *Repository) Update(ctx context.Context, o Order, items []Item) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET customer_name=$3, total=$4, updated_at=NOW()
		WHERE tenant_id=$1 AND id=$2`,
		o.TenantID, o.ID, o.CustomerName, o.Total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
		return err
	}
	if err := insertItems(ctx, tx, o.ID, items); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateStatus moves the order to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID uuid.UUID, orderID int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=NOW()
		WHERE tenant_id=$1 AND id=$2`, tenantID, orderID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
