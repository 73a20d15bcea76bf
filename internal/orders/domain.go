package orders

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkeep/ledgerkeep/internal/inventory"
)

// Status is the order lifecycle state.
type Status = inventory.OrderStatus

const (
	StatusPending    = inventory.OrderStatusPending
	StatusConfirmed  = inventory.OrderStatusConfirmed
	StatusDispatched = inventory.OrderStatusDispatched
	StatusCompleted  = inventory.OrderStatusCompleted
	StatusCancelled  = inventory.OrderStatusCancelled
)

// CanTransition reports whether the lifecycle allows moving from one status
// to the next. Cancellation is only possible before confirmation; a
// confirmed order holds a real allocation and must run its course.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusDispatched || to == StatusCompleted
	case StatusDispatched:
		return to == StatusCompleted
	}
	return false
}

// Order is a tenant-scoped sales order.
type Order struct {
	ID           int64           `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	Reference    string          `json:"reference"`
	CustomerName string          `json:"customer_name"`
	Status       Status          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Item is one line of an order.
type Item struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID *int64          `json:"product_id,omitempty"`
	VariantID *int64          `json:"product_variant_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Line converts an item to the allocator's line shape.
func (i Item) Line() inventory.OrderLine {
	return inventory.OrderLine{
		ProductID: i.ProductID,
		VariantID: i.VariantID,
		Name:      i.Name,
		Quantity:  i.Quantity,
	}
}

// Common errors.
var (
	ErrNotFound          = errors.New("orders: order not found")
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	ErrNoItems           = errors.New("orders: order needs at least one item")
)

// InsufficientStockError carries the per-line availability failures of a
// rejected submission or edit.
type InsufficientStockError struct {
	Result inventory.ValidationResult
}

func (e *InsufficientStockError) Error() string {
	return "orders: insufficient stock"
}
