package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LogAction enumerates audit-log actions for stock changes.
type LogAction string

const (
	// LogActionCreate records the implicit creation of a product from a purchase line.
	LogActionCreate LogAction = "CREATE"
	// LogActionIncrease records a positive quantity delta.
	LogActionIncrease LogAction = "INCREASE"
	// LogActionDecrease records a negative quantity delta.
	LogActionDecrease LogAction = "DECREASE"
	// LogActionPriceUpdate records a purchase-price change without a quantity delta.
	LogActionPriceUpdate LogAction = "PURCHASE_PRICE_UPDATE"
)

// ReturnDirection distinguishes who sends goods back.
type ReturnDirection string

const (
	// ReturnDirectionSupplier means goods go back to the supplier (stock decreases).
	ReturnDirectionSupplier ReturnDirection = "SUPPLIER"
	// ReturnDirectionCustomer means a customer sends goods back (stock increases).
	ReturnDirectionCustomer ReturnDirection = "CUSTOMER"
)

// retailMarkup seeds the retail price of implicitly created products.
var retailMarkup = decimal.NewFromFloat(1.5)

// priceTolerance bounds the price distance used when re-pairing reordered
// line items during an edit diff.
var priceTolerance = decimal.NewFromFloat(0.01)

// Product is the tenant-scoped stock record.
type Product struct {
	ID                 int64
	TenantID           uuid.UUID
	Name               string
	CurrentQuantity    int64
	LastPurchasePrice  decimal.Decimal
	CurrentRetailPrice decimal.Decimal
	MinStockLevel      int64
	MaxStockLevel      int64
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ProductVariant carries its own quantity under a parent product.
type ProductVariant struct {
	ID              int64
	ProductID       int64
	Color           string
	Size            string
	CurrentQuantity int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PurchaseItem is a line item on a purchase invoice. Its soft-delete flag
// is independent from the parent invoice's flag.
type PurchaseItem struct {
	ID               int64
	InvoiceID        int64
	Name             string
	PurchasePrice    decimal.Decimal
	Quantity         int64
	ProductID        *int64
	ProductVariantID *int64
	IsDeleted        bool
	DeletedAt        *time.Time
}

// ProductLog is one append-only audit entry. It is never mutated after
// creation; rows referencing a purchase item are purged in bulk when that
// item's invoice is deleted, all others survive forever.
type ProductLog struct {
	ID               int64            `json:"id"`
	TenantID         uuid.UUID        `json:"tenant_id"`
	Action           LogAction        `json:"action"`
	Quantity         int64            `json:"quantity"`
	OldQuantity      int64            `json:"old_quantity"`
	NewQuantity      int64            `json:"new_quantity"`
	OldPrice         *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice         *decimal.Decimal `json:"new_price,omitempty"`
	Reason           string           `json:"reason"`
	Reference        string           `json:"reference"`
	ProductID        int64            `json:"product_id"`
	ProductVariantID *int64           `json:"product_variant_id,omitempty"`
	PurchaseItemID   *int64           `json:"purchase_item_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// LineItem is the canonical typed line at the engine boundary. Parsing of
// heterogeneous legacy payloads belongs to the HTTP layer, not here.
type LineItem struct {
	PurchaseItemID int64
	ProductID      *int64
	VariantID      *int64
	Name           string
	Quantity       int64
	Price          decimal.Decimal
}

// OrderLine is one requested product/variant quantity on an order.
type OrderLine struct {
	ProductID *int64
	VariantID *int64
	Name      string
	Quantity  int64
}

// ItemError is a lenient per-item failure. The surrounding operation still
// reports success for the items that did succeed.
type ItemError struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ReconcileResult summarises one document-lifecycle reconciliation.
type ReconcileResult struct {
	Updated     int         `json:"updated"`
	Created     int         `json:"created"`
	Reversed    int         `json:"reversed"`
	Restored    int         `json:"restored"`
	LogsCreated int         `json:"logs_created"`
	Errors      []ItemError `json:"errors,omitempty"`
}

// StockError describes one failed availability check.
type StockError struct {
	Name      string `json:"name"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
	Reason    string `json:"reason"`
}

// ValidationResult is returned by the availability check. It never implies
// any state change.
type ValidationResult struct {
	Valid  bool         `json:"is_valid"`
	Errors []StockError `json:"errors,omitempty"`
}

// OrderStatus tracks the order lifecycle subset the allocator cares about.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusDispatched OrderStatus = "DISPATCHED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// AllocationRelevant reports whether an order in the given status holds a
// real stock allocation.
func AllocationRelevant(status OrderStatus) bool {
	switch status {
	case OrderStatusConfirmed, OrderStatusDispatched, OrderStatusCompleted:
		return true
	}
	return false
}

// ErrProductNotFound indicates entity resolution failed at product level.
var ErrProductNotFound = errors.New("inventory: product not found")

// ErrVariantNotFound indicates a stale or missing variant reference.
var ErrVariantNotFound = errors.New("inventory: product variant not found")

// ErrInvalidLineItem indicates a malformed line item.
var ErrInvalidLineItem = errors.New("inventory: invalid line item")

// ErrNegativeStock is returned instead of clamping when AllowNegativeStock
// is off and strict rejection is configured.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")
