package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

var nameFolder = cases.Fold()

// FoldName normalises a product name for case-insensitive matching.
func FoldName(name string) string {
	return nameFolder.String(strings.TrimSpace(name))
}

// Resolution is the outcome of resolving a line item to a stock record.
// Exactly one of three states holds: variant hit (Product and Variant set),
// product hit (Product set), or miss (both nil).
type Resolution struct {
	Product *Product
	Variant *ProductVariant
}

// Found reports whether resolution hit a stock record.
func (r Resolution) Found() bool {
	return r.Product != nil
}

// CurrentQuantity returns the quantity of the resolved target.
func (r Resolution) CurrentQuantity() int64 {
	if r.Variant != nil {
		return r.Variant.CurrentQuantity
	}
	if r.Product != nil {
		return r.Product.CurrentQuantity
	}
	return 0
}

// Resolve maps a line item to exactly one stock record: variant id first,
// then product id, then case-insensitive exact name, all scoped to the
// tenant. A stale variant id falls back to product-level resolution. Pure
// lookup; creation is the caller's responsibility.
func Resolve(ctx context.Context, lk Lookup, tenantID uuid.UUID, line LineItem) (Resolution, error) {
	if line.VariantID != nil {
		variant, product, err := lk.GetVariant(ctx, tenantID, *line.VariantID)
		if err == nil {
			return Resolution{Product: &product, Variant: &variant}, nil
		}
		if !errors.Is(err, ErrVariantNotFound) {
			return Resolution{}, err
		}
	}
	if line.ProductID != nil {
		product, err := lk.GetProduct(ctx, tenantID, *line.ProductID)
		if err == nil {
			return Resolution{Product: &product}, nil
		}
		if !errors.Is(err, ErrProductNotFound) {
			return Resolution{}, err
		}
	}
	if line.Name == "" {
		return Resolution{}, nil
	}
	product, err := lk.GetProductByName(ctx, tenantID, FoldName(line.Name))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Resolution{}, nil
		}
		return Resolution{}, err
	}
	return Resolution{Product: &product}, nil
}

// ResolveByName ignores variant and product ids entirely. Purchase reversal
// and restoration historically resolve this way; the asymmetry is kept
// behind ServiceConfig.ReversalResolvesByName.
func ResolveByName(ctx context.Context, lk Lookup, tenantID uuid.UUID, name string) (Resolution, error) {
	if name == "" {
		return Resolution{}, nil
	}
	product, err := lk.GetProductByName(ctx, tenantID, FoldName(name))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return Resolution{}, nil
		}
		return Resolution{}, err
	}
	return Resolution{Product: &product}, nil
}

// resolutionKey identifies a line item across two versions of a document:
// variant id beats product id beats folded name.
func resolutionKey(line LineItem) string {
	if line.VariantID != nil {
		return fmt.Sprintf("v:%d", *line.VariantID)
	}
	if line.ProductID != nil {
		return fmt.Sprintf("p:%d", *line.ProductID)
	}
	return "n:" + FoldName(line.Name)
}

// orderLineKey mirrors resolutionKey for order lines.
func orderLineKey(line OrderLine) string {
	if line.VariantID != nil {
		return fmt.Sprintf("v:%d", *line.VariantID)
	}
	if line.ProductID != nil {
		return fmt.Sprintf("p:%d", *line.ProductID)
	}
	return "n:" + FoldName(line.Name)
}
